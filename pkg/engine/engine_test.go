package engine

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/store/memstore"
	testutils "github.com/emberworks/chronicle/pkg/utils/test"
)

// newTestEngine creates an engine over an in-memory driver with mock
// collaborators. Modifier funcs adjust the config before construction.
func newTestEngine(mods ...func(*Config)) (*Engine, *memstore.Driver, *testutils.MockOracle, *testutils.MockEmbedder) {
	logger, _ := zap.NewDevelopment()
	driver := memstore.NewDriver()
	orc := testutils.NewMockOracle()
	emb := testutils.NewMockEmbedder()

	cfg := Config{
		Store:    driver,
		Oracle:   orc,
		Embedder: emb,
		Logger:   logger,
	}
	for _, mod := range mods {
		mod(&cfg)
	}

	eng, err := New(cfg)
	Expect(err).NotTo(HaveOccurred())

	return eng, driver, orc, emb
}

var _ = Describe("New", func() {
	It("rejects a missing store", func() {
		logger, _ := zap.NewDevelopment()
		_, err := New(Config{
			Oracle:   testutils.NewMockOracle(),
			Embedder: testutils.NewMockEmbedder(),
			Logger:   logger,
		})
		Expect(err).To(HaveOccurred())
	})

	It("rejects a missing oracle", func() {
		logger, _ := zap.NewDevelopment()
		_, err := New(Config{
			Store:    memstore.NewDriver(),
			Embedder: testutils.NewMockEmbedder(),
			Logger:   logger,
		})
		Expect(err).To(HaveOccurred())
	})

	It("applies defaults for unset tuning knobs", func() {
		eng, _, _, _ := newTestEngine()
		Expect(eng.sessionTTL).To(Equal(DefaultSessionTTL))
		Expect(eng.episodeTTL).To(Equal(DefaultEpisodeTTL))
		Expect(eng.promoteThreshold).To(Equal(DefaultPromoteThreshold))
		Expect(eng.captureTimeout).To(Equal(DefaultCaptureTimeout))
		Expect(eng.oracleTimeout).To(Equal(DefaultOracleTimeout))
		Expect(eng.maxContentBytes).To(Equal(DefaultMaxContentBytes))
	})

	It("reports the configured promotion threshold", func() {
		eng, _, _, _ := newTestEngine(func(c *Config) {
			c.PromoteThreshold = 0.9
		})
		Expect(eng.PromoteThreshold()).To(Equal(0.9))
	})
})
