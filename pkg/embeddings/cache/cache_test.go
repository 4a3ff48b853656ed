package cache

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	testutils "github.com/emberworks/chronicle/pkg/utils/test"
)

// brokenBackend fails every operation, for exercising the degrade paths.
type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) ([]float32, bool, error) {
	return nil, false, errors.New("backend down")
}
func (brokenBackend) Set(context.Context, string, []float32) error {
	return errors.New("backend down")
}
func (brokenBackend) Close() error { return nil }

var _ = Describe("Normalize", func() {
	It("lowercases and collapses whitespace", func() {
		Expect(Normalize("  The   INNKEEPER\twhispers \n")).To(Equal("the innkeeper whispers"))
	})

	It("leaves already-normal text unchanged", func() {
		Expect(Normalize("plain text")).To(Equal("plain text"))
	})
})

var _ = Describe("Embedder", func() {
	var (
		ctx      context.Context
		upstream *testutils.MockEmbedder
		backend  *MemoryBackend
		cached   *Embedder
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger, _ := zap.NewDevelopment()
		upstream = testutils.NewMockEmbedder()
		backend = NewMemoryBackend()
		cached = NewEmbedder(upstream, backend, logger)
	})

	Describe("Key", func() {
		It("is stable across case and spacing variants", func() {
			Expect(cached.Key("The Siege")).To(Equal(cached.Key("  the   siege ")))
		})

		It("differs for different texts", func() {
			Expect(cached.Key("the siege")).NotTo(Equal(cached.Key("the retreat")))
		})

		It("embeds the dimensionality", func() {
			Expect(cached.Key("x")).To(HavePrefix("emb:3:"))
		})
	})

	Describe("Embed", func() {
		It("calls upstream on a miss and stores the result", func() {
			upstream.Embeddings["the siege"] = []float32{1, 0, 0}

			vec, err := cached.Embed(ctx, "the siege")
			Expect(err).NotTo(HaveOccurred())
			Expect(vec).To(Equal([]float32{1, 0, 0}))
			Expect(upstream.Calls).To(HaveLen(1))

			stored, ok, err := backend.Get(ctx, cached.Key("the siege"))
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(stored).To(Equal([]float32{1, 0, 0}))
		})

		It("serves a hit without touching upstream", func() {
			upstream.Embeddings["the siege"] = []float32{1, 0, 0}

			_, err := cached.Embed(ctx, "the siege")
			Expect(err).NotTo(HaveOccurred())

			// Case and spacing variants hit the same entry.
			vec, err := cached.Embed(ctx, "  The   SIEGE ")
			Expect(err).NotTo(HaveOccurred())
			Expect(vec).To(Equal([]float32{1, 0, 0}))
			Expect(upstream.Calls).To(HaveLen(1))
		})

		It("propagates upstream failures", func() {
			upstream.FailOn = "doomed"
			_, err := cached.Embed(ctx, "doomed")
			Expect(err).To(HaveOccurred())
		})

		It("degrades to upstream when the backend is down", func() {
			logger, _ := zap.NewDevelopment()
			broken := NewEmbedder(upstream, brokenBackend{}, logger)

			vec, err := broken.Embed(ctx, "the siege")
			Expect(err).NotTo(HaveOccurred())
			Expect(vec).NotTo(BeEmpty())
		})
	})

	It("reports the upstream dimensionality", func() {
		Expect(cached.Dimensions()).To(Equal(uint(3)))
	})
})
