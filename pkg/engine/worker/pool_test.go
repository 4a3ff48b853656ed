package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store/memstore"
	testutils "github.com/emberworks/chronicle/pkg/utils/test"
)

// newTestPool creates a worker pool backed by an in-memory driver.
// Callers should "wp.Close()" to drain enqueued jobs before asserting storage state.
func newTestPool() (*Pool, *memstore.Driver, *testutils.MockEmbedder) {
	logger, _ := zap.NewDevelopment()
	driver := memstore.NewDriver()
	embedder := testutils.NewMockEmbedder()

	wp, err := NewPool(&Config{
		Driver:   driver,
		Embedder: embedder,
		Logger:   logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return wp, driver, embedder
}

// seedRow stores one unembedded session memory and returns its id.
func seedRow(ctx context.Context, driver *memstore.Driver) uuid.UUID {
	m := &lore.SessionMemory{
		ID:          uuid.New(),
		SessionID:   uuid.New(),
		CharacterID: uuid.New(),
		Timestamp:   time.Now(),
		Kind:        lore.EventDialogue,
		Content:     json.RawMessage(`"hello there"`),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	Expect(driver.PutSession(ctx, m)).To(Succeed())
	return m.ID
}

var _ = Describe("Worker Pool", func() {
	var (
		wp       *Pool
		driver   *memstore.Driver
		embedder *testutils.MockEmbedder
		ctx      context.Context
	)

	BeforeEach(func() {
		wp, driver, embedder = newTestPool()
		ctx = context.Background()
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			ok := wp.Enqueue(Job{MemoryID: uuid.New(), Text: "hello"})
			Expect(ok).To(BeTrue())
			wp.Close()
		})
	})

	Describe("embedding backfill", func() {
		It("writes the vector back to the stored row", func() {
			id := seedRow(ctx, driver)
			embedder.Embeddings[`"hello there"`] = []float32{0.5, 0.5, 0}

			wp.Enqueue(Job{MemoryID: id, Text: `"hello there"`})
			wp.Close()

			m, err := driver.SessionByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Embedding).To(Equal([]float32{0.5, 0.5, 0}))
		})

		It("skips jobs with empty text", func() {
			id := seedRow(ctx, driver)

			wp.Enqueue(Job{MemoryID: id, Text: ""})
			wp.Close()

			m, err := driver.SessionByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Embedding).To(BeEmpty())
			Expect(embedder.Calls).To(BeEmpty())
		})

		It("leaves the row unembedded when the embedder fails", func() {
			id := seedRow(ctx, driver)
			embedder.FailOn = "doomed"

			wp.Enqueue(Job{MemoryID: id, Text: "doomed"})
			wp.Close()

			m, err := driver.SessionByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Embedding).To(BeEmpty())
		})

		It("tolerates jobs for rows that no longer exist", func() {
			wp.Enqueue(Job{MemoryID: uuid.New(), Text: "orphaned"})
			wp.Close()
		})
	})
})
