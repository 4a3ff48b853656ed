package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/engine"
	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store/memstore"
	testutils "github.com/emberworks/chronicle/pkg/utils/test"
)

// newTestScheduler builds a scheduler with a fixed clock over an in-memory
// driver. Ticks are driven manually; the cron loop is never started.
func newTestScheduler(now time.Time) (*Scheduler, *memstore.Driver) {
	logger, _ := zap.NewDevelopment()
	driver := memstore.NewDriver()

	eng, err := engine.New(engine.Config{
		Store:    driver,
		Oracle:   testutils.NewMockOracle(),
		Embedder: testutils.NewMockEmbedder(),
		Logger:   logger,
	})
	Expect(err).NotTo(HaveOccurred())

	s, err := New(Config{
		Store:  driver,
		Engine: eng,
		Clock:  func() time.Time { return now },
		Logger: logger,
	})
	Expect(err).NotTo(HaveOccurred())

	return s, driver
}

func putSession(ctx context.Context, driver *memstore.Driver, expiresAt time.Time, processed bool) uuid.UUID {
	m := &lore.SessionMemory{
		ID:          uuid.New(),
		SessionID:   uuid.New(),
		CharacterID: uuid.New(),
		Timestamp:   expiresAt.Add(-time.Hour),
		Kind:        lore.EventAction,
		Content:     json.RawMessage(`"an event"`),
		ExpiresAt:   expiresAt,
		Processed:   processed,
	}
	Expect(driver.PutSession(ctx, m)).To(Succeed())
	return m.ID
}

func putEpisode(ctx context.Context, driver *memstore.Driver, expiresAt time.Time, importance float64, promoted bool) uuid.UUID {
	e := &lore.EpisodeMemory{
		ID:             uuid.New(),
		CreatedAt:      expiresAt.Add(-48 * time.Hour),
		ExpiresAt:      expiresAt,
		Title:          "An Episode",
		OneLineSummary: "Something happened.",
		Narrative:      "Something happened at length.",
		SessionIDs:     []uuid.UUID{uuid.New()},
		Importance:     importance,
		Promoted:       promoted,
	}
	Expect(driver.PutEpisode(ctx, e)).To(Succeed())
	return e.ID
}

var _ = Describe("Scheduler", func() {
	var (
		ctx    context.Context
		now    time.Time
		s      *Scheduler
		driver *memstore.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
		s, driver = newTestScheduler(now)
	})

	Describe("New", func() {
		It("rejects a missing store", func() {
			logger, _ := zap.NewDevelopment()
			_, err := New(Config{Logger: logger})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Tick", func() {
		It("removes expired processed session memories", func() {
			expired := putSession(ctx, driver, now.Add(-time.Minute), true)
			fresh := putSession(ctx, driver, now.Add(time.Hour), true)

			Expect(s.Tick(ctx)).To(BeTrue())

			_, err := driver.SessionByID(ctx, expired)
			Expect(err).To(HaveOccurred())
			_, err = driver.SessionByID(ctx, fresh)
			Expect(err).NotTo(HaveOccurred())
		})

		It("never removes unprocessed session memories", func() {
			id := putSession(ctx, driver, now.Add(-24*time.Hour), false)

			s.Tick(ctx)

			_, err := driver.SessionByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
		})

		It("removes expired unpromoted episodes", func() {
			expired := putEpisode(ctx, driver, now.Add(-time.Minute), 0.2, false)

			s.Tick(ctx)

			_, err := driver.EpisodeByID(ctx, expired)
			Expect(err).To(HaveOccurred())
		})

		It("never removes promoted episodes", func() {
			id := putEpisode(ctx, driver, now.Add(-24*time.Hour), 0.9, true)

			s.Tick(ctx)

			_, err := driver.EpisodeByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
		})

		It("auto-promotes episodes above the threshold", func() {
			id := putEpisode(ctx, driver, now.Add(time.Hour), 0.9, false)

			s.Tick(ctx)

			e, err := driver.EpisodeByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Promoted).To(BeTrue())

			_, err = driver.WorldBySourceEpisode(ctx, id)
			Expect(err).NotTo(HaveOccurred())
		})

		It("leaves episodes below the threshold alone", func() {
			id := putEpisode(ctx, driver, now.Add(time.Hour), 0.5, false)

			s.Tick(ctx)

			e, err := driver.EpisodeByID(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Promoted).To(BeFalse())
		})

		It("skips a tick that would overlap a running sweep", func() {
			s.running.Store(true)
			Expect(s.Tick(ctx)).To(BeFalse())

			s.running.Store(false)
			Expect(s.Tick(ctx)).To(BeTrue())
		})
	})

	Describe("Start and Stop", func() {
		It("runs the cron loop and stops cleanly", func() {
			Expect(s.Start()).To(Succeed())
			s.Stop()
		})

		It("rejects an invalid cron spec", func() {
			logger, _ := zap.NewDevelopment()
			eng, err := engine.New(engine.Config{
				Store:    driver,
				Oracle:   testutils.NewMockOracle(),
				Embedder: testutils.NewMockEmbedder(),
				Logger:   logger,
			})
			Expect(err).NotTo(HaveOccurred())

			bad, err := New(Config{
				Store:  driver,
				Engine: eng,
				Spec:   "not a cron spec",
				Logger: logger,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(bad.Start()).NotTo(Succeed())
		})
	})
})
