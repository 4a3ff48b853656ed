package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
	"github.com/emberworks/chronicle/pkg/store/memstore"
)

// seedMemory stores one unprocessed raw event for a session.
func seedMemory(ctx context.Context, driver *memstore.Driver, sessionID uuid.UUID, importance float64, mods ...func(*lore.SessionMemory)) *lore.SessionMemory {
	m := &lore.SessionMemory{
		ID:          uuid.New(),
		SessionID:   sessionID,
		CharacterID: uuid.New(),
		Timestamp:   time.Now(),
		Kind:        lore.EventAction,
		Content:     json.RawMessage(`"something happened"`),
		Importance:  importance,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	for _, mod := range mods {
		mod(m)
	}
	Expect(driver.PutSession(ctx, m)).To(Succeed())
	return m
}

var _ = Describe("Condense", func() {
	var (
		ctx       context.Context
		sessionID uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		sessionID = uuid.New()
	})

	It("returns ErrNoMemories for an unknown session", func() {
		eng, _, _, _ := newTestEngine()
		_, err := eng.Condense(ctx, sessionID)
		Expect(err).To(MatchError(ErrNoMemories))
	})

	Context("with captured events", func() {
		It("builds an episode from the oracle summary", func() {
			eng, driver, orc, _ := newTestEngine()
			orc.Summary.Title = "The Broken Bridge"
			orc.Summary.Themes = []string{"sacrifice"}
			seedMemory(ctx, driver, sessionID, 0.8)
			seedMemory(ctx, driver, sessionID, 0.6)

			episode, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(episode.Title).To(Equal("The Broken Bridge"))
			Expect(episode.Themes).To(Equal([]string{"sacrifice"}))
			Expect(episode.SessionIDs).To(Equal([]uuid.UUID{sessionID}))
		})

		It("aggregates event importance as the mean", func() {
			eng, driver, _, _ := newTestEngine()
			seedMemory(ctx, driver, sessionID, 0.9)
			seedMemory(ctx, driver, sessionID, 0.5)

			episode, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(episode.Importance).To(BeNumerically("~", 0.7, 1e-9))
		})

		It("collects distinct characters and locations from the events", func() {
			eng, driver, _, _ := newTestEngine()
			shared := uuid.New()
			loc := uuid.New()
			seedMemory(ctx, driver, sessionID, 0.5, func(m *lore.SessionMemory) {
				m.CharacterID = shared
				m.LocationID = &loc
			})
			seedMemory(ctx, driver, sessionID, 0.5, func(m *lore.SessionMemory) {
				m.Participants = []uuid.UUID{shared}
				m.LocationID = &loc
			})

			episode, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(episode.CharacterIDs).To(HaveLen(2))
			Expect(episode.CharacterIDs).To(ContainElement(shared))
			Expect(episode.LocationIDs).To(Equal([]uuid.UUID{loc}))
		})

		It("embeds the episode inline", func() {
			eng, driver, _, _ := newTestEngine()
			seedMemory(ctx, driver, sessionID, 0.5)

			episode, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(episode.Embedding).NotTo(BeEmpty())
		})

		It("aborts without writes when embedding fails", func() {
			eng, driver, _, emb := newTestEngine()
			emb.FailAll = true
			m := seedMemory(ctx, driver, sessionID, 0.5)

			_, err := eng.Condense(ctx, sessionID)
			Expect(err).To(HaveOccurred())

			_, err = driver.EpisodeBySourceSession(ctx, sessionID)
			Expect(err).To(MatchError(store.ErrNotFound))

			stored, err := driver.SessionByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Processed).To(BeFalse())

			emb.FailAll = false
			episode, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(episode.Embedding).NotTo(BeEmpty())
		})

		It("aborts when summarization outlives the oracle deadline", func() {
			eng, driver, orc, _ := newTestEngine(func(c *Config) {
				c.OracleTimeout = 10 * time.Millisecond
			})
			orc.SummarizeBlocks = true
			m := seedMemory(ctx, driver, sessionID, 0.5)

			_, err := eng.Condense(ctx, sessionID)
			Expect(err).To(HaveOccurred())

			stored, err := driver.SessionByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Processed).To(BeFalse())
		})

		It("marks the source events processed", func() {
			eng, driver, _, _ := newTestEngine()
			m := seedMemory(ctx, driver, sessionID, 0.5)

			_, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())

			stored, err := driver.SessionByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Processed).To(BeTrue())
		})

		It("is idempotent for an already-condensed session", func() {
			eng, driver, orc, _ := newTestEngine()
			seedMemory(ctx, driver, sessionID, 0.5)

			first, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())

			second, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))
			Expect(orc.SummarizeCalls).To(Equal(1))
		})

		It("collapses concurrent condensation into one episode", func() {
			eng, driver, orc, _ := newTestEngine()
			orc.SummarizeDelay = 50 * time.Millisecond
			seedMemory(ctx, driver, sessionID, 0.5)

			const callers = 5
			ids := make([]uuid.UUID, callers)
			var wg sync.WaitGroup
			for i := range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					episode, err := eng.Condense(ctx, sessionID)
					Expect(err).NotTo(HaveOccurred())
					ids[i] = episode.ID
				}()
			}
			wg.Wait()

			for _, id := range ids[1:] {
				Expect(id).To(Equal(ids[0]))
			}
			Expect(orc.SummarizeCalls).To(Equal(1))
		})

		It("finishes marking events when an earlier attempt stored the episode but not the flags", func() {
			eng, driver, orc, _ := newTestEngine()
			m := seedMemory(ctx, driver, sessionID, 0.5)

			interrupted := &lore.EpisodeMemory{
				ID:         uuid.New(),
				CreatedAt:  time.Now(),
				ExpiresAt:  time.Now().Add(48 * time.Hour),
				Title:      "Half-Finished Chronicle",
				SessionIDs: []uuid.UUID{sessionID},
			}
			Expect(driver.PutEpisode(ctx, interrupted)).To(Succeed())

			episode, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(episode.ID).To(Equal(interrupted.ID))
			Expect(orc.SummarizeCalls).To(BeZero())

			stored, err := driver.SessionByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Processed).To(BeTrue())
		})

		It("leaves events condensable when summarization fails", func() {
			eng, driver, orc, _ := newTestEngine()
			orc.FailSummarize = true
			m := seedMemory(ctx, driver, sessionID, 0.5)

			_, err := eng.Condense(ctx, sessionID)
			Expect(err).To(HaveOccurred())

			stored, err := driver.SessionByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Processed).To(BeFalse())

			orc.FailSummarize = false
			_, err = eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
