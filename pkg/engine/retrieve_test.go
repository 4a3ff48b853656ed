package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
	"github.com/emberworks/chronicle/pkg/store/memstore"
	testutils "github.com/emberworks/chronicle/pkg/utils/test"
)

var _ = Describe("Retrieve", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("rejects an empty query", func() {
		eng, _, _, _ := newTestEngine()
		_, err := eng.Retrieve(ctx, &RetrieveQuery{})
		Expect(err).To(MatchError(ErrInvalidEvent))
	})

	It("degrades to an empty result when the query cannot be embedded", func() {
		eng, driver, _, emb := newTestEngine()
		w := &lore.WorldMemory{
			ID:        uuid.New(),
			CreatedAt: time.Now(),
			Category:  lore.CategoryEvent,
			Title:     "The Fall of Thornhold",
			Embedding: []float32{1, 0, 0},
			Impact:    lore.ImpactMajor,
		}
		Expect(driver.PutWorld(ctx, w)).To(Succeed())

		emb.FailAll = true
		fragments, err := eng.Retrieve(ctx, &RetrieveQuery{Text: "the siege"})
		Expect(err).NotTo(HaveOccurred())
		Expect(fragments).To(BeEmpty())
	})

	It("returns an empty result for an empty store", func() {
		eng, _, _, _ := newTestEngine()
		fragments, err := eng.Retrieve(ctx, &RetrieveQuery{Text: "the siege"})
		Expect(err).NotTo(HaveOccurred())
		Expect(fragments).To(BeEmpty())
	})

	Context("with memories across all tiers", func() {
		var (
			eng     *Engine
			driver  *memstore.Driver
			emb     *testutils.MockEmbedder
			world   *lore.WorldMemory
			episode *lore.EpisodeMemory
			session *lore.SessionMemory
		)

		BeforeEach(func() {
			eng, driver, _, emb = newTestEngine()
			emb.Embeddings["the siege"] = []float32{1, 0, 0}

			world = &lore.WorldMemory{
				ID:          uuid.New(),
				CreatedAt:   time.Now(),
				Category:    lore.CategoryEvent,
				Title:       "The Fall of Thornhold",
				Description: "The border keep fell to the Crimson Court.",
				Narrative:   "After a three-day siege the keep fell.",
				Embedding:   []float32{1, 0, 0},
				Impact:      lore.ImpactMajor,
				Public:      true,
			}
			Expect(driver.PutWorld(ctx, world)).To(Succeed())

			episode = &lore.EpisodeMemory{
				ID:             uuid.New(),
				CreatedAt:      time.Now(),
				Title:          "Retreat Through the Marshes",
				OneLineSummary: "The survivors fled the siege.",
				Narrative:      "The survivors fled south through the marshes.",
				SessionIDs:     []uuid.UUID{uuid.New()},
				Embedding:      []float32{1, 0.5, 0},
			}
			Expect(driver.PutEpisode(ctx, episode)).To(Succeed())

			session = &lore.SessionMemory{
				ID:          uuid.New(),
				SessionID:   uuid.New(),
				CharacterID: uuid.New(),
				Timestamp:   time.Now(),
				Kind:        lore.EventObservation,
				Content:     json.RawMessage(`"smoke rises over the keep"`),
				Embedding:   []float32{1, 0, 0},
				ExpiresAt:   time.Now().Add(time.Hour),
			}
			Expect(driver.PutSession(ctx, session)).To(Succeed())
		})

		It("merges tiers ordered by similarity", func() {
			fragments, err := eng.Retrieve(ctx, &RetrieveQuery{Text: "the siege"})
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments).To(HaveLen(3))
			// World and session tie at full similarity; the episode trails.
			Expect(fragments[2].ID).To(Equal(episode.ID))
		})

		It("breaks score ties by tier authority", func() {
			fragments, err := eng.Retrieve(ctx, &RetrieveQuery{Text: "the siege"})
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments[0].Tier).To(Equal(lore.TierWorld))
			Expect(fragments[0].ID).To(Equal(world.ID))
			Expect(fragments[1].Tier).To(Equal(lore.TierSession))
			Expect(fragments[1].ID).To(Equal(session.ID))
		})

		It("builds tier-appropriate fragment bodies", func() {
			fragments, err := eng.Retrieve(ctx, &RetrieveQuery{Text: "the siege"})
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments[0].Title).To(Equal(world.Title))
			Expect(fragments[0].Body).To(Equal(world.Description))
			Expect(fragments[1].Body).To(Equal(`"smoke rises over the keep"`))
		})

		It("honors an explicit tier restriction", func() {
			fragments, err := eng.Retrieve(ctx, &RetrieveQuery{
				Text:  "the siege",
				Tiers: []lore.Tier{lore.TierEpisode},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments).To(HaveLen(1))
			Expect(fragments[0].ID).To(Equal(episode.ID))
		})

		It("caps the merged result count", func() {
			fragments, err := eng.Retrieve(ctx, &RetrieveQuery{
				Text:  "the siege",
				Limit: 2,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments).To(HaveLen(2))
		})

		It("skips rows that have no embedding yet", func() {
			unembedded := &lore.SessionMemory{
				ID:          uuid.New(),
				SessionID:   uuid.New(),
				CharacterID: uuid.New(),
				Timestamp:   time.Now(),
				Kind:        lore.EventDialogue,
				Content:     json.RawMessage(`"not yet embedded"`),
				ExpiresAt:   time.Now().Add(time.Hour),
			}
			Expect(driver.PutSession(ctx, unembedded)).To(Succeed())

			fragments, err := eng.Retrieve(ctx, &RetrieveQuery{Text: "the siege"})
			Expect(err).NotTo(HaveOccurred())
			for _, f := range fragments {
				Expect(f.ID).NotTo(Equal(unembedded.ID))
			}
		})

		It("applies the search filter within each tier", func() {
			hidden := *world
			hidden.ID = uuid.New()
			hidden.Public = false
			Expect(driver.PutWorld(ctx, &hidden)).To(Succeed())

			fragments, err := eng.Retrieve(ctx, &RetrieveQuery{
				Text:   "the siege",
				Tiers:  []lore.Tier{lore.TierWorld},
				Filter: store.SearchFilter{PublicOnly: true},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments).To(HaveLen(1))
			Expect(fragments[0].ID).To(Equal(world.ID))
		})
	})
})
