package engine

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

var _ = Describe("Recognition", func() {
	var (
		ctx      context.Context
		observer uuid.UUID
		subject  uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		observer = uuid.New()
		subject = uuid.New()
	})

	It("rejects a self-loop", func() {
		eng, _, _, _ := newTestEngine()
		_, err := eng.Recognition(ctx, observer, observer)
		Expect(err).To(MatchError(store.ErrSelfRecognition))
	})

	It("returns ErrNotFound for strangers", func() {
		eng, _, _, _ := newTestEngine()
		_, err := eng.Recognition(ctx, observer, subject)
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	// Recognition edges are written as a side effect of condensation, so
	// these specs drive the full condense path.
	Describe("relationship changes from condensation", func() {
		It("records that characters met even without relationship changes", func() {
			eng, driver, _, _ := newTestEngine()
			sessionID := uuid.New()
			seedMemory(ctx, driver, sessionID, 0.5, func(m *lore.SessionMemory) {
				m.CharacterID = observer
				m.Participants = []uuid.UUID{subject}
			})

			episode, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())

			forward, err := eng.Recognition(ctx, observer, subject)
			Expect(err).NotTo(HaveOccurred())
			Expect(forward.Trust).To(BeNumerically("~", 0.5, 1e-9))
			Expect(forward.Relationship).To(BeEmpty())
			Expect(forward.SharedEpisodeIDs).To(ContainElement(episode.ID))

			backward, err := eng.Recognition(ctx, subject, observer)
			Expect(err).NotTo(HaveOccurred())
			Expect(backward.SharedEpisodeIDs).To(ContainElement(episode.ID))
		})

		It("creates edges in both directions starting from neutral trust", func() {
			eng, driver, orc, _ := newTestEngine()
			sessionID := uuid.New()
			seedMemory(ctx, driver, sessionID, 0.5)
			orc.Summary.RelationshipChanges = []lore.RelationshipChange{
				{CharacterA: observer, CharacterB: subject, ChangeType: "allies", TrustDelta: 0.1, Confirmed: true},
			}

			_, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())

			forward, err := eng.Recognition(ctx, observer, subject)
			Expect(err).NotTo(HaveOccurred())
			Expect(forward.Trust).To(BeNumerically("~", 0.6, 1e-9))
			Expect(forward.Relationship).To(Equal("allies"))

			backward, err := eng.Recognition(ctx, subject, observer)
			Expect(err).NotTo(HaveOccurred())
			Expect(backward.Trust).To(BeNumerically("~", 0.6, 1e-9))
		})

		It("clamps the net trust movement per episode", func() {
			eng, driver, orc, _ := newTestEngine()
			sessionID := uuid.New()
			seedMemory(ctx, driver, sessionID, 0.5)
			orc.Summary.RelationshipChanges = []lore.RelationshipChange{
				{CharacterA: observer, CharacterB: subject, TrustDelta: 0.2},
				{CharacterA: observer, CharacterB: subject, TrustDelta: 0.2},
				{CharacterA: observer, CharacterB: subject, TrustDelta: 0.2},
			}

			_, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())

			r, err := eng.Recognition(ctx, observer, subject)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Trust).To(BeNumerically("~", 0.7, 1e-9))
		})

		It("keeps trust within [0, 1] across episodes", func() {
			eng, driver, orc, _ := newTestEngine()

			// Five maximally hostile episodes drive trust from 0.5 to 0.
			for range 5 {
				sessionID := uuid.New()
				seedMemory(ctx, driver, sessionID, 0.5)
				orc.Summary.RelationshipChanges = []lore.RelationshipChange{
					{CharacterA: observer, CharacterB: subject, TrustDelta: -0.9},
				}
				_, err := eng.Condense(ctx, sessionID)
				Expect(err).NotTo(HaveOccurred())
			}

			r, err := eng.Recognition(ctx, observer, subject)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Trust).To(BeZero())
		})

		It("records confirmed details as facts and unconfirmed as rumors", func() {
			eng, driver, orc, _ := newTestEngine()
			sessionID := uuid.New()
			seedMemory(ctx, driver, sessionID, 0.5)
			orc.Summary.RelationshipChanges = []lore.RelationshipChange{
				{
					CharacterA: observer, CharacterB: subject,
					Confirmed: true,
					Details:   map[string]string{"home": "Thornhold"},
				},
				{
					CharacterA: observer, CharacterB: subject,
					Confirmed: false,
					Details:   map[string]string{"allegiance": "the Crimson Court"},
				},
			}

			_, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())

			r, err := eng.Recognition(ctx, observer, subject)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Details["home"].Kind).To(Equal(lore.DetailFact))
			Expect(r.Details["allegiance"].Kind).To(Equal(lore.DetailRumor))
		})

		It("never downgrades an established fact to a rumor", func() {
			eng, driver, orc, _ := newTestEngine()

			factSession := uuid.New()
			seedMemory(ctx, driver, factSession, 0.5)
			orc.Summary.RelationshipChanges = []lore.RelationshipChange{
				{CharacterA: observer, CharacterB: subject, Confirmed: true,
					Details: map[string]string{"home": "Thornhold"}},
			}
			_, err := eng.Condense(ctx, factSession)
			Expect(err).NotTo(HaveOccurred())

			rumorSession := uuid.New()
			seedMemory(ctx, driver, rumorSession, 0.5)
			orc.Summary.RelationshipChanges = []lore.RelationshipChange{
				{CharacterA: observer, CharacterB: subject, Confirmed: false,
					Details: map[string]string{"home": "somewhere in the marshes"}},
			}
			_, err = eng.Condense(ctx, rumorSession)
			Expect(err).NotTo(HaveOccurred())

			r, err := eng.Recognition(ctx, observer, subject)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Details["home"].Kind).To(Equal(lore.DetailFact))
			Expect(r.Details["home"].Value).To(Equal("Thornhold"))
		})

		It("ignores self-referential changes", func() {
			eng, driver, orc, _ := newTestEngine()
			sessionID := uuid.New()
			seedMemory(ctx, driver, sessionID, 0.5)
			orc.Summary.RelationshipChanges = []lore.RelationshipChange{
				{CharacterA: observer, CharacterB: observer, TrustDelta: 0.2},
			}

			_, err := eng.Condense(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())

			_, err = eng.Recognition(ctx, observer, subject)
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("accumulates shared episodes without duplicates", func() {
			eng, driver, orc, _ := newTestEngine()
			orc.Summary.RelationshipChanges = []lore.RelationshipChange{
				{CharacterA: observer, CharacterB: subject, TrustDelta: 0.1},
			}

			first := uuid.New()
			seedMemory(ctx, driver, first, 0.5)
			_, err := eng.Condense(ctx, first)
			Expect(err).NotTo(HaveOccurred())

			second := uuid.New()
			seedMemory(ctx, driver, second, 0.5)
			_, err = eng.Condense(ctx, second)
			Expect(err).NotTo(HaveOccurred())

			r, err := eng.Recognition(ctx, observer, subject)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.SharedEpisodeIDs).To(HaveLen(2))
		})
	})
})
