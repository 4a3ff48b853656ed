package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/emberworks/chronicle/pkg/lore"
)

var _ = Describe("Capture", func() {
	var (
		ctx context.Context
		req *CaptureRequest
	)

	BeforeEach(func() {
		ctx = context.Background()
		req = &CaptureRequest{
			SessionID:   uuid.New(),
			CharacterID: uuid.New(),
			Kind:        lore.EventDialogue,
			Content:     json.RawMessage(`"the innkeeper whispers a warning"`),
		}
	})

	Describe("validation", func() {
		It("rejects a nil session id", func() {
			eng, _, _, _ := newTestEngine()
			req.SessionID = uuid.Nil
			_, err := eng.Capture(ctx, req)
			Expect(err).To(MatchError(ErrInvalidEvent))
		})

		It("rejects a nil character id", func() {
			eng, _, _, _ := newTestEngine()
			req.CharacterID = uuid.Nil
			_, err := eng.Capture(ctx, req)
			Expect(err).To(MatchError(ErrInvalidEvent))
		})

		It("rejects empty content", func() {
			eng, _, _, _ := newTestEngine()
			req.Content = nil
			_, err := eng.Capture(ctx, req)
			Expect(err).To(MatchError(ErrInvalidEvent))
		})

		It("rejects an unknown event kind", func() {
			eng, _, _, _ := newTestEngine()
			req.Kind = "prophecy"
			_, err := eng.Capture(ctx, req)
			Expect(err).To(MatchError(ErrInvalidEvent))
		})
	})

	Describe("scoring", func() {
		It("stores the event with the oracle's verdict", func() {
			eng, driver, orc, _ := newTestEngine()
			orc.Analysis.Score = 0.85
			orc.Analysis.Valence = -0.4
			orc.Analysis.Tags = []string{"betrayal", "tavern"}

			m, err := eng.Capture(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Importance).To(Equal(0.85))
			Expect(m.Valence).To(Equal(-0.4))
			Expect(m.Tags).To(Equal([]string{"betrayal", "tavern"}))

			stored, err := driver.SessionByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Importance).To(Equal(0.85))
			Expect(stored.Processed).To(BeFalse())
		})

		It("stores the event with a fallback score when the oracle fails", func() {
			eng, driver, orc, _ := newTestEngine()
			orc.FailAnalyze = true

			m, err := eng.Capture(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Importance).To(Equal(FallbackImportance))
			Expect(m.Valence).To(BeZero())
			Expect(m.Tags).To(ContainElement("scoring_failed"))

			_, err = driver.SessionByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("falls back when the oracle outlives the capture deadline", func() {
			eng, _, orc, _ := newTestEngine(func(c *Config) {
				c.CaptureTimeout = 10 * time.Millisecond
			})
			orc.AnalyzeBlocks = true

			m, err := eng.Capture(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Importance).To(Equal(FallbackImportance))
			Expect(m.Tags).To(ContainElement("scoring_failed"))
		})
	})

	Describe("content handling", func() {
		It("truncates oversized content and tags the row", func() {
			eng, _, _, _ := newTestEngine(func(c *Config) {
				c.MaxContentBytes = 16
			})
			req.Content = json.RawMessage(`"a very long retelling of the entire campaign so far"`)

			m, err := eng.Capture(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Tags).To(ContainElement("truncated"))
			Expect(string(m.Content)).To(ContainSubstring("a very long ret"))
		})

		It("keeps truncated content marshalable", func() {
			eng, driver, _, _ := newTestEngine(func(c *Config) {
				c.MaxContentBytes = 16
			})
			req.Content = json.RawMessage(`"a very long retelling of the entire campaign so far"`)

			m, err := eng.Capture(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Valid(m.Content)).To(BeTrue())

			stored, err := driver.SessionByID(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = json.Marshal(stored)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("timestamps", func() {
		It("defaults the timestamp to the capture instant", func() {
			now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
			eng, _, _, _ := newTestEngine(func(c *Config) {
				c.Clock = func() time.Time { return now }
			})

			m, err := eng.Capture(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Timestamp).To(Equal(now))
			Expect(m.ExpiresAt).To(Equal(now.Add(DefaultSessionTTL)))
		})

		It("keeps an explicit event timestamp", func() {
			eng, _, _, _ := newTestEngine()
			ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			req.Timestamp = ts

			m, err := eng.Capture(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Timestamp).To(Equal(ts))
		})
	})
})
