// Package memstore provides an in-process implementation of store.Driver
// backed by maps and brute-force cosine search. It is the development and
// test backend; sqlite and postgres are the durable ones.
package memstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

// Driver implements store.Driver using in-memory maps.
type Driver struct {
	mu sync.RWMutex

	sessions map[uuid.UUID]*lore.SessionMemory
	episodes map[uuid.UUID]*lore.EpisodeMemory
	world    map[uuid.UUID]*lore.WorldMemory

	// recognition is keyed by the ordered (observer, subject) pair.
	recognition map[[2]uuid.UUID]*lore.CharacterRecognition
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		sessions:    make(map[uuid.UUID]*lore.SessionMemory),
		episodes:    make(map[uuid.UUID]*lore.EpisodeMemory),
		world:       make(map[uuid.UUID]*lore.WorldMemory),
		recognition: make(map[[2]uuid.UUID]*lore.CharacterRecognition),
	}
}

func (d *Driver) PutSession(_ context.Context, m *lore.SessionMemory) error {
	if m == nil {
		return errors.New("cannot store nil session memory")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *m
	d.sessions[m.ID] = &cp
	return nil
}

func (d *Driver) SessionByID(_ context.Context, id uuid.UUID) (*lore.SessionMemory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, ok := d.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *m
	return &cp, nil
}

func (d *Driver) SessionsForSession(_ context.Context, sessionID uuid.UUID, processed *bool) ([]*lore.SessionMemory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*lore.SessionMemory
	for _, m := range d.sessions {
		if m.SessionID != sessionID {
			continue
		}
		if processed != nil && m.Processed != *processed {
			continue
		}
		cp := *m
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

func (d *Driver) SetSessionEmbedding(_ context.Context, id uuid.UUID, embedding []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.sessions[id]
	if !ok {
		return store.ErrNotFound
	}

	m.Embedding = append([]float32(nil), embedding...)
	return nil
}

func (d *Driver) MarkProcessed(_ context.Context, ids []uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		if m, ok := d.sessions[id]; ok {
			m.Processed = true
		}
	}
	return nil
}

func (d *Driver) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	deleted := 0
	for id, m := range d.sessions {
		if m.Processed && m.ExpiresAt.Before(now) {
			delete(d.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (d *Driver) PutEpisode(_ context.Context, e *lore.EpisodeMemory) error {
	if e == nil {
		return errors.New("cannot store nil episode")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *e
	d.episodes[e.ID] = &cp
	return nil
}

func (d *Driver) EpisodeByID(_ context.Context, id uuid.UUID) (*lore.EpisodeMemory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.episodes[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *e
	return &cp, nil
}

func (d *Driver) EpisodeBySourceSession(_ context.Context, sessionID uuid.UUID) (*lore.EpisodeMemory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, e := range d.episodes {
		for _, sid := range e.SessionIDs {
			if sid == sessionID {
				cp := *e
				return &cp, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (d *Driver) MarkPromoted(_ context.Context, ids []uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		if e, ok := d.episodes[id]; ok {
			e.Promoted = true
		}
	}
	return nil
}

func (d *Driver) PromotionCandidates(_ context.Context, threshold float64) ([]*lore.EpisodeMemory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*lore.EpisodeMemory
	for _, e := range d.episodes {
		if !e.Promoted && e.Importance >= threshold {
			cp := *e
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (d *Driver) DeleteExpiredEpisodes(_ context.Context, now time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	deleted := 0
	for id, e := range d.episodes {
		if !e.Promoted && e.ExpiresAt.Before(now) {
			delete(d.episodes, id)
			deleted++
		}
	}
	return deleted, nil
}

func (d *Driver) PutWorld(_ context.Context, w *lore.WorldMemory) error {
	if w == nil {
		return errors.New("cannot store nil world memory")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *w
	d.world[w.ID] = &cp
	return nil
}

func (d *Driver) WorldByID(_ context.Context, id uuid.UUID) (*lore.WorldMemory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	w, ok := d.world[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *w
	return &cp, nil
}

func (d *Driver) WorldBySourceEpisode(_ context.Context, episodeID uuid.UUID) (*lore.WorldMemory, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, w := range d.world {
		for _, eid := range w.SourceEpisodeIDs {
			if eid == episodeID {
				cp := *w
				return &cp, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (d *Driver) Recognition(_ context.Context, observerID, subjectID uuid.UUID) (*lore.CharacterRecognition, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.recognition[[2]uuid.UUID{observerID, subjectID}]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *r
	return &cp, nil
}

func (d *Driver) UpsertRecognition(_ context.Context, r *lore.CharacterRecognition) error {
	if r == nil {
		return errors.New("cannot store nil recognition")
	}
	if r.ObserverID == r.SubjectID {
		return store.ErrSelfRecognition
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := *r
	d.recognition[[2]uuid.UUID{r.ObserverID, r.SubjectID}] = &cp
	return nil
}

func (d *Driver) Search(_ context.Context, tier lore.Tier, embedding []float32, topK int, f store.SearchFilter) ([]store.SearchHit, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var hits []store.SearchHit

	switch tier {
	case lore.TierSession:
		for _, m := range d.sessions {
			if len(m.Embedding) == 0 || !f.MatchSession(m) {
				continue
			}
			hits = append(hits, store.SearchHit{Tier: tier, ID: m.ID, Score: cosine(embedding, m.Embedding)})
		}
	case lore.TierEpisode:
		for _, e := range d.episodes {
			if len(e.Embedding) == 0 || !f.MatchEpisode(e) {
				continue
			}
			hits = append(hits, store.SearchHit{Tier: tier, ID: e.ID, Score: cosine(embedding, e.Embedding)})
		}
	case lore.TierWorld:
		for _, w := range d.world {
			if len(w.Embedding) == 0 || !f.MatchWorld(w) {
				continue
			}
			hits = append(hits, store.SearchHit{Tier: tier, ID: w.ID, Score: cosine(embedding, w.Embedding)})
		}
	default:
		return nil, nil
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	return hits, nil
}

func (d *Driver) Close() error {
	return nil
}

// cosine computes cosine similarity mapped into (0, 1] so scores compare
// directly with the SQL drivers' distance-derived scores.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// Shift from [-1, 1] to (0, 1].
	return float32((sim + 1) / 2)
}

var _ store.Driver = (*Driver)(nil)
