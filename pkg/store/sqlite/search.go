package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

// Search runs a KNN query against one tier's vec0 table. Filters that vec0
// cannot express are applied in Go after the fact, so the query over-fetches
// and trims to topK at the end.
func (d *Driver) Search(ctx context.Context, tier lore.Tier, embedding []float32, topK int, f store.SearchFilter) ([]store.SearchHit, error) {
	if topK <= 0 {
		topK = 10
	}
	if uint(len(embedding)) != d.dims {
		return nil, fmt.Errorf("%w: got %d, store configured for %d",
			store.ErrDimensionMismatch, len(embedding), d.dims)
	}

	tables, ok := tierTables[tier]
	if !ok {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}

	// Over-fetch so post-filtering still tends to fill topK.
	k := topK * 4

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.record_id, v.distance
		FROM %s v
		INNER JOIN %s m ON m.rowid = v.rowid
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance ASC`, tables[0], tables[1]),
		serializeFloat32(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("knn query: %w", err)
	}
	defer rows.Close()

	type rawHit struct {
		id       string
		distance float64
	}
	var raw []rawHit
	for rows.Next() {
		var h rawHit
		if err := rows.Scan(&h.id, &h.distance); err != nil {
			return nil, fmt.Errorf("scanning knn row: %w", err)
		}
		raw = append(raw, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var hits []store.SearchHit
	for _, h := range raw {
		if len(hits) >= topK {
			break
		}

		hit, ok, err := d.filterHit(ctx, tier, h.id, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		// Cosine distance is in [0, 2]; map to a similarity in (0, 1].
		hit.Score = float32(1 - h.distance/2)
		hits = append(hits, hit)
	}
	return hits, nil
}

// filterHit loads the record behind a KNN match and applies the filter.
// A mapping row whose record was deleted out from under it is skipped
// rather than treated as an error.
func (d *Driver) filterHit(ctx context.Context, tier lore.Tier, rawID string, f store.SearchFilter) (store.SearchHit, bool, error) {
	none := store.SearchHit{}

	switch tier {
	case lore.TierSession:
		m, err := d.sessionByRawID(ctx, rawID)
		if errors.Is(err, store.ErrNotFound) {
			return none, false, nil
		}
		if err != nil {
			return none, false, err
		}
		if !f.MatchSession(m) {
			return none, false, nil
		}
		return store.SearchHit{Tier: tier, ID: m.ID}, true, nil

	case lore.TierEpisode:
		row := d.db.QueryRowContext(ctx,
			`SELECT `+episodeColumns+` FROM episode_memories WHERE id = ?`, rawID)
		e, err := scanEpisode(row)
		if errors.Is(err, store.ErrNotFound) {
			return none, false, nil
		}
		if err != nil {
			return none, false, err
		}
		if !f.MatchEpisode(e) {
			return none, false, nil
		}
		return store.SearchHit{Tier: tier, ID: e.ID}, true, nil

	case lore.TierWorld:
		row := d.db.QueryRowContext(ctx,
			`SELECT `+worldColumns+` FROM world_memories WHERE id = ?`, rawID)
		w, err := scanWorld(row)
		if errors.Is(err, store.ErrNotFound) {
			return none, false, nil
		}
		if err != nil {
			return none, false, err
		}
		if !f.MatchWorld(w) {
			return none, false, nil
		}
		return store.SearchHit{Tier: tier, ID: w.ID}, true, nil
	}

	return none, false, fmt.Errorf("unknown tier %q", tier)
}

func (d *Driver) sessionByRawID(ctx context.Context, rawID string) (*lore.SessionMemory, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM session_memories WHERE id = ?`, rawID)
	return scanSession(row)
}
