package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

// Search runs a nearest-neighbor query against one tier. pgvector's <=>
// operator yields cosine distance in [0, 2]; filters compile to SQL
// predicates so no over-fetching is needed.
func (d *Driver) Search(ctx context.Context, tier lore.Tier, embedding []float32, topK int, f store.SearchFilter) ([]store.SearchHit, error) {
	if topK <= 0 {
		topK = 10
	}
	if uint(len(embedding)) != d.dims {
		return nil, fmt.Errorf("%w: got %d, store configured for %d",
			store.ErrDimensionMismatch, len(embedding), d.dims)
	}

	var (
		table string
		preds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	vecParam := arg(pgvector.NewVector(embedding))
	preds = append(preds, "embedding IS NOT NULL")

	switch tier {
	case lore.TierSession:
		table = "session_memories"
		if len(f.CharacterIDs) > 0 {
			p := arg(f.CharacterIDs)
			preds = append(preds, fmt.Sprintf("(character_id = ANY(%s) OR participants && %s)", p, p))
		}
		if len(f.LocationIDs) > 0 {
			preds = append(preds, fmt.Sprintf("location_id = ANY(%s)", arg(f.LocationIDs)))
		}
		if !f.Since.IsZero() {
			preds = append(preds, fmt.Sprintf("ts >= %s", arg(f.Since)))
		}

	case lore.TierEpisode:
		table = "episode_memories"
		if len(f.CharacterIDs) > 0 {
			preds = append(preds, fmt.Sprintf("character_ids && %s", arg(f.CharacterIDs)))
		}
		if len(f.LocationIDs) > 0 {
			preds = append(preds, fmt.Sprintf("location_ids && %s", arg(f.LocationIDs)))
		}
		if !f.Since.IsZero() {
			preds = append(preds, fmt.Sprintf("created_at >= %s", arg(f.Since)))
		}

	case lore.TierWorld:
		table = "world_memories"
		if f.PublicOnly {
			preds = append(preds, "public = TRUE")
		}
		if len(f.CharacterIDs) > 0 {
			preds = append(preds, fmt.Sprintf("related_entities->'characters' ?| %s", arg(uuidStrings(f.CharacterIDs))))
		}
		if len(f.LocationIDs) > 0 {
			preds = append(preds, fmt.Sprintf("related_entities->'locations' ?| %s", arg(uuidStrings(f.LocationIDs))))
		}
		if f.MinImpact != "" {
			preds = append(preds, fmt.Sprintf("impact = ANY(%s)", arg(impactsAtOrAbove(f.MinImpact))))
		}
		if !f.Since.IsZero() {
			preds = append(preds, fmt.Sprintf("created_at >= %s", arg(f.Since)))
		}

	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}

	query := fmt.Sprintf(`
		SELECT id, embedding <=> %s AS distance
		FROM %s
		WHERE %s
		ORDER BY distance ASC
		LIMIT %s`,
		vecParam, table, strings.Join(preds, " AND "), arg(topK))

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("knn query: %w", err)
	}
	defer rows.Close()

	var hits []store.SearchHit
	for rows.Next() {
		var (
			hit      store.SearchHit
			distance float64
		)
		if err := rows.Scan(&hit.ID, &distance); err != nil {
			return nil, fmt.Errorf("scanning knn row: %w", err)
		}
		hit.Tier = tier
		// Map cosine distance [0, 2] to a similarity in (0, 1].
		hit.Score = float32(1 - distance/2)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func impactsAtOrAbove(min lore.ImpactLevel) []string {
	all := []lore.ImpactLevel{
		lore.ImpactMinor,
		lore.ImpactModerate,
		lore.ImpactMajor,
		lore.ImpactWorldChanging,
	}

	var out []string
	for _, lvl := range all {
		if lvl.Rank() >= min.Rank() {
			out = append(out, string(lvl))
		}
	}
	return out
}

var _ store.Driver = (*Driver)(nil)
