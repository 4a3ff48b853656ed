package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

const episodeColumns = `id, created_at, expires_at, title, one_line_summary, narrative,
	key_moments, relationship_changes, themes, open_threads,
	character_ids, location_ids, session_ids, embedding, importance, promoted`

func (d *Driver) PutEpisode(ctx context.Context, e *lore.EpisodeMemory) error {
	if e == nil {
		return fmt.Errorf("cannot store nil episode")
	}

	vec, err := d.vecOrNil(e.Embedding)
	if err != nil {
		return err
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO episode_memories (`+episodeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			title = EXCLUDED.title,
			one_line_summary = EXCLUDED.one_line_summary,
			narrative = EXCLUDED.narrative,
			key_moments = EXCLUDED.key_moments,
			relationship_changes = EXCLUDED.relationship_changes,
			themes = EXCLUDED.themes,
			open_threads = EXCLUDED.open_threads,
			character_ids = EXCLUDED.character_ids,
			location_ids = EXCLUDED.location_ids,
			session_ids = EXCLUDED.session_ids,
			embedding = EXCLUDED.embedding,
			importance = EXCLUDED.importance,
			promoted = EXCLUDED.promoted`,
		e.ID, e.CreatedAt, e.ExpiresAt, e.Title, e.OneLineSummary, e.Narrative,
		e.KeyMoments, e.RelationshipChanges, e.Themes, e.OpenThreads,
		e.CharacterIDs, e.LocationIDs, e.SessionIDs, vec, e.Importance, e.Promoted,
	)
	if err != nil {
		return fmt.Errorf("storing episode: %w", err)
	}
	return nil
}

func (d *Driver) EpisodeByID(ctx context.Context, id uuid.UUID) (*lore.EpisodeMemory, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+episodeColumns+` FROM episode_memories WHERE id = $1`, id)
	return scanEpisode(row)
}

func (d *Driver) EpisodeBySourceSession(ctx context.Context, sessionID uuid.UUID) (*lore.EpisodeMemory, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT `+episodeColumns+` FROM episode_memories
		WHERE $1 = ANY(session_ids)
		LIMIT 1`, sessionID)
	return scanEpisode(row)
}

func (d *Driver) MarkPromoted(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := d.pool.Exec(ctx,
		`UPDATE episode_memories SET promoted = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("marking episodes promoted: %w", err)
	}
	return nil
}

func (d *Driver) PromotionCandidates(ctx context.Context, threshold float64) ([]*lore.EpisodeMemory, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+episodeColumns+` FROM episode_memories
		WHERE promoted = FALSE AND importance >= $1
		ORDER BY created_at ASC`, threshold)
	if err != nil {
		return nil, fmt.Errorf("querying promotion candidates: %w", err)
	}
	defer rows.Close()

	var result []*lore.EpisodeMemory
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (d *Driver) DeleteExpiredEpisodes(ctx context.Context, now time.Time) (int, error) {
	tag, err := d.pool.Exec(ctx,
		`DELETE FROM episode_memories WHERE promoted = FALSE AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired episodes: %w", err)
	}

	n := int(tag.RowsAffected())
	if n > 0 {
		d.logger.Debug("expired episodes deleted", zap.Int("count", n))
	}
	return n, nil
}

func scanEpisode(row pgx.Row) (*lore.EpisodeMemory, error) {
	var (
		e   lore.EpisodeMemory
		vec *pgvector.Vector
	)

	err := row.Scan(&e.ID, &e.CreatedAt, &e.ExpiresAt, &e.Title,
		&e.OneLineSummary, &e.Narrative, &e.KeyMoments, &e.RelationshipChanges,
		&e.Themes, &e.OpenThreads, &e.CharacterIDs, &e.LocationIDs,
		&e.SessionIDs, &vec, &e.Importance, &e.Promoted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning episode: %w", err)
	}

	if vec != nil {
		e.Embedding = vec.Slice()
	}
	return &e, nil
}
