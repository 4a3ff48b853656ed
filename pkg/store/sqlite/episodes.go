package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

const episodeColumns = `id, created_at, expires_at, title, one_line_summary, narrative,
	key_moments, relationship_changes, themes, open_threads,
	character_ids, location_ids, session_ids, importance, promoted`

func (d *Driver) PutEpisode(ctx context.Context, e *lore.EpisodeMemory) error {
	if e == nil {
		return fmt.Errorf("cannot store nil episode")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO episode_memories (`+episodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			expires_at = excluded.expires_at,
			title = excluded.title,
			one_line_summary = excluded.one_line_summary,
			narrative = excluded.narrative,
			key_moments = excluded.key_moments,
			relationship_changes = excluded.relationship_changes,
			themes = excluded.themes,
			open_threads = excluded.open_threads,
			character_ids = excluded.character_ids,
			location_ids = excluded.location_ids,
			session_ids = excluded.session_ids,
			importance = excluded.importance,
			promoted = excluded.promoted`,
		e.ID.String(), e.CreatedAt.UnixNano(), e.ExpiresAt.UnixNano(),
		e.Title, e.OneLineSummary, e.Narrative,
		mustJSON(e.KeyMoments), mustJSON(e.RelationshipChanges),
		mustJSON(e.Themes), mustJSON(e.OpenThreads),
		mustJSON(e.CharacterIDs), mustJSON(e.LocationIDs), mustJSON(e.SessionIDs),
		e.Importance, e.Promoted,
	)
	if err != nil {
		return fmt.Errorf("storing episode: %w", err)
	}

	if err := d.upsertEmbedding(ctx, tx, lore.TierEpisode, e.ID, e.Embedding); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *Driver) EpisodeByID(ctx context.Context, id uuid.UUID) (*lore.EpisodeMemory, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episode_memories WHERE id = ?`, id.String())

	e, err := scanEpisode(row)
	if err != nil {
		return nil, err
	}

	e.Embedding, err = d.loadEmbedding(ctx, lore.TierEpisode, e.ID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (d *Driver) EpisodeBySourceSession(ctx context.Context, sessionID uuid.UUID) (*lore.EpisodeMemory, error) {
	// session_ids is a JSON array of uuid strings.
	row := d.db.QueryRowContext(ctx, `
		SELECT `+episodeColumns+` FROM episode_memories e
		WHERE EXISTS (
			SELECT 1 FROM json_each(e.session_ids) WHERE json_each.value = ?
		)
		LIMIT 1`, sessionID.String())

	e, err := scanEpisode(row)
	if err != nil {
		return nil, err
	}

	e.Embedding, err = d.loadEmbedding(ctx, lore.TierEpisode, e.ID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (d *Driver) MarkPromoted(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE episode_memories SET promoted = 1 WHERE id = ?`, id.String(),
		); err != nil {
			return fmt.Errorf("marking episode promoted: %w", err)
		}
	}
	return tx.Commit()
}

func (d *Driver) PromotionCandidates(ctx context.Context, threshold float64) ([]*lore.EpisodeMemory, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+episodeColumns+` FROM episode_memories
		WHERE promoted = 0 AND importance >= ?
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
	return d.deleteExpired(ctx, lore.TierEpisode,
		`SELECT id FROM episode_memories WHERE promoted = 0 AND expires_at < ?`,
		`DELETE FROM episode_memories WHERE id = ?`, now)
}

func scanEpisode(row rowScanner) (*lore.EpisodeMemory, error) {
	var (
		e                     lore.EpisodeMemory
		id                    string
		createdAt, expiresAt  int64
		keyMoments, relChanges string
		themes, openThreads   string
		charIDs, locIDs, sessIDs string
	)

	err := row.Scan(&id, &createdAt, &expiresAt, &e.Title, &e.OneLineSummary,
		&e.Narrative, &keyMoments, &relChanges, &themes, &openThreads,
		&charIDs, &locIDs, &sessIDs, &e.Importance, &e.Promoted)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning episode: %w", err)
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing episode id: %w", err)
	}

	e.CreatedAt = time.Unix(0, createdAt)
	e.ExpiresAt = time.Unix(0, expiresAt)
	e.KeyMoments = fromJSON[[]lore.KeyMoment](keyMoments)
	e.RelationshipChanges = fromJSON[[]lore.RelationshipChange](relChanges)
	e.Themes = fromJSON[[]string](themes)
	e.OpenThreads = fromJSON[[]string](openThreads)
	e.CharacterIDs = fromJSON[[]uuid.UUID](charIDs)
	e.LocationIDs = fromJSON[[]uuid.UUID](locIDs)
	e.SessionIDs = fromJSON[[]uuid.UUID](sessIDs)
	return &e, nil
}
