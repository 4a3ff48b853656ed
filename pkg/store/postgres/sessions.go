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

const sessionColumns = `id, session_id, character_id, ts, kind, content, participants,
	location_id, importance, valence, tags, embedding, expires_at, processed`

// vecOrNil converts an embedding to a pgvector value, mapping an unset
// embedding to SQL NULL.
func (d *Driver) vecOrNil(embedding []float32) (any, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if uint(len(embedding)) != d.dims {
		return nil, fmt.Errorf("%w: got %d, store configured for %d",
			store.ErrDimensionMismatch, len(embedding), d.dims)
	}
	return pgvector.NewVector(embedding), nil
}

func (d *Driver) PutSession(ctx context.Context, m *lore.SessionMemory) error {
	if m == nil {
		return fmt.Errorf("cannot store nil session memory")
	}

	vec, err := d.vecOrNil(m.Embedding)
	if err != nil {
		return err
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO session_memories (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			character_id = EXCLUDED.character_id,
			ts = EXCLUDED.ts,
			kind = EXCLUDED.kind,
			content = EXCLUDED.content,
			participants = EXCLUDED.participants,
			location_id = EXCLUDED.location_id,
			importance = EXCLUDED.importance,
			valence = EXCLUDED.valence,
			tags = EXCLUDED.tags,
			embedding = EXCLUDED.embedding,
			expires_at = EXCLUDED.expires_at,
			processed = EXCLUDED.processed`,
		m.ID, m.SessionID, m.CharacterID, m.Timestamp, string(m.Kind),
		m.Content, m.Participants, m.LocationID, m.Importance, m.Valence,
		m.Tags, vec, m.ExpiresAt, m.Processed,
	)
	if err != nil {
		return fmt.Errorf("storing session memory: %w", err)
	}
	return nil
}

func (d *Driver) SessionByID(ctx context.Context, id uuid.UUID) (*lore.SessionMemory, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM session_memories WHERE id = $1`, id)
	return scanSession(row)
}

func (d *Driver) SessionsForSession(ctx context.Context, sessionID uuid.UUID, processed *bool) ([]*lore.SessionMemory, error) {
	query := `SELECT ` + sessionColumns + ` FROM session_memories WHERE session_id = $1`
	args := []any{sessionID}
	if processed != nil {
		query += ` AND processed = $2`
		args = append(args, *processed)
	}
	query += ` ORDER BY ts ASC`

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying session memories: %w", err)
	}
	defer rows.Close()

	var result []*lore.SessionMemory
	for rows.Next() {
		m, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (d *Driver) SetSessionEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	vec, err := d.vecOrNil(embedding)
	if err != nil {
		return err
	}

	tag, err := d.pool.Exec(ctx,
		`UPDATE session_memories SET embedding = $2 WHERE id = $1`, id, vec)
	if err != nil {
		return fmt.Errorf("setting session embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) MarkProcessed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := d.pool.Exec(ctx,
		`UPDATE session_memories SET processed = TRUE WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("marking session memories processed: %w", err)
	}
	return nil
}

func (d *Driver) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	tag, err := d.pool.Exec(ctx,
		`DELETE FROM session_memories WHERE processed = TRUE AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired session memories: %w", err)
	}

	n := int(tag.RowsAffected())
	if n > 0 {
		d.logger.Debug("expired session memories deleted", zap.Int("count", n))
	}
	return n, nil
}

func scanSession(row pgx.Row) (*lore.SessionMemory, error) {
	var (
		m    lore.SessionMemory
		kind string
		vec  *pgvector.Vector
	)

	err := row.Scan(&m.ID, &m.SessionID, &m.CharacterID, &m.Timestamp, &kind,
		&m.Content, &m.Participants, &m.LocationID, &m.Importance, &m.Valence,
		&m.Tags, &vec, &m.ExpiresAt, &m.Processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session memory: %w", err)
	}

	m.Kind = lore.EventKind(kind)
	if vec != nil {
		m.Embedding = vec.Slice()
	}
	return &m, nil
}
