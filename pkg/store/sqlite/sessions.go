package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

const sessionColumns = `id, session_id, character_id, ts, kind, content, participants,
	location_id, importance, valence, tags, expires_at, processed`

func (d *Driver) PutSession(ctx context.Context, m *lore.SessionMemory) error {
	if m == nil {
		return fmt.Errorf("cannot store nil session memory")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_memories (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			character_id = excluded.character_id,
			ts = excluded.ts,
			kind = excluded.kind,
			content = excluded.content,
			participants = excluded.participants,
			location_id = excluded.location_id,
			importance = excluded.importance,
			valence = excluded.valence,
			tags = excluded.tags,
			expires_at = excluded.expires_at,
			processed = excluded.processed`,
		m.ID.String(), m.SessionID.String(), m.CharacterID.String(),
		m.Timestamp.UnixNano(), string(m.Kind), string(m.Content),
		mustJSON(m.Participants), nullUUID(m.LocationID),
		m.Importance, m.Valence, mustJSON(m.Tags),
		m.ExpiresAt.UnixNano(), m.Processed,
	)
	if err != nil {
		return fmt.Errorf("storing session memory: %w", err)
	}

	if err := d.upsertEmbedding(ctx, tx, lore.TierSession, m.ID, m.Embedding); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *Driver) SessionByID(ctx context.Context, id uuid.UUID) (*lore.SessionMemory, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM session_memories WHERE id = ?`, id.String())

	m, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	m.Embedding, err = d.loadEmbedding(ctx, lore.TierSession, m.ID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Driver) SessionsForSession(ctx context.Context, sessionID uuid.UUID, processed *bool) ([]*lore.SessionMemory, error) {
	query := `SELECT ` + sessionColumns + ` FROM session_memories WHERE session_id = ?`
	args := []any{sessionID.String()}
	if processed != nil {
		query += ` AND processed = ?`
		args = append(args, *processed)
	}
	query += ` ORDER BY ts ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
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
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM session_memories WHERE id = ?)`, id.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking session memory: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := d.upsertEmbedding(ctx, tx, lore.TierSession, id, embedding); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *Driver) MarkProcessed(ctx context.Context, ids []uuid.UUID) error {
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
			`UPDATE session_memories SET processed = 1 WHERE id = ?`, id.String(),
		); err != nil {
			return fmt.Errorf("marking session memory processed: %w", err)
		}
	}
	return tx.Commit()
}

func (d *Driver) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	return d.deleteExpired(ctx, lore.TierSession,
		`SELECT id FROM session_memories WHERE processed = 1 AND expires_at < ?`,
		`DELETE FROM session_memories WHERE id = ?`, now)
}

// deleteExpired removes expired rows for one tier along with their
// embeddings. Shared by the session and episode expiry paths.
func (d *Driver) deleteExpired(ctx context.Context, tier lore.Tier, selectQuery, deleteQuery string, now time.Time) (int, error) {
	rows, err := d.db.QueryContext(ctx, selectQuery, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("querying expired rows: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning expired row: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("parsing expired row id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, deleteQuery, id.String()); err != nil {
			return 0, fmt.Errorf("deleting expired row: %w", err)
		}
		if err := d.deleteEmbedding(ctx, tx, tier, id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	d.logger.Debug("expired rows deleted",
		zap.String("tier", string(tier)),
		zap.Int("count", len(ids)),
	)
	return len(ids), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*lore.SessionMemory, error) {
	var (
		m                          lore.SessionMemory
		id, sessionID, characterID string
		ts, expiresAt              int64
		kind, content              string
		participants, tags         string
		locationID                 sql.NullString
	)

	err := row.Scan(&id, &sessionID, &characterID, &ts, &kind, &content,
		&participants, &locationID, &m.Importance, &m.Valence, &tags,
		&expiresAt, &m.Processed)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session memory: %w", err)
	}

	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing session memory id: %w", err)
	}
	if m.SessionID, err = uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("parsing session id: %w", err)
	}
	if m.CharacterID, err = uuid.Parse(characterID); err != nil {
		return nil, fmt.Errorf("parsing character id: %w", err)
	}

	m.Timestamp = time.Unix(0, ts)
	m.ExpiresAt = time.Unix(0, expiresAt)
	m.Kind = lore.EventKind(kind)
	m.Content = []byte(content)
	m.Participants = fromJSON[[]uuid.UUID](participants)
	m.Tags = fromJSON[[]string](tags)
	m.LocationID = scanUUIDPtr(locationID)
	return &m, nil
}
