// Package sqlite provides a SQLite-backed store.Driver using sqlite-vec for
// nearest-neighbor search. Each embedded tier gets a vec0 virtual table plus
// a rowid mapping table, since vec0 tables use integer rowids and tier
// records are keyed by uuid.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

// Config holds configuration for the SQLite driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the fixed embedding vector size. Changing it
	// invalidates all previously stored vectors.
	Dimensions uint
}

// Driver implements store.Driver on SQLite with sqlite-vec.
type Driver struct {
	db     *sql.DB
	dims   uint
	logger *zap.Logger
}

// tierTables maps a tier to its vec0 table and rowid mapping table.
var tierTables = map[lore.Tier][2]string{
	lore.TierSession: {"vec_session", "vec_session_map"},
	lore.TierEpisode: {"vec_episode", "vec_episode_map"},
	lore.TierWorld:   {"vec_world", "vec_world_map"},
}

// NewDriver opens (and if necessary creates) the database at DBPath.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	d := &Driver{db: db, dims: c.Dimensions, logger: logger}
	if err := d.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return d, nil
}

func (d *Driver) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_memories (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			character_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			participants TEXT NOT NULL DEFAULT '[]',
			location_id TEXT,
			importance REAL NOT NULL DEFAULT 0,
			valence REAL NOT NULL DEFAULT 0,
			tags TEXT NOT NULL DEFAULT '[]',
			expires_at INTEGER NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_memories_session
			ON session_memories(session_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_session_memories_expiry
			ON session_memories(processed, expires_at)`,
		`CREATE TABLE IF NOT EXISTS episode_memories (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			title TEXT NOT NULL,
			one_line_summary TEXT NOT NULL,
			narrative TEXT NOT NULL,
			key_moments TEXT NOT NULL DEFAULT '[]',
			relationship_changes TEXT NOT NULL DEFAULT '[]',
			themes TEXT NOT NULL DEFAULT '[]',
			open_threads TEXT NOT NULL DEFAULT '[]',
			character_ids TEXT NOT NULL DEFAULT '[]',
			location_ids TEXT NOT NULL DEFAULT '[]',
			session_ids TEXT NOT NULL DEFAULT '[]',
			importance REAL NOT NULL DEFAULT 0,
			promoted INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_episode_memories_expiry
			ON episode_memories(promoted, expires_at)`,
		`CREATE TABLE IF NOT EXISTS world_memories (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			category TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			narrative TEXT NOT NULL,
			related_entities TEXT NOT NULL DEFAULT '{}',
			source_episode_ids TEXT NOT NULL DEFAULT '[]',
			consequences TEXT NOT NULL DEFAULT '[]',
			tags TEXT NOT NULL DEFAULT '[]',
			impact TEXT NOT NULL,
			public INTEGER NOT NULL DEFAULT 1,
			discovery_requirement TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS character_recognition (
			observer_id TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			first_met_at INTEGER NOT NULL,
			last_interaction_at INTEGER NOT NULL,
			known_name TEXT NOT NULL DEFAULT '',
			aliases TEXT NOT NULL DEFAULT '[]',
			details TEXT NOT NULL DEFAULT '{}',
			relationship TEXT NOT NULL DEFAULT '',
			trust REAL NOT NULL DEFAULT 0.5,
			last_known_location_id TEXT,
			shared_episode_ids TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (observer_id, subject_id)
		)`,
	}

	for _, tables := range tierTables {
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				rowid INTEGER PRIMARY KEY AUTOINCREMENT,
				record_id TEXT NOT NULL UNIQUE
			)`, tables[1]),
			fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d] distance_metric=cosine)`,
				tables[0], d.dims),
		)
	}

	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// serializeFloat32 converts a float32 slice to the little-endian BLOB format
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func fromJSON[T any](raw string) T {
	var v T
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &v)
	}
	return v
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func scanUUIDPtr(s sql.NullString) *uuid.UUID {
	if !s.Valid || s.String == "" {
		return nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil
	}
	return &id
}

// upsertEmbedding writes a record's embedding into its tier's vec0 table
// within the given transaction. vec0 has no UPDATE, so replacement is
// DELETE + INSERT.
func (d *Driver) upsertEmbedding(ctx context.Context, tx *sql.Tx, tier lore.Tier, recordID uuid.UUID, embedding []float32) error {
	if len(embedding) == 0 {
		return nil
	}
	if uint(len(embedding)) != d.dims {
		return fmt.Errorf("%w: got %d, store configured for %d",
			store.ErrDimensionMismatch, len(embedding), d.dims)
	}

	tables := tierTables[tier]
	vecTable, mapTable := tables[0], tables[1]

	var rowID int64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT rowid FROM %s WHERE record_id = ?`, mapTable), recordID.String(),
	).Scan(&rowID)

	switch err {
	case nil:
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, vecTable), rowID,
		); err != nil {
			return fmt.Errorf("deleting old embedding: %w", err)
		}
	case sql.ErrNoRows:
		result, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s(record_id) VALUES (?)`, mapTable), recordID.String(),
		)
		if err != nil {
			return fmt.Errorf("inserting embedding mapping: %w", err)
		}
		rowID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting embedding rowid: %w", err)
		}
	default:
		return fmt.Errorf("checking embedding mapping: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, vecTable),
		rowID, serializeFloat32(embedding),
	); err != nil {
		return fmt.Errorf("inserting embedding: %w", err)
	}
	return nil
}

// loadEmbedding reads a record's embedding back, or nil if none is stored.
func (d *Driver) loadEmbedding(ctx context.Context, tier lore.Tier, recordID uuid.UUID) ([]float32, error) {
	tables := tierTables[tier]

	var blob []byte
	err := d.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT v.embedding FROM %s v
		 INNER JOIN %s m ON m.rowid = v.rowid
		 WHERE m.record_id = ?`, tables[0], tables[1]),
		recordID.String(),
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading embedding: %w", err)
	}

	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

func (d *Driver) deleteEmbedding(ctx context.Context, tx *sql.Tx, tier lore.Tier, recordID uuid.UUID) error {
	tables := tierTables[tier]

	var rowID int64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT rowid FROM %s WHERE record_id = ?`, tables[1]), recordID.String(),
	).Scan(&rowID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up embedding mapping: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, tables[0]), rowID,
	); err != nil {
		return fmt.Errorf("deleting embedding: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, tables[1]), rowID,
	); err != nil {
		return fmt.Errorf("deleting embedding mapping: %w", err)
	}
	return nil
}

func (d *Driver) Close() error {
	return d.db.Close()
}

var _ store.Driver = (*Driver)(nil)
