// Package store defines the durable storage driver for the three memory
// tiers and the character-recognition table. The Driver is the only shared
// mutable resource in the system; writes to any given field go through a
// single owning component (capture creates session rows, the condenser sets
// the processed flag, the promoter sets the promoted flag).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emberworks/chronicle/pkg/lore"
)

// SearchFilter narrows a nearest-neighbor search within one tier. Zero
// values mean "no constraint".
type SearchFilter struct {
	// CharacterIDs keeps records referencing at least one of these ids.
	CharacterIDs []uuid.UUID

	// LocationIDs keeps records referencing at least one of these ids.
	LocationIDs []uuid.UUID

	// PublicOnly keeps only publicly visible world memories. Ignored for
	// other tiers.
	PublicOnly bool

	// MinImpact keeps world memories at or above this impact level.
	// Ignored for other tiers.
	MinImpact lore.ImpactLevel

	// Since keeps records created at or after this instant.
	Since time.Time
}

// SearchHit is one nearest-neighbor match. Score is a similarity in (0, 1],
// higher meaning more similar.
type SearchHit struct {
	Tier  lore.Tier
	ID    uuid.UUID
	Score float32
}

// Driver persists and retrieves tier records. Implementations must make
// Put operations idempotent on id so at-least-once writers are safe.
type Driver interface {
	// PutSession stores a raw session memory.
	PutSession(ctx context.Context, m *lore.SessionMemory) error

	// SessionByID retrieves one session memory.
	SessionByID(ctx context.Context, id uuid.UUID) (*lore.SessionMemory, error)

	// SessionsForSession returns the memories of one gameplay session
	// ordered by timestamp ascending. When processed is non-nil only rows
	// with a matching processed flag are returned.
	SessionsForSession(ctx context.Context, sessionID uuid.UUID, processed *bool) ([]*lore.SessionMemory, error)

	// SetSessionEmbedding backfills the embedding of a stored session
	// memory. Writes are idempotent (same text, same vector).
	SetSessionEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error

	// MarkProcessed flips the processed flag on the given session rows.
	MarkProcessed(ctx context.Context, ids []uuid.UUID) error

	// DeleteExpiredSessions removes session rows whose expiry has passed
	// AND whose processed flag is set. Unprocessed rows are never deleted
	// regardless of elapsed time. Returns the number of rows removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)

	// PutEpisode stores a condensed episode.
	PutEpisode(ctx context.Context, e *lore.EpisodeMemory) error

	// EpisodeByID retrieves one episode.
	EpisodeByID(ctx context.Context, id uuid.UUID) (*lore.EpisodeMemory, error)

	// EpisodeBySourceSession finds the episode that consumed the given
	// gameplay session, if any. Supports idempotent condensation.
	EpisodeBySourceSession(ctx context.Context, sessionID uuid.UUID) (*lore.EpisodeMemory, error)

	// MarkPromoted flips the promoted flag on the given episodes. The flag
	// is never reverted.
	MarkPromoted(ctx context.Context, ids []uuid.UUID) error

	// PromotionCandidates returns unpromoted episodes whose aggregate
	// importance is at or above threshold.
	PromotionCandidates(ctx context.Context, threshold float64) ([]*lore.EpisodeMemory, error)

	// DeleteExpiredEpisodes removes episodes whose expiry has passed AND
	// whose promoted flag is clear. Promoted episodes are never deleted.
	// Returns the number of rows removed.
	DeleteExpiredEpisodes(ctx context.Context, now time.Time) (int, error)

	// PutWorld stores a world memory.
	PutWorld(ctx context.Context, w *lore.WorldMemory) error

	// WorldByID retrieves one world memory.
	WorldByID(ctx context.Context, id uuid.UUID) (*lore.WorldMemory, error)

	// WorldBySourceEpisode finds the world memory that was promoted from
	// the given episode, if any. Supports idempotent promotion.
	WorldBySourceEpisode(ctx context.Context, episodeID uuid.UUID) (*lore.WorldMemory, error)

	// Recognition retrieves the knowledge edge for an ordered
	// (observer, subject) pair.
	Recognition(ctx context.Context, observerID, subjectID uuid.UUID) (*lore.CharacterRecognition, error)

	// UpsertRecognition inserts or replaces the edge for its
	// (observer, subject) pair.
	UpsertRecognition(ctx context.Context, r *lore.CharacterRecognition) error

	// Search runs a nearest-neighbor query against one tier's embedding
	// column, respecting the filter. Records without an embedding are
	// skipped. Results are ordered by similarity descending.
	Search(ctx context.Context, tier lore.Tier, embedding []float32, topK int, f SearchFilter) ([]SearchHit, error)

	// Close releases driver resources.
	Close() error
}
