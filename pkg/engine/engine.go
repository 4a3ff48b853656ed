// Package engine implements the memory lifecycle: capture of raw events,
// condensation of finished sessions into episodes, promotion of significant
// episodes into world lore, recognition bookkeeping between characters, and
// tier-spanning retrieval.
package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/emberworks/chronicle/pkg/embeddings"
	"github.com/emberworks/chronicle/pkg/engine/worker"
	"github.com/emberworks/chronicle/pkg/oracle"
	"github.com/emberworks/chronicle/pkg/store"
)

const (
	// DefaultSessionTTL is how long unprocessed raw events stay eligible
	// for condensation before expiry can collect them (post-processing).
	DefaultSessionTTL = 4 * time.Hour

	// DefaultEpisodeTTL is how long unpromoted episodes live.
	DefaultEpisodeTTL = 48 * time.Hour

	// DefaultPromoteThreshold is the aggregate importance at or above which
	// the scheduler auto-promotes an episode.
	DefaultPromoteThreshold = 0.75

	// DefaultCaptureTimeout bounds the oracle call on the capture hot path.
	DefaultCaptureTimeout = 300 * time.Millisecond

	// DefaultOracleTimeout bounds the summarization and narration oracle
	// calls, so a hung provider cannot stall condensation or the
	// scheduler's promotion sweep.
	DefaultOracleTimeout = 30 * time.Second

	// DefaultMaxContentBytes caps raw event payloads; larger content is
	// truncated, not rejected.
	DefaultMaxContentBytes = 8192

	// FallbackImportance is assigned when scoring fails or times out.
	FallbackImportance = 0.5
)

// Config holds the engine's collaborators and tuning knobs.
type Config struct {
	// Store is the storage backend. Required.
	Store store.Driver

	// Oracle performs LLM analysis. Required.
	Oracle oracle.Oracle

	// Embedder generates query and record embeddings. Required.
	Embedder embeddings.Embedder

	// Pool backfills session embeddings asynchronously. Optional; without
	// it raw events are never embedded and session-tier retrieval skips
	// them.
	Pool *worker.Pool

	// SessionTTL overrides DefaultSessionTTL when positive.
	SessionTTL time.Duration

	// EpisodeTTL overrides DefaultEpisodeTTL when positive.
	EpisodeTTL time.Duration

	// PromoteThreshold overrides DefaultPromoteThreshold when positive.
	PromoteThreshold float64

	// CaptureTimeout overrides DefaultCaptureTimeout when positive.
	CaptureTimeout time.Duration

	// OracleTimeout overrides DefaultOracleTimeout when positive.
	OracleTimeout time.Duration

	// MaxContentBytes overrides DefaultMaxContentBytes when positive.
	MaxContentBytes int

	// Clock supplies the current time; tests override it. Defaults to
	// time.Now.
	Clock func() time.Time

	// Logger is the provided zap logger. Required.
	Logger *zap.Logger
}

// Engine coordinates the memory lifecycle over a store.Driver.
type Engine struct {
	store    store.Driver
	oracle   oracle.Oracle
	embedder embeddings.Embedder
	pool     *worker.Pool
	logger   *zap.Logger
	clock    func() time.Time

	sessionTTL       time.Duration
	episodeTTL       time.Duration
	promoteThreshold float64
	captureTimeout   time.Duration
	oracleTimeout    time.Duration
	maxContentBytes  int

	// condensing and promoting collapse concurrent duplicate requests so a
	// session is summarized, and an episode narrated, at most once.
	condensing singleflight.Group
	promoting  singleflight.Group
}

// New validates the config and creates an Engine.
func New(c Config) (*Engine, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("store driver is required")
	}
	if c.Oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if c.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if c.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := &Engine{
		store:            c.Store,
		oracle:           c.Oracle,
		embedder:         c.Embedder,
		pool:             c.Pool,
		logger:           c.Logger,
		clock:            c.Clock,
		sessionTTL:       c.SessionTTL,
		episodeTTL:       c.EpisodeTTL,
		promoteThreshold: c.PromoteThreshold,
		captureTimeout:   c.CaptureTimeout,
		oracleTimeout:    c.OracleTimeout,
		maxContentBytes:  c.MaxContentBytes,
	}

	if e.clock == nil {
		e.clock = time.Now
	}
	if e.sessionTTL <= 0 {
		e.sessionTTL = DefaultSessionTTL
	}
	if e.episodeTTL <= 0 {
		e.episodeTTL = DefaultEpisodeTTL
	}
	if e.promoteThreshold <= 0 {
		e.promoteThreshold = DefaultPromoteThreshold
	}
	if e.captureTimeout <= 0 {
		e.captureTimeout = DefaultCaptureTimeout
	}
	if e.oracleTimeout <= 0 {
		e.oracleTimeout = DefaultOracleTimeout
	}
	if e.maxContentBytes <= 0 {
		e.maxContentBytes = DefaultMaxContentBytes
	}

	return e, nil
}

// PromoteThreshold reports the configured auto-promotion threshold. The
// scheduler uses it when sweeping candidates.
func (e *Engine) PromoteThreshold() float64 {
	return e.promoteThreshold
}
