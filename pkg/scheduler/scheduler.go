// Package scheduler runs the periodic memory lifecycle sweep: expiring
// processed session events, expiring unpromoted episodes, and auto-promoting
// episodes whose importance cleared the threshold.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/engine"
	"github.com/emberworks/chronicle/pkg/store"
)

// DefaultSpec is the sweep cadence when none is configured.
const DefaultSpec = "@every 5m"

// Config holds the scheduler's collaborators.
type Config struct {
	// Store is the storage backend to sweep. Required.
	Store store.Driver

	// Engine performs auto-promotion. Required.
	Engine *engine.Engine

	// Spec is a cron expression for the sweep cadence. Defaults to
	// DefaultSpec.
	Spec string

	// Clock supplies the current time; tests override it. Defaults to
	// time.Now.
	Clock func() time.Time

	// Logger is the provided zap logger. Required.
	Logger *zap.Logger
}

// Scheduler owns the cron loop. A tick that would overlap a still-running
// one is skipped, never queued.
type Scheduler struct {
	cron    *cron.Cron
	store   store.Driver
	engine  *engine.Engine
	clock   func() time.Time
	logger  *zap.Logger
	spec    string
	running atomic.Bool
}

// New validates the config and creates a Scheduler. Start must be called to
// begin sweeping.
func New(c Config) (*Scheduler, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("store driver is required")
	}
	if c.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if c.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	spec := c.Spec
	if spec == "" {
		spec = DefaultSpec
	}

	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Scheduler{
		cron:   cron.New(),
		store:  c.Store,
		engine: c.Engine,
		clock:  clock,
		logger: c.Logger,
		spec:   spec,
	}, nil
}

// Start registers the sweep and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.Tick(context.Background())
	}); err != nil {
		return fmt.Errorf("registering sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("lifecycle scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("lifecycle scheduler stopped")
}

// Tick runs one sweep. The three substeps are independent: a failure in one
// is logged and the others still run. Returns false when a sweep was
// already in flight and this one was skipped.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("sweep already running, skipping tick")
		return false
	}
	defer s.running.Store(false)

	now := s.clock()

	if n, err := s.store.DeleteExpiredSessions(ctx, now); err != nil {
		s.logger.Error("session expiry sweep failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("expired session memories removed", zap.Int("count", n))
	}

	if n, err := s.store.DeleteExpiredEpisodes(ctx, now); err != nil {
		s.logger.Error("episode expiry sweep failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("expired episodes removed", zap.Int("count", n))
	}

	if n, err := s.engine.PromoteCandidates(ctx); err != nil {
		s.logger.Error("auto-promotion sweep failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("episodes auto-promoted", zap.Int("count", n))
	}

	return true
}
