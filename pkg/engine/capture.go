package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/engine/worker"
	"github.com/emberworks/chronicle/pkg/lore"
)

// CaptureRequest is one raw gameplay event to record.
type CaptureRequest struct {
	SessionID    uuid.UUID       `json:"session_id"`
	CharacterID  uuid.UUID       `json:"character_id"`
	Kind         lore.EventKind  `json:"kind"`
	Content      json.RawMessage `json:"content"`
	Participants []uuid.UUID     `json:"participants,omitempty"`
	LocationID   *uuid.UUID      `json:"location_id,omitempty"`

	// Timestamp defaults to the capture instant when zero.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

func (r *CaptureRequest) validate() error {
	if r.SessionID == uuid.Nil {
		return fmt.Errorf("%w: session_id is required", ErrInvalidEvent)
	}
	if r.CharacterID == uuid.Nil {
		return fmt.Errorf("%w: character_id is required", ErrInvalidEvent)
	}
	if len(r.Content) == 0 {
		return fmt.Errorf("%w: content is required", ErrInvalidEvent)
	}
	switch r.Kind {
	case lore.EventDialogue, lore.EventAction, lore.EventObservation:
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidEvent, r.Kind)
	}
	return nil
}

// Capture records one raw event. The oracle scores it within a short
// deadline; when scoring fails or times out the event is stored anyway with
// a fallback score so capture never loses data. The embedding is backfilled
// asynchronously by the worker pool.
func (e *Engine) Capture(ctx context.Context, req *CaptureRequest) (*lore.SessionMemory, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := e.clock()
	ts := req.Timestamp
	if ts.IsZero() {
		ts = now
	}

	m := &lore.SessionMemory{
		ID:           uuid.New(),
		SessionID:    req.SessionID,
		CharacterID:  req.CharacterID,
		Timestamp:    ts,
		Kind:         req.Kind,
		Content:      req.Content,
		Participants: req.Participants,
		LocationID:   req.LocationID,
		ExpiresAt:    now.Add(e.sessionTTL),
	}

	if len(m.Content) > e.maxContentBytes {
		// Re-encode the clipped bytes as a JSON string so the stored
		// content stays marshalable.
		clipped, _ := json.Marshal(string(m.Content[:e.maxContentBytes]))
		m.Content = clipped
		m.Tags = append(m.Tags, "truncated")
		e.logger.Warn("event content truncated",
			zap.String("memory_id", m.ID.String()),
			zap.Int("max_bytes", e.maxContentBytes),
		)
	}

	scoreCtx, cancel := context.WithTimeout(ctx, e.captureTimeout)
	defer cancel()

	analysis, err := e.oracle.AnalyzeEvent(scoreCtx, m)
	if err != nil {
		m.Importance = FallbackImportance
		m.Valence = 0
		m.Tags = append(m.Tags, "scoring_failed")
		e.logger.Warn("event scoring failed, using fallback",
			zap.String("memory_id", m.ID.String()),
			zap.Error(err),
		)
	} else {
		m.Importance = analysis.Score
		m.Valence = analysis.Valence
		m.Tags = append(m.Tags, analysis.Tags...)
	}

	if err := e.store.PutSession(ctx, m); err != nil {
		return nil, fmt.Errorf("storing event: %w", err)
	}

	if e.pool != nil {
		e.pool.Enqueue(worker.Job{MemoryID: m.ID, Text: string(m.Content)})
	}

	e.logger.Debug("event captured",
		zap.String("memory_id", m.ID.String()),
		zap.String("session_id", m.SessionID.String()),
		zap.Float64("importance", m.Importance),
	)
	return m, nil
}
