package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

// Condense summarizes one finished gameplay session into an episode.
//
// The operation is idempotent: a session already condensed returns its
// existing episode, and concurrent calls for the same session collapse into
// one summarization. Source events are marked processed only after the
// episode is durably stored, so a failure anywhere leaves the session
// condensable again.
func (e *Engine) Condense(ctx context.Context, sessionID uuid.UUID) (*lore.EpisodeMemory, error) {
	v, err, _ := e.condensing.Do(sessionID.String(), func() (any, error) {
		return e.condense(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*lore.EpisodeMemory), nil
}

func (e *Engine) condense(ctx context.Context, sessionID uuid.UUID) (*lore.EpisodeMemory, error) {
	if existing, err := e.store.EpisodeBySourceSession(ctx, sessionID); err == nil {
		// A crash between storing the episode and marking its sources can
		// leave rows unprocessed; finish the job before returning.
		if err := e.markSessionProcessed(ctx, sessionID); err != nil {
			return nil, err
		}
		e.logger.Debug("session already condensed",
			zap.String("session_id", sessionID.String()),
			zap.String("episode_id", existing.ID.String()),
		)
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking existing episode: %w", err)
	}

	unprocessed := false
	memories, err := e.store.SessionsForSession(ctx, sessionID, &unprocessed)
	if err != nil {
		return nil, fmt.Errorf("loading session memories: %w", err)
	}
	if len(memories) == 0 {
		return nil, ErrNoMemories
	}

	oracleCtx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	summary, err := e.oracle.SummarizeSession(oracleCtx, memories)
	if err != nil {
		return nil, fmt.Errorf("summarizing session: %w", err)
	}

	now := e.clock()
	episode := &lore.EpisodeMemory{
		ID:                  uuid.New(),
		CreatedAt:           now,
		ExpiresAt:           now.Add(e.episodeTTL),
		Title:               summary.Title,
		OneLineSummary:      summary.OneLineSummary,
		Narrative:           summary.Narrative,
		KeyMoments:          summary.KeyMoments,
		RelationshipChanges: summary.RelationshipChanges,
		Themes:              summary.Themes,
		OpenThreads:         summary.OpenThreads,
		SessionIDs:          []uuid.UUID{sessionID},
		Importance:          meanImportance(memories),
	}

	episode.CharacterIDs, episode.LocationIDs = collectEntities(memories)

	// Embedding failure aborts before any write, same as a summarization
	// failure: the session stays condensable for the retry.
	vec, err := e.embedder.Embed(ctx, episodeEmbeddingText(episode))
	if err != nil {
		return nil, fmt.Errorf("embedding episode: %w", err)
	}
	episode.Embedding = vec

	if err := e.store.PutEpisode(ctx, episode); err != nil {
		return nil, fmt.Errorf("storing episode: %w", err)
	}

	ids := make([]uuid.UUID, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}
	if err := e.store.MarkProcessed(ctx, ids); err != nil {
		return nil, fmt.Errorf("marking memories processed: %w", err)
	}

	// Recognition updates ride along best-effort; a failure here never
	// un-condenses the session.
	if err := e.applyRelationshipChanges(ctx, episode, memories); err != nil {
		e.logger.Warn("recognition update failed",
			zap.String("episode_id", episode.ID.String()),
			zap.Error(err),
		)
	}

	e.logger.Info("session condensed",
		zap.String("session_id", sessionID.String()),
		zap.String("episode_id", episode.ID.String()),
		zap.Int("event_count", len(memories)),
		zap.Float64("importance", episode.Importance),
	)
	return episode, nil
}

// markSessionProcessed marks any still-unprocessed rows of the session.
func (e *Engine) markSessionProcessed(ctx context.Context, sessionID uuid.UUID) error {
	unprocessed := false
	memories, err := e.store.SessionsForSession(ctx, sessionID, &unprocessed)
	if err != nil {
		return fmt.Errorf("loading session memories: %w", err)
	}
	if len(memories) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}
	if err := e.store.MarkProcessed(ctx, ids); err != nil {
		return fmt.Errorf("marking memories processed: %w", err)
	}
	return nil
}

// meanImportance aggregates event scores into the episode score.
func meanImportance(memories []*lore.SessionMemory) float64 {
	if len(memories) == 0 {
		return 0
	}

	var sum float64
	for _, m := range memories {
		sum += m.Importance
	}
	return sum / float64(len(memories))
}

// collectEntities gathers the distinct characters and locations the session
// touched, in first-seen order.
func collectEntities(memories []*lore.SessionMemory) (characters, locations []uuid.UUID) {
	seenChar := make(map[uuid.UUID]bool)
	seenLoc := make(map[uuid.UUID]bool)

	addChar := func(id uuid.UUID) {
		if id != uuid.Nil && !seenChar[id] {
			seenChar[id] = true
			characters = append(characters, id)
		}
	}

	for _, m := range memories {
		addChar(m.CharacterID)
		for _, p := range m.Participants {
			addChar(p)
		}
		if m.LocationID != nil && !seenLoc[*m.LocationID] {
			seenLoc[*m.LocationID] = true
			locations = append(locations, *m.LocationID)
		}
	}
	return characters, locations
}

func episodeEmbeddingText(e *lore.EpisodeMemory) string {
	var b strings.Builder
	b.WriteString(e.Title)
	b.WriteString("\n")
	b.WriteString(e.OneLineSummary)
	b.WriteString("\n")
	b.WriteString(e.Narrative)
	return b.String()
}
