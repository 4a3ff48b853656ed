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

// priorLoreCount is how many established world memories are handed to the
// oracle as grounding when narrating a new one.
const priorLoreCount = 3

// Promote canonizes one episode into a permanent world memory.
//
// Promotion is idempotent: an episode already promoted returns its existing
// world memory, and concurrent calls collapse. The promoted flag is flipped
// only after the world memory is durably stored; a crash in between yields
// an unmarked episode whose next promotion attempt finds the existing lore
// and just sets the flag.
func (e *Engine) Promote(ctx context.Context, episodeID uuid.UUID) (*lore.WorldMemory, error) {
	v, err, _ := e.promoting.Do(episodeID.String(), func() (any, error) {
		return e.promote(ctx, episodeID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*lore.WorldMemory), nil
}

func (e *Engine) promote(ctx context.Context, episodeID uuid.UUID) (*lore.WorldMemory, error) {
	episode, err := e.store.EpisodeByID(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("loading episode: %w", err)
	}

	if existing, err := e.store.WorldBySourceEpisode(ctx, episodeID); err == nil {
		if !episode.Promoted {
			if err := e.store.MarkPromoted(ctx, []uuid.UUID{episodeID}); err != nil {
				return nil, fmt.Errorf("marking episode promoted: %w", err)
			}
		}
		e.logger.Debug("episode already promoted",
			zap.String("episode_id", episodeID.String()),
			zap.String("world_id", existing.ID.String()),
		)
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking existing world memory: %w", err)
	}

	prior := e.nearbyLore(ctx, episode)

	oracleCtx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	narrative, err := e.oracle.NarrateWorld(oracleCtx, episode, prior)
	if err != nil {
		return nil, fmt.Errorf("narrating episode: %w", err)
	}

	w := &lore.WorldMemory{
		ID:                   uuid.New(),
		CreatedAt:            e.clock(),
		Category:             narrative.Category,
		Title:                narrative.Title,
		Description:          narrative.Description,
		Narrative:            narrative.Narrative,
		RelatedEntities:      narrative.RelatedEntities,
		SourceEpisodeIDs:     []uuid.UUID{episodeID},
		Consequences:         narrative.Consequences,
		Tags:                 narrative.Tags,
		Impact:               narrative.Impact,
		Public:               narrative.Public,
		DiscoveryRequirement: narrative.DiscoveryRequirement,
	}

	// Embedding failure aborts before any write; the episode stays
	// unpromoted for the retry.
	vec, err := e.embedder.Embed(ctx, worldEmbeddingText(w))
	if err != nil {
		return nil, fmt.Errorf("embedding world memory: %w", err)
	}
	w.Embedding = vec

	if err := e.store.PutWorld(ctx, w); err != nil {
		return nil, fmt.Errorf("storing world memory: %w", err)
	}

	if err := e.store.MarkPromoted(ctx, []uuid.UUID{episodeID}); err != nil {
		return nil, fmt.Errorf("marking episode promoted: %w", err)
	}

	e.logger.Info("episode promoted",
		zap.String("episode_id", episodeID.String()),
		zap.String("world_id", w.ID.String()),
		zap.String("impact", string(w.Impact)),
	)
	return w, nil
}

// nearbyLore finds established world memories semantically close to the
// episode, for grounding the narration. All failures degrade to no
// grounding rather than blocking promotion.
func (e *Engine) nearbyLore(ctx context.Context, episode *lore.EpisodeMemory) []*lore.WorldMemory {
	vec := episode.Embedding
	if len(vec) == 0 {
		var err error
		vec, err = e.embedder.Embed(ctx, episodeEmbeddingText(episode))
		if err != nil {
			e.logger.Warn("embedding episode for lore grounding failed",
				zap.String("episode_id", episode.ID.String()),
				zap.Error(err),
			)
			return nil
		}
	}

	hits, err := e.store.Search(ctx, lore.TierWorld, vec, priorLoreCount, store.SearchFilter{})
	if err != nil {
		e.logger.Warn("lore grounding search failed",
			zap.String("episode_id", episode.ID.String()),
			zap.Error(err),
		)
		return nil
	}

	var prior []*lore.WorldMemory
	for _, hit := range hits {
		w, err := e.store.WorldByID(ctx, hit.ID)
		if err != nil {
			continue
		}
		prior = append(prior, w)
	}
	return prior
}

// PromoteCandidates sweeps unpromoted episodes at or above the configured
// threshold and promotes each. Called by the scheduler; per-episode failures
// are logged and skipped so one bad episode never blocks the rest.
func (e *Engine) PromoteCandidates(ctx context.Context) (int, error) {
	candidates, err := e.store.PromotionCandidates(ctx, e.promoteThreshold)
	if err != nil {
		return 0, fmt.Errorf("loading promotion candidates: %w", err)
	}

	promoted := 0
	for _, episode := range candidates {
		if _, err := e.Promote(ctx, episode.ID); err != nil {
			e.logger.Warn("auto-promotion failed",
				zap.String("episode_id", episode.ID.String()),
				zap.Error(err),
			)
			continue
		}
		promoted++
	}
	return promoted, nil
}

func worldEmbeddingText(w *lore.WorldMemory) string {
	var b strings.Builder
	b.WriteString(w.Title)
	b.WriteString("\n")
	b.WriteString(w.Description)
	b.WriteString("\n")
	b.WriteString(w.Narrative)
	return b.String()
}
