package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

const (
	// DefaultRetrieveLimit is the result count when a query does not set one.
	DefaultRetrieveLimit = 10

	// scoreEpsilon is the similarity margin within which two hits are
	// considered tied and tier authority breaks the tie (world beats
	// episode beats session).
	scoreEpsilon = 0.01
)

// RetrieveQuery is one semantic retrieval request.
type RetrieveQuery struct {
	// Text is the natural-language query. Required.
	Text string `json:"text"`

	// Tiers restricts the search; empty means all three.
	Tiers []lore.Tier `json:"tiers,omitempty"`

	// Limit caps the merged result count. Defaults to DefaultRetrieveLimit.
	Limit int `json:"limit,omitempty"`

	// Filter narrows matches within each tier.
	Filter store.SearchFilter `json:"filter"`
}

// Retrieve embeds the query and searches the requested tiers, merging hits
// into a single ranked list. Failures degrade rather than fail the query: a
// tier whose search fails contributes nothing, and a query that cannot be
// embedded yields an empty result. An empty result is a valid answer.
func (e *Engine) Retrieve(ctx context.Context, q *RetrieveQuery) ([]lore.Fragment, error) {
	if q.Text == "" {
		return nil, fmt.Errorf("%w: query text is required", ErrInvalidEvent)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultRetrieveLimit
	}

	tiers := q.Tiers
	if len(tiers) == 0 {
		tiers = []lore.Tier{lore.TierWorld, lore.TierEpisode, lore.TierSession}
	}

	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		e.logger.Warn("query embedding failed, returning no results", zap.Error(err))
		return nil, nil
	}

	var fragments []lore.Fragment
	for _, tier := range tiers {
		hits, err := e.store.Search(ctx, tier, vec, limit, q.Filter)
		if err != nil {
			e.logger.Warn("tier search failed, degrading to empty",
				zap.String("tier", string(tier)),
				zap.Error(err),
			)
			continue
		}
		for _, hit := range hits {
			frag, err := e.loadFragment(ctx, hit)
			if err != nil {
				e.logger.Warn("loading search hit failed",
					zap.String("tier", string(tier)),
					zap.String("id", hit.ID.String()),
					zap.Error(err),
				)
				continue
			}
			fragments = append(fragments, frag)
		}
	}

	sort.SliceStable(fragments, func(i, j int) bool {
		a, b := fragments[i], fragments[j]
		diff := float64(a.Score) - float64(b.Score)
		if diff > -scoreEpsilon && diff < scoreEpsilon {
			return a.Tier.Priority() > b.Tier.Priority()
		}
		return a.Score > b.Score
	})

	if len(fragments) > limit {
		fragments = fragments[:limit]
	}
	return fragments, nil
}

func (e *Engine) loadFragment(ctx context.Context, hit store.SearchHit) (lore.Fragment, error) {
	switch hit.Tier {
	case lore.TierSession:
		m, err := e.store.SessionByID(ctx, hit.ID)
		if err != nil {
			return lore.Fragment{}, err
		}
		return lore.Fragment{
			Tier:      hit.Tier,
			ID:        m.ID,
			Title:     string(m.Kind),
			Body:      string(m.Content),
			Score:     hit.Score,
			Tags:      m.Tags,
			CreatedAt: m.Timestamp,
		}, nil

	case lore.TierEpisode:
		ep, err := e.store.EpisodeByID(ctx, hit.ID)
		if err != nil {
			return lore.Fragment{}, err
		}
		body := ep.OneLineSummary
		if body == "" {
			body = ep.Narrative
		}
		return lore.Fragment{
			Tier:      hit.Tier,
			ID:        ep.ID,
			Title:     ep.Title,
			Body:      body,
			Score:     hit.Score,
			Tags:      ep.Themes,
			CreatedAt: ep.CreatedAt,
		}, nil

	case lore.TierWorld:
		w, err := e.store.WorldByID(ctx, hit.ID)
		if err != nil {
			return lore.Fragment{}, err
		}
		return lore.Fragment{
			Tier:      hit.Tier,
			ID:        w.ID,
			Title:     w.Title,
			Body:      w.Description,
			Score:     hit.Score,
			Tags:      w.Tags,
			CreatedAt: w.CreatedAt,
		}, nil
	}

	return lore.Fragment{}, fmt.Errorf("unknown tier %q", hit.Tier)
}
