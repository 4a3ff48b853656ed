// Package oracle defines the LLM-backed analysis interfaces the memory
// lifecycle depends on: scoring raw events, summarizing finished sessions
// into episodes, and narrating promoted episodes into world lore.
//
// Implementations are pluggable via configuration:
//
//	[oracle]
//	provider = "openai"
package oracle

import (
	"context"
	"encoding/json"

	"github.com/emberworks/chronicle/pkg/lore"
)

// EventAnalysis is the structured verdict on a single raw event.
type EventAnalysis struct {
	// Score is the event's importance in [0, 1].
	Score float64 `json:"score"`

	// Valence is the emotional charge in [-1, 1].
	Valence float64 `json:"valence"`

	// Tags are short lowercase topic labels.
	Tags []string `json:"tags"`

	// Reasoning is the model's one-line justification, kept for debugging.
	Reasoning string `json:"reasoning"`
}

// EpisodeSummary is the condensed form of one gameplay session.
type EpisodeSummary struct {
	Title               string                    `json:"title"`
	OneLineSummary      string                    `json:"one_line_summary"`
	Narrative           string                    `json:"narrative"`
	KeyMoments          []lore.KeyMoment          `json:"key_moments"`
	RelationshipChanges []lore.RelationshipChange `json:"relationship_changes"`
	Themes              []string                  `json:"themes"`
	OpenThreads         []string                  `json:"open_threads"`
}

// WorldNarrative is the permanent-lore rendition of a promoted episode.
type WorldNarrative struct {
	Category             lore.Category       `json:"category"`
	Title                string              `json:"title"`
	Description          string              `json:"description"`
	Narrative            string              `json:"narrative"`
	RelatedEntities      map[string][]string `json:"related_entities"`
	Consequences         []string            `json:"consequences"`
	Tags                 []string            `json:"tags"`
	Impact               lore.ImpactLevel    `json:"impact"`
	Public               bool                `json:"public"`
	DiscoveryRequirement json.RawMessage     `json:"discovery_requirement,omitempty"`
}

// Importance scores raw events as they arrive. Called on the capture hot
// path, so implementations must respect context deadlines.
type Importance interface {
	AnalyzeEvent(ctx context.Context, m *lore.SessionMemory) (*EventAnalysis, error)
}

// Summarizer condenses a session's ordered events into an episode summary.
type Summarizer interface {
	SummarizeSession(ctx context.Context, memories []*lore.SessionMemory) (*EpisodeSummary, error)
}

// Promoter narrates an episode into world lore. Prior world memories near
// the episode are passed as grounding so new lore stays consistent with
// established canon.
type Promoter interface {
	NarrateWorld(ctx context.Context, e *lore.EpisodeMemory, prior []*lore.WorldMemory) (*WorldNarrative, error)
}

// Oracle bundles the three analysis roles; providers implement all of them
// over one underlying client.
type Oracle interface {
	Importance
	Summarizer
	Promoter

	// Close releases client resources.
	Close() error
}
