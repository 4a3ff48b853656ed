// Package openai implements the oracle interfaces on the OpenAI chat
// completions API, including OpenAI-compatible gateways via BaseURL.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/oracle"
)

// DefaultModel is the default chat model for analysis calls.
const DefaultModel = "gpt-4o-mini"

// Client implements oracle.Oracle over the chat completions API.
type Client struct {
	client *goopenai.Client
	model  string
	logger *zap.Logger
}

// Config holds configuration for the OpenAI oracle.
type Config struct {
	// APIKey authenticates against the API.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible providers.
	// Empty means api.openai.com.
	BaseURL string

	// Model is the chat model. Defaults to DefaultModel.
	Model string
}

// NewClient creates an OpenAI-backed oracle.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger,
	}, nil
}

// complete sends one prompt and returns the raw assistant text.
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", oracle.ErrOracle, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", oracle.ErrOracle)
	}
	return resp.Choices[0].Message.Content, nil
}

// extractJSON pulls the JSON object out of a response that may be wrapped
// in markdown code fences or prose.
func extractJSON(response string) string {
	if idx := strings.Index(response, "{"); idx >= 0 {
		if endIdx := strings.LastIndex(response, "}"); endIdx > idx {
			return response[idx : endIdx+1]
		}
	}
	return response
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AnalyzeEvent scores one raw event.
func (c *Client) AnalyzeEvent(ctx context.Context, m *lore.SessionMemory) (*oracle.EventAnalysis, error) {
	response, err := c.complete(ctx, buildAnalyzePrompt(m))
	if err != nil {
		return nil, err
	}

	var analysis oracle.EventAnalysis
	if err := json.Unmarshal([]byte(extractJSON(response)), &analysis); err != nil {
		return nil, fmt.Errorf("%w: unmarshal analysis JSON: %v", oracle.ErrOracle, err)
	}

	analysis.Score = clamp(analysis.Score, 0, 1)
	analysis.Valence = clamp(analysis.Valence, -1, 1)
	return &analysis, nil
}

// episodeSummaryRaw mirrors oracle.EpisodeSummary with relationship
// character ids as plain strings so one malformed id does not sink the
// whole summary.
type episodeSummaryRaw struct {
	Title               string           `json:"title"`
	OneLineSummary      string           `json:"one_line_summary"`
	Narrative           string           `json:"narrative"`
	KeyMoments          []lore.KeyMoment `json:"key_moments"`
	RelationshipChanges []struct {
		CharacterA  string            `json:"character_a"`
		CharacterB  string            `json:"character_b"`
		ChangeType  string            `json:"change_type"`
		Description string            `json:"description"`
		TrustDelta  float64           `json:"trust_delta"`
		Confirmed   bool              `json:"confirmed"`
		Details     map[string]string `json:"details"`
	} `json:"relationship_changes"`
	Themes      []string `json:"themes"`
	OpenThreads []string `json:"open_threads"`
}

// SummarizeSession condenses a session's ordered events into an episode
// summary.
func (c *Client) SummarizeSession(ctx context.Context, memories []*lore.SessionMemory) (*oracle.EpisodeSummary, error) {
	if len(memories) == 0 {
		return nil, fmt.Errorf("%w: no memories to summarize", oracle.ErrOracle)
	}

	response, err := c.complete(ctx, buildSummarizePrompt(memories))
	if err != nil {
		return nil, err
	}

	var raw episodeSummaryRaw
	if err := json.Unmarshal([]byte(extractJSON(response)), &raw); err != nil {
		return nil, fmt.Errorf("%w: unmarshal summary JSON: %v", oracle.ErrOracle, err)
	}
	if raw.Title == "" || raw.Narrative == "" {
		return nil, fmt.Errorf("%w: summary missing title or narrative", oracle.ErrOracle)
	}

	summary := &oracle.EpisodeSummary{
		Title:          raw.Title,
		OneLineSummary: raw.OneLineSummary,
		Narrative:      raw.Narrative,
		KeyMoments:     raw.KeyMoments,
		Themes:         raw.Themes,
		OpenThreads:    raw.OpenThreads,
	}

	for _, rc := range raw.RelationshipChanges {
		a, errA := uuid.Parse(rc.CharacterA)
		b, errB := uuid.Parse(rc.CharacterB)
		if errA != nil || errB != nil || a == b {
			c.logger.Warn("dropping relationship change with bad character ids",
				zap.String("character_a", rc.CharacterA),
				zap.String("character_b", rc.CharacterB),
			)
			continue
		}
		summary.RelationshipChanges = append(summary.RelationshipChanges, lore.RelationshipChange{
			CharacterA:  a,
			CharacterB:  b,
			ChangeType:  rc.ChangeType,
			Description: rc.Description,
			TrustDelta:  clamp(rc.TrustDelta, -0.2, 0.2),
			Confirmed:   rc.Confirmed,
			Details:     rc.Details,
		})
	}

	return summary, nil
}

// NarrateWorld turns a promoted episode into permanent lore.
func (c *Client) NarrateWorld(ctx context.Context, e *lore.EpisodeMemory, prior []*lore.WorldMemory) (*oracle.WorldNarrative, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: no episode to narrate", oracle.ErrOracle)
	}

	response, err := c.complete(ctx, buildNarratePrompt(e, prior))
	if err != nil {
		return nil, err
	}

	var narrative oracle.WorldNarrative
	if err := json.Unmarshal([]byte(extractJSON(response)), &narrative); err != nil {
		return nil, fmt.Errorf("%w: unmarshal narrative JSON: %v", oracle.ErrOracle, err)
	}
	if narrative.Title == "" || narrative.Narrative == "" {
		return nil, fmt.Errorf("%w: narrative missing title or body", oracle.ErrOracle)
	}

	switch narrative.Category {
	case lore.CategoryEvent, lore.CategoryCharacter, lore.CategoryLocation, lore.CategoryFaction:
	default:
		narrative.Category = lore.CategoryEvent
	}
	if narrative.Impact.Rank() == 0 {
		narrative.Impact = lore.ImpactModerate
	}
	return &narrative, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return nil
}

var _ oracle.Oracle = (*Client)(nil)
