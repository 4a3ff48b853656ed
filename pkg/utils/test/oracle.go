package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/oracle"
)

// MockOracle is a test oracle with canned responses and failure toggles.
type MockOracle struct {
	Analysis  *oracle.EventAnalysis
	Summary   *oracle.EpisodeSummary
	Narrative *oracle.WorldNarrative

	FailAnalyze   bool
	FailSummarize bool
	FailNarrate   bool

	// The Blocks toggles hold the corresponding call until its context
	// expires so timeout handling can be exercised.
	AnalyzeBlocks   bool
	SummarizeBlocks bool
	NarrateBlocks   bool

	// SummarizeDelay holds SummarizeSession open long enough for
	// concurrent callers to overlap.
	SummarizeDelay time.Duration

	AnalyzeCalls   int
	SummarizeCalls int
	NarrateCalls   int

	// LastPrior records the grounding lore passed to the most recent
	// NarrateWorld call.
	LastPrior []*lore.WorldMemory

	mu sync.Mutex
}

func NewMockOracle() *MockOracle {
	return &MockOracle{
		Analysis: &oracle.EventAnalysis{
			Score:     0.6,
			Valence:   0.2,
			Tags:      []string{"test"},
			Reasoning: "canned",
		},
		Summary: &oracle.EpisodeSummary{
			Title:          "Test Episode",
			OneLineSummary: "A test session happened.",
			Narrative:      "The party tested things and it went fine.",
			Themes:         []string{"testing"},
		},
		Narrative: &oracle.WorldNarrative{
			Category:    lore.CategoryEvent,
			Title:       "Test Lore",
			Description: "A notable test occurrence.",
			Narrative:   "Long ago, a test was run.",
			Impact:      lore.ImpactModerate,
			Public:      true,
		},
	}
}

func (m *MockOracle) AnalyzeEvent(ctx context.Context, _ *lore.SessionMemory) (*oracle.EventAnalysis, error) {
	m.mu.Lock()
	m.AnalyzeCalls++
	m.mu.Unlock()

	if m.AnalyzeBlocks {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", oracle.ErrOracle, ctx.Err())
	}
	if m.FailAnalyze {
		return nil, fmt.Errorf("%w: mock analyze failure", oracle.ErrOracle)
	}
	return m.Analysis, nil
}

func (m *MockOracle) SummarizeSession(ctx context.Context, _ []*lore.SessionMemory) (*oracle.EpisodeSummary, error) {
	m.mu.Lock()
	m.SummarizeCalls++
	m.mu.Unlock()

	if m.SummarizeBlocks {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", oracle.ErrOracle, ctx.Err())
	}
	if m.SummarizeDelay > 0 {
		time.Sleep(m.SummarizeDelay)
	}
	if m.FailSummarize {
		return nil, fmt.Errorf("%w: mock summarize failure", oracle.ErrOracle)
	}
	return m.Summary, nil
}

func (m *MockOracle) NarrateWorld(ctx context.Context, _ *lore.EpisodeMemory, prior []*lore.WorldMemory) (*oracle.WorldNarrative, error) {
	m.mu.Lock()
	m.NarrateCalls++
	m.LastPrior = prior
	m.mu.Unlock()

	if m.NarrateBlocks {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", oracle.ErrOracle, ctx.Err())
	}
	if m.FailNarrate {
		return nil, fmt.Errorf("%w: mock narrate failure", oracle.ErrOracle)
	}
	return m.Narrative, nil
}

func (m *MockOracle) Close() error {
	return nil
}
