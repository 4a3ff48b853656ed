package openai

import (
	"fmt"
	"strings"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/utils"
)

// transcriptEventMax caps one event's content in the summarize prompt so a
// long session still fits the model's context window.
const transcriptEventMax = 2000

func buildAnalyzePrompt(m *lore.SessionMemory) string {
	var b strings.Builder

	b.WriteString(`You score events from a persistent narrative game for long-term significance.
Return ONLY valid JSON with these fields:

{
  "score": 0.0-1.0 importance (0.9+ deaths/betrayals/world events, 0.7+ quest turns and revelations, 0.4+ notable interactions, below 0.3 routine chatter),
  "valence": -1.0-1.0 emotional charge of the event,
  "tags": ["array of short lowercase topic labels"],
  "reasoning": "one sentence on why"
}

Event:
`)
	fmt.Fprintf(&b, "kind: %s\n", m.Kind)
	fmt.Fprintf(&b, "actor: %s\n", m.CharacterID)
	if len(m.Participants) > 0 {
		parts := make([]string, len(m.Participants))
		for i, p := range m.Participants {
			parts[i] = p.String()
		}
		fmt.Fprintf(&b, "participants: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "content: %s\n", string(m.Content))
	return b.String()
}

func buildSummarizePrompt(memories []*lore.SessionMemory) string {
	var b strings.Builder

	b.WriteString(`You are the chronicler of a persistent narrative game. Condense this
session's events into an episode. Refer to characters ONLY by the ids that
appear in the transcript. Return ONLY valid JSON with these fields:

{
  "title": "short evocative episode title",
  "one_line_summary": "single sentence capturing the episode",
  "narrative": "2-4 paragraph prose retelling, past tense",
  "key_moments": [{"description": "...", "significance": "..."}],
  "relationship_changes": [{
    "character_a": "uuid from transcript",
    "character_b": "uuid from transcript",
    "change_type": "one of: trust_gained, trust_lost, alliance, rivalry, debt, romance, betrayal",
    "description": "what changed between them",
    "trust_delta": -0.2 to 0.2,
    "confirmed": true if both characters witnessed it directly,
    "details": {"optional key": "value facts either learned about the other"}
  }],
  "themes": ["array of recurring themes"],
  "open_threads": ["array of unresolved hooks worth revisiting"]
}

Transcript (chronological):
`)
	for _, m := range memories {
		fmt.Fprintf(&b, "[%s | %s | importance %.2f] %s\n",
			m.Timestamp.Format("15:04:05"), m.Kind, m.Importance,
			utils.Truncate(string(m.Content), transcriptEventMax))
	}
	return b.String()
}

func buildNarratePrompt(e *lore.EpisodeMemory, prior []*lore.WorldMemory) string {
	var b strings.Builder

	b.WriteString(`You canonize an episode from a persistent narrative game into permanent
world lore. Stay consistent with the established lore below; never contradict
it. Return ONLY valid JSON with these fields:

{
  "category": "one of: event, character, location, faction",
  "title": "lore entry title",
  "description": "1-2 sentence encyclopedia-style description",
  "narrative": "2-3 paragraph account as the world remembers it",
  "related_entities": {"characters": ["names or ids"], "locations": [], "factions": []},
  "consequences": ["array of lasting effects on the world"],
  "tags": ["array of short lowercase topic labels"],
  "impact": "one of: minor, moderate, major, world_changing",
  "public": true if common knowledge, false if secret,
  "discovery_requirement": null, or an object describing how hidden lore can be learned
}

`)
	if len(prior) > 0 {
		b.WriteString("Established lore:\n")
		for _, w := range prior {
			fmt.Fprintf(&b, "- [%s/%s] %s: %s\n", w.Category, w.Impact, w.Title, w.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("Episode to canonize:\n")
	fmt.Fprintf(&b, "title: %s\n", e.Title)
	fmt.Fprintf(&b, "summary: %s\n", e.OneLineSummary)
	fmt.Fprintf(&b, "narrative:\n%s\n", e.Narrative)
	if len(e.KeyMoments) > 0 {
		b.WriteString("key moments:\n")
		for _, km := range e.KeyMoments {
			fmt.Fprintf(&b, "- %s (%s)\n", km.Description, km.Significance)
		}
	}
	if len(e.Themes) > 0 {
		fmt.Fprintf(&b, "themes: %s\n", strings.Join(e.Themes, ", "))
	}
	return b.String()
}
