// Package lore defines the record types of the tiered memory hierarchy:
// raw session memories, condensed episodes, permanent world lore, and the
// character-recognition table. Records reference each other by typed ids
// only; no tier embeds another tier's record.
package lore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tier identifies one level of the memory hierarchy.
type Tier string

const (
	TierSession Tier = "session"
	TierEpisode Tier = "episode"
	TierWorld   Tier = "world"
)

// Priority orders tiers for retrieval tie-breaking. Higher wins.
func (t Tier) Priority() int {
	switch t {
	case TierWorld:
		return 3
	case TierEpisode:
		return 2
	case TierSession:
		return 1
	default:
		return 0
	}
}

// EventKind classifies a raw gameplay event.
type EventKind string

const (
	EventDialogue    EventKind = "dialogue"
	EventAction      EventKind = "action"
	EventObservation EventKind = "observation"
)

// Category classifies a world memory.
type Category string

const (
	CategoryEvent     Category = "event"
	CategoryCharacter Category = "character"
	CategoryLocation  Category = "location"
	CategoryFaction   Category = "faction"
)

// ImpactLevel grades how much a world memory changed the world.
type ImpactLevel string

const (
	ImpactMinor         ImpactLevel = "minor"
	ImpactModerate      ImpactLevel = "moderate"
	ImpactMajor         ImpactLevel = "major"
	ImpactWorldChanging ImpactLevel = "world_changing"
)

// Rank orders impact levels for filtering. Unknown levels rank lowest.
func (l ImpactLevel) Rank() int {
	switch l {
	case ImpactMinor:
		return 1
	case ImpactModerate:
		return 2
	case ImpactMajor:
		return 3
	case ImpactWorldChanging:
		return 4
	default:
		return 0
	}
}

// SessionMemory is one raw gameplay event captured during live play.
// Rows are ephemeral: once processed into an episode they expire and are
// deleted by the lifecycle scheduler. Unprocessed rows are never deleted.
type SessionMemory struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	CharacterID  uuid.UUID       `json:"character_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Kind         EventKind       `json:"kind"`
	Content      json.RawMessage `json:"content"`
	Participants []uuid.UUID     `json:"participants,omitempty"`
	LocationID   *uuid.UUID      `json:"location_id,omitempty"`

	// Oracle-assigned metadata. Importance is 0.0-1.0, Valence -1.0-1.0,
	// including fallback-scored events.
	Importance float64  `json:"importance"`
	Valence    float64  `json:"valence"`
	Tags       []string `json:"tags,omitempty"`

	// Embedding is backfilled asynchronously after capture. Retrieval
	// skips rows where it is still nil.
	Embedding []float32 `json:"embedding,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
	Processed bool      `json:"processed"`
}

// KeyMoment is one notable beat within an episode.
type KeyMoment struct {
	Description  string `json:"description"`
	Significance string `json:"significance"`
}

// RelationshipChange records how an episode moved the relationship between
// two characters. TrustDelta is bounded per change; the recognition updater
// sums deltas for a pair and clamps the net movement.
type RelationshipChange struct {
	CharacterA  uuid.UUID         `json:"character_a"`
	CharacterB  uuid.UUID         `json:"character_b"`
	ChangeType  string            `json:"change_type"`
	Description string            `json:"description"`
	TrustDelta  float64           `json:"trust_delta"`
	Confirmed   bool              `json:"confirmed"`
	Details     map[string]string `json:"details,omitempty"`
}

// EpisodeMemory is a condensed narrative unit spanning one or more sessions.
// An episode with Promoted=true is never deleted by expiry.
type EpisodeMemory struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Title          string `json:"title"`
	OneLineSummary string `json:"one_line_summary"`
	Narrative      string `json:"narrative"`

	KeyMoments          []KeyMoment          `json:"key_moments"`
	RelationshipChanges []RelationshipChange `json:"relationship_changes,omitempty"`
	Themes              []string             `json:"themes,omitempty"`
	OpenThreads         []string             `json:"open_threads,omitempty"`

	CharacterIDs []uuid.UUID `json:"character_ids,omitempty"`
	LocationIDs  []uuid.UUID `json:"location_ids,omitempty"`
	SessionIDs   []uuid.UUID `json:"session_ids"`

	Embedding  []float32 `json:"embedding,omitempty"`
	Importance float64   `json:"importance"`
	Promoted   bool      `json:"promoted"`
}

// WorldMemory is permanent canonical lore. It never auto-expires and is
// immutable once created except for administrative retraction.
type WorldMemory struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Category  Category  `json:"category"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Narrative   string `json:"narrative"`

	// RelatedEntities maps an entity class ("characters", "locations",
	// "factions") to entity names or ids.
	RelatedEntities  map[string][]string `json:"related_entities,omitempty"`
	SourceEpisodeIDs []uuid.UUID         `json:"source_episode_ids"`
	Consequences     []string            `json:"consequences,omitempty"`

	Embedding []float32   `json:"embedding,omitempty"`
	Tags      []string    `json:"tags,omitempty"`
	Impact    ImpactLevel `json:"impact"`

	Public bool `json:"public"`
	// DiscoveryRequirement is an opaque predicate evaluated by the
	// narrative layer; nil means no requirement.
	DiscoveryRequirement json.RawMessage `json:"discovery_requirement,omitempty"`
}

// DetailKind distinguishes established facts from hearsay in recognition
// records.
type DetailKind string

const (
	DetailFact  DetailKind = "fact"
	DetailRumor DetailKind = "rumor"
)

// KnownDetail is one piece of knowledge an observer holds about a subject.
type KnownDetail struct {
	Value     string     `json:"value"`
	Kind      DetailKind `json:"kind"`
	EpisodeID uuid.UUID  `json:"episode_id"`
}

// CharacterRecognition is a directed knowledge edge: what one character
// (observer) knows about another (subject). At most one record exists per
// ordered (observer, subject) pair; self-loops are disallowed.
type CharacterRecognition struct {
	ObserverID uuid.UUID `json:"observer_id"`
	SubjectID  uuid.UUID `json:"subject_id"`

	FirstMetAt        time.Time `json:"first_met_at"`
	LastInteractionAt time.Time `json:"last_interaction_at"`

	KnownName string   `json:"known_name,omitempty"`
	Aliases   []string `json:"aliases,omitempty"`

	Details      map[string]KnownDetail `json:"details,omitempty"`
	Relationship string                 `json:"relationship,omitempty"`
	// Trust is 0.0-1.0. New edges start at the neutral 0.5.
	Trust float64 `json:"trust"`

	LastKnownLocationID *uuid.UUID  `json:"last_known_location_id,omitempty"`
	SharedEpisodeIDs    []uuid.UUID `json:"shared_episode_ids,omitempty"`
}

// Fragment is one ranked retrieval result. Body holds the displayable text
// for the fragment's tier (narrative for episodes/world, content text for
// session events).
type Fragment struct {
	Tier      Tier      `json:"tier"`
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	Score     float32   `json:"score"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
