package store

import (
	"github.com/google/uuid"

	"github.com/emberworks/chronicle/pkg/lore"
)

// MatchSession reports whether a session memory passes the filter.
// Embedding presence is the caller's concern.
func (f SearchFilter) MatchSession(m *lore.SessionMemory) bool {
	if !f.Since.IsZero() && m.Timestamp.Before(f.Since) {
		return false
	}
	if len(f.CharacterIDs) > 0 {
		involved := append([]uuid.UUID{m.CharacterID}, m.Participants...)
		if !intersects(f.CharacterIDs, involved) {
			return false
		}
	}
	if len(f.LocationIDs) > 0 {
		if m.LocationID == nil || !contains(f.LocationIDs, *m.LocationID) {
			return false
		}
	}
	return true
}

// MatchEpisode reports whether an episode passes the filter.
func (f SearchFilter) MatchEpisode(e *lore.EpisodeMemory) bool {
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if len(f.CharacterIDs) > 0 && !intersects(f.CharacterIDs, e.CharacterIDs) {
		return false
	}
	if len(f.LocationIDs) > 0 && !intersects(f.LocationIDs, e.LocationIDs) {
		return false
	}
	return true
}

// MatchWorld reports whether a world memory passes the filter. World
// memories reference entities by the related-entities map, so character and
// location scoping matches against its "characters" and "locations" classes.
func (f SearchFilter) MatchWorld(w *lore.WorldMemory) bool {
	if f.PublicOnly && !w.Public {
		return false
	}
	if f.MinImpact != "" && w.Impact.Rank() < f.MinImpact.Rank() {
		return false
	}
	if !f.Since.IsZero() && w.CreatedAt.Before(f.Since) {
		return false
	}
	if len(f.CharacterIDs) > 0 && !entityListed(w.RelatedEntities["characters"], f.CharacterIDs) {
		return false
	}
	if len(f.LocationIDs) > 0 && !entityListed(w.RelatedEntities["locations"], f.LocationIDs) {
		return false
	}
	return true
}

// entityListed reports whether any wanted id appears in the entity list.
// Related entities may be free-text names; only entries that are an id's
// string form match.
func entityListed(entities []string, wanted []uuid.UUID) bool {
	for _, id := range wanted {
		s := id.String()
		for _, e := range entities {
			if e == s {
				return true
			}
		}
	}
	return false
}

func contains(haystack []uuid.UUID, needle uuid.UUID) bool {
	for _, id := range haystack {
		if id == needle {
			return true
		}
	}
	return false
}

func intersects(a, b []uuid.UUID) bool {
	for _, x := range a {
		if contains(b, x) {
			return true
		}
	}
	return false
}
