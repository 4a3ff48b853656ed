package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

// maxTrustShift bounds how far one episode can move the trust between a
// pair of characters, regardless of how many changes it reported.
const maxTrustShift = 0.2

// Recognition reports what observer knows about subject.
func (e *Engine) Recognition(ctx context.Context, observerID, subjectID uuid.UUID) (*lore.CharacterRecognition, error) {
	if observerID == subjectID {
		return nil, store.ErrSelfRecognition
	}
	return e.store.Recognition(ctx, observerID, subjectID)
}

// pairUpdate accumulates one episode's effect on a single directed edge.
type pairUpdate struct {
	netDelta     float64
	relationship string
	details      map[string]lore.KnownDetail
}

// applyRelationshipChanges folds an episode into the recognition table.
// Every ordered pair of distinct characters who shared the episode gets an
// edge, so two characters are recorded as having met even when the summary
// reports no relationship change between them. Per pair, trust deltas are
// summed and the net movement clamped, so a chaotic episode cannot swing a
// relationship arbitrarily far.
func (e *Engine) applyRelationshipChanges(ctx context.Context, episode *lore.EpisodeMemory, memories []*lore.SessionMemory) error {
	lastInteraction := episode.CreatedAt
	var lastLocation *uuid.UUID
	for _, m := range memories {
		if m.Timestamp.After(lastInteraction) {
			lastInteraction = m.Timestamp
		}
		if m.LocationID != nil {
			lastLocation = m.LocationID
		}
	}

	updates := make(map[[2]uuid.UUID]*pairUpdate)
	edge := func(observer, subject uuid.UUID) *pairUpdate {
		key := [2]uuid.UUID{observer, subject}
		u, ok := updates[key]
		if !ok {
			u = &pairUpdate{details: make(map[string]lore.KnownDetail)}
			updates[key] = u
		}
		return u
	}

	for _, a := range episode.CharacterIDs {
		for _, b := range episode.CharacterIDs {
			if a != b {
				edge(a, b)
			}
		}
	}

	for _, rc := range episode.RelationshipChanges {
		if rc.CharacterA == rc.CharacterB {
			continue
		}

		kind := lore.DetailRumor
		if rc.Confirmed {
			kind = lore.DetailFact
		}

		for _, key := range [][2]uuid.UUID{
			{rc.CharacterA, rc.CharacterB},
			{rc.CharacterB, rc.CharacterA},
		} {
			u := edge(key[0], key[1])
			u.netDelta += rc.TrustDelta
			if rc.ChangeType != "" {
				u.relationship = rc.ChangeType
			}
			for k, v := range rc.Details {
				u.details[k] = lore.KnownDetail{Value: v, Kind: kind, EpisodeID: episode.ID}
			}
		}
	}

	var firstErr error
	for key, u := range updates {
		if err := e.applyPairUpdate(ctx, key[0], key[1], u, episode.ID, lastInteraction, lastLocation); err != nil {
			e.logger.Warn("recognition edge update failed",
				zap.String("observer_id", key[0].String()),
				zap.String("subject_id", key[1].String()),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (e *Engine) applyPairUpdate(ctx context.Context, observerID, subjectID uuid.UUID, u *pairUpdate, episodeID uuid.UUID, lastInteraction time.Time, lastLocation *uuid.UUID) error {
	r, err := e.store.Recognition(ctx, observerID, subjectID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r = &lore.CharacterRecognition{
			ObserverID: observerID,
			SubjectID:  subjectID,
			FirstMetAt: lastInteraction,
			Trust:      0.5,
			Details:    make(map[string]lore.KnownDetail),
		}
	case err != nil:
		return fmt.Errorf("loading recognition: %w", err)
	}
	if r.Details == nil {
		r.Details = make(map[string]lore.KnownDetail)
	}

	net := clampFloat(u.netDelta, -maxTrustShift, maxTrustShift)
	r.Trust = clampFloat(r.Trust+net, 0, 1)

	if u.relationship != "" {
		r.Relationship = u.relationship
	}
	if lastInteraction.After(r.LastInteractionAt) {
		r.LastInteractionAt = lastInteraction
	}
	if lastLocation != nil {
		r.LastKnownLocationID = lastLocation
	}

	// A fact is never downgraded back to a rumor.
	for k, d := range u.details {
		if existing, ok := r.Details[k]; ok &&
			existing.Kind == lore.DetailFact && d.Kind == lore.DetailRumor {
			continue
		}
		r.Details[k] = d
	}

	if !containsID(r.SharedEpisodeIDs, episodeID) {
		r.SharedEpisodeIDs = append(r.SharedEpisodeIDs, episodeID)
	}

	return e.store.UpsertRecognition(ctx, r)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
