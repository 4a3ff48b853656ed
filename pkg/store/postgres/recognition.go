package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

const recognitionColumns = `observer_id, subject_id, first_met_at, last_interaction_at,
	known_name, aliases, details, relationship, trust,
	last_known_location_id, shared_episode_ids`

func (d *Driver) Recognition(ctx context.Context, observerID, subjectID uuid.UUID) (*lore.CharacterRecognition, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT `+recognitionColumns+` FROM character_recognition
		WHERE observer_id = $1 AND subject_id = $2`,
		observerID, subjectID)

	var r lore.CharacterRecognition
	err := row.Scan(&r.ObserverID, &r.SubjectID, &r.FirstMetAt,
		&r.LastInteractionAt, &r.KnownName, &r.Aliases, &r.Details,
		&r.Relationship, &r.Trust, &r.LastKnownLocationID, &r.SharedEpisodeIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning recognition: %w", err)
	}
	return &r, nil
}

func (d *Driver) UpsertRecognition(ctx context.Context, r *lore.CharacterRecognition) error {
	if r == nil {
		return fmt.Errorf("cannot store nil recognition")
	}
	if r.ObserverID == r.SubjectID {
		return store.ErrSelfRecognition
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO character_recognition (`+recognitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (observer_id, subject_id) DO UPDATE SET
			first_met_at = EXCLUDED.first_met_at,
			last_interaction_at = EXCLUDED.last_interaction_at,
			known_name = EXCLUDED.known_name,
			aliases = EXCLUDED.aliases,
			details = EXCLUDED.details,
			relationship = EXCLUDED.relationship,
			trust = EXCLUDED.trust,
			last_known_location_id = EXCLUDED.last_known_location_id,
			shared_episode_ids = EXCLUDED.shared_episode_ids`,
		r.ObserverID, r.SubjectID, r.FirstMetAt, r.LastInteractionAt,
		r.KnownName, r.Aliases, r.Details, r.Relationship, r.Trust,
		r.LastKnownLocationID, r.SharedEpisodeIDs,
	)
	if err != nil {
		return fmt.Errorf("storing recognition: %w", err)
	}
	return nil
}
