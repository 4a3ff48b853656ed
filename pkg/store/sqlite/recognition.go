package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

const recognitionColumns = `observer_id, subject_id, first_met_at, last_interaction_at,
	known_name, aliases, details, relationship, trust,
	last_known_location_id, shared_episode_ids`

func (d *Driver) Recognition(ctx context.Context, observerID, subjectID uuid.UUID) (*lore.CharacterRecognition, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+recognitionColumns+` FROM character_recognition
		WHERE observer_id = ? AND subject_id = ?`,
		observerID.String(), subjectID.String())

	var (
		r                  lore.CharacterRecognition
		observer, subject  string
		firstMet, lastSeen int64
		aliases, details   string
		sharedIDs          string
		lastLocation       sql.NullString
	)

	err := row.Scan(&observer, &subject, &firstMet, &lastSeen, &r.KnownName,
		&aliases, &details, &r.Relationship, &r.Trust, &lastLocation, &sharedIDs)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning recognition: %w", err)
	}

	if r.ObserverID, err = uuid.Parse(observer); err != nil {
		return nil, fmt.Errorf("parsing observer id: %w", err)
	}
	if r.SubjectID, err = uuid.Parse(subject); err != nil {
		return nil, fmt.Errorf("parsing subject id: %w", err)
	}

	r.FirstMetAt = time.Unix(0, firstMet)
	r.LastInteractionAt = time.Unix(0, lastSeen)
	r.Aliases = fromJSON[[]string](aliases)
	r.Details = fromJSON[map[string]lore.KnownDetail](details)
	r.LastKnownLocationID = scanUUIDPtr(lastLocation)
	r.SharedEpisodeIDs = fromJSON[[]uuid.UUID](sharedIDs)
	return &r, nil
}

func (d *Driver) UpsertRecognition(ctx context.Context, r *lore.CharacterRecognition) error {
	if r == nil {
		return fmt.Errorf("cannot store nil recognition")
	}
	if r.ObserverID == r.SubjectID {
		return store.ErrSelfRecognition
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO character_recognition (`+recognitionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(observer_id, subject_id) DO UPDATE SET
			first_met_at = excluded.first_met_at,
			last_interaction_at = excluded.last_interaction_at,
			known_name = excluded.known_name,
			aliases = excluded.aliases,
			details = excluded.details,
			relationship = excluded.relationship,
			trust = excluded.trust,
			last_known_location_id = excluded.last_known_location_id,
			shared_episode_ids = excluded.shared_episode_ids`,
		r.ObserverID.String(), r.SubjectID.String(),
		r.FirstMetAt.UnixNano(), r.LastInteractionAt.UnixNano(),
		r.KnownName, mustJSON(r.Aliases), mustJSON(r.Details),
		r.Relationship, r.Trust, nullUUID(r.LastKnownLocationID),
		mustJSON(r.SharedEpisodeIDs),
	)
	if err != nil {
		return fmt.Errorf("storing recognition: %w", err)
	}
	return nil
}
