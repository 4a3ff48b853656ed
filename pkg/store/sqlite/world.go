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

const worldColumns = `id, created_at, category, title, description, narrative,
	related_entities, source_episode_ids, consequences, tags, impact,
	public, discovery_requirement`

func (d *Driver) PutWorld(ctx context.Context, w *lore.WorldMemory) error {
	if w == nil {
		return fmt.Errorf("cannot store nil world memory")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var discovery any
	if len(w.DiscoveryRequirement) > 0 {
		discovery = string(w.DiscoveryRequirement)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO world_memories (`+worldColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			title = excluded.title,
			description = excluded.description,
			narrative = excluded.narrative,
			related_entities = excluded.related_entities,
			source_episode_ids = excluded.source_episode_ids,
			consequences = excluded.consequences,
			tags = excluded.tags,
			impact = excluded.impact,
			public = excluded.public,
			discovery_requirement = excluded.discovery_requirement`,
		w.ID.String(), w.CreatedAt.UnixNano(), string(w.Category),
		w.Title, w.Description, w.Narrative,
		mustJSON(w.RelatedEntities), mustJSON(w.SourceEpisodeIDs),
		mustJSON(w.Consequences), mustJSON(w.Tags),
		string(w.Impact), w.Public, discovery,
	)
	if err != nil {
		return fmt.Errorf("storing world memory: %w", err)
	}

	if err := d.upsertEmbedding(ctx, tx, lore.TierWorld, w.ID, w.Embedding); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *Driver) WorldByID(ctx context.Context, id uuid.UUID) (*lore.WorldMemory, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+worldColumns+` FROM world_memories WHERE id = ?`, id.String())

	w, err := scanWorld(row)
	if err != nil {
		return nil, err
	}

	w.Embedding, err = d.loadEmbedding(ctx, lore.TierWorld, w.ID)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (d *Driver) WorldBySourceEpisode(ctx context.Context, episodeID uuid.UUID) (*lore.WorldMemory, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+worldColumns+` FROM world_memories w
		WHERE EXISTS (
			SELECT 1 FROM json_each(w.source_episode_ids) WHERE json_each.value = ?
		)
		LIMIT 1`, episodeID.String())

	w, err := scanWorld(row)
	if err != nil {
		return nil, err
	}

	w.Embedding, err = d.loadEmbedding(ctx, lore.TierWorld, w.ID)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func scanWorld(row rowScanner) (*lore.WorldMemory, error) {
	var (
		w                  lore.WorldMemory
		id, category       string
		createdAt          int64
		relatedEntities    string
		sourceIDs          string
		consequences, tags string
		impact             string
		discovery          sql.NullString
	)

	err := row.Scan(&id, &createdAt, &category, &w.Title, &w.Description,
		&w.Narrative, &relatedEntities, &sourceIDs, &consequences, &tags,
		&impact, &w.Public, &discovery)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning world memory: %w", err)
	}

	if w.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing world memory id: %w", err)
	}

	w.CreatedAt = time.Unix(0, createdAt)
	w.Category = lore.Category(category)
	w.Impact = lore.ImpactLevel(impact)
	w.RelatedEntities = fromJSON[map[string][]string](relatedEntities)
	w.SourceEpisodeIDs = fromJSON[[]uuid.UUID](sourceIDs)
	w.Consequences = fromJSON[[]string](consequences)
	w.Tags = fromJSON[[]string](tags)
	if discovery.Valid && discovery.String != "" {
		w.DiscoveryRequirement = []byte(discovery.String)
	}
	return &w, nil
}
