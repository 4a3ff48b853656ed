package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/emberworks/chronicle/pkg/lore"
	"github.com/emberworks/chronicle/pkg/store"
)

const worldColumns = `id, created_at, category, title, description, narrative,
	related_entities, source_episode_ids, consequences, embedding, tags,
	impact, public, discovery_requirement`

func (d *Driver) PutWorld(ctx context.Context, w *lore.WorldMemory) error {
	if w == nil {
		return fmt.Errorf("cannot store nil world memory")
	}

	vec, err := d.vecOrNil(w.Embedding)
	if err != nil {
		return err
	}

	var discovery any
	if len(w.DiscoveryRequirement) > 0 {
		discovery = w.DiscoveryRequirement
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO world_memories (`+worldColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			narrative = EXCLUDED.narrative,
			related_entities = EXCLUDED.related_entities,
			source_episode_ids = EXCLUDED.source_episode_ids,
			consequences = EXCLUDED.consequences,
			embedding = EXCLUDED.embedding,
			tags = EXCLUDED.tags,
			impact = EXCLUDED.impact,
			public = EXCLUDED.public,
			discovery_requirement = EXCLUDED.discovery_requirement`,
		w.ID, w.CreatedAt, string(w.Category), w.Title, w.Description,
		w.Narrative, w.RelatedEntities, w.SourceEpisodeIDs, w.Consequences,
		vec, w.Tags, string(w.Impact), w.Public, discovery,
	)
	if err != nil {
		return fmt.Errorf("storing world memory: %w", err)
	}
	return nil
}

func (d *Driver) WorldByID(ctx context.Context, id uuid.UUID) (*lore.WorldMemory, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+worldColumns+` FROM world_memories WHERE id = $1`, id)
	return scanWorld(row)
}

func (d *Driver) WorldBySourceEpisode(ctx context.Context, episodeID uuid.UUID) (*lore.WorldMemory, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT `+worldColumns+` FROM world_memories
		WHERE $1 = ANY(source_episode_ids)
		LIMIT 1`, episodeID)
	return scanWorld(row)
}

func scanWorld(row pgx.Row) (*lore.WorldMemory, error) {
	var (
		w         lore.WorldMemory
		category  string
		impact    string
		vec       *pgvector.Vector
		discovery []byte
	)

	err := row.Scan(&w.ID, &w.CreatedAt, &category, &w.Title, &w.Description,
		&w.Narrative, &w.RelatedEntities, &w.SourceEpisodeIDs, &w.Consequences,
		&vec, &w.Tags, &impact, &w.Public, &discovery)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning world memory: %w", err)
	}

	w.Category = lore.Category(category)
	w.Impact = lore.ImpactLevel(impact)
	if vec != nil {
		w.Embedding = vec.Slice()
	}
	if len(discovery) > 0 {
		w.DiscoveryRequirement = json.RawMessage(discovery)
	}
	return &w, nil
}
