package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pubgate/gateway/common/db"
	"github.com/pubgate/gateway/common/models"
)

// PublishRepository handles database operations for publishes
type PublishRepository struct {
	db *db.DB
}

// NewPublishRepository creates a new publish repository
func NewPublishRepository(database *db.DB) *PublishRepository {
	return &PublishRepository{db: database}
}

// Create inserts a new publish
func (r *PublishRepository) Create(ctx context.Context, publish *models.Publish) error {
	query := `
		INSERT INTO publishes (id, env, state, updated)
		VALUES ($1, $2, $3, now())
	`

	_, err := r.db.Exec(ctx, query, publish.ID, publish.Env, publish.State)
	if err != nil {
		return fmt.Errorf("failed to create publish: %w", err)
	}

	return nil
}

// GetByID retrieves a publish with its items
func (r *PublishRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Publish, error) {
	query := `
		SELECT id, env, state, updated
		FROM publishes
		WHERE id = $1
	`

	publish := &models.Publish{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&publish.ID,
		&publish.Env,
		&publish.State,
		&publish.Updated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get publish: %w", err)
	}

	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, err
	}
	publish.Items = items

	return publish, nil
}

// UpdateState advances a publish from one state to another. Returns
// ErrNotFound when the publish is not currently in the expected source
// state, so racing commits cannot double-apply.
func (r *PublishRepository) UpdateState(ctx context.Context, id uuid.UUID, from, to models.PublishState) error {
	query := `
		UPDATE publishes
		SET state = $3, updated = now()
		WHERE id = $1 AND state = $2
	`

	tag, err := r.db.Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to update publish state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AddItems appends items to a publish in one batched round trip
func (r *PublishRepository) AddItems(ctx context.Context, publishID uuid.UUID, items []models.Item) error {
	query := `
		INSERT INTO items (publish_id, web_uri, object_key, content_type, link_to)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (publish_id, web_uri)
		DO UPDATE SET object_key = $3, content_type = $4, link_to = $5
	`

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(query, publishID, item.WebURI, item.ObjectKey, item.ContentType, item.LinkTo)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to add items: %w", err)
		}
	}

	return nil
}

func (r *PublishRepository) listItems(ctx context.Context, publishID uuid.UUID) ([]models.Item, error) {
	query := `
		SELECT publish_id, web_uri, object_key, content_type, link_to
		FROM items
		WHERE publish_id = $1
		ORDER BY web_uri
	`

	rows, err := r.db.Query(ctx, query, publishID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var item models.Item
		err := rows.Scan(
			&item.PublishID,
			&item.WebURI,
			&item.ObjectKey,
			&item.ContentType,
			&item.LinkTo,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}
