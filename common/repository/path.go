package repository

import (
	"context"
	"fmt"

	"github.com/pubgate/gateway/common/db"
)

// PublishedPathRepository maintains the read-side index of currently
// live URIs per environment.
type PublishedPathRepository struct {
	db *db.DB
}

// NewPublishedPathRepository creates a new published path repository
func NewPublishedPathRepository(database *db.DB) *PublishedPathRepository {
	return &PublishedPathRepository{db: database}
}

// Upsert records a URI as live in an environment
func (r *PublishedPathRepository) Upsert(ctx context.Context, env, webURI string) error {
	query := `
		INSERT INTO published_paths (env, web_uri, updated)
		VALUES ($1, $2, now())
		ON CONFLICT (env, web_uri)
		DO UPDATE SET updated = now()
	`

	_, err := r.db.Exec(ctx, query, env, webURI)
	if err != nil {
		return fmt.Errorf("failed to upsert published path: %w", err)
	}

	return nil
}

// Delete removes a URI from the live index, for items published with
// the "absent" object key.
func (r *PublishedPathRepository) Delete(ctx context.Context, env, webURI string) error {
	query := `
		DELETE FROM published_paths
		WHERE env = $1 AND web_uri = $2
	`

	_, err := r.db.Exec(ctx, query, env, webURI)
	if err != nil {
		return fmt.Errorf("failed to delete published path: %w", err)
	}

	return nil
}

// ListPrefix returns the live URIs at or under a subtree, ordered
func (r *PublishedPathRepository) ListPrefix(ctx context.Context, env, prefix string) ([]string, error) {
	query := `
		SELECT web_uri
		FROM published_paths
		WHERE env = $1 AND (web_uri = $2 OR web_uri LIKE $2 || '/%')
		ORDER BY web_uri
	`

	rows, err := r.db.Query(ctx, query, env, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list published paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan published path: %w", err)
		}
		paths = append(paths, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating published paths: %w", err)
	}

	return paths, nil
}
