package postgres

import (
	"context"
	"fmt"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// TagRepository provides PostgreSQL-backed tag storage.
type TagRepository struct {
	pool *Pool
}

// NewTagRepository creates a new tag repository.
func NewTagRepository(pool *Pool) *TagRepository {
	return &TagRepository{pool: pool}
}

// ReplaceForMedia replaces all tags of the given source for a media item.
// Tags from other sources are untouched.
func (r *TagRepository) ReplaceForMedia(ctx context.Context, mediaID, source string, tags []database.Tag) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE media_id = $1 AND source = $2`, mediaID, source); err != nil {
		return fmt.Errorf("delete previous tags: %w", err)
	}

	for _, t := range tags {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tags (media_id, label, confidence, source)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (media_id, label, source) DO UPDATE SET confidence = EXCLUDED.confidence
		`, mediaID, t.Label, t.Confidence, source)
		if err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tags: %w", err)
	}
	return nil
}

// ListByMedia returns all tags of a media item.
func (r *TagRepository) ListByMedia(ctx context.Context, mediaID string) ([]database.Tag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT media_id, label, confidence, source, created_at
		FROM tags WHERE media_id = $1
		ORDER BY confidence DESC, label
	`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var out []database.Tag
	for rows.Next() {
		var t database.Tag
		if err := rows.Scan(&t.MediaID, &t.Label, &t.Confidence, &t.Source, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tag row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag rows: %w", err)
	}
	return out, nil
}

// FindMediaByLabel returns ids of non-deleted media carrying the label,
// case-insensitive.
func (r *TagRepository) FindMediaByLabel(ctx context.Context, scope, label string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT t.media_id
		FROM tags t
		JOIN media m ON m.id = t.media_id
		WHERE m.scope = $1 AND m.deleted_at IS NULL AND lower(t.label) = lower($2)
	`, scope, label)
	if err != nil {
		return nil, fmt.Errorf("query media by label: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan media id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media ids: %w", err)
	}
	return out, nil
}

// DeleteByMedia removes all tags of a media item.
func (r *TagRepository) DeleteByMedia(ctx context.Context, mediaID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tags WHERE media_id = $1`, mediaID)
	if err != nil {
		return fmt.Errorf("delete tags: %w", err)
	}
	return nil
}
