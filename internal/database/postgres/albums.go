package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// AlbumRepository provides PostgreSQL-backed smart album storage.
type AlbumRepository struct {
	pool *Pool
}

// NewAlbumRepository creates a new album repository.
func NewAlbumRepository(pool *Pool) *AlbumRepository {
	return &AlbumRepository{pool: pool}
}

// SaveSmartAlbum persists a saved query. Saving again under the same name
// replaces the query text.
func (r *AlbumRepository) SaveSmartAlbum(ctx context.Context, a *database.SmartAlbum) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO smart_albums (id, scope, name, query)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope, lower(name)) DO UPDATE SET query = EXCLUDED.query
	`, a.ID, a.Scope, a.Name, a.Query)
	if err != nil {
		return fmt.Errorf("save smart album: %w", err)
	}
	return nil
}

// GetSmartAlbum looks up a saved query by case-folded name.
func (r *AlbumRepository) GetSmartAlbum(ctx context.Context, scope, name string) (*database.SmartAlbum, error) {
	var a database.SmartAlbum
	err := r.pool.QueryRow(ctx, `
		SELECT id, scope, name, query, created_at
		FROM smart_albums WHERE scope = $1 AND lower(name) = lower($2)
	`, scope, name).Scan(&a.ID, &a.Scope, &a.Name, &a.Query, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query smart album: %w", err)
	}
	return &a, nil
}

// DeleteSmartAlbum removes a saved query by name.
func (r *AlbumRepository) DeleteSmartAlbum(ctx context.Context, scope, name string) error {
	res, err := r.pool.Exec(ctx, `
		DELETE FROM smart_albums WHERE scope = $1 AND lower(name) = lower($2)
	`, scope, name)
	if err != nil {
		return fmt.Errorf("delete smart album: %w", err)
	}
	return requireRow(res)
}

// ListSmartAlbums returns all saved queries of a scope.
func (r *AlbumRepository) ListSmartAlbums(ctx context.Context, scope string) ([]*database.SmartAlbum, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, scope, name, query, created_at
		FROM smart_albums WHERE scope = $1 ORDER BY name
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("query smart albums: %w", err)
	}
	defer rows.Close()

	var out []*database.SmartAlbum
	for rows.Next() {
		var a database.SmartAlbum
		if err := rows.Scan(&a.ID, &a.Scope, &a.Name, &a.Query, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan smart album row: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate smart album rows: %w", err)
	}
	return out, nil
}
