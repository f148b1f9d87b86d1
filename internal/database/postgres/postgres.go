// Package postgres implements the database repositories on PostgreSQL with
// pgvector columns for embeddings and person centroids.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// Pool manages a PostgreSQL connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new PostgreSQL connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: db}, nil
}

// DB returns the underlying sql.DB for direct access.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// QueryRow proxies to the pool's connection.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query proxies to the pool's connection.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return p.db.QueryContext(ctx, query, args...)
}

// Exec proxies to the pool's connection.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.db.ExecContext(ctx, query, args...)
}

// NewStore wires every repository on top of the pool. Embedding and face
// dimensions are validated on write against the configured values.
func NewStore(pool *Pool, emb config.EmbeddingConfig) *database.Store {
	return &database.Store{
		Media:      NewMediaRepository(pool),
		Jobs:       NewJobRepository(pool),
		Faces:      NewFaceRepository(pool, emb.FaceDim),
		Persons:    NewPersonRepository(pool),
		Embeddings: NewEmbeddingRepository(pool, emb.SemanticDim),
		Tags:       NewTagRepository(pool),
		Albums:     NewAlbumRepository(pool),
	}
}
