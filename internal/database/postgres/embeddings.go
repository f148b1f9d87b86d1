package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// EmbeddingRepository provides PostgreSQL-backed semantic embedding storage
// with pgvector cosine search.
type EmbeddingRepository struct {
	pool *Pool
	dim  int
}

// NewEmbeddingRepository creates a new embedding repository. dim is the
// expected embedding dimensionality, validated on write.
func NewEmbeddingRepository(pool *Pool, dim int) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool, dim: dim}
}

// Upsert writes the semantic embedding of a media item, replacing any
// previous one so the embedding stage stays idempotent.
func (r *EmbeddingRepository) Upsert(ctx context.Context, emb *database.StoredEmbedding) error {
	if len(emb.Embedding) != r.dim {
		return fmt.Errorf("%w: embedding dim %d, want %d", database.ErrInvalidArgument, len(emb.Embedding), r.dim)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO embeddings (media_id, scope, embedding, model, dim)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (media_id) DO UPDATE SET
			embedding = EXCLUDED.embedding, model = EXCLUDED.model,
			dim = EXCLUDED.dim, created_at = NOW()
	`, emb.MediaID, emb.Scope, pgvector.NewVector(emb.Embedding), emb.Model, len(emb.Embedding))
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// Get returns the embedding of a media item, ErrNotFound if absent.
func (r *EmbeddingRepository) Get(ctx context.Context, mediaID string) (*database.StoredEmbedding, error) {
	var e database.StoredEmbedding
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, `
		SELECT media_id, scope, embedding, model, dim, created_at FROM embeddings WHERE media_id = $1
	`, mediaID).Scan(&e.MediaID, &e.Scope, &vec, &e.Model, &e.Dim, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	e.Embedding = vec.Slice()
	return &e, nil
}

// Delete removes the embedding of a media item.
func (r *EmbeddingRepository) Delete(ctx context.Context, mediaID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM embeddings WHERE media_id = $1`, mediaID)
	if err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	return nil
}

// Count returns the number of embeddings stored for a scope.
func (r *EmbeddingRepository) Count(ctx context.Context, scope string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM embeddings WHERE scope = $1`, scope).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return n, nil
}

// ListAll returns every embedding of a scope.
func (r *EmbeddingRepository) ListAll(ctx context.Context, scope string) ([]database.StoredEmbedding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT media_id, scope, embedding, model, dim, created_at FROM embeddings WHERE scope = $1
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var out []database.StoredEmbedding
	for rows.Next() {
		var e database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.MediaID, &e.Scope, &vec, &e.Model, &e.Dim, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		e.Embedding = vec.Slice()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding rows: %w", err)
	}
	return out, nil
}

// FindSimilar returns up to limit media ranked by cosine similarity to the
// query vector. A non-nil allowed set restricts candidates before ranking.
// Soft-deleted media never appear.
func (r *EmbeddingRepository) FindSimilar(ctx context.Context, scope string, query []float32, limit int, allowed []string) ([]database.SimilarResult, error) {
	if len(query) != r.dim {
		return nil, fmt.Errorf("%w: query dim %d, want %d", database.ErrInvalidArgument, len(query), r.dim)
	}
	if limit <= 0 {
		return nil, nil
	}

	sqlQuery := `
		SELECT e.media_id, 1 - (e.embedding <=> $2) AS similarity
		FROM embeddings e
		JOIN media m ON m.id = e.media_id
		WHERE e.scope = $1 AND m.deleted_at IS NULL`
	args := []any{scope, pgvector.NewVector(query)}

	if allowed != nil {
		args = append(args, pq.Array(allowed))
		sqlQuery += fmt.Sprintf(" AND e.media_id = ANY($%d)", len(args))
	}
	args = append(args, limit)
	sqlQuery += fmt.Sprintf(" ORDER BY e.embedding <=> $2 LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query similar embeddings: %w", err)
	}
	defer rows.Close()

	var out []database.SimilarResult
	for rows.Next() {
		var res database.SimilarResult
		if err := rows.Scan(&res.MediaID, &res.Similarity); err != nil {
			return nil, fmt.Errorf("scan similarity row: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similarity rows: %w", err)
	}
	return out, nil
}
