package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// FaceRepository provides PostgreSQL-backed face storage with pgvector
// embeddings.
type FaceRepository struct {
	pool *Pool
	dim  int
}

// NewFaceRepository creates a new face repository. dim is the expected face
// embedding dimensionality, validated on write.
func NewFaceRepository(pool *Pool, dim int) *FaceRepository {
	return &FaceRepository{pool: pool, dim: dim}
}

const faceColumns = `id, media_id, scope, bbox, det_score, embedding, person_id, manual, created_at`

func scanFace(row interface{ Scan(...any) error }) (*database.Face, error) {
	var f database.Face
	var bbox pq.Float64Array
	var embedding pgvector.Vector
	var personID sql.NullString

	err := row.Scan(&f.ID, &f.MediaID, &f.Scope, &bbox, &f.DetScore, &embedding, &personID, &f.Manual, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	f.BBox = []float64(bbox)
	f.Embedding = embedding.Slice()
	if personID.Valid {
		f.PersonID = personID.String
	}
	return &f, nil
}

// ReplaceForMedia stores the detection results for a media item, replacing
// any previous run so the faces stage stays idempotent.
func (r *FaceRepository) ReplaceForMedia(ctx context.Context, mediaID string, faces []*database.Face) error {
	for _, f := range faces {
		if len(f.Embedding) != r.dim {
			return fmt.Errorf("%w: face embedding dim %d, want %d", database.ErrInvalidArgument, len(f.Embedding), r.dim)
		}
	}

	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM faces WHERE media_id = $1`, mediaID); err != nil {
		return fmt.Errorf("delete previous faces: %w", err)
	}

	for _, f := range faces {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.MediaID = mediaID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO faces (id, media_id, scope, bbox, det_score, embedding, person_id, manual)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, f.ID, f.MediaID, f.Scope, pq.Array(f.BBox), f.DetScore,
			pgvector.NewVector(f.Embedding), nullableString(f.PersonID), f.Manual)
		if err != nil {
			return fmt.Errorf("insert face: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit faces: %w", err)
	}
	return nil
}

// Get returns a face by id, ErrNotFound if absent.
func (r *FaceRepository) Get(ctx context.Context, id string) (*database.Face, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+faceColumns+` FROM faces WHERE id = $1`, id)
	f, err := scanFace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query face: %w", err)
	}
	return f, nil
}

func (r *FaceRepository) queryFaces(ctx context.Context, query string, args ...any) ([]*database.Face, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	var out []*database.Face
	for rows.Next() {
		f, err := scanFace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan face row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate face rows: %w", err)
	}
	return out, nil
}

// ListByMedia returns all faces detected on a media item.
func (r *FaceRepository) ListByMedia(ctx context.Context, mediaID string) ([]*database.Face, error) {
	return r.queryFaces(ctx, `SELECT `+faceColumns+` FROM faces WHERE media_id = $1 ORDER BY created_at, id`, mediaID)
}

// ListByPerson returns all faces assigned to a person.
func (r *FaceRepository) ListByPerson(ctx context.Context, personID string) ([]*database.Face, error) {
	return r.queryFaces(ctx, `SELECT `+faceColumns+` FROM faces WHERE person_id = $1 ORDER BY created_at, id`, personID)
}

// ListUnassigned returns faces of a scope with no person and no manual
// override.
func (r *FaceRepository) ListUnassigned(ctx context.Context, scope string) ([]*database.Face, error) {
	return r.queryFaces(ctx, `
		SELECT `+faceColumns+` FROM faces
		WHERE scope = $1 AND person_id IS NULL AND manual = FALSE
		ORDER BY created_at, id
	`, scope)
}

// AssignPerson links a face to a person.
func (r *FaceRepository) AssignPerson(ctx context.Context, faceID, personID string, manual bool) error {
	res, err := r.pool.Exec(ctx, `UPDATE faces SET person_id = $2, manual = $3 WHERE id = $1`,
		faceID, personID, manual)
	if err != nil {
		return fmt.Errorf("assign face: %w", err)
	}
	return requireRow(res)
}

// Unassign clears the person link.
func (r *FaceRepository) Unassign(ctx context.Context, faceID string, manual bool) error {
	res, err := r.pool.Exec(ctx, `UPDATE faces SET person_id = NULL, manual = $2 WHERE id = $1`,
		faceID, manual)
	if err != nil {
		return fmt.Errorf("unassign face: %w", err)
	}
	return requireRow(res)
}

// ClearPerson detaches all faces of a person without deleting them.
func (r *FaceRepository) ClearPerson(ctx context.Context, personID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE faces SET person_id = NULL WHERE person_id = $1`, personID)
	if err != nil {
		return fmt.Errorf("clear person faces: %w", err)
	}
	return nil
}

// DeleteByMedia removes all faces of a media item.
func (r *FaceRepository) DeleteByMedia(ctx context.Context, mediaID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM faces WHERE media_id = $1`, mediaID)
	if err != nil {
		return fmt.Errorf("delete faces: %w", err)
	}
	return nil
}
