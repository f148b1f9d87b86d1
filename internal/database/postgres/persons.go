package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// PersonRepository provides PostgreSQL-backed person (face cluster) storage.
type PersonRepository struct {
	pool *Pool
}

// NewPersonRepository creates a new person repository.
func NewPersonRepository(pool *Pool) *PersonRepository {
	return &PersonRepository{pool: pool}
}

const personColumns = `id, scope, name, centroid, face_count, created_at, updated_at`

func scanPerson(row interface{ Scan(...any) error }) (*database.Person, error) {
	var p database.Person
	var centroid *pgvector.Vector

	err := row.Scan(&p.ID, &p.Scope, &p.Name, &centroid, &p.FaceCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if centroid != nil {
		p.Centroid = centroid.Slice()
	}
	return &p, nil
}

// Create inserts a new person.
func (r *PersonRepository) Create(ctx context.Context, p *database.Person) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var centroid any
	if len(p.Centroid) > 0 {
		centroid = pgvector.NewVector(p.Centroid)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO persons (id, scope, name, centroid, face_count)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Scope, p.Name, centroid, p.FaceCount)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

// Get returns a person by id, ErrNotFound if absent.
func (r *PersonRepository) Get(ctx context.Context, id string) (*database.Person, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, id)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query person: %w", err)
	}
	return p, nil
}

// ListByScope returns all persons of a scope, largest cluster first.
func (r *PersonRepository) ListByScope(ctx context.Context, scope string) ([]*database.Person, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+personColumns+` FROM persons WHERE scope = $1 ORDER BY face_count DESC, created_at, id
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var out []*database.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate person rows: %w", err)
	}
	return out, nil
}

// GetByName looks up a person by case-folded name.
func (r *PersonRepository) GetByName(ctx context.Context, scope, normalizedName string) (*database.Person, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+personColumns+` FROM persons WHERE scope = $1 AND lower(name) = lower($2) LIMIT 1
	`, scope, normalizedName)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query person by name: %w", err)
	}
	return p, nil
}

// UpdateCentroid writes the running-mean centroid and member count together.
func (r *PersonRepository) UpdateCentroid(ctx context.Context, id string, centroid []float32, faceCount int) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE persons SET centroid = $2, face_count = $3, updated_at = NOW() WHERE id = $1
	`, id, pgvector.NewVector(centroid), faceCount)
	if err != nil {
		return fmt.Errorf("update person centroid: %w", err)
	}
	return requireRow(res)
}

// Rename sets the person's display name.
func (r *PersonRepository) Rename(ctx context.Context, id, name string) error {
	res, err := r.pool.Exec(ctx, `UPDATE persons SET name = $2, updated_at = NOW() WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("rename person: %w", err)
	}
	return requireRow(res)
}

// Delete removes a person. Member faces are detached first so they survive.
func (r *PersonRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE faces SET person_id = NULL WHERE person_id = $1`, id); err != nil {
		return fmt.Errorf("detach person faces: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit person delete: %w", err)
	}
	return nil
}
