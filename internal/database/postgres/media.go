package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// MediaRepository provides PostgreSQL-backed media item storage.
type MediaRepository struct {
	pool *Pool
}

// NewMediaRepository creates a new media repository.
func NewMediaRepository(pool *Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

const mediaColumns = `id, scope, path, filename, size, mod_time, mime_type, kind,
	width, height, taken_at, content_hash, phash_bits, dhash_bits,
	favorite, hidden, duplicate_of, deleted_at, stages, created_at, updated_at`

func scanMedia(row interface{ Scan(...any) error }) (*database.MediaItem, error) {
	var m database.MediaItem
	var phash, dhash int64
	var duplicateOf sql.NullString
	var takenAt, deletedAt sql.NullTime
	var stagesJSON []byte

	err := row.Scan(
		&m.ID, &m.Scope, &m.Path, &m.Filename, &m.Size, &m.ModTime, &m.MimeType, &m.Kind,
		&m.Width, &m.Height, &takenAt, &m.ContentHash, &phash, &dhash,
		&m.Favorite, &m.Hidden, &duplicateOf, &deletedAt, &stagesJSON, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.PHashBits = uint64(phash)
	m.DHashBits = uint64(dhash)
	if duplicateOf.Valid {
		m.DuplicateOf = duplicateOf.String
	}
	if takenAt.Valid {
		t := takenAt.Time
		m.TakenAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		m.DeletedAt = &t
	}

	m.Stages = database.NewStageSet()
	if len(stagesJSON) > 0 {
		var stored map[database.Stage]database.StageState
		if err := json.Unmarshal(stagesJSON, &stored); err != nil {
			return nil, fmt.Errorf("decode stages: %w", err)
		}
		for k, v := range stored {
			m.Stages[k] = v
		}
	}
	return &m, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create inserts a new media item.
func (r *MediaRepository) Create(ctx context.Context, item *database.MediaItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Stages == nil {
		item.Stages = database.NewStageSet()
	}
	stagesJSON, err := json.Marshal(item.Stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO media (id, scope, path, filename, size, mod_time, mime_type, kind,
			width, height, taken_at, content_hash, phash_bits, dhash_bits,
			favorite, hidden, duplicate_of, deleted_at, stages)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		item.ID, item.Scope, item.Path, item.Filename, item.Size, item.ModTime, item.MimeType, item.Kind,
		item.Width, item.Height, nullableTime(item.TakenAt), item.ContentHash,
		int64(item.PHashBits), int64(item.DHashBits),
		item.Favorite, item.Hidden, nullableString(item.DuplicateOf), nullableTime(item.DeletedAt), stagesJSON,
	)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

// Get returns a media item by id, ErrNotFound if absent.
func (r *MediaRepository) Get(ctx context.Context, id string) (*database.MediaItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = $1`, id)
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	return m, nil
}

// GetByPath returns the item at the given scope-relative path.
func (r *MediaRepository) GetByPath(ctx context.Context, scope, path string) (*database.MediaItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+mediaColumns+` FROM media WHERE scope = $1 AND path = $2`, scope, path)
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query media by path: %w", err)
	}
	return m, nil
}

// Update rewrites all mutable fields of an item.
func (r *MediaRepository) Update(ctx context.Context, item *database.MediaItem) error {
	stagesJSON, err := json.Marshal(item.Stages)
	if err != nil {
		return fmt.Errorf("encode stages: %w", err)
	}

	res, err := r.pool.Exec(ctx, `
		UPDATE media SET
			path = $2, filename = $3, size = $4, mod_time = $5, mime_type = $6, kind = $7,
			width = $8, height = $9, taken_at = $10, content_hash = $11,
			phash_bits = $12, dhash_bits = $13, favorite = $14, hidden = $15,
			duplicate_of = $16, deleted_at = $17, stages = $18, updated_at = NOW()
		WHERE id = $1
	`,
		item.ID, item.Path, item.Filename, item.Size, item.ModTime, item.MimeType, item.Kind,
		item.Width, item.Height, nullableTime(item.TakenAt), item.ContentHash,
		int64(item.PHashBits), int64(item.DHashBits), item.Favorite, item.Hidden,
		nullableString(item.DuplicateOf), nullableTime(item.DeletedAt), stagesJSON,
	)
	if err != nil {
		return fmt.Errorf("update media: %w", err)
	}
	return requireRow(res)
}

// SetStage updates the state of one stage in the stages document.
func (r *MediaRepository) SetStage(ctx context.Context, id string, stage database.Stage, state database.StageState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode stage state: %w", err)
	}

	res, err := r.pool.Exec(ctx, `
		UPDATE media
		SET stages = jsonb_set(stages, ARRAY[$2::text], $3::jsonb, true), updated_at = NOW()
		WHERE id = $1
	`, id, string(stage), stateJSON)
	if err != nil {
		return fmt.Errorf("set stage: %w", err)
	}
	return requireRow(res)
}

// ResetStages moves the given stages (all when nil) back to pending.
func (r *MediaRepository) ResetStages(ctx context.Context, id string, stages []database.Stage) error {
	if stages == nil {
		stages = database.Stages
	}
	reset := make(map[database.Stage]database.StageState, len(stages))
	for _, s := range stages {
		reset[s] = database.StageState{Status: database.StagePending}
	}
	patch, err := json.Marshal(reset)
	if err != nil {
		return fmt.Errorf("encode stage reset: %w", err)
	}

	res, err := r.pool.Exec(ctx, `
		UPDATE media SET stages = stages || $2::jsonb, updated_at = NOW() WHERE id = $1
	`, id, patch)
	if err != nil {
		return fmt.Errorf("reset stages: %w", err)
	}
	return requireRow(res)
}

func (r *MediaRepository) queryMedia(ctx context.Context, query string, args ...any) ([]*database.MediaItem, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query media list: %w", err)
	}
	defer rows.Close()

	var out []*database.MediaItem
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media rows: %w", err)
	}
	return out, nil
}

// ListByScope returns all non-deleted items of a scope.
func (r *MediaRepository) ListByScope(ctx context.Context, scope string) ([]*database.MediaItem, error) {
	return r.queryMedia(ctx, `
		SELECT `+mediaColumns+` FROM media
		WHERE scope = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
	`, scope)
}

// ListPendingStage returns non-deleted items whose stage is still pending.
func (r *MediaRepository) ListPendingStage(ctx context.Context, scope string, stage database.Stage) ([]*database.MediaItem, error) {
	return r.queryMedia(ctx, `
		SELECT `+mediaColumns+` FROM media
		WHERE scope = $1 AND deleted_at IS NULL
		  AND COALESCE(stages->$2->>'status', 'pending') = 'pending'
		ORDER BY created_at, id
	`, scope, string(stage))
}

// FindByContentHash returns non-deleted items sharing the hash, earliest first.
func (r *MediaRepository) FindByContentHash(ctx context.Context, scope, hash string) ([]*database.MediaItem, error) {
	return r.queryMedia(ctx, `
		SELECT `+mediaColumns+` FROM media
		WHERE scope = $1 AND content_hash = $2 AND deleted_at IS NULL
		ORDER BY created_at, id
	`, scope, hash)
}

// ListRecent returns non-deleted items created since the cutoff.
func (r *MediaRepository) ListRecent(ctx context.Context, scope string, since time.Time) ([]*database.MediaItem, error) {
	return r.queryMedia(ctx, `
		SELECT `+mediaColumns+` FROM media
		WHERE scope = $1 AND deleted_at IS NULL AND created_at >= $2
		ORDER BY created_at, id
	`, scope, since)
}

// SoftDelete marks an item as trashed; purging is an external concern.
func (r *MediaRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.pool.Exec(ctx, `UPDATE media SET deleted_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("soft delete media: %w", err)
	}
	return requireRow(res)
}

// SetDuplicateOf flags an item as an exact duplicate of the canonical item.
func (r *MediaRepository) SetDuplicateOf(ctx context.Context, id, canonicalID string) error {
	res, err := r.pool.Exec(ctx, `UPDATE media SET duplicate_of = $2, updated_at = NOW() WHERE id = $1`,
		id, nullableString(canonicalID))
	if err != nil {
		return fmt.Errorf("set duplicate_of: %w", err)
	}
	return requireRow(res)
}

// AddNearDuplicate records an advisory near-duplicate relationship.
func (r *MediaRepository) AddNearDuplicate(ctx context.Context, nd database.NearDuplicate) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO near_duplicates (media_id, other_id, distance)
		VALUES ($1, $2, $3)
		ON CONFLICT (media_id, other_id) DO UPDATE SET distance = EXCLUDED.distance
	`, nd.MediaID, nd.OtherID, nd.Distance)
	if err != nil {
		return fmt.Errorf("insert near duplicate: %w", err)
	}
	return nil
}

// ListNearDuplicates returns near-duplicate relationships touching the item.
func (r *MediaRepository) ListNearDuplicates(ctx context.Context, mediaID string) ([]database.NearDuplicate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT media_id, other_id, distance, created_at
		FROM near_duplicates
		WHERE media_id = $1 OR other_id = $1
		ORDER BY created_at
	`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("query near duplicates: %w", err)
	}
	defer rows.Close()

	var out []database.NearDuplicate
	for rows.Next() {
		var nd database.NearDuplicate
		if err := rows.Scan(&nd.MediaID, &nd.OtherID, &nd.Distance, &nd.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan near duplicate: %w", err)
		}
		out = append(out, nd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate near duplicates: %w", err)
	}
	return out, nil
}

// Search applies the structured filter with stable offset pagination
// (taken_at DESC, id tie-breaker).
func (r *MediaRepository) Search(ctx context.Context, scope string, filter database.SearchFilter, limit, offset int) ([]*database.MediaItem, int, error) {
	where := []string{"m.scope = $1", "m.deleted_at IS NULL"}
	args := []any{scope}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Kind != "" {
		where = append(where, "m.kind = "+arg(string(filter.Kind)))
	}
	if filter.From != nil {
		where = append(where, "m.taken_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "m.taken_at < "+arg(*filter.To))
	}
	if filter.Favorite != nil {
		where = append(where, "m.favorite = "+arg(*filter.Favorite))
	}
	if filter.PersonID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM faces f WHERE f.media_id = m.id AND f.person_id = "+arg(filter.PersonID)+")")
	}
	if filter.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM tags t WHERE t.media_id = m.id AND lower(t.label) = lower("+arg(filter.Tag)+"))")
	}
	if len(filter.IDs) > 0 {
		where = append(where, "m.id = ANY("+arg(pq.Array(filter.IDs))+")")
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM media m WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	query := "SELECT " + strings.ReplaceAll(mediaColumns, "id,", "m.id,") + " FROM media m WHERE " + cond +
		" ORDER BY m.taken_at DESC NULLS LAST, m.id" +
		" LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	items, err := r.queryMedia(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Count returns non-deleted photo and video counts for a scope.
func (r *MediaRepository) Count(ctx context.Context, scope string) (int, int, error) {
	var photos, videos int
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE kind = 'photo'),
			COUNT(*) FILTER (WHERE kind = 'video')
		FROM media WHERE scope = $1 AND deleted_at IS NULL
	`, scope).Scan(&photos, &videos)
	if err != nil {
		return 0, 0, fmt.Errorf("count media: %w", err)
	}
	return photos, videos, nil
}

// requireRow converts a zero-row update into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}
