package database

import (
	"context"
	"time"
)

// SearchFilter describes structured search criteria. All set fields combine
// as logical AND.
type SearchFilter struct {
	Kind     MediaKind  // photo or video, empty for both
	From     *time.Time // taken-at lower bound, inclusive
	To       *time.Time // taken-at upper bound, exclusive
	Favorite *bool
	Tag      string // label text, exact match after normalization
	PersonID string
	IDs      []string // restrict to this id set (used as a semantic pre-filter)
}

// Empty reports whether no filter criteria are set.
func (f SearchFilter) Empty() bool {
	return f.Kind == "" && f.From == nil && f.To == nil &&
		f.Favorite == nil && f.Tag == "" && f.PersonID == "" && len(f.IDs) == 0
}

// MediaStore persists media items and their per-stage enrichment state.
type MediaStore interface {
	Create(ctx context.Context, item *MediaItem) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*MediaItem, error)
	// GetByPath returns ErrNotFound when no item exists at the path.
	GetByPath(ctx context.Context, scope, path string) (*MediaItem, error)
	Update(ctx context.Context, item *MediaItem) error

	// SetStage updates one stage's state; derived fields written by the stage
	// itself go through Update.
	SetStage(ctx context.Context, id string, stage Stage, state StageState) error
	// ResetStages moves the given stages (all when nil) back to pending.
	ResetStages(ctx context.Context, id string, stages []Stage) error

	// ListByScope returns all non-deleted items of a scope.
	ListByScope(ctx context.Context, scope string) ([]*MediaItem, error)
	// ListPendingStage returns non-deleted items whose stage is pending.
	ListPendingStage(ctx context.Context, scope string, stage Stage) ([]*MediaItem, error)
	// FindByContentHash returns non-deleted items sharing the hash, earliest
	// created first.
	FindByContentHash(ctx context.Context, scope, hash string) ([]*MediaItem, error)
	// ListRecent returns non-deleted items created since the cutoff, used by
	// the near-duplicate window comparison.
	ListRecent(ctx context.Context, scope string, since time.Time) ([]*MediaItem, error)

	SoftDelete(ctx context.Context, id string, at time.Time) error
	SetDuplicateOf(ctx context.Context, id, canonicalID string) error

	AddNearDuplicate(ctx context.Context, nd NearDuplicate) error
	ListNearDuplicates(ctx context.Context, mediaID string) ([]NearDuplicate, error)

	// Search applies the filter with offset pagination; the sort is
	// (taken_at DESC, id) so pages stay stable. Returns the page and the
	// total match count.
	Search(ctx context.Context, scope string, filter SearchFilter, limit, offset int) ([]*MediaItem, int, error)
	// Count returns non-deleted photo and video counts for a scope.
	Count(ctx context.Context, scope string) (photos, videos int, err error)
}

// JobStore is the durable record of background work. Claim is exclusive: two
// workers never run the same job concurrently.
type JobStore interface {
	// Enqueue persists a pending job. Returns ErrAlreadyRunning when a job of
	// the same type is already pending or running in the scope.
	Enqueue(ctx context.Context, job *Job) error
	// ClaimNext atomically moves one pending job of the given type to running.
	// Returns (nil, nil) when none is pending.
	ClaimNext(ctx context.Context, jobType JobType) (*Job, error)
	// Advance adds to the progress counters; deltas must be non-negative.
	Advance(ctx context.Context, id string, processedDelta, failedDelta int) error
	SetTotal(ctx context.Context, id string, total int) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, reason string) error
	// RequestCancel sets the cooperative cancel flag; the running worker
	// checks it at each item boundary.
	RequestCancel(ctx context.Context, id string) error
	IsCancelRequested(ctx context.Context, id string) (bool, error)
	// MarkCancelled finalizes a job whose worker observed the cancel flag.
	MarkCancelled(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Job, error)
	ListByScope(ctx context.Context, scope string) ([]*Job, error)
}

// FaceStore persists detected faces and their person assignments.
type FaceStore interface {
	// ReplaceForMedia stores the faces detected on a media item, replacing
	// any previous detection results (stage idempotence).
	ReplaceForMedia(ctx context.Context, mediaID string, faces []*Face) error
	Get(ctx context.Context, id string) (*Face, error)
	ListByMedia(ctx context.Context, mediaID string) ([]*Face, error)
	ListByPerson(ctx context.Context, personID string) ([]*Face, error)
	// ListUnassigned returns faces of a scope with no person and no manual
	// override.
	ListUnassigned(ctx context.Context, scope string) ([]*Face, error)
	// AssignPerson links a face to a person; manual marks a user override.
	AssignPerson(ctx context.Context, faceID, personID string, manual bool) error
	// Unassign clears the person link; manual records a user override.
	Unassign(ctx context.Context, faceID string, manual bool) error
	// ClearPerson detaches all faces of a person without deleting them.
	ClearPerson(ctx context.Context, personID string) error
	DeleteByMedia(ctx context.Context, mediaID string) error
}

// PersonStore persists face clusters.
type PersonStore interface {
	Create(ctx context.Context, p *Person) error
	Get(ctx context.Context, id string) (*Person, error)
	ListByScope(ctx context.Context, scope string) ([]*Person, error)
	GetByName(ctx context.Context, scope, normalizedName string) (*Person, error)
	UpdateCentroid(ctx context.Context, id string, centroid []float32, faceCount int) error
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
}

// EmbeddingStore persists semantic embeddings and answers nearest-neighbor
// queries. Implementations validate dimensionality on write.
type EmbeddingStore interface {
	Upsert(ctx context.Context, emb *StoredEmbedding) error
	Get(ctx context.Context, mediaID string) (*StoredEmbedding, error)
	Delete(ctx context.Context, mediaID string) error
	Count(ctx context.Context, scope string) (int, error)
	// ListAll returns every embedding of a scope, used to build the
	// in-memory vector index on startup.
	ListAll(ctx context.Context, scope string) ([]StoredEmbedding, error)
	// FindSimilar returns up to limit media ranked by cosine similarity to
	// query. A non-nil allowed set restricts candidates before ranking, so
	// result counts reflect the intersection.
	FindSimilar(ctx context.Context, scope string, query []float32, limit int, allowed []string) ([]SimilarResult, error)
}

// TagStore persists semantic and object labels.
type TagStore interface {
	// ReplaceForMedia replaces all tags of the given source for a media item.
	ReplaceForMedia(ctx context.Context, mediaID, source string, tags []Tag) error
	ListByMedia(ctx context.Context, mediaID string) ([]Tag, error)
	// FindMediaByLabel returns ids of non-deleted media carrying the label.
	FindMediaByLabel(ctx context.Context, scope, label string) ([]string, error)
	DeleteByMedia(ctx context.Context, mediaID string) error
}

// AlbumStore persists smart albums (saved queries).
type AlbumStore interface {
	SaveSmartAlbum(ctx context.Context, a *SmartAlbum) error
	GetSmartAlbum(ctx context.Context, scope, name string) (*SmartAlbum, error)
	DeleteSmartAlbum(ctx context.Context, scope, name string) error
	ListSmartAlbums(ctx context.Context, scope string) ([]*SmartAlbum, error)
}

// Store bundles all repositories behind one handle.
type Store struct {
	Media      MediaStore
	Jobs       JobStore
	Faces      FaceStore
	Persons    PersonStore
	Embeddings EmbeddingStore
	Tags       TagStore
	Albums     AlbumStore
}
