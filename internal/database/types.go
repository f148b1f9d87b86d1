package database

import (
	"time"
)

// MediaKind distinguishes photos from videos.
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// Stage is one unit of enrichment work applied to a MediaItem.
type Stage string

const (
	StageMetadata  Stage = "metadata"
	StageThumbnail Stage = "thumbnail"
	StageFaces     Stage = "faces"
	StageEmbedding Stage = "embedding"
	StageObjects   Stage = "objects"
)

// Stages lists all enrichment stages in execution order. Stages after
// StageThumbnail are mutually independent and may run in parallel.
var Stages = []Stage{StageMetadata, StageThumbnail, StageFaces, StageEmbedding, StageObjects}

// stageDeps is the fixed dependency table. Every stage past metadata needs
// metadata to have succeeded (orientation and dimensions); nothing else
// cross-depends.
var stageDeps = map[Stage][]Stage{
	StageMetadata:  nil,
	StageThumbnail: {StageMetadata},
	StageFaces:     {StageMetadata},
	StageEmbedding: {StageMetadata},
	StageObjects:   {StageMetadata},
}

// Dependencies returns the stages that must be done before s can run.
func (s Stage) Dependencies() []Stage {
	return stageDeps[s]
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageDeps[s]
	return ok
}

// StageStatus is the per-item status of a single enrichment stage.
type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageDone    StageStatus = "done"
	StageError   StageStatus = "error"
	StageSkipped StageStatus = "skipped"
)

// StageState tracks progress of one stage for one media item. It lives on the
// MediaItem, independent of any job, so a worker crash never loses completed
// stage work.
type StageState struct {
	Status   StageStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
	Attempts int         `json:"attempts"`
}

// NewStageSet returns a fresh stage map with every stage pending.
func NewStageSet() map[Stage]StageState {
	m := make(map[Stage]StageState, len(Stages))
	for _, s := range Stages {
		m[s] = StageState{Status: StagePending}
	}
	return m
}

// MediaItem is a photo or video discovered by the scanner. Fields are
// additive: each enrichment stage only fills in its own derived data.
type MediaItem struct {
	ID       string    `json:"id"`
	Scope    string    `json:"scope"`
	Path     string    `json:"path"`
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	MimeType string    `json:"mime_type"`
	Kind     MediaKind `json:"kind"`

	Width   int        `json:"width,omitempty"`
	Height  int        `json:"height,omitempty"`
	TakenAt *time.Time `json:"taken_at,omitempty"`

	ContentHash string `json:"content_hash"`
	PHashBits   uint64 `json:"-"`
	DHashBits   uint64 `json:"-"`

	Favorite    bool       `json:"favorite"`
	Hidden      bool       `json:"hidden"`
	DuplicateOf string     `json:"duplicate_of,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	Stages map[Stage]StageState `json:"stages"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageState returns the state of the given stage, defaulting to pending.
func (m *MediaItem) StageState(s Stage) StageState {
	if m.Stages == nil {
		return StageState{Status: StagePending}
	}
	if st, ok := m.Stages[s]; ok {
		return st
	}
	return StageState{Status: StagePending}
}

// DependenciesMet reports whether every dependency of s completed.
func (m *MediaItem) DependenciesMet(s Stage) bool {
	for _, dep := range s.Dependencies() {
		if m.StageState(dep).Status != StageDone {
			return false
		}
	}
	return true
}

// JobType identifies a unit of background work.
type JobType string

const (
	JobTypeScan      JobType = "scan"
	JobTypeEnrich    JobType = "enrich" // full per-item stage chain
	JobTypeMetadata  JobType = "metadata"
	JobTypeThumbnail JobType = "thumbnail"
	JobTypeFaces     JobType = "faces"
	JobTypeEmbedding JobType = "embedding"
	JobTypeObjects   JobType = "objects"
)

// StageJobType maps an enrichment stage to its single-stage reprocess job type.
func StageJobType(s Stage) JobType {
	switch s {
	case StageMetadata:
		return JobTypeMetadata
	case StageThumbnail:
		return JobTypeThumbnail
	case StageFaces:
		return JobTypeFaces
	case StageEmbedding:
		return JobTypeEmbedding
	case StageObjects:
		return JobTypeObjects
	}
	return ""
}

// JobStage is the inverse of StageJobType; ok is false for scan/enrich jobs.
func JobStage(t JobType) (Stage, bool) {
	switch t {
	case JobTypeMetadata:
		return StageMetadata, true
	case JobTypeThumbnail:
		return StageThumbnail, true
	case JobTypeFaces:
		return StageFaces, true
	case JobTypeEmbedding:
		return StageEmbedding, true
	case JobTypeObjects:
		return StageObjects, true
	}
	return "", false
}

// JobStatus is the lifecycle state of a job. Terminal states are final.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is a durable record of one unit of background work. Progress counters
// are monotonically non-decreasing; FailedItems counts soft failures that do
// not abort the job.
type Job struct {
	ID     string    `json:"id"`
	Type   JobType   `json:"type"`
	Scope  string    `json:"scope"`
	Status JobStatus `json:"status"`

	TotalItems     int `json:"total_items"`
	ProcessedItems int `json:"processed_items"`
	FailedItems    int `json:"failed_items"`

	CancelRequested bool   `json:"cancel_requested"`
	Error           string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Face is a single detected face on a media item.
type Face struct {
	ID       string    `json:"id"`
	MediaID  string    `json:"media_id"`
	Scope    string    `json:"scope"`
	BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2] in raw pixel coordinates
	DetScore float64   `json:"det_score"`

	Embedding []float32 `json:"-"`

	// PersonID is empty while unassigned. Manual marks a user override that
	// automatic re-clustering must not touch.
	PersonID string `json:"person_id,omitempty"`
	Manual   bool   `json:"manual"`

	CreatedAt time.Time `json:"created_at"`
}

// Person is a face cluster. Centroid is the running mean of all member face
// embeddings.
type Person struct {
	ID        string    `json:"id"`
	Scope     string    `json:"scope"`
	Name      string    `json:"name,omitempty"`
	Centroid  []float32 `json:"-"`
	FaceCount int       `json:"face_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag is a semantic or object label attached to a media item. Tags are
// additive and never mutated.
type Tag struct {
	MediaID    string    `json:"media_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"` // clip | yolo | manual
	CreatedAt  time.Time `json:"created_at"`
}

// NearDuplicate is an advisory relationship between two media items whose
// perceptual hashes fall within the Hamming threshold. Never acted on
// automatically.
type NearDuplicate struct {
	MediaID   string    `json:"media_id"`
	OtherID   string    `json:"other_id"`
	Distance  int       `json:"distance"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredEmbedding is the semantic embedding of a media item.
type StoredEmbedding struct {
	MediaID   string    `json:"media_id"`
	Scope     string    `json:"scope"`
	Embedding []float32 `json:"-"`
	Model     string    `json:"model"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
}

// SimilarResult is one nearest-neighbor hit.
type SimilarResult struct {
	MediaID    string  `json:"media_id"`
	Similarity float64 `json:"similarity"`
}

// SmartAlbum is a saved natural-language query, re-evaluated lazily each time
// it is opened.
type SmartAlbum struct {
	ID        string    `json:"id"`
	Scope     string    `json:"scope"`
	Name      string    `json:"name"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}
