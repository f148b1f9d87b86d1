// Package mock provides in-memory implementations of the database interfaces
// for testing.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// NewStore returns a database.Store backed entirely by memory. The semantic
// embedding dimension is validated on write; pass 0 to accept any dimension.
func NewStore(semanticDim int) *database.Store {
	return &database.Store{
		Media:      NewMediaStore(),
		Jobs:       NewJobStore(),
		Faces:      NewFaceStore(),
		Persons:    NewPersonStore(),
		Embeddings: NewEmbeddingStore(semanticDim),
		Tags:       NewTagStore(),
		Albums:     NewAlbumStore(),
	}
}

// MediaStore is an in-memory database.MediaStore.
type MediaStore struct {
	mu    sync.RWMutex
	items map[string]*database.MediaItem
	dups  []database.NearDuplicate

	// Error injection
	CreateError error
	UpdateError error
	SearchError error
}

func NewMediaStore() *MediaStore {
	return &MediaStore{items: make(map[string]*database.MediaItem)}
}

func copyMedia(m *database.MediaItem) *database.MediaItem {
	c := *m
	c.Stages = make(map[database.Stage]database.StageState, len(m.Stages))
	for k, v := range m.Stages {
		c.Stages[k] = v
	}
	if m.TakenAt != nil {
		t := *m.TakenAt
		c.TakenAt = &t
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func (s *MediaStore) Create(ctx context.Context, item *database.MediaItem) error {
	if s.CreateError != nil {
		return s.CreateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.UpdatedAt = item.CreatedAt
	if item.Stages == nil {
		item.Stages = database.NewStageSet()
	}
	s.items[item.ID] = copyMedia(item)
	return nil
}

func (s *MediaStore) Get(ctx context.Context, id string) (*database.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return copyMedia(item), nil
}

func (s *MediaStore) GetByPath(ctx context.Context, scope, path string) (*database.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.Scope == scope && item.Path == path {
			return copyMedia(item), nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *MediaStore) Update(ctx context.Context, item *database.MediaItem) error {
	if s.UpdateError != nil {
		return s.UpdateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[item.ID]
	if !ok {
		return database.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now()
	s.items[item.ID] = copyMedia(item)
	return nil
}

func (s *MediaStore) SetStage(ctx context.Context, id string, stage database.Stage, state database.StageState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return database.ErrNotFound
	}
	if item.Stages == nil {
		item.Stages = database.NewStageSet()
	}
	item.Stages[stage] = state
	item.UpdatedAt = time.Now()
	return nil
}

func (s *MediaStore) ResetStages(ctx context.Context, id string, stages []database.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return database.ErrNotFound
	}
	if stages == nil {
		item.Stages = database.NewStageSet()
		return nil
	}
	for _, st := range stages {
		item.Stages[st] = database.StageState{Status: database.StagePending}
	}
	return nil
}

func (s *MediaStore) list(filter func(*database.MediaItem) bool) []*database.MediaItem {
	var out []*database.MediaItem
	for _, item := range s.items {
		if filter(item) {
			out = append(out, copyMedia(item))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MediaStore) ListByScope(ctx context.Context, scope string) ([]*database.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(func(m *database.MediaItem) bool {
		return m.Scope == scope && m.DeletedAt == nil
	}), nil
}

func (s *MediaStore) ListPendingStage(ctx context.Context, scope string, stage database.Stage) ([]*database.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(func(m *database.MediaItem) bool {
		return m.Scope == scope && m.DeletedAt == nil && m.StageState(stage).Status == database.StagePending
	}), nil
}

func (s *MediaStore) FindByContentHash(ctx context.Context, scope, hash string) ([]*database.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(func(m *database.MediaItem) bool {
		return m.Scope == scope && m.DeletedAt == nil && m.ContentHash == hash
	}), nil
}

func (s *MediaStore) ListRecent(ctx context.Context, scope string, since time.Time) ([]*database.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(func(m *database.MediaItem) bool {
		return m.Scope == scope && m.DeletedAt == nil && !m.CreatedAt.Before(since)
	}), nil
}

func (s *MediaStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return database.ErrNotFound
	}
	item.DeletedAt = &at
	return nil
}

func (s *MediaStore) SetDuplicateOf(ctx context.Context, id, canonicalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return database.ErrNotFound
	}
	item.DuplicateOf = canonicalID
	return nil
}

func (s *MediaStore) AddNearDuplicate(ctx context.Context, nd database.NearDuplicate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nd.CreatedAt.IsZero() {
		nd.CreatedAt = time.Now()
	}
	s.dups = append(s.dups, nd)
	return nil
}

func (s *MediaStore) ListNearDuplicates(ctx context.Context, mediaID string) ([]database.NearDuplicate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []database.NearDuplicate
	for _, nd := range s.dups {
		if nd.MediaID == mediaID || nd.OtherID == mediaID {
			out = append(out, nd)
		}
	}
	return out, nil
}

func (s *MediaStore) Search(ctx context.Context, scope string, filter database.SearchFilter, limit, offset int) ([]*database.MediaItem, int, error) {
	if s.SearchError != nil {
		return nil, 0, s.SearchError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := map[string]struct{}{}
	for _, id := range filter.IDs {
		allowed[id] = struct{}{}
	}

	matches := s.list(func(m *database.MediaItem) bool {
		if m.Scope != scope || m.DeletedAt != nil {
			return false
		}
		if len(filter.IDs) > 0 {
			if _, ok := allowed[m.ID]; !ok {
				return false
			}
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			return false
		}
		if filter.Favorite != nil && m.Favorite != *filter.Favorite {
			return false
		}
		if filter.From != nil && (m.TakenAt == nil || m.TakenAt.Before(*filter.From)) {
			return false
		}
		if filter.To != nil && (m.TakenAt == nil || !m.TakenAt.Before(*filter.To)) {
			return false
		}
		return true
	})

	// Stable sort: taken_at desc, id as tie-breaker.
	sort.Slice(matches, func(i, j int) bool {
		ti, tj := matches[i].TakenAt, matches[j].TakenAt
		switch {
		case ti == nil && tj == nil:
			return matches[i].ID < matches[j].ID
		case ti == nil:
			return false
		case tj == nil:
			return true
		case ti.Equal(*tj):
			return matches[i].ID < matches[j].ID
		default:
			return ti.After(*tj)
		}
	})

	total := len(matches)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matches[offset:end], total, nil
}

func (s *MediaStore) Count(ctx context.Context, scope string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var photos, videos int
	for _, m := range s.items {
		if m.Scope != scope || m.DeletedAt != nil {
			continue
		}
		if m.Kind == database.KindVideo {
			videos++
		} else {
			photos++
		}
	}
	return photos, videos, nil
}

// JobStore is an in-memory database.JobStore enforcing the one
// pending-or-running job per (scope, type) invariant.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*database.Job

	EnqueueError error
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*database.Job)}
}

func copyJob(j *database.Job) *database.Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (s *JobStore) Enqueue(ctx context.Context, job *database.Job) error {
	if s.EnqueueError != nil {
		return s.EnqueueError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.Scope == job.Scope && existing.Type == job.Type && !existing.Status.Terminal() {
			return database.ErrAlreadyRunning
		}
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = database.JobPending
	job.CreatedAt = time.Now()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *JobStore) ClaimNext(ctx context.Context, jobType database.JobType) (*database.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *database.Job
	for _, j := range s.jobs {
		if j.Type != jobType || j.Status != database.JobPending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := time.Now()
	oldest.Status = database.JobRunning
	oldest.StartedAt = &now
	return copyJob(oldest), nil
}

func (s *JobStore) Advance(ctx context.Context, id string, processedDelta, failedDelta int) error {
	if processedDelta < 0 || failedDelta < 0 {
		return database.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return database.ErrNotFound
	}
	j.ProcessedItems += processedDelta
	j.FailedItems += failedDelta
	return nil
}

func (s *JobStore) SetTotal(ctx context.Context, id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return database.ErrNotFound
	}
	j.TotalItems = total
	return nil
}

func (s *JobStore) finish(id string, status database.JobStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return database.ErrNotFound
	}
	if j.Status.Terminal() {
		return nil // terminal states are final
	}
	now := time.Now()
	j.Status = status
	j.Error = reason
	j.CompletedAt = &now
	return nil
}

func (s *JobStore) Complete(ctx context.Context, id string) error {
	return s.finish(id, database.JobCompleted, "")
}

func (s *JobStore) Fail(ctx context.Context, id, reason string) error {
	return s.finish(id, database.JobFailed, reason)
}

func (s *JobStore) MarkCancelled(ctx context.Context, id string) error {
	return s.finish(id, database.JobCancelled, "")
}

func (s *JobStore) RequestCancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return database.ErrNotFound
	}
	if j.Status == database.JobPending {
		// Never started; cancel immediately.
		now := time.Now()
		j.Status = database.JobCancelled
		j.CompletedAt = &now
		return nil
	}
	j.CancelRequested = true
	return nil
}

func (s *JobStore) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, database.ErrNotFound
	}
	return j.CancelRequested, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*database.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return copyJob(j), nil
}

func (s *JobStore) ListByScope(ctx context.Context, scope string) ([]*database.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*database.Job
	for _, j := range s.jobs {
		if j.Scope == scope {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// FaceStore is an in-memory database.FaceStore.
type FaceStore struct {
	mu    sync.RWMutex
	faces map[string]*database.Face
}

func NewFaceStore() *FaceStore {
	return &FaceStore{faces: make(map[string]*database.Face)}
}

func copyFace(f *database.Face) *database.Face {
	c := *f
	c.BBox = append([]float64(nil), f.BBox...)
	c.Embedding = append([]float32(nil), f.Embedding...)
	return &c
}

func (s *FaceStore) ReplaceForMedia(ctx context.Context, mediaID string, faces []*database.Face) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.faces {
		if f.MediaID == mediaID {
			delete(s.faces, id)
		}
	}
	for _, f := range faces {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		f.MediaID = mediaID
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now()
		}
		s.faces[f.ID] = copyFace(f)
	}
	return nil
}

func (s *FaceStore) Get(ctx context.Context, id string) (*database.Face, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.faces[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return copyFace(f), nil
}

func (s *FaceStore) listFaces(filter func(*database.Face) bool) []*database.Face {
	var out []*database.Face
	for _, f := range s.faces {
		if filter(f) {
			out = append(out, copyFace(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *FaceStore) ListByMedia(ctx context.Context, mediaID string) ([]*database.Face, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listFaces(func(f *database.Face) bool { return f.MediaID == mediaID }), nil
}

func (s *FaceStore) ListByPerson(ctx context.Context, personID string) ([]*database.Face, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listFaces(func(f *database.Face) bool { return f.PersonID == personID }), nil
}

func (s *FaceStore) ListUnassigned(ctx context.Context, scope string) ([]*database.Face, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listFaces(func(f *database.Face) bool {
		return f.Scope == scope && f.PersonID == "" && !f.Manual
	}), nil
}

func (s *FaceStore) AssignPerson(ctx context.Context, faceID, personID string, manual bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faces[faceID]
	if !ok {
		return database.ErrNotFound
	}
	f.PersonID = personID
	if manual {
		f.Manual = true
	}
	return nil
}

func (s *FaceStore) Unassign(ctx context.Context, faceID string, manual bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faces[faceID]
	if !ok {
		return database.ErrNotFound
	}
	f.PersonID = ""
	if manual {
		f.Manual = true
	}
	return nil
}

func (s *FaceStore) ClearPerson(ctx context.Context, personID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.faces {
		if f.PersonID == personID {
			f.PersonID = ""
		}
	}
	return nil
}

func (s *FaceStore) DeleteByMedia(ctx context.Context, mediaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.faces {
		if f.MediaID == mediaID {
			delete(s.faces, id)
		}
	}
	return nil
}

// PersonStore is an in-memory database.PersonStore.
type PersonStore struct {
	mu      sync.RWMutex
	persons map[string]*database.Person
}

func NewPersonStore() *PersonStore {
	return &PersonStore{persons: make(map[string]*database.Person)}
}

func copyPerson(p *database.Person) *database.Person {
	c := *p
	c.Centroid = append([]float32(nil), p.Centroid...)
	return &c
}

func (s *PersonStore) Create(ctx context.Context, p *database.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.persons[p.ID] = copyPerson(p)
	return nil
}

func (s *PersonStore) Get(ctx context.Context, id string) (*database.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return copyPerson(p), nil
}

func (s *PersonStore) ListByScope(ctx context.Context, scope string) ([]*database.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*database.Person
	for _, p := range s.persons {
		if p.Scope == scope {
			out = append(out, copyPerson(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *PersonStore) GetByName(ctx context.Context, scope, normalizedName string) (*database.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.persons {
		if p.Scope == scope && strings.EqualFold(p.Name, normalizedName) {
			return copyPerson(p), nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *PersonStore) UpdateCentroid(ctx context.Context, id string, centroid []float32, faceCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[id]
	if !ok {
		return database.ErrNotFound
	}
	p.Centroid = append([]float32(nil), centroid...)
	p.FaceCount = faceCount
	p.UpdatedAt = time.Now()
	return nil
}

func (s *PersonStore) Rename(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[id]
	if !ok {
		return database.ErrNotFound
	}
	p.Name = name
	p.UpdatedAt = time.Now()
	return nil
}

func (s *PersonStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.persons[id]; !ok {
		return database.ErrNotFound
	}
	delete(s.persons, id)
	return nil
}

// EmbeddingStore is an in-memory database.EmbeddingStore with brute-force
// cosine ranking.
type EmbeddingStore struct {
	mu         sync.RWMutex
	dim        int
	embeddings map[string]*database.StoredEmbedding

	FindSimilarError error
}

func NewEmbeddingStore(dim int) *EmbeddingStore {
	return &EmbeddingStore{dim: dim, embeddings: make(map[string]*database.StoredEmbedding)}
}

func (s *EmbeddingStore) Upsert(ctx context.Context, emb *database.StoredEmbedding) error {
	if s.dim > 0 && len(emb.Embedding) != s.dim {
		return database.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *emb
	c.Embedding = append([]float32(nil), emb.Embedding...)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.embeddings[emb.MediaID] = &c
	return nil
}

func (s *EmbeddingStore) Get(ctx context.Context, mediaID string) (*database.StoredEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emb, ok := s.embeddings[mediaID]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *emb
	c.Embedding = append([]float32(nil), emb.Embedding...)
	return &c, nil
}

func (s *EmbeddingStore) Delete(ctx context.Context, mediaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.embeddings, mediaID)
	return nil
}

func (s *EmbeddingStore) Count(ctx context.Context, scope string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.embeddings {
		if e.Scope == scope {
			n++
		}
	}
	return n, nil
}

func (s *EmbeddingStore) ListAll(ctx context.Context, scope string) ([]database.StoredEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []database.StoredEmbedding
	for _, e := range s.embeddings {
		if e.Scope != scope {
			continue
		}
		c := *e
		c.Embedding = append([]float32(nil), e.Embedding...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MediaID < out[j].MediaID })
	return out, nil
}

func (s *EmbeddingStore) FindSimilar(ctx context.Context, scope string, query []float32, limit int, allowed []string) ([]database.SimilarResult, error) {
	if s.FindSimilarError != nil {
		return nil, s.FindSimilarError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allowedSet map[string]struct{}
	if allowed != nil {
		allowedSet = make(map[string]struct{}, len(allowed))
		for _, id := range allowed {
			allowedSet[id] = struct{}{}
		}
	}

	var results []database.SimilarResult
	for id, e := range s.embeddings {
		if e.Scope != scope {
			continue
		}
		if allowedSet != nil {
			if _, ok := allowedSet[id]; !ok {
				continue
			}
		}
		results = append(results, database.SimilarResult{
			MediaID:    id,
			Similarity: 1 - database.CosineDistance(query, e.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity == results[j].Similarity {
			return results[i].MediaID < results[j].MediaID
		}
		return results[i].Similarity > results[j].Similarity
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// TagStore is an in-memory database.TagStore.
type TagStore struct {
	mu   sync.RWMutex
	tags []database.Tag
}

func NewTagStore() *TagStore {
	return &TagStore{}
}

func (s *TagStore) ReplaceForMedia(ctx context.Context, mediaID, source string, tags []database.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tags[:0]
	for _, t := range s.tags {
		if !(t.MediaID == mediaID && t.Source == source) {
			kept = append(kept, t)
		}
	}
	s.tags = kept
	for _, t := range tags {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		s.tags = append(s.tags, t)
	}
	return nil
}

func (s *TagStore) ListByMedia(ctx context.Context, mediaID string) ([]database.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []database.Tag
	for _, t := range s.tags {
		if t.MediaID == mediaID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *TagStore) FindMediaByLabel(ctx context.Context, scope, label string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, t := range s.tags {
		if strings.EqualFold(t.Label, label) {
			if _, ok := seen[t.MediaID]; !ok {
				seen[t.MediaID] = struct{}{}
				out = append(out, t.MediaID)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *TagStore) DeleteByMedia(ctx context.Context, mediaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tags[:0]
	for _, t := range s.tags {
		if t.MediaID != mediaID {
			kept = append(kept, t)
		}
	}
	s.tags = kept
	return nil
}

// AlbumStore is an in-memory database.AlbumStore.
type AlbumStore struct {
	mu     sync.RWMutex
	albums map[string]*database.SmartAlbum // key: scope + "/" + lowercase name
}

func NewAlbumStore() *AlbumStore {
	return &AlbumStore{albums: make(map[string]*database.SmartAlbum)}
}

func albumKey(scope, name string) string {
	return scope + "/" + strings.ToLower(name)
}

func (s *AlbumStore) SaveSmartAlbum(ctx context.Context, a *database.SmartAlbum) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	c := *a
	s.albums[albumKey(a.Scope, a.Name)] = &c
	return nil
}

func (s *AlbumStore) GetSmartAlbum(ctx context.Context, scope, name string) (*database.SmartAlbum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.albums[albumKey(scope, name)]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *AlbumStore) DeleteSmartAlbum(ctx context.Context, scope, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := albumKey(scope, name)
	if _, ok := s.albums[key]; !ok {
		return database.ErrNotFound
	}
	delete(s.albums, key)
	return nil
}

func (s *AlbumStore) ListSmartAlbums(ctx context.Context, scope string) ([]*database.SmartAlbum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*database.SmartAlbum
	for _, a := range s.albums {
		if a.Scope == scope {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
