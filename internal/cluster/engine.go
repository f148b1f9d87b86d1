// Package cluster groups face embeddings into persons by incremental
// nearest-centroid assignment.
package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// Engine assigns faces to person clusters. Centroid updates for one person
// are serialized through a per-person mutex so concurrent pipeline workers
// cannot interleave read-modify-write cycles.
type Engine struct {
	store     *database.Store
	threshold float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// Clustered is bumped for every automatic assignment when set.
	Clustered interface{ Inc() }
}

// New creates a clustering engine with the given similarity threshold.
func New(store *database.Store, threshold float64) *Engine {
	return &Engine{
		store:     store,
		threshold: threshold,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (e *Engine) personLock(personID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[personID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[personID] = l
	}
	return l
}

func cosineSimilarity(a, b []float32) float64 {
	return 1 - database.CosineDistance(a, b)
}

// Assign places one face into the best-matching person of its scope, or
// creates a singleton person when nothing is close enough. Manual faces are
// never touched by automatic assignment.
func (e *Engine) Assign(ctx context.Context, face *database.Face) (string, error) {
	if face.Manual {
		return face.PersonID, nil
	}
	if len(face.Embedding) == 0 {
		return "", fmt.Errorf("%w: face has no embedding", database.ErrInvalidArgument)
	}

	persons, err := e.store.Persons.ListByScope(ctx, face.Scope)
	if err != nil {
		return "", fmt.Errorf("list persons: %w", err)
	}

	var best *database.Person
	bestSim := -1.0
	for _, p := range persons {
		if len(p.Centroid) != len(face.Embedding) {
			continue
		}
		if sim := cosineSimilarity(face.Embedding, p.Centroid); sim > bestSim {
			bestSim = sim
			best = p
		}
	}

	if best == nil || bestSim < e.threshold {
		person := &database.Person{
			Scope:     face.Scope,
			Centroid:  append([]float32(nil), face.Embedding...),
			FaceCount: 1,
		}
		if err := e.store.Persons.Create(ctx, person); err != nil {
			return "", fmt.Errorf("create person: %w", err)
		}
		if err := e.store.Faces.AssignPerson(ctx, face.ID, person.ID, false); err != nil {
			return "", fmt.Errorf("assign face: %w", err)
		}
		if e.Clustered != nil {
			e.Clustered.Inc()
		}
		return person.ID, nil
	}

	lock := e.personLock(best.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock; a concurrent assignment may have moved the
	// centroid since the candidate scan.
	person, err := e.store.Persons.Get(ctx, best.ID)
	if err != nil {
		return "", fmt.Errorf("get person: %w", err)
	}

	centroid := addToMean(person.Centroid, person.FaceCount, face.Embedding)
	if err := e.store.Faces.AssignPerson(ctx, face.ID, person.ID, false); err != nil {
		return "", fmt.Errorf("assign face: %w", err)
	}
	if err := e.store.Persons.UpdateCentroid(ctx, person.ID, centroid, person.FaceCount+1); err != nil {
		return "", fmt.Errorf("update centroid: %w", err)
	}
	if e.Clustered != nil {
		e.Clustered.Inc()
	}
	return person.ID, nil
}

// addToMean folds one embedding into a running mean of n members.
func addToMean(mean []float32, n int, emb []float32) []float32 {
	out := make([]float32, len(mean))
	for i := range mean {
		out[i] = (mean[i]*float32(n) + emb[i]) / float32(n+1)
	}
	return out
}

// removeFromMean takes one embedding back out of a running mean of n members.
func removeFromMean(mean []float32, n int, emb []float32) []float32 {
	if n <= 1 {
		return nil
	}
	out := make([]float32, len(mean))
	for i := range mean {
		out[i] = (mean[i]*float32(n) - emb[i]) / float32(n-1)
	}
	return out
}

// Merge folds the source persons into the target: member faces move over,
// the target centroid becomes the membership-weighted mean, sources are
// deleted.
func (e *Engine) Merge(ctx context.Context, sourceIDs []string, targetID string) error {
	lock := e.personLock(targetID)
	lock.Lock()
	defer lock.Unlock()

	target, err := e.store.Persons.Get(ctx, targetID)
	if err != nil {
		return fmt.Errorf("get target person: %w", err)
	}

	weighted := make([]float64, len(target.Centroid))
	total := target.FaceCount
	for i, v := range target.Centroid {
		weighted[i] = float64(v) * float64(target.FaceCount)
	}

	for _, sourceID := range sourceIDs {
		if sourceID == targetID {
			continue
		}
		source, err := e.store.Persons.Get(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("get source person: %w", err)
		}
		if len(source.Centroid) != len(weighted) {
			return fmt.Errorf("%w: centroid dimensionality mismatch", database.ErrInvalidArgument)
		}
		for i, v := range source.Centroid {
			weighted[i] += float64(v) * float64(source.FaceCount)
		}
		total += source.FaceCount

		faces, err := e.store.Faces.ListByPerson(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("list source faces: %w", err)
		}
		for _, f := range faces {
			if err := e.store.Faces.AssignPerson(ctx, f.ID, targetID, f.Manual); err != nil {
				return fmt.Errorf("move face: %w", err)
			}
		}
		if err := e.store.Persons.Delete(ctx, sourceID); err != nil {
			return fmt.Errorf("delete source person: %w", err)
		}
	}

	centroid := make([]float32, len(weighted))
	if total > 0 {
		for i, v := range weighted {
			centroid[i] = float32(v / float64(total))
		}
	}
	if err := e.store.Persons.UpdateCentroid(ctx, targetID, centroid, total); err != nil {
		return fmt.Errorf("update target centroid: %w", err)
	}
	return nil
}

// Unassign detaches a face from its person as a user override; automatic
// passes will leave it alone afterwards. Empty persons are removed.
func (e *Engine) Unassign(ctx context.Context, faceID string) error {
	face, err := e.store.Faces.Get(ctx, faceID)
	if err != nil {
		return fmt.Errorf("get face: %w", err)
	}
	if face.PersonID == "" {
		return e.store.Faces.Unassign(ctx, faceID, true)
	}

	lock := e.personLock(face.PersonID)
	lock.Lock()
	defer lock.Unlock()

	person, err := e.store.Persons.Get(ctx, face.PersonID)
	if err != nil {
		return fmt.Errorf("get person: %w", err)
	}

	if err := e.store.Faces.Unassign(ctx, faceID, true); err != nil {
		return fmt.Errorf("unassign face: %w", err)
	}

	if person.FaceCount <= 1 {
		return e.store.Persons.Delete(ctx, person.ID)
	}
	centroid := removeFromMean(person.Centroid, person.FaceCount, face.Embedding)
	return e.store.Persons.UpdateCentroid(ctx, person.ID, centroid, person.FaceCount-1)
}

// Reassign moves a face to a specific person as a user override.
func (e *Engine) Reassign(ctx context.Context, faceID, personID string) error {
	face, err := e.store.Faces.Get(ctx, faceID)
	if err != nil {
		return fmt.Errorf("get face: %w", err)
	}
	if face.PersonID == personID {
		return e.store.Faces.AssignPerson(ctx, faceID, personID, true)
	}

	if face.PersonID != "" {
		if err := e.Unassign(ctx, faceID); err != nil {
			return err
		}
	}

	lock := e.personLock(personID)
	lock.Lock()
	defer lock.Unlock()

	person, err := e.store.Persons.Get(ctx, personID)
	if err != nil {
		return fmt.Errorf("get person: %w", err)
	}

	if err := e.store.Faces.AssignPerson(ctx, faceID, personID, true); err != nil {
		return fmt.Errorf("assign face: %w", err)
	}
	centroid := addToMean(person.Centroid, person.FaceCount, face.Embedding)
	return e.store.Persons.UpdateCentroid(ctx, personID, centroid, person.FaceCount+1)
}
