package cluster

import (
	"context"
	"math"
	"testing"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database/mock"
)

func seedFace(t *testing.T, store *database.Store, mediaID string, embedding []float32) *database.Face {
	t.Helper()
	ctx := context.Background()
	err := store.Faces.ReplaceForMedia(ctx, mediaID, []*database.Face{
		{Scope: "lib", BBox: []float64{0, 0, 10, 10}, DetScore: 0.9, Embedding: embedding},
	})
	if err != nil {
		t.Fatalf("Failed to seed face: %v", err)
	}
	faces, err := store.Faces.ListByMedia(ctx, mediaID)
	if err != nil || len(faces) != 1 {
		t.Fatalf("Failed to read seeded face: %v", err)
	}
	return faces[0]
}

func TestAssignSimilarFacesShareOnePerson(t *testing.T) {
	store := mock.NewStore(8)
	engine := New(store, 0.6)
	ctx := context.Background()

	e1 := []float32{1, 0, 0, 0}
	e2 := []float32{0.95, 0.05, 0, 0}
	f1 := seedFace(t, store, "m1", e1)
	f2 := seedFace(t, store, "m2", e2)

	p1, err := engine.Assign(ctx, f1)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	p2, err := engine.Assign(ctx, f2)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if p1 != p2 {
		t.Errorf("Similar faces should join the same person: %s vs %s", p1, p2)
	}

	person, _ := store.Persons.Get(ctx, p1)
	if person.FaceCount != 2 {
		t.Errorf("Expected face count 2, got %d", person.FaceCount)
	}

	// Running mean of the two embeddings.
	wantFirst := (e1[0] + e2[0]) / 2
	if math.Abs(float64(person.Centroid[0]-wantFirst)) > 1e-5 {
		t.Errorf("Centroid[0] = %f, want %f", person.Centroid[0], wantFirst)
	}
}

func TestAssignDissimilarFaceCreatesNewPerson(t *testing.T) {
	store := mock.NewStore(8)
	engine := New(store, 0.6)
	ctx := context.Background()

	f1 := seedFace(t, store, "m1", []float32{1, 0, 0, 0})
	f2 := seedFace(t, store, "m2", []float32{0, 1, 0, 0})

	p1, _ := engine.Assign(ctx, f1)
	p2, err := engine.Assign(ctx, f2)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if p1 == p2 {
		t.Error("Orthogonal faces should get separate persons")
	}

	persons, _ := store.Persons.ListByScope(ctx, "lib")
	if len(persons) != 2 {
		t.Errorf("Expected 2 persons, got %d", len(persons))
	}
}

func TestAssignSkipsManualFaces(t *testing.T) {
	store := mock.NewStore(8)
	engine := New(store, 0.6)
	ctx := context.Background()

	face := seedFace(t, store, "m1", []float32{1, 0, 0, 0})
	store.Faces.Unassign(ctx, face.ID, true)
	face, _ = store.Faces.Get(ctx, face.ID)

	personID, err := engine.Assign(ctx, face)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if personID != "" {
		t.Errorf("Manual face should stay unassigned, got person %s", personID)
	}
	persons, _ := store.Persons.ListByScope(ctx, "lib")
	if len(persons) != 0 {
		t.Errorf("No person should be created for a manual face, got %d", len(persons))
	}
}

func TestMergeWeightedMean(t *testing.T) {
	store := mock.NewStore(8)
	engine := New(store, 0.6)
	ctx := context.Background()

	target := &database.Person{Scope: "lib", Centroid: []float32{1, 0}, FaceCount: 2}
	source := &database.Person{Scope: "lib", Centroid: []float32{0, 1}, FaceCount: 3}
	store.Persons.Create(ctx, target)
	store.Persons.Create(ctx, source)

	for i, emb := range [][]float32{{1, 0}, {1, 0}} {
		f := seedFace(t, store, "t"+string(rune('a'+i)), emb)
		store.Faces.AssignPerson(ctx, f.ID, target.ID, false)
	}
	var sourceFaces []*database.Face
	for i, emb := range [][]float32{{0, 1}, {0, 1}, {0, 1}} {
		f := seedFace(t, store, "s"+string(rune('a'+i)), emb)
		store.Faces.AssignPerson(ctx, f.ID, source.ID, false)
		sourceFaces = append(sourceFaces, f)
	}

	if err := engine.Merge(ctx, []string{source.ID}, target.ID); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	merged, err := store.Persons.Get(ctx, target.ID)
	if err != nil {
		t.Fatalf("Failed to get merged person: %v", err)
	}
	if merged.FaceCount != 5 {
		t.Errorf("Expected face count 5, got %d", merged.FaceCount)
	}
	// Weighted mean: (2*[1,0] + 3*[0,1]) / 5.
	if math.Abs(float64(merged.Centroid[0])-0.4) > 1e-5 || math.Abs(float64(merged.Centroid[1])-0.6) > 1e-5 {
		t.Errorf("Centroid = %v, want [0.4 0.6]", merged.Centroid)
	}

	if _, err := store.Persons.Get(ctx, source.ID); err == nil {
		t.Error("Source person should be deleted")
	}
	for _, f := range sourceFaces {
		moved, _ := store.Faces.Get(ctx, f.ID)
		if moved.PersonID != target.ID {
			t.Errorf("Face %s not moved to target", f.ID)
		}
	}
}

func TestUnassignShrinksCentroidAndMarksManual(t *testing.T) {
	store := mock.NewStore(8)
	engine := New(store, 0.6)
	ctx := context.Background()

	f1 := seedFace(t, store, "m1", []float32{1, 0, 0, 0})
	f2 := seedFace(t, store, "m2", []float32{0.9, 0.1, 0, 0})
	personID, _ := engine.Assign(ctx, f1)
	engine.Assign(ctx, f2)

	if err := engine.Unassign(ctx, f2.ID); err != nil {
		t.Fatalf("Unassign failed: %v", err)
	}

	face, _ := store.Faces.Get(ctx, f2.ID)
	if face.PersonID != "" {
		t.Error("Face should be detached")
	}
	if !face.Manual {
		t.Error("Unassign should mark the face manual")
	}

	person, _ := store.Persons.Get(ctx, personID)
	if person.FaceCount != 1 {
		t.Errorf("Expected face count 1, got %d", person.FaceCount)
	}
	if math.Abs(float64(person.Centroid[0])-1) > 1e-5 {
		t.Errorf("Centroid should shrink back to the remaining face, got %v", person.Centroid)
	}
}

func TestUnassignLastFaceDeletesPerson(t *testing.T) {
	store := mock.NewStore(8)
	engine := New(store, 0.6)
	ctx := context.Background()

	face := seedFace(t, store, "m1", []float32{1, 0, 0, 0})
	personID, _ := engine.Assign(ctx, face)

	if err := engine.Unassign(ctx, face.ID); err != nil {
		t.Fatalf("Unassign failed: %v", err)
	}
	if _, err := store.Persons.Get(ctx, personID); err == nil {
		t.Error("Empty person should be deleted")
	}
}

func TestReassignSetsManual(t *testing.T) {
	store := mock.NewStore(8)
	engine := New(store, 0.6)
	ctx := context.Background()

	f1 := seedFace(t, store, "m1", []float32{1, 0, 0, 0})
	f2 := seedFace(t, store, "m2", []float32{0, 1, 0, 0})
	engine.Assign(ctx, f1)
	p2, _ := engine.Assign(ctx, f2)

	if err := engine.Reassign(ctx, f1.ID, p2); err != nil {
		t.Fatalf("Reassign failed: %v", err)
	}

	face, _ := store.Faces.Get(ctx, f1.ID)
	if face.PersonID != p2 {
		t.Errorf("Face should belong to %s, got %s", p2, face.PersonID)
	}
	if !face.Manual {
		t.Error("Reassign should mark the face manual")
	}

	person, _ := store.Persons.Get(ctx, p2)
	if person.FaceCount != 2 {
		t.Errorf("Expected face count 2, got %d", person.FaceCount)
	}
}
