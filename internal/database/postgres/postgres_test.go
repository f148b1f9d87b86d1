//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testMedia(scope, path string) *database.MediaItem {
	return &database.MediaItem{
		Scope:       scope,
		Path:        path,
		Filename:    path,
		Size:        1234,
		ModTime:     time.Now().UTC().Truncate(time.Second),
		MimeType:    "image/jpeg",
		Kind:        database.KindPhoto,
		ContentHash: "hash-" + path,
		Stages:      database.NewStageSet(),
	}
}

func TestMediaRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewMediaRepository(pool)

	t.Run("CreateAndGet", func(t *testing.T) {
		item := testMedia("lib", "2024/a.jpg")
		if err := repo.Create(ctx, item); err != nil {
			t.Fatalf("Failed to create media: %v", err)
		}

		got, err := repo.Get(ctx, item.ID)
		if err != nil {
			t.Fatalf("Failed to get media: %v", err)
		}
		if got.Path != "2024/a.jpg" {
			t.Errorf("Expected path '2024/a.jpg', got '%s'", got.Path)
		}
		if got.StageState(database.StageMetadata).Status != database.StagePending {
			t.Errorf("Expected pending metadata stage, got %v", got.StageState(database.StageMetadata))
		}
	})

	t.Run("GetByPath", func(t *testing.T) {
		got, err := repo.GetByPath(ctx, "lib", "2024/a.jpg")
		if err != nil {
			t.Fatalf("Failed to get by path: %v", err)
		}
		if got.ContentHash != "hash-2024/a.jpg" {
			t.Errorf("Unexpected content hash: %s", got.ContentHash)
		}

		_, err = repo.GetByPath(ctx, "lib", "nope.jpg")
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SetStage", func(t *testing.T) {
		item, _ := repo.GetByPath(ctx, "lib", "2024/a.jpg")
		state := database.StageState{Status: database.StageDone, Attempts: 1}
		if err := repo.SetStage(ctx, item.ID, database.StageMetadata, state); err != nil {
			t.Fatalf("Failed to set stage: %v", err)
		}

		got, _ := repo.Get(ctx, item.ID)
		if got.StageState(database.StageMetadata).Status != database.StageDone {
			t.Error("Stage update not reflected")
		}
		if got.StageState(database.StageThumbnail).Status != database.StagePending {
			t.Error("Unrelated stage changed")
		}
	})

	t.Run("SearchPagination", func(t *testing.T) {
		base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			item := testMedia("lib", fmt.Sprintf("2024/p%d.jpg", i))
			taken := base.Add(time.Duration(i) * time.Hour)
			item.TakenAt = &taken
			if err := repo.Create(ctx, item); err != nil {
				t.Fatalf("Failed to create media: %v", err)
			}
		}

		from := base
		page1, total, err := repo.Search(ctx, "lib", database.SearchFilter{From: &from}, 2, 0)
		if err != nil {
			t.Fatalf("Failed to search: %v", err)
		}
		if total != 5 {
			t.Errorf("Expected total 5, got %d", total)
		}
		if len(page1) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(page1))
		}
		if !page1[0].TakenAt.After(*page1[1].TakenAt) {
			t.Error("Results not sorted taken_at descending")
		}

		page2, _, err := repo.Search(ctx, "lib", database.SearchFilter{From: &from}, 2, 2)
		if err != nil {
			t.Fatalf("Failed to search page 2: %v", err)
		}
		if page2[0].ID == page1[1].ID {
			t.Error("Pages overlap")
		}
	})

	t.Run("SoftDeleteHidesFromLists", func(t *testing.T) {
		item, _ := repo.GetByPath(ctx, "lib", "2024/p0.jpg")
		if err := repo.SoftDelete(ctx, item.ID, time.Now()); err != nil {
			t.Fatalf("Failed to soft delete: %v", err)
		}

		items, err := repo.ListByScope(ctx, "lib")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		for _, it := range items {
			if it.ID == item.ID {
				t.Error("Soft-deleted item still listed")
			}
		}
	})
}

func TestJobRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewJobRepository(pool)

	t.Run("ScopeLock", func(t *testing.T) {
		job := &database.Job{Type: database.JobTypeScan, Scope: "lib"}
		if err := repo.Enqueue(ctx, job); err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}

		dup := &database.Job{Type: database.JobTypeScan, Scope: "lib"}
		if err := repo.Enqueue(ctx, dup); !errors.Is(err, database.ErrAlreadyRunning) {
			t.Errorf("Expected ErrAlreadyRunning, got %v", err)
		}

		// Other scopes and types are independent.
		other := &database.Job{Type: database.JobTypeScan, Scope: "other"}
		if err := repo.Enqueue(ctx, other); err != nil {
			t.Errorf("Other scope should enqueue: %v", err)
		}
		enrich := &database.Job{Type: database.JobTypeEnrich, Scope: "lib"}
		if err := repo.Enqueue(ctx, enrich); err != nil {
			t.Errorf("Other type should enqueue: %v", err)
		}
	})

	t.Run("ClaimNext", func(t *testing.T) {
		claimed, err := repo.ClaimNext(ctx, database.JobTypeScan)
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if claimed == nil {
			t.Fatal("Expected a job, got nil")
		}
		if claimed.Status != database.JobRunning {
			t.Errorf("Expected running, got %s", claimed.Status)
		}
		if claimed.StartedAt == nil {
			t.Error("Expected started_at to be set")
		}

		// The lock still holds while the claimed job runs.
		dup := &database.Job{Type: database.JobTypeScan, Scope: claimed.Scope}
		if err := repo.Enqueue(ctx, dup); !errors.Is(err, database.ErrAlreadyRunning) {
			t.Errorf("Expected ErrAlreadyRunning while running, got %v", err)
		}
	})

	t.Run("CompleteReleasesLock", func(t *testing.T) {
		jobs, _ := repo.ListByScope(ctx, "lib")
		var running *database.Job
		for _, j := range jobs {
			if j.Type == database.JobTypeScan && j.Status == database.JobRunning {
				running = j
			}
		}
		if running == nil {
			t.Fatal("No running scan job")
		}

		if err := repo.Advance(ctx, running.ID, 3, 1); err != nil {
			t.Fatalf("Failed to advance: %v", err)
		}
		if err := repo.Complete(ctx, running.ID); err != nil {
			t.Fatalf("Failed to complete: %v", err)
		}

		got, _ := repo.Get(ctx, running.ID)
		if got.Status != database.JobCompleted {
			t.Errorf("Expected completed, got %s", got.Status)
		}
		if got.ProcessedItems != 3 || got.FailedItems != 1 {
			t.Errorf("Counters wrong: %d/%d", got.ProcessedItems, got.FailedItems)
		}

		next := &database.Job{Type: database.JobTypeScan, Scope: "lib"}
		if err := repo.Enqueue(ctx, next); err != nil {
			t.Errorf("Lock should be released after completion: %v", err)
		}
	})

	t.Run("TerminalStatesFinal", func(t *testing.T) {
		job := &database.Job{Type: database.JobTypeObjects, Scope: "lib"}
		repo.Enqueue(ctx, job)
		claimed, _ := repo.ClaimNext(ctx, database.JobTypeObjects)
		repo.Fail(ctx, claimed.ID, "boom")

		if err := repo.Complete(ctx, claimed.ID); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Completing a failed job should not find a row, got %v", err)
		}
		got, _ := repo.Get(ctx, claimed.ID)
		if got.Status != database.JobFailed {
			t.Errorf("Expected failed, got %s", got.Status)
		}
	})

	t.Run("CancelPendingImmediately", func(t *testing.T) {
		job := &database.Job{Type: database.JobTypeFaces, Scope: "lib"}
		repo.Enqueue(ctx, job)

		if err := repo.RequestCancel(ctx, job.ID); err != nil {
			t.Fatalf("Failed to request cancel: %v", err)
		}
		got, _ := repo.Get(ctx, job.ID)
		if got.Status != database.JobCancelled {
			t.Errorf("Pending job should cancel immediately, got %s", got.Status)
		}
	})

	t.Run("CancelRunningIsCooperative", func(t *testing.T) {
		job := &database.Job{Type: database.JobTypeEmbedding, Scope: "lib"}
		repo.Enqueue(ctx, job)
		claimed, _ := repo.ClaimNext(ctx, database.JobTypeEmbedding)

		if err := repo.RequestCancel(ctx, claimed.ID); err != nil {
			t.Fatalf("Failed to request cancel: %v", err)
		}
		got, _ := repo.Get(ctx, claimed.ID)
		if got.Status != database.JobRunning {
			t.Errorf("Running job should keep running, got %s", got.Status)
		}

		flag, err := repo.IsCancelRequested(ctx, claimed.ID)
		if err != nil || !flag {
			t.Errorf("Expected cancel flag set, got %v %v", flag, err)
		}

		if err := repo.MarkCancelled(ctx, claimed.ID); err != nil {
			t.Fatalf("Failed to mark cancelled: %v", err)
		}
		got, _ = repo.Get(ctx, claimed.ID)
		if got.Status != database.JobCancelled {
			t.Errorf("Expected cancelled, got %s", got.Status)
		}
	})

	t.Run("NegativeDeltaRejected", func(t *testing.T) {
		job := &database.Job{Type: database.JobTypeMetadata, Scope: "lib"}
		repo.Enqueue(ctx, job)
		if err := repo.Advance(ctx, job.ID, -1, 0); !errors.Is(err, database.ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestFaceAndPersonRepositories(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	media := NewMediaRepository(pool)
	faces := NewFaceRepository(pool, 512)
	persons := NewPersonRepository(pool)

	item := testMedia("lib", "faces.jpg")
	if err := media.Create(ctx, item); err != nil {
		t.Fatalf("Failed to create media: %v", err)
	}

	embedding := make([]float32, 512)
	for i := range embedding {
		embedding[i] = float32(i) / 512.0
	}

	t.Run("ReplaceForMedia", func(t *testing.T) {
		in := []*database.Face{
			{Scope: "lib", BBox: []float64{10, 20, 100, 150}, DetScore: 0.95, Embedding: embedding},
			{Scope: "lib", BBox: []float64{200, 50, 300, 200}, DetScore: 0.88, Embedding: embedding},
		}
		if err := faces.ReplaceForMedia(ctx, item.ID, in); err != nil {
			t.Fatalf("Failed to replace faces: %v", err)
		}

		// Re-running detection replaces, never duplicates.
		if err := faces.ReplaceForMedia(ctx, item.ID, in[:1]); err != nil {
			t.Fatalf("Failed to replace faces again: %v", err)
		}
		got, err := faces.ListByMedia(ctx, item.ID)
		if err != nil {
			t.Fatalf("Failed to list faces: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("Expected 1 face after replace, got %d", len(got))
		}
		if len(got[0].Embedding) != 512 {
			t.Errorf("Expected 512-dim embedding, got %d", len(got[0].Embedding))
		}
	})

	t.Run("DimValidated", func(t *testing.T) {
		bad := []*database.Face{{Scope: "lib", BBox: []float64{0, 0, 1, 1}, Embedding: make([]float32, 128)}}
		if err := faces.ReplaceForMedia(ctx, item.ID, bad); !errors.Is(err, database.ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("AssignAndClearPerson", func(t *testing.T) {
		p := &database.Person{Scope: "lib", Centroid: embedding, FaceCount: 0}
		if err := persons.Create(ctx, p); err != nil {
			t.Fatalf("Failed to create person: %v", err)
		}

		got, _ := faces.ListByMedia(ctx, item.ID)
		if err := faces.AssignPerson(ctx, got[0].ID, p.ID, false); err != nil {
			t.Fatalf("Failed to assign: %v", err)
		}

		byPerson, _ := faces.ListByPerson(ctx, p.ID)
		if len(byPerson) != 1 {
			t.Fatalf("Expected 1 face for person, got %d", len(byPerson))
		}

		unassigned, _ := faces.ListUnassigned(ctx, "lib")
		for _, f := range unassigned {
			if f.ID == got[0].ID {
				t.Error("Assigned face still listed as unassigned")
			}
		}

		// Deleting the person keeps the faces.
		if err := persons.Delete(ctx, p.ID); err != nil {
			t.Fatalf("Failed to delete person: %v", err)
		}
		after, _ := faces.ListByMedia(ctx, item.ID)
		if len(after) != 1 {
			t.Error("Face lost when person deleted")
		}
		if after[0].PersonID != "" {
			t.Error("Face still references deleted person")
		}
	})
}

func TestEmbeddingRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	media := NewMediaRepository(pool)
	repo := NewEmbeddingRepository(pool, 768)

	makeVec := func(offset int) []float32 {
		v := make([]float32, 768)
		for i := range v {
			v[i] = float32(i+offset) / 768.0
		}
		return v
	}

	var ids []string
	for i := 0; i < 5; i++ {
		item := testMedia("lib", fmt.Sprintf("emb%d.jpg", i))
		if err := media.Create(ctx, item); err != nil {
			t.Fatalf("Failed to create media: %v", err)
		}
		ids = append(ids, item.ID)
		err := repo.Upsert(ctx, &database.StoredEmbedding{
			MediaID: item.ID, Scope: "lib", Embedding: makeVec(i * 10), Model: "clip",
		})
		if err != nil {
			t.Fatalf("Failed to upsert embedding: %v", err)
		}
	}

	t.Run("Count", func(t *testing.T) {
		n, err := repo.Count(ctx, "lib")
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if n != 5 {
			t.Errorf("Expected 5, got %d", n)
		}
	})

	t.Run("FindSimilar", func(t *testing.T) {
		results, err := repo.FindSimilar(ctx, "lib", makeVec(0), 3, nil)
		if err != nil {
			t.Fatalf("Failed to find similar: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("Expected 3 results, got %d", len(results))
		}
		if results[0].MediaID != ids[0] {
			t.Errorf("Expected exact match first, got %s", results[0].MediaID)
		}
		for i := 1; i < len(results); i++ {
			if results[i].Similarity > results[i-1].Similarity {
				t.Error("Results not sorted by similarity")
			}
		}
	})

	t.Run("FindSimilarWithAllowed", func(t *testing.T) {
		allowed := []string{ids[3], ids[4]}
		results, err := repo.FindSimilar(ctx, "lib", makeVec(0), 10, allowed)
		if err != nil {
			t.Fatalf("Failed to find similar: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(results))
		}
		for _, r := range results {
			if r.MediaID != ids[3] && r.MediaID != ids[4] {
				t.Errorf("Result outside allowed set: %s", r.MediaID)
			}
		}
	})

	t.Run("DimValidated", func(t *testing.T) {
		err := repo.Upsert(ctx, &database.StoredEmbedding{
			MediaID: ids[0], Scope: "lib", Embedding: make([]float32, 128),
		})
		if !errors.Is(err, database.ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestAlbumRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewAlbumRepository(pool)

	t.Run("SaveGetDelete", func(t *testing.T) {
		a := &database.SmartAlbum{Scope: "lib", Name: "Dogs", Query: "photos with dogs"}
		if err := repo.SaveSmartAlbum(ctx, a); err != nil {
			t.Fatalf("Failed to save: %v", err)
		}

		got, err := repo.GetSmartAlbum(ctx, "lib", "dogs")
		if err != nil {
			t.Fatalf("Failed to get by case-folded name: %v", err)
		}
		if got.Query != "photos with dogs" {
			t.Errorf("Unexpected query: %s", got.Query)
		}

		// Saving under the same name replaces the query.
		a2 := &database.SmartAlbum{Scope: "lib", Name: "dogs", Query: "golden retrievers"}
		if err := repo.SaveSmartAlbum(ctx, a2); err != nil {
			t.Fatalf("Failed to re-save: %v", err)
		}
		got, _ = repo.GetSmartAlbum(ctx, "lib", "Dogs")
		if got.Query != "golden retrievers" {
			t.Errorf("Expected replaced query, got %s", got.Query)
		}

		if err := repo.DeleteSmartAlbum(ctx, "lib", "DOGS"); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
		if _, err := repo.GetSmartAlbum(ctx, "lib", "dogs"); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}
