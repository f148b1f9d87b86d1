package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/ai"
	aimock "github.com/suryaprakashreddyadapa/photo-webapp/internal/ai/mock"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/cluster"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		Pipeline:   config.PipelineConfig{Concurrency: 2, MaxStageRetries: 2, RetryBaseBackoffMs: 1},
		Dedup:      config.DedupConfig{HammingThreshold: 10, WindowDays: 30},
		Cluster:    config.ClusterConfig{SimilarityThreshold: 0.6},
		Thumbnails: config.ThumbnailConfig{Sizes: map[string]int{"small": 32, "medium": 64}, Quality: 85},
		Embeddings: config.EmbeddingConfig{SemanticDim: 8, FaceDim: 4},
	}
}

type testEnv struct {
	store *database.Store
	root  string
	thumb string
	deps  Deps
	cfg   *config.Config
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := mock.NewStore(8)
	cfg := testConfig()
	root := t.TempDir()
	thumb := t.TempDir()

	deps := Deps{
		Files:    &LocalFiles{Root: root},
		Thumbs:   &DirSink{Dir: thumb},
		Embedder: aimock.NewEmbedder(8),
		Faces:    &aimock.FaceDetector{},
		Objects:  &aimock.ObjectDetector{Labels: []ai.Label{{Name: "dog", Confidence: 0.9}}},
		Clusters: cluster.New(store, cfg.Cluster.SimilarityThreshold),
	}
	return &testEnv{store: store, root: root, thumb: thumb, deps: deps, cfg: cfg}
}

func (e *testEnv) addPhoto(t *testing.T, path string, c color.RGBA) *database.MediaItem {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 128, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 128; x++ {
			img.Set(x, y, c)
		}
	}
	full := filepath.Join(e.root, path)
	os.MkdirAll(filepath.Dir(full), 0o755)
	f, err := os.Create(full)
	if err != nil {
		t.Fatalf("Failed to create photo: %v", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("Failed to encode photo: %v", err)
	}

	item := &database.MediaItem{
		Scope:    "lib",
		Path:     path,
		Filename: filepath.Base(path),
		Size:     1,
		ModTime:  time.Now().Add(-time.Hour),
		Kind:     database.KindPhoto,
		Stages:   database.NewStageSet(),
	}
	if err := e.store.Media.Create(context.Background(), item); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	return item
}

func (e *testEnv) runEnrich(t *testing.T) *database.Job {
	t.Helper()
	ctx := context.Background()
	job := &database.Job{Type: database.JobTypeEnrich, Scope: "lib"}
	if err := e.store.Jobs.Enqueue(ctx, job); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	claimed, err := e.store.Jobs.ClaimNext(ctx, database.JobTypeEnrich)
	if err != nil || claimed == nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if err := New(e.store, e.cfg, e.deps).Run(ctx, claimed); err != nil {
		t.Fatalf("Pipeline run failed: %v", err)
	}
	got, _ := e.store.Jobs.Get(ctx, claimed.ID)
	return got
}

func TestEnrichCompletesAllStages(t *testing.T) {
	env := newEnv(t)
	env.deps.Faces = &aimock.FaceDetector{Faces: []ai.FaceDetection{
		{BBox: []float64{1, 2, 30, 40}, DetScore: 0.93, Embedding: []float32{1, 0, 0, 0}},
	}}
	item := env.addPhoto(t, "IMG_20240615_120301.jpg", color.RGBA{200, 30, 30, 255})

	job := env.runEnrich(t)
	if job.Status != database.JobCompleted {
		t.Fatalf("Expected completed, got %s", job.Status)
	}
	if job.ProcessedItems != 1 || job.FailedItems != 0 {
		t.Errorf("Expected 1/0 counters, got %d/%d", job.ProcessedItems, job.FailedItems)
	}

	ctx := context.Background()
	got, _ := env.store.Media.Get(ctx, item.ID)
	for _, stage := range database.Stages {
		if got.StageState(stage).Status != database.StageDone {
			t.Errorf("Stage %s = %s, want done", stage, got.StageState(stage).Status)
		}
	}

	if got.Width != 128 || got.Height != 96 {
		t.Errorf("Dimensions = %dx%d, want 128x96", got.Width, got.Height)
	}
	want := time.Date(2024, 6, 15, 12, 3, 1, 0, time.UTC)
	if got.TakenAt == nil || !got.TakenAt.Equal(want) {
		t.Errorf("TakenAt = %v, want %v", got.TakenAt, want)
	}

	for _, size := range []string{"small", "medium"} {
		if _, err := os.Stat(filepath.Join(env.thumb, item.ID, size+".jpg")); err != nil {
			t.Errorf("Missing %s thumbnail: %v", size, err)
		}
	}

	faces, _ := env.store.Faces.ListByMedia(ctx, item.ID)
	if len(faces) != 1 {
		t.Fatalf("Expected 1 face, got %d", len(faces))
	}
	if faces[0].PersonID == "" {
		t.Error("Face should be clustered into a person")
	}

	if _, err := env.store.Embeddings.Get(ctx, item.ID); err != nil {
		t.Errorf("Missing embedding: %v", err)
	}

	tags, _ := env.store.Tags.ListByMedia(ctx, item.ID)
	if len(tags) != 1 || tags[0].Label != "dog" {
		t.Errorf("Expected dog tag, got %v", tags)
	}
}

func TestTakenAtFallsBackToModTime(t *testing.T) {
	env := newEnv(t)
	item := env.addPhoto(t, "holiday.jpg", color.RGBA{10, 10, 10, 255})

	env.runEnrich(t)

	got, _ := env.store.Media.Get(context.Background(), item.ID)
	if got.TakenAt == nil || !got.TakenAt.Equal(item.ModTime) {
		t.Errorf("TakenAt = %v, want mod time %v", got.TakenAt, item.ModTime)
	}
}

func TestIndependentStageFailureDoesNotBlockOthers(t *testing.T) {
	env := newEnv(t)
	env.deps.Faces = &aimock.FaceDetector{Err: errors.New("detector down")}
	item := env.addPhoto(t, "a.jpg", color.RGBA{50, 100, 150, 255})

	job := env.runEnrich(t)
	if job.Status != database.JobCompleted {
		t.Fatalf("Expected completed, got %s", job.Status)
	}
	if job.FailedItems != 1 {
		t.Errorf("Expected 1 failed item, got %d", job.FailedItems)
	}

	got, _ := env.store.Media.Get(context.Background(), item.ID)
	if got.StageState(database.StageFaces).Status != database.StageError {
		t.Errorf("Faces stage = %s, want error", got.StageState(database.StageFaces).Status)
	}
	for _, stage := range []database.Stage{database.StageMetadata, database.StageThumbnail, database.StageEmbedding, database.StageObjects} {
		if got.StageState(stage).Status != database.StageDone {
			t.Errorf("Stage %s = %s, want done", stage, got.StageState(stage).Status)
		}
	}
}

func TestStageRetriesThenRecordsError(t *testing.T) {
	env := newEnv(t)
	embedder := aimock.NewEmbedder(8)
	embedder.Err = ai.ErrModelUnavailable
	env.deps.Embedder = embedder
	item := env.addPhoto(t, "a.jpg", color.RGBA{50, 100, 150, 255})

	env.runEnrich(t)

	got, _ := env.store.Media.Get(context.Background(), item.ID)
	state := got.StageState(database.StageEmbedding)
	if state.Status != database.StageError {
		t.Fatalf("Expected error stage, got %s", state.Status)
	}
	if state.Attempts != env.cfg.Pipeline.MaxStageRetries {
		t.Errorf("Attempts = %d, want %d", state.Attempts, env.cfg.Pipeline.MaxStageRetries)
	}
	if embedder.Calls() != env.cfg.Pipeline.MaxStageRetries {
		t.Errorf("Embedder called %d times, want %d", embedder.Calls(), env.cfg.Pipeline.MaxStageRetries)
	}
}

func TestReprocessSingleStage(t *testing.T) {
	env := newEnv(t)
	item := env.addPhoto(t, "a.jpg", color.RGBA{50, 100, 150, 255})
	env.runEnrich(t)

	ctx := context.Background()
	env.store.Media.ResetStages(ctx, item.ID, []database.Stage{database.StageObjects})

	job := &database.Job{Type: database.JobTypeObjects, Scope: "lib"}
	env.store.Jobs.Enqueue(ctx, job)
	claimed, _ := env.store.Jobs.ClaimNext(ctx, database.JobTypeObjects)
	if err := New(env.store, env.cfg, env.deps).Run(ctx, claimed); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	final, _ := env.store.Jobs.Get(ctx, claimed.ID)
	if final.TotalItems != 1 || final.ProcessedItems != 1 {
		t.Errorf("Expected 1/1, got %d/%d", final.TotalItems, final.ProcessedItems)
	}
	got, _ := env.store.Media.Get(ctx, item.ID)
	if got.StageState(database.StageObjects).Status != database.StageDone {
		t.Error("Objects stage should be done after reprocess")
	}
}

func TestVideoStagesSkipped(t *testing.T) {
	env := newEnv(t)
	full := filepath.Join(env.root, "clip.mp4")
	os.WriteFile(full, []byte("not really a video"), 0o644)
	item := &database.MediaItem{
		Scope: "lib", Path: "clip.mp4", Filename: "clip.mp4",
		ModTime: time.Now(), Kind: database.KindVideo,
		Stages: database.NewStageSet(),
	}
	env.store.Media.Create(context.Background(), item)

	job := env.runEnrich(t)
	if job.FailedItems != 0 {
		t.Errorf("Video should not fail, got %d failed", job.FailedItems)
	}

	got, _ := env.store.Media.Get(context.Background(), item.ID)
	if got.StageState(database.StageMetadata).Status != database.StageDone {
		t.Error("Video metadata stage should be done")
	}
	for _, stage := range []database.Stage{database.StageThumbnail, database.StageFaces, database.StageEmbedding, database.StageObjects} {
		if got.StageState(stage).Status != database.StageSkipped {
			t.Errorf("Video stage %s = %s, want skipped", stage, got.StageState(stage).Status)
		}
	}
}

func TestDedupRecordsNearDuplicates(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	// An already-enriched item with a perceptual hash one bit away.
	done := env.addPhoto(t, "old.jpg", color.RGBA{1, 2, 3, 255})
	done.PHashBits = 0xFF00FF00
	env.store.Media.Update(ctx, done)
	for _, stage := range database.Stages {
		env.store.Media.SetStage(ctx, done.ID, stage, database.StageState{Status: database.StageDone})
	}

	item := env.addPhoto(t, "new.jpg", color.RGBA{1, 2, 3, 255})
	item.PHashBits = 0xFF00FF01
	env.store.Media.Update(ctx, item)

	env.runEnrich(t)

	dups, err := env.store.Media.ListNearDuplicates(ctx, item.ID)
	if err != nil {
		t.Fatalf("Failed to list near duplicates: %v", err)
	}
	if len(dups) != 1 {
		t.Fatalf("Expected 1 near duplicate, got %d", len(dups))
	}
	if dups[0].Distance != 1 {
		t.Errorf("Distance = %d, want 1", dups[0].Distance)
	}
}

func TestCancelStopsAtItemBoundary(t *testing.T) {
	env := newEnv(t)
	env.cfg.Pipeline.Concurrency = 1
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"} {
		env.addPhoto(t, name, color.RGBA{9, 9, 9, 255})
	}

	ctx := context.Background()
	job := &database.Job{Type: database.JobTypeEnrich, Scope: "lib"}
	env.store.Jobs.Enqueue(ctx, job)
	claimed, _ := env.store.Jobs.ClaimNext(ctx, database.JobTypeEnrich)

	// The embedder cancels the job during the second item's stages.
	var embedded int
	env.deps.Embedder = embedderFunc(func(_ context.Context, data []byte) ([]float32, error) {
		embedded++
		if embedded == 2 {
			env.store.Jobs.RequestCancel(ctx, claimed.ID)
		}
		return aimock.NewEmbedder(8).EmbedImage(ctx, data)
	})

	if err := New(env.store, env.cfg, env.deps).Run(ctx, claimed); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, _ := env.store.Jobs.Get(ctx, claimed.ID)
	if got.Status != database.JobCancelled {
		t.Fatalf("Expected cancelled, got %s", got.Status)
	}
	if got.ProcessedItems != 2 {
		t.Errorf("Processed = %d, want exactly the attempted items (2)", got.ProcessedItems)
	}

	// Untouched items keep their pending stages.
	items, _ := env.store.Media.ListByScope(ctx, "lib")
	pending := 0
	for _, it := range items {
		if it.StageState(database.StageMetadata).Status == database.StagePending {
			pending++
		}
	}
	if pending != 2 {
		t.Errorf("Expected 2 untouched items, got %d", pending)
	}
}

type embedderFunc func(ctx context.Context, imageData []byte) ([]float32, error)

func (f embedderFunc) EmbedImage(ctx context.Context, imageData []byte) ([]float32, error) {
	return f(ctx, imageData)
}

func TestTakenAtFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want string // empty means nil
	}{
		{"IMG_20240615_120301.jpg", "2024-06-15T12:03:01Z"},
		{"2023-01-02 13.05.12.jpg", "2023-01-02T13:05:12Z"},
		{"20221231.png", "2022-12-31T00:00:00Z"},
		{"IMG_20241301_120000.jpg", ""}, // month 13
		{"holiday.jpg", ""},
		{"P1000123.jpg", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := takenAtFromFilename(tt.name)
			if tt.want == "" {
				if got != nil {
					t.Errorf("Expected nil, got %v", got)
				}
				return
			}
			want, _ := time.Parse(time.RFC3339, tt.want)
			if got == nil || !got.Equal(want) {
				t.Errorf("Got %v, want %v", got, want)
			}
		})
	}
}
