// Package pipeline runs the per-item enrichment stages over a scope's media.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/ai"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/cluster"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/observability"
)

// FileSource reads original media bytes by scope-relative path.
type FileSource interface {
	ReadFile(ctx context.Context, scope, path string) ([]byte, error)
}

// ThumbnailSink persists derived thumbnail bytes and returns a reference.
type ThumbnailSink interface {
	Store(ctx context.Context, mediaID, size string, data []byte) (string, error)
}

// VectorIndex receives new semantic embeddings as they are computed. Optional.
type VectorIndex interface {
	Add(emb *database.StoredEmbedding)
}

// Deps bundles the pipeline collaborators.
type Deps struct {
	Files    FileSource
	Thumbs   ThumbnailSink
	Embedder ai.SemanticEmbedder
	Faces    ai.FaceDetector
	Objects  ai.ObjectDetector
	Clusters *cluster.Engine
	Index    VectorIndex            // optional
	Metrics  *observability.Metrics // optional
}

// Pipeline executes enrichment jobs with a bounded worker pool.
type Pipeline struct {
	store *database.Store
	cfg   *config.Config
	deps  Deps
}

// New creates a pipeline.
func New(store *database.Store, cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{store: store, cfg: cfg, deps: deps}
}

// workItems resolves which media a job covers. An enrich job covers every
// item with any pending stage; a single-stage job covers items pending that
// stage.
func (p *Pipeline) workItems(ctx context.Context, job *database.Job) ([]*database.MediaItem, *database.Stage, error) {
	if stage, ok := database.JobStage(job.Type); ok {
		items, err := p.store.Media.ListPendingStage(ctx, job.Scope, stage)
		return items, &stage, err
	}

	all, err := p.store.Media.ListByScope(ctx, job.Scope)
	if err != nil {
		return nil, nil, err
	}
	var items []*database.MediaItem
	for _, item := range all {
		for _, s := range database.Stages {
			if item.StageState(s).Status == database.StagePending {
				items = append(items, item)
				break
			}
		}
	}
	return items, nil, nil
}

// Run executes one claimed enrichment job to completion. Cancellation is
// cooperative and checked between items; in-flight items finish.
func (p *Pipeline) Run(ctx context.Context, job *database.Job) error {
	items, only, err := p.workItems(ctx, job)
	if err != nil {
		p.store.Jobs.Fail(ctx, job.ID, err.Error())
		return fmt.Errorf("resolve work items: %w", err)
	}

	if err := p.store.Jobs.SetTotal(ctx, job.ID, len(items)); err != nil {
		return fmt.Errorf("set job total: %w", err)
	}

	pool, err := ants.NewPool(p.cfg.Pipeline.Concurrency)
	if err != nil {
		p.store.Jobs.Fail(ctx, job.ID, err.Error())
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, item := range items {
		item := item
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			// Item boundary: a requested cancel stops here, in-flight items
			// finish and stay counted.
			requested, err := p.store.Jobs.IsCancelRequested(ctx, job.ID)
			if err != nil {
				log.Printf("pipeline: cancel check: %v", err)
			}
			if requested {
				return
			}
			failed := p.processItem(ctx, item, only)
			if failed {
				p.store.Jobs.Advance(ctx, job.ID, 1, 1)
			} else {
				p.store.Jobs.Advance(ctx, job.ID, 1, 0)
			}
		})
		if submitErr != nil {
			wg.Done()
			p.store.Jobs.Advance(ctx, job.ID, 1, 1)
			log.Printf("pipeline: submit %s: %v", item.ID, submitErr)
		}
	}

	wg.Wait()

	requested, err := p.store.Jobs.IsCancelRequested(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("check cancel flag: %w", err)
	}
	if requested {
		return p.store.Jobs.MarkCancelled(ctx, job.ID)
	}
	return p.store.Jobs.Complete(ctx, job.ID)
}

// processItem runs the stages an item still needs. Returns true when at
// least one stage exhausted its retries.
func (p *Pipeline) processItem(ctx context.Context, item *database.MediaItem, only *database.Stage) bool {
	data, err := p.deps.Files.ReadFile(ctx, item.Scope, item.Path)
	if err != nil {
		log.Printf("pipeline: read %s: %v", item.Path, err)
		msg := fmt.Sprintf("read file: %v", err)
		for _, stage := range p.stagesFor(item, only) {
			p.store.Media.SetStage(ctx, item.ID, stage, database.StageState{
				Status: database.StageError, Error: msg, Attempts: 1,
			})
		}
		return true
	}

	anyFailed := false
	for _, stage := range p.stagesFor(item, only) {
		// Re-read stage states so dependency checks see earlier results.
		current, err := p.store.Media.Get(ctx, item.ID)
		if err != nil {
			log.Printf("pipeline: reload %s: %v", item.ID, err)
			return true
		}

		if item.Kind == database.KindVideo && stage != database.StageMetadata {
			p.store.Media.SetStage(ctx, item.ID, stage, database.StageState{Status: database.StageSkipped})
			continue
		}
		if !current.DependenciesMet(stage) {
			p.store.Media.SetStage(ctx, item.ID, stage, database.StageState{
				Status: database.StageError, Error: "dependency not satisfied",
			})
			anyFailed = true
			continue
		}

		if !p.runStage(ctx, current, stage, data) {
			anyFailed = true
			continue
		}

		// Near-duplicate detection rides on a fresh thumbnail pass; it is
		// advisory and its errors never fail the stage.
		if stage == database.StageThumbnail {
			if err := p.dedupPass(ctx, current); err != nil {
				log.Printf("pipeline: dedup %s: %v", item.ID, err)
			}
		}
	}
	return anyFailed
}

// stagesFor returns the stages this job should attempt, in dependency order.
func (p *Pipeline) stagesFor(item *database.MediaItem, only *database.Stage) []database.Stage {
	if only != nil {
		return []database.Stage{*only}
	}
	var stages []database.Stage
	for _, s := range database.Stages {
		if item.StageState(s).Status == database.StagePending {
			stages = append(stages, s)
		}
	}
	return stages
}

// runStage executes one stage with retries and exponential backoff, then
// records the terminal stage state. Returns true on success.
func (p *Pipeline) runStage(ctx context.Context, item *database.MediaItem, stage database.Stage, data []byte) bool {
	maxAttempts := p.cfg.Pipeline.MaxStageRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := time.Duration(p.cfg.Pipeline.RetryBaseBackoffMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		lastErr = p.executeStage(ctx, item, stage, data)
		if p.deps.Metrics != nil {
			p.deps.Metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
		}
		if lastErr == nil {
			p.store.Media.SetStage(ctx, item.ID, stage, database.StageState{
				Status: database.StageDone, Attempts: attempt,
			})
			return true
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				attempt = maxAttempts
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	log.Printf("pipeline: stage %s for %s: %v", stage, item.Path, lastErr)
	if p.deps.Metrics != nil {
		p.deps.Metrics.StageFailures.WithLabelValues(string(stage)).Inc()
	}
	p.store.Media.SetStage(ctx, item.ID, stage, database.StageState{
		Status: database.StageError, Error: lastErr.Error(), Attempts: maxAttempts,
	})
	return false
}

func (p *Pipeline) executeStage(ctx context.Context, item *database.MediaItem, stage database.Stage, data []byte) error {
	switch stage {
	case database.StageMetadata:
		return p.metadataStage(ctx, item, data)
	case database.StageThumbnail:
		return p.thumbnailStage(ctx, item, data)
	case database.StageFaces:
		return p.facesStage(ctx, item, data)
	case database.StageEmbedding:
		return p.embeddingStage(ctx, item, data)
	case database.StageObjects:
		return p.objectsStage(ctx, item, data)
	}
	return fmt.Errorf("%w: unknown stage %q", database.ErrInvalidArgument, stage)
}

func (p *Pipeline) facesStage(ctx context.Context, item *database.MediaItem, data []byte) error {
	detections, err := p.deps.Faces.DetectFaces(ctx, data)
	if err != nil {
		return fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]*database.Face, 0, len(detections))
	for _, d := range detections {
		faces = append(faces, &database.Face{
			MediaID:   item.ID,
			Scope:     item.Scope,
			BBox:      d.BBox,
			DetScore:  d.DetScore,
			Embedding: d.Embedding,
		})
	}
	if err := p.store.Faces.ReplaceForMedia(ctx, item.ID, faces); err != nil {
		return fmt.Errorf("store faces: %w", err)
	}

	stored, err := p.store.Faces.ListByMedia(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("list stored faces: %w", err)
	}
	for _, f := range stored {
		if _, err := p.deps.Clusters.Assign(ctx, f); err != nil {
			// Clustering is best-effort; the face itself is stored.
			if !errors.Is(err, database.ErrInvalidArgument) {
				log.Printf("pipeline: cluster face %s: %v", f.ID, err)
			}
		}
	}
	return nil
}

func (p *Pipeline) embeddingStage(ctx context.Context, item *database.MediaItem, data []byte) error {
	embedding, err := p.deps.Embedder.EmbedImage(ctx, data)
	if err != nil {
		return fmt.Errorf("embed image: %w", err)
	}
	stored := &database.StoredEmbedding{
		MediaID:   item.ID,
		Scope:     item.Scope,
		Embedding: embedding,
		Model:     "clip",
		Dim:       len(embedding),
	}
	if err := p.store.Embeddings.Upsert(ctx, stored); err != nil {
		return fmt.Errorf("store embedding: %w", err)
	}
	if p.deps.Index != nil {
		p.deps.Index.Add(stored)
	}
	return nil
}

func (p *Pipeline) objectsStage(ctx context.Context, item *database.MediaItem, data []byte) error {
	labels, err := p.deps.Objects.DetectObjects(ctx, data)
	if err != nil {
		return fmt.Errorf("detect objects: %w", err)
	}

	tags := make([]database.Tag, 0, len(labels))
	for _, l := range labels {
		tags = append(tags, database.Tag{
			MediaID:    item.ID,
			Label:      l.Name,
			Confidence: l.Confidence,
			Source:     p.deps.Objects.Name(),
		})
	}
	if err := p.store.Tags.ReplaceForMedia(ctx, item.ID, p.deps.Objects.Name(), tags); err != nil {
		return fmt.Errorf("store tags: %w", err)
	}
	return nil
}
