package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/ai"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/cluster"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database/postgres"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/observability"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/pipeline"
)

// openStore connects to PostgreSQL, applies pending migrations and wires the
// repositories.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.Pool, *database.Store, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return pool, postgres.NewStore(pool, cfg.Embeddings), nil
}

// newObjectDetector selects the object-label provider configured in
// PIPELINE_OBJECT_DETECTOR.
func newObjectDetector(ctx context.Context, cfg *config.Config, modelClient *ai.ModelClient) (ai.ObjectDetector, error) {
	switch cfg.Pipeline.ObjectDetector {
	case "", "modelserver":
		return modelClient, nil
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required for the openai object detector")
		}
		return ai.NewOpenAILabeler(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required for the gemini object detector")
		}
		return ai.NewGeminiLabeler(ctx, cfg.Gemini.APIKey)
	default:
		return nil, fmt.Errorf("unknown object detector %q", cfg.Pipeline.ObjectDetector)
	}
}

// thumbnailDir returns the thumbnail cache directory under the library root.
func thumbnailDir(cfg *config.Config) string {
	return filepath.Join(cfg.Library.Root, ".thumbnails")
}

// buildPipeline wires the enrichment pipeline with its model backends. index
// and metrics are optional.
func buildPipeline(ctx context.Context, cfg *config.Config, store *database.Store, metrics *observability.Metrics, index pipeline.VectorIndex) (*pipeline.Pipeline, *ai.ModelClient, error) {
	modelClient := ai.NewModelClient(cfg.Model)
	detector, err := newObjectDetector(ctx, cfg, modelClient)
	if err != nil {
		return nil, nil, err
	}

	clusters := cluster.New(store, cfg.Cluster.SimilarityThreshold)
	if metrics != nil {
		clusters.Clustered = metrics.FacesClusters
	}

	pipe := pipeline.New(store, cfg, pipeline.Deps{
		Files:    &pipeline.LocalFiles{Root: cfg.Library.Root},
		Thumbs:   &pipeline.DirSink{Dir: thumbnailDir(cfg)},
		Embedder: modelClient,
		Faces:    modelClient,
		Objects:  detector,
		Clusters: clusters,
		Index:    index,
		Metrics:  metrics,
	})
	return pipe, modelClient, nil
}
