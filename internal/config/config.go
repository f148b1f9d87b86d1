package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Library    LibraryConfig
	Database   DatabaseConfig
	Model      ModelConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	Pipeline   PipelineConfig
	Dedup      DedupConfig
	Cluster    ClusterConfig
	Search     SearchConfig
	Thumbnails ThumbnailConfig
	Embeddings EmbeddingConfig
}

type LibraryConfig struct {
	Root  string // filesystem root of the photo library
	Scope string // default scope name for CLI commands
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the semantic HNSW index (optional, rebuilt on startup if empty)
}

type ModelConfig struct {
	URL            string  // embedding/detection server base URL, defaults to http://localhost:8000
	RequestsPerSec float64 // rate limit for model calls (default 10)
	Burst          int     // rate limiter burst (default 5)
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type PipelineConfig struct {
	Concurrency        int `yaml:"concurrency"`
	MaxStageRetries    int `yaml:"max_stage_retries"`
	RetryBaseBackoffMs int `yaml:"retry_base_backoff_ms"`

	// ObjectDetector selects the object-label provider: "modelserver" (default),
	// "openai" or "gemini".
	ObjectDetector string `yaml:"-"`
}

type DedupConfig struct {
	HammingThreshold int `yaml:"hamming_threshold"`
	WindowDays       int `yaml:"window_days"`
}

type ClusterConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

type ThumbnailConfig struct {
	Sizes   map[string]int `yaml:"sizes"`
	Quality int            `yaml:"quality"`
}

type EmbeddingConfig struct {
	SemanticDim int `yaml:"semantic_dim"`
	FaceDim     int `yaml:"face_dim"`
}

// defaultsFile mirrors the structure of the embedded defaults.yaml.
type defaultsFile struct {
	Pipeline   PipelineConfig  `yaml:"pipeline"`
	Dedup      DedupConfig     `yaml:"dedup"`
	Cluster    ClusterConfig   `yaml:"cluster"`
	Search     SearchConfig    `yaml:"search"`
	Thumbnails ThumbnailConfig `yaml:"thumbnails"`
	Embeddings EmbeddingConfig `yaml:"embeddings"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var defaults defaultsFile
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Library: LibraryConfig{
			Root:  envString("LIBRARY_ROOT", "."),
			Scope: envString("LIBRARY_SCOPE", "default"),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Model: ModelConfig{
			URL:            envString("MODEL_SERVER_URL", "http://localhost:8000"),
			RequestsPerSec: envFloat("MODEL_REQUESTS_PER_SEC", 10),
			Burst:          envInt("MODEL_BURST", 5),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Pipeline: PipelineConfig{
			Concurrency:        envInt("PIPELINE_CONCURRENCY", defaults.Pipeline.Concurrency),
			MaxStageRetries:    envInt("PIPELINE_MAX_STAGE_RETRIES", defaults.Pipeline.MaxStageRetries),
			RetryBaseBackoffMs: envInt("PIPELINE_RETRY_BACKOFF_MS", defaults.Pipeline.RetryBaseBackoffMs),
			ObjectDetector:     envString("OBJECT_DETECTOR", "modelserver"),
		},
		Dedup: DedupConfig{
			HammingThreshold: envInt("DEDUP_HAMMING_THRESHOLD", defaults.Dedup.HammingThreshold),
			WindowDays:       envInt("DEDUP_WINDOW_DAYS", defaults.Dedup.WindowDays),
		},
		Cluster: ClusterConfig{
			SimilarityThreshold: envFloat("CLUSTER_SIMILARITY_THRESHOLD", defaults.Cluster.SimilarityThreshold),
		},
		Search: SearchConfig{
			DefaultLimit: envInt("SEARCH_DEFAULT_LIMIT", defaults.Search.DefaultLimit),
			MaxLimit:     envInt("SEARCH_MAX_LIMIT", defaults.Search.MaxLimit),
		},
		Thumbnails: ThumbnailConfig{
			Sizes:   defaults.Thumbnails.Sizes,
			Quality: envInt("THUMBNAIL_QUALITY", defaults.Thumbnails.Quality),
		},
		Embeddings: EmbeddingConfig{
			SemanticDim: envInt("EMBEDDING_DIM", defaults.Embeddings.SemanticDim),
			FaceDim:     envInt("FACE_EMBEDDING_DIM", defaults.Embeddings.FaceDim),
		},
	}
}
