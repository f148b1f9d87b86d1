package database

// HNSW index parameters for semantic embeddings.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// than the caller asked for, so enough survive pre-filtering.
	HNSWSearchMultiplier = 3
)
