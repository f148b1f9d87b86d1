package database

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex wraps an in-memory HNSW graph over semantic media embeddings,
// keyed by media id. It accelerates nearest-neighbor search; the database
// remains the source of truth.
type HNSWIndex struct {
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string] // for persistence
	known      map[string]struct{}      // ids present in the index
	mu         sync.RWMutex
	path       string
}

// NewHNSWIndex creates a new empty index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{known: make(map[string]struct{})}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given embeddings.
func (h *HNSWIndex) Build(embeddings []StoredEmbedding) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(embeddings) == 0 {
		h.graph = nil
		h.savedGraph = nil
		h.known = make(map[string]struct{})
		return nil
	}

	g := newGraph()
	h.known = make(map[string]struct{}, len(embeddings))
	for i := range embeddings {
		emb := &embeddings[i]
		if len(emb.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(emb.MediaID, emb.Embedding))
		h.known[emb.MediaID] = struct{}{}
	}

	h.graph = g
	return nil
}

// Add inserts or refreshes a single embedding.
func (h *HNSWIndex) Add(emb *StoredEmbedding) {
	if len(emb.Embedding) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(emb.MediaID, emb.Embedding))
	h.known[emb.MediaID] = struct{}{}
}

// Delete removes an embedding from lookup. The underlying graph keeps the
// node (HNSW has no true deletion); filtering happens via the known set.
func (h *HNSWIndex) Delete(mediaID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.known, mediaID)
}

// Search returns the ids and cosine distances of the k nearest neighbors.
func (h *HNSWIndex) Search(query []float32, k int) ([]string, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[string]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, k)
	} else {
		neighbors = h.graph.Search(query, k)
	}

	ids := make([]string, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		if _, ok := h.known[n.Key]; !ok {
			continue // deleted after indexing
		}
		ids = append(ids, n.Key)
		distances = append(distances, CosineDistance(query, n.Value))
	}
	return ids, distances, nil
}

// Count returns the number of searchable embeddings.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.known)
}

// SetPath sets the persistence path used by Save.
func (h *HNSWIndex) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Save persists the graph to disk when a path is configured.
func (h *HNSWIndex) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil
	}
	if h.graph == nil {
		// Remove existing file if index is empty (best-effort cleanup).
		_ = os.Remove(h.path)
		return nil
	}

	f, err := os.Create(h.path)
	if err != nil {
		return fmt.Errorf("creating HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}

// Load reads a previously saved graph. Missing files are not an error; the
// caller rebuilds from the database instead.
func (h *HNSWIndex) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("loading HNSW index: %w", err)
	}
	h.savedGraph = saved
	return nil
}

// RefreshKnown rebuilds the searchable id set after loading from disk.
func (h *HNSWIndex) RefreshKnown(embeddings []StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.known = make(map[string]struct{}, len(embeddings))
	for i := range embeddings {
		h.known[embeddings[i].MediaID] = struct{}{}
	}
}
