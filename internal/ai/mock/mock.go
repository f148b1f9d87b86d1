// Package mock provides deterministic in-process model backends for tests
// and offline development.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/ai"
)

// deterministicVector derives a unit vector from arbitrary bytes so equal
// inputs always embed identically.
func deterministicVector(data []byte, dim int) []float32 {
	sum := sha256.Sum256(data)
	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		seed := binary.LittleEndian.Uint32(sum[(i*4)%28:])
		v := float32(int32(seed+uint32(i)))/float32(math.MaxInt32) + 1e-3
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Embedder embeds images and text deterministically. Set Err to make every
// call fail.
type Embedder struct {
	Dim int
	Err error

	mu    sync.Mutex
	calls int
}

// NewEmbedder creates a deterministic embedder of the given dimensionality.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{Dim: dim}
}

// Calls returns how many embed calls were made.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Embedder) embed(data []byte) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	return deterministicVector(data, e.Dim), nil
}

// EmbedImage implements ai.SemanticEmbedder.
func (e *Embedder) EmbedImage(_ context.Context, imageData []byte) ([]float32, error) {
	return e.embed(imageData)
}

// EmbedText implements ai.TextEmbedder.
func (e *Embedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	return e.embed([]byte(text))
}

// FaceDetector returns a fixed set of faces per call. Set Err to fail.
type FaceDetector struct {
	Faces []ai.FaceDetection
	Err   error
}

// DetectFaces implements ai.FaceDetector.
func (d *FaceDetector) DetectFaces(_ context.Context, _ []byte) ([]ai.FaceDetection, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Faces, nil
}

// ObjectDetector returns a fixed label set per call. Set Err to fail.
type ObjectDetector struct {
	Labels []ai.Label
	Err    error
}

// Name implements ai.ObjectDetector.
func (d *ObjectDetector) Name() string {
	return "mock"
}

// DetectObjects implements ai.ObjectDetector.
func (d *ObjectDetector) DetectObjects(_ context.Context, _ []byte) ([]ai.Label, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Labels, nil
}
