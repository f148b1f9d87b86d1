// Package ai talks to the model backends: the local embedding and detection
// server plus the hosted vision providers used for object labels.
package ai

import (
	"context"
	"errors"
)

// ErrModelUnavailable marks transient backend trouble. Stage failures caused
// by it count against the retry budget instead of failing the item outright.
var ErrModelUnavailable = errors.New("model backend unavailable")

// Label is an object or scene label with its confidence score.
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// FaceDetection is a single detected face with its recognition embedding.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// SemanticEmbedder computes CLIP-style image embeddings.
type SemanticEmbedder interface {
	EmbedImage(ctx context.Context, imageData []byte) ([]float32, error)
}

// TextEmbedder computes text embeddings in the same space as image
// embeddings, used for natural-language search.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// FaceDetector finds faces and computes their recognition embeddings.
type FaceDetector interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]FaceDetection, error)
}

// ObjectDetector produces object labels for an image.
type ObjectDetector interface {
	Name() string
	DetectObjects(ctx context.Context, imageData []byte) ([]Label, error)
}
