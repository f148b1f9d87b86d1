package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
)

const defaultModelServerURL = "http://localhost:8000"

// ModelClient talks to the local embedding and detection server. It fulfils
// SemanticEmbedder, TextEmbedder, FaceDetector and ObjectDetector.
//
// Calls are rate limited and pass through a circuit breaker; while the
// breaker is open every call fails fast with ErrModelUnavailable instead of
// piling requests onto a struggling backend.
type ModelClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewModelClient creates a client for the model server.
func NewModelClient(cfg config.ModelConfig) *ModelClient {
	baseURL := cfg.URL
	if baseURL == "" {
		baseURL = defaultModelServerURL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "model-server",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &ModelClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
	}
}

// do rate-limits and runs one request through the breaker.
func (c *ModelClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(body))
		}
		if resp.StatusCode != http.StatusOK {
			// Client errors must not trip the breaker, so wrap them here and
			// return them as the success value.
			return permanentError{fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))}, nil
		}
		return body, nil
	})
	if err != nil {
		// Connection failures, 5xx responses and an open breaker all mean the
		// backend is struggling right now.
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if perm, ok := result.(permanentError); ok {
		return nil, perm.err
	}
	return result.([]byte), nil
}

type permanentError struct{ err error }

func (c *ModelClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(ctx, req)
}

func (c *ModelClient) postJSON(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(ctx, req)
}

type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// EmbedImage computes the semantic embedding for an image.
func (c *ModelClient) EmbedImage(ctx context.Context, imageData []byte) ([]float32, error) {
	body, err := c.postMultipartImage(ctx, "/embed/image", imageData)
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return embResp.Embedding, nil
}

// EmbedText computes the embedding for a text query in the image space.
func (c *ModelClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	body, err := c.postJSON(ctx, "/embed/text", struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, err
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return embResp.Embedding, nil
}

type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// DetectFaces finds faces and computes their recognition embeddings. Zero
// faces is a normal result, not an error.
func (c *ModelClient) DetectFaces(ctx context.Context, imageData []byte) ([]FaceDetection, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return faceResp.Faces, nil
}

type objectResponse struct {
	Objects []Label `json:"objects"`
	Model   string  `json:"model"`
}

// Name identifies the detector in tag sources.
func (c *ModelClient) Name() string {
	return "yolo"
}

// DetectObjects runs object detection on the model server.
func (c *ModelClient) DetectObjects(ctx context.Context, imageData []byte) ([]Label, error) {
	body, err := c.postMultipartImage(ctx, "/detect/objects", imageData)
	if err != nil {
		return nil, err
	}

	var objResp objectResponse
	if err := json.Unmarshal(body, &objResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return objResp.Objects, nil
}

// detectMIMEType detects the MIME type from image data magic bytes.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
