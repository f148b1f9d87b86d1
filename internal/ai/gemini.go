package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiLabeler produces object labels using the Gemini API.
type GeminiLabeler struct {
	client *genai.Client
}

// NewGeminiLabeler creates a Gemini-backed object detector.
func NewGeminiLabeler(ctx context.Context, apiKey string) (*GeminiLabeler, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiLabeler{client: client}, nil
}

// Name identifies the detector in tag sources.
func (p *GeminiLabeler) Name() string {
	return "gemini"
}

// DetectObjects asks the model for object labels.
func (p *GeminiLabeler) DetectObjects(ctx context.Context, imageData []byte) ([]Label, error) {
	resizedData, err := ResizeImage(imageData, 800)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: objectLabelsPrompt},
				{InlineData: &genai.Blob{Data: resizedData, MIMEType: "image/jpeg"}},
			},
		},
	}

	result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini API error: %v", ErrModelUnavailable, err)
	}

	content := result.Text()
	if content == "" {
		return nil, errors.New("no response from Gemini")
	}

	var labels labelList
	if err := json.Unmarshal([]byte(content), &labels); err != nil {
		return nil, fmt.Errorf("failed to parse labels JSON: %w", err)
	}
	return labels.Objects, nil
}
