package ai

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

//go:embed prompts/object_labels.txt
var objectLabelsPrompt string

const openAIChatModel = openai.ChatModelGPT4_1Mini

// OpenAILabeler produces object labels using the OpenAI vision API. It is an
// alternative to the local model server for libraries without a GPU.
type OpenAILabeler struct {
	client *openai.Client
}

// NewOpenAILabeler creates an OpenAI-backed object detector.
func NewOpenAILabeler(apiKey string) *OpenAILabeler {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAILabeler{client: &client}
}

// Name identifies the detector in tag sources.
func (p *OpenAILabeler) Name() string {
	return "openai"
}

type labelList struct {
	Objects []Label `json:"objects"`
}

// DetectObjects asks the chat model for object labels.
func (p *OpenAILabeler) DetectObjects(ctx context.Context, imageData []byte) ([]Label, error) {
	// Resize to cut token costs; label quality does not need full resolution.
	resizedData, err := ResizeImage(imageData, 800)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resizedData)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openAIChatModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(objectLabelsPrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							openai.TextContentPart("Tag this photo."),
							openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
								URL:    imageURL,
								Detail: "low",
							}),
						},
					},
				},
			},
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(500),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: OpenAI API error: %v", ErrModelUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	var labels labelList
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &labels); err != nil {
		return nil, fmt.Errorf("failed to parse labels JSON: %w", err)
	}
	return labels.Objects, nil
}
