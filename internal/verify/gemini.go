package verify

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiComparator asks a Gemini model for a same-person verdict.
type GeminiComparator struct {
	models contentGenerator
	model  string
}

// NewGeminiComparator creates a comparator for the Gemini API.
func NewGeminiComparator(ctx context.Context, apiKey, model string) (*GeminiComparator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiComparator{models: client.Models, model: model}, nil
}

func (c *GeminiComparator) Name() string { return c.model }

// Compare sends the prompt, the reference and the candidate as inline parts.
func (c *GeminiComparator) Compare(ctx context.Context, reference, candidate Image) (bool, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: comparePrompt},
				{InlineData: &genai.Blob{Data: reference.Data, MIMEType: reference.MIMEType}},
				{InlineData: &genai.Blob{Data: candidate.Data, MIMEType: candidate.MIMEType}},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	result, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return false, &ComparisonError{Provider: c.Name(), Err: fmt.Errorf("gemini API error: %w", err)}
	}

	content := result.Text()
	if content == "" {
		return false, &ComparisonError{Provider: c.Name(), Err: errors.New("no response from Gemini")}
	}

	match, err := ParseVerdict(content)
	if err != nil {
		return false, &ComparisonError{Provider: c.Name(), Err: err}
	}
	return match, nil
}
