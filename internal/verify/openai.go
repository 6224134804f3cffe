package verify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIComparator asks an OpenAI vision model for a same-person verdict.
type OpenAIComparator struct {
	client *openai.Client
	model  string
}

// NewOpenAIComparator creates a comparator. Extra options are passed to the client.
func NewOpenAIComparator(apiKey, model string, opts ...option.RequestOption) (*OpenAIComparator, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIComparator{client: &client, model: model}, nil
}

func (c *OpenAIComparator) Name() string { return c.model }

// Compare sends both images as data URLs in a single user message.
func (c *OpenAIComparator) Compare(ctx context.Context, reference, candidate Image) (bool, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart(comparePrompt),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    dataURL(reference),
							Detail: "high",
						}),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    dataURL(candidate),
							Detail: "high",
						}),
					},
				},
			},
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(50),
	})
	if err != nil {
		return false, &ComparisonError{Provider: c.Name(), Err: fmt.Errorf("OpenAI API error: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return false, &ComparisonError{Provider: c.Name(), Err: errors.New("no response from OpenAI")}
	}

	match, err := ParseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return false, &ComparisonError{Provider: c.Name(), Err: err}
	}
	return match, nil
}

func dataURL(img Image) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
