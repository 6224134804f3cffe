package verify

import (
	"context"
	"fmt"

	"facekiosk/internal/config"
	"facekiosk/internal/faceclient"
)

// NewComparator builds the comparator selected by cfg.Comparator. FaceSkip forces a
// matching static comparator regardless of the selection.
func NewComparator(ctx context.Context, cfg config.Verify) (Comparator, error) {
	if cfg.FaceSkip {
		return StaticComparator{Match: true}, nil
	}
	switch cfg.Comparator {
	case "gemini":
		return NewGeminiComparator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "openai":
		return NewOpenAIComparator(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case "faceservice":
		return &FaceServiceComparator{Client: faceclient.New(cfg.FaceServiceURL, false, cfg.CompareTimeout)}, nil
	case "static":
		return StaticComparator{Match: true}, nil
	default:
		return nil, fmt.Errorf("unknown comparator %q", cfg.Comparator)
	}
}

// NewGatewayFromConfig wires the proxy fetcher and the configured comparator.
func NewGatewayFromConfig(ctx context.Context, cfg config.Verify) (*Gateway, error) {
	cmp, err := NewComparator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewGateway(NewProxyFetcher(cfg.ProxyURL, cfg.FetchTimeout), cmp, cfg.MaxImageEdge, cfg.CompareTimeout), nil
}
