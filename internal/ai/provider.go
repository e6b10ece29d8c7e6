package ai

import (
	"context"
	"fmt"
)

// ProviderConfig names an oracle and its credentials.
type ProviderConfig struct {
	Name      string
	GeminiKey string
	APIKey    string
	Model     string
	Endpoint  string
}

// NewProvider builds the named advisor. "none" and "" return a nil Advisor, which
// NewClient treats as permanently unavailable. The returned close func is never nil.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Advisor, func(), error) {
	switch cfg.Name {
	case "", "none":
		return nil, func() {}, nil
	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg.GeminiKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Endpoint, nil), func() {}, nil
	case "http":
		return NewHTTPAdvisor(cfg.Endpoint, cfg.APIKey, nil), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("ai: unknown provider %q", cfg.Name)
	}
}
