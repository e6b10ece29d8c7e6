package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider implements Advisor using Google's Gemini models.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiProvider initializes a new Gemini client.
// apiKey should be provided from environment variables.
func NewGeminiProvider(ctx context.Context, apiKey, modelName string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if modelName == "" {
		modelName = defaultGeminiModel
	}
	model := client.GenerativeModel(modelName)

	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"

	// Pricing answers should be stable across identical requests.
	model.SetTemperature(0.2)

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() {
	p.client.Close()
}

func (p *GeminiProvider) SuggestPricing(ctx context.Context, doc PricingContext) (*PricingSuggestion, error) {
	prompt, err := buildPricingPrompt(doc)
	if err != nil {
		return nil, err
	}
	raw, err := p.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var s PricingSuggestion
	if err := decodeSuggestion(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *GeminiProvider) SuggestRoute(ctx context.Context, doc RouteContext) (*RouteSuggestion, error) {
	prompt, err := buildRoutePrompt(doc)
	if err != nil {
		return nil, err
	}
	raw, err := p.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var s RouteSuggestion
	if err := decodeSuggestion(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// generate sends prompt and concatenates the text parts of the first candidate.
func (p *GeminiProvider) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	return responseText.String(), nil
}
