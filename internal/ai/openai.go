package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	openAIEndpoint     = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o-mini"
	maxResponseBytes   = 1 << 20
)

// OpenAIProvider implements Advisor on the chat completions API in JSON mode.
type OpenAIProvider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewOpenAIProvider returns a provider; an empty endpoint means the public API.
func NewOpenAIProvider(apiKey, model, endpoint string, client *http.Client) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	if endpoint == "" {
		endpoint = openAIEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{apiKey: apiKey, model: model, endpoint: endpoint, client: client}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) SuggestPricing(ctx context.Context, doc PricingContext) (*PricingSuggestion, error) {
	prompt, err := buildPricingPrompt(doc)
	if err != nil {
		return nil, err
	}
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var s PricingSuggestion
	if err := decodeSuggestion(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *OpenAIProvider) SuggestRoute(ctx context.Context, doc RouteContext) (*RouteSuggestion, error) {
	prompt, err := buildRoutePrompt(doc)
	if err != nil {
		return nil, err
	}
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var s RouteSuggestion
	if err := decodeSuggestion(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// complete sends prompt to the chat completions endpoint and returns the reply text.
func (p *OpenAIProvider) complete(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:          p.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    0.2,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("openai: unmarshal response (status %d): %w", resp.StatusCode, err)
	}
	if cr.Error != nil {
		return "", fmt.Errorf("openai: api error: %s", cr.Error.Message)
	}
	if resp.StatusCode >= 300 {
		return "", &httpStatusError{code: resp.StatusCode, body: truncate(body, 200)}
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return cr.Choices[0].Message.Content, nil
}
