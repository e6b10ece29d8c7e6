package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPAdvisor posts the context document as JSON to a suggestion service and
// expects the suggestion JSON as the response body.
//
//	POST {endpoint}/pricing  -> PricingSuggestion
//	POST {endpoint}/route    -> RouteSuggestion
type HTTPAdvisor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPAdvisor(endpoint, apiKey string, client *http.Client) *HTTPAdvisor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPAdvisor{endpoint: strings.TrimRight(endpoint, "/"), apiKey: apiKey, client: client}
}

func (a *HTTPAdvisor) Name() string { return "http" }

type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("advisor returned status %d: %s", e.code, e.body)
}

func (a *HTTPAdvisor) SuggestPricing(ctx context.Context, doc PricingContext) (*PricingSuggestion, error) {
	var s PricingSuggestion
	if err := a.post(ctx, "/pricing", doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *HTTPAdvisor) SuggestRoute(ctx context.Context, doc RouteContext) (*RouteSuggestion, error) {
	var s RouteSuggestion
	if err := a.post(ctx, "/route", doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (a *HTTPAdvisor) post(ctx context.Context, path string, in, out any) error {
	reqBody, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("http advisor: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("http advisor: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("http advisor: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("http advisor: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{code: resp.StatusCode, body: truncate(body, 200)}
	}
	return decodeSuggestion(string(body), out)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
