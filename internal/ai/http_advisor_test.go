package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAdvisor_SuggestPricing(t *testing.T) {
	var got PricingContext
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pricing", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"recommended_price": 150000, "price_range": {"min": 130000, "max": 170000}, "margin_analysis": {"margin": 0.2}}`)
	}))
	defer srv.Close()

	a := NewHTTPAdvisor(srv.URL+"/v1/", "secret", srv.Client())
	s, err := a.SuggestPricing(context.Background(), PricingContext{Route: "Toshkent-Samarqand", DistanceKm: 280})
	require.NoError(t, err)
	assert.Equal(t, "Toshkent-Samarqand", got.Route)
	assert.Equal(t, 150000.0, *s.RecommendedPrice)
	assert.True(t, s.HasMarginAnalysis())
}

func TestHTTPAdvisor_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`},
		{name: "garbage body", status: http.StatusOK, body: `<html>oops</html>`},
		{name: "empty body", status: http.StatusOK, body: ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			a := NewHTTPAdvisor(srv.URL, "", srv.Client())
			_, err := a.SuggestRoute(context.Background(), RouteContext{})
			assert.Error(t, err)
		})
	}
}

func TestOpenAIProvider_SuggestRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		assert.Contains(t, req.Messages[0].Content, "Toshkent")

		content := "```json\n{\"optimizedRoute\":[\"Toshkent\",\"Jizzax\",\"Samarqand\"],\"estimatedTime\":330}\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("key", "", srv.URL, srv.Client())
	s, err := p.SuggestRoute(context.Background(), RouteContext{Origin: "Toshkent", Destination: "Samarqand"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Toshkent", "Jizzax", "Samarqand"}, s.OptimizedRoute)
	assert.Equal(t, 330.0, *s.EstimatedTime)
}

func TestOpenAIProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "invalid api key"}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("bad", "", srv.URL, srv.Client())
	_, err := p.SuggestPricing(context.Background(), PricingContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}
