package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cargoquote/internal/http/handlers"
	"cargoquote/internal/modules/history"
	"cargoquote/internal/modules/pricing"
	"cargoquote/internal/modules/routing"
)

type stubQuotes struct {
	err error
}

func (s *stubQuotes) GetQuote(_ context.Context, req pricing.QuoteRequest) (pricing.QuoteResult, error) {
	if s.err != nil {
		return pricing.QuoteResult{}, s.err
	}
	if req.Origin == "" {
		return pricing.QuoteResult{}, fmt.Errorf("%w: origin is required", pricing.ErrInvalidRequest)
	}
	return pricing.QuoteResult{QuoteID: "q-1", Route: req.Origin + "-" + req.Destination, RecommendedPrice: 140000}, nil
}

func (s *stubQuotes) DynamicPricing(_ context.Context, routes []string, timeframe string) (pricing.DynamicPriceTable, error) {
	if len(routes) == 0 {
		return pricing.DynamicPriceTable{}, fmt.Errorf("%w: routes is required", pricing.ErrInvalidRequest)
	}
	return pricing.DynamicPriceTable{Timeframe: timeframe, Prices: map[string]pricing.DynamicPrice{}}, nil
}

type stubAcceptor struct {
	err     error
	quoteID string
	orderID string
	at      time.Time
}

func (s *stubAcceptor) MarkAccepted(_ context.Context, quoteID, orderID string, at time.Time) error {
	s.quoteID, s.orderID, s.at = quoteID, orderID, at
	return s.err
}

type stubRoutes struct{}

func (stubRoutes) GetRoute(_ context.Context, req routing.RouteRequest) (routing.RoutePlan, error) {
	if req.Origin == req.Destination {
		return routing.RoutePlan{}, fmt.Errorf("%w: origin and destination must differ", routing.ErrInvalidRequest)
	}
	return routing.RoutePlan{DistanceKm: 280, EstimatedMinutes: 336}, nil
}

func (stubRoutes) BatchRoutes(_ context.Context, reqs []routing.RouteRequest) ([]routing.BatchItem, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one request is required", routing.ErrInvalidRequest)
	}
	items := make([]routing.BatchItem, len(reqs))
	for i := range reqs {
		items[i] = routing.BatchItem{Plan: &routing.RoutePlan{DistanceKm: 280}}
	}
	return items, nil
}

type stubHistory struct {
	limit  int
	period string
}

func (s *stubHistory) RecentRoutes(_ context.Context, limit int) []history.RouteRecord {
	s.limit = limit
	return []history.RouteRecord{{Route: "Toshkent-Samarqand"}}
}

func (s *stubHistory) Analytics(_ context.Context, period string) history.AggregateStats {
	s.period = period
	return history.AggregateStats{Period: period}
}

type stubMarket struct {
	saved    pricing.CustomerProfile
	customer string
	prefs    []pricing.RoutePreference
}

func (s *stubMarket) PriceRecommendations(_ context.Context, customerID string, prefs []pricing.RoutePreference) (pricing.PriceRecommendations, error) {
	if len(prefs) == 0 {
		return pricing.PriceRecommendations{}, fmt.Errorf("%w: at least one route is required", pricing.ErrInvalidRequest)
	}
	s.customer, s.prefs = customerID, prefs
	return pricing.PriceRecommendations{CustomerID: customerID, CustomerSegment: pricing.SegmentStandard}, nil
}

func (s *stubMarket) MarketPrices(context.Context) pricing.MarketData {
	return pricing.MarketData{Routes: map[string][]pricing.CompetitorPrice{}}
}

func (s *stubMarket) UpdateMarketPrices(_ context.Context, updates []pricing.MarketPriceUpdate) (pricing.MarketData, error) {
	if len(updates) == 0 {
		return pricing.MarketData{}, fmt.Errorf("%w: at least one price is required", pricing.ErrInvalidRequest)
	}
	return pricing.MarketData{Routes: map[string][]pricing.CompetitorPrice{}}, nil
}

func (s *stubMarket) UpsertCustomerProfile(_ context.Context, p pricing.CustomerProfile) (pricing.CustomerProfile, error) {
	s.saved = p
	return p, nil
}

type fixture struct {
	engine   *gin.Engine
	quotes   *stubQuotes
	acceptor *stubAcceptor
	history  *stubHistory
	market   *stubMarket
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		quotes:   &stubQuotes{},
		acceptor: &stubAcceptor{},
		history:  &stubHistory{},
		market:   &stubMarket{},
	}
	r := gin.New()
	qh := handlers.NewQuoteHandler(f.quotes, f.acceptor)
	r.POST("/api/quotes", qh.Create)
	r.POST("/api/quotes/dynamic", qh.Dynamic)
	r.POST("/api/quotes/:id/accept", qh.Accept)
	rh := handlers.NewRouteHandler(stubRoutes{}, f.history)
	r.POST("/api/routes", rh.Create)
	r.POST("/api/routes/batch", rh.Batch)
	r.GET("/api/routes/history", rh.History)
	mh := handlers.NewMarketHandler(f.market)
	r.PUT("/api/market/prices", mh.UpdatePrices)
	r.PUT("/api/customers/:id/profile", mh.UpsertProfile)
	r.POST("/api/customers/:id/recommendations", mh.Recommendations)
	r.GET("/api/analytics", handlers.NewAnalyticsHandler(f.history).Get)
	f.engine = r
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestQuoteHandler_Create(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		quoteErr error
		want     int
	}{
		{"ok", map[string]any{"origin": "Toshkent", "destination": "Samarqand", "weightKg": 500}, nil, http.StatusOK},
		{"invalid request", map[string]any{"destination": "Samarqand"}, nil, http.StatusBadRequest},
		{"invalid json", "{not json", nil, http.StatusBadRequest},
		{"internal failure", map[string]any{"origin": "A", "destination": "B"}, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.quotes.err = tt.quoteErr
			w := f.do(http.MethodPost, "/api/quotes", tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if tt.want == http.StatusInternalServerError && w.Body.String() != `{"error":"internal error"}` {
				t.Errorf("internal errors must not leak: %s", w.Body.String())
			}
		})
	}
}

func TestQuoteHandler_CreateBody(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/quotes", map[string]any{"origin": "Toshkent", "destination": "Samarqand"})
	var q pricing.QuoteResult
	if err := json.Unmarshal(w.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if q.QuoteID != "q-1" || q.RecommendedPrice != 140000 {
		t.Errorf("unexpected quote %+v", q)
	}
}

func TestQuoteHandler_Dynamic(t *testing.T) {
	f := newFixture()
	if w := f.do(http.MethodPost, "/api/quotes/dynamic", map[string]any{"routes": []string{"Toshkent-Samarqand"}, "timeframe": "24h"}); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/api/quotes/dynamic", map[string]any{"routes": []string{}}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestQuoteHandler_Accept(t *testing.T) {
	at := time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		path      string
		body      any
		acceptErr error
		want      int
	}{
		{"accepted", "/api/quotes/q-1/accept", map[string]any{"orderId": "o-1", "acceptedAt": at}, nil, http.StatusOK},
		{"empty body", "/api/quotes/q-1/accept", nil, nil, http.StatusOK},
		{"unknown quote", "/api/quotes/q-404/accept", nil, history.ErrQuoteNotFound, http.StatusNotFound},
		{"bad id", "/api/quotes/bad$id/accept", nil, nil, http.StatusBadRequest},
		{"storage failure", "/api/quotes/q-1/accept", nil, errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.acceptor.err = tt.acceptErr
			w := f.do(http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	f := newFixture()
	f.do(http.MethodPost, "/api/quotes/q-1/accept", map[string]any{"orderId": "o-1", "acceptedAt": at})
	if f.acceptor.quoteID != "q-1" || f.acceptor.orderID != "o-1" || !f.acceptor.at.Equal(at) {
		t.Errorf("MarkAccepted got %q %q %v", f.acceptor.quoteID, f.acceptor.orderID, f.acceptor.at)
	}
}

func TestRouteHandler(t *testing.T) {
	f := newFixture()
	if w := f.do(http.MethodPost, "/api/routes", map[string]any{"origin": "Toshkent", "destination": "Samarqand"}); w.Code != http.StatusOK {
		t.Errorf("route: expected 200, got %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/api/routes", map[string]any{"origin": "Toshkent", "destination": "Toshkent"}); w.Code != http.StatusBadRequest {
		t.Errorf("same city: expected 400, got %d", w.Code)
	}
	w := f.do(http.MethodPost, "/api/routes/batch", map[string]any{"requests": []map[string]any{
		{"origin": "Toshkent", "destination": "Samarqand"},
		{"origin": "Toshkent", "destination": "Buxoro"},
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("batch: expected 200, got %d", w.Code)
	}
	var batch struct {
		Results []routing.BatchItem `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &batch); err != nil || len(batch.Results) != 2 {
		t.Errorf("batch body %s (err %v)", w.Body.String(), err)
	}
	if w := f.do(http.MethodPost, "/api/routes/batch", map[string]any{"requests": []any{}}); w.Code != http.StatusBadRequest {
		t.Errorf("empty batch: expected 400, got %d", w.Code)
	}
}

func TestRouteHandler_History(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		want      int
		wantLimit int
	}{
		{"default limit", "", http.StatusOK, 50},
		{"explicit limit", "?limit=5", http.StatusOK, 5},
		{"bad limit", "?limit=abc", http.StatusBadRequest, 0},
		{"zero limit", "?limit=0", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			w := f.do(http.MethodGet, "/api/routes/history"+tt.query, nil)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if f.history.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", f.history.limit, tt.wantLimit)
			}
		})
	}
}

func TestAnalyticsHandler(t *testing.T) {
	f := newFixture()
	if w := f.do(http.MethodGet, "/api/analytics", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.history.period != "month" {
		t.Errorf("default period = %q, want month", f.history.period)
	}
	f.do(http.MethodGet, "/api/analytics?period=week", nil)
	if f.history.period != "week" {
		t.Errorf("period = %q, want week", f.history.period)
	}
}

func TestMarketHandler(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPut, "/api/market/prices", map[string]any{"prices": []map[string]any{
		{"origin": "Toshkent", "destination": "Samarqand", "competitor": "acme", "price": 150000},
	}})
	if w.Code != http.StatusOK {
		t.Errorf("update prices: expected 200, got %d", w.Code)
	}
	if w := f.do(http.MethodPut, "/api/market/prices", map[string]any{"prices": []any{}}); w.Code != http.StatusBadRequest {
		t.Errorf("empty prices: expected 400, got %d", w.Code)
	}

	w = f.do(http.MethodPut, "/api/customers/c-42/profile", map[string]any{"loyaltyScore": 85, "segment": "vip"})
	if w.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", w.Code)
	}
	if f.market.saved.CustomerID != "c-42" || f.market.saved.LoyaltyScore != 85 {
		t.Errorf("saved profile %+v", f.market.saved)
	}
}

func TestMarketHandler_Recommendations(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/api/customers/c-42/recommendations", map[string]any{"routes": []map[string]any{
		{"origin": "Toshkent", "destination": "Samarqand", "weightKg": 2500},
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("recommendations: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got pricing.PriceRecommendations
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CustomerID != "c-42" || f.market.customer != "c-42" {
		t.Errorf("customer = %q / %q, want c-42", got.CustomerID, f.market.customer)
	}
	if len(f.market.prefs) != 1 || f.market.prefs[0].WeightKg != 2500 {
		t.Errorf("prefs = %+v", f.market.prefs)
	}

	if w := f.do(http.MethodPost, "/api/customers/c-42/recommendations", map[string]any{"routes": []any{}}); w.Code != http.StatusBadRequest {
		t.Errorf("no routes: expected 400, got %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/api/customers/bad$id/recommendations", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", w.Code)
	}
}
