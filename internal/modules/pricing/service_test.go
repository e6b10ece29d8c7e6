package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cargoquote/internal/ai"
	"cargoquote/internal/modules/history"
	"cargoquote/internal/modules/quotecache"
	"cargoquote/internal/storage"
)

// 2026-04-15 12:00 UTC is a Wednesday in April: every dynamic factor is neutral.
var neutralTime = time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubAdvisor struct {
	calls      atomic.Int32
	suggestion *ai.PricingSuggestion
	err        error
	delay      time.Duration
}

func (a *stubAdvisor) SuggestPricing(ctx context.Context, _ ai.PricingContext) (*ai.PricingSuggestion, error) {
	a.calls.Add(1)
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	s := *a.suggestion
	return &s, nil
}

func (a *stubAdvisor) SuggestRoute(context.Context, ai.RouteContext) (*ai.RouteSuggestion, error) {
	return nil, errors.New("not used")
}

func (a *stubAdvisor) Name() string { return "stub" }

type recordingHistory struct {
	mu      sync.Mutex
	records []history.QuoteRecord
}

func (h *recordingHistory) RecordQuote(_ context.Context, rec history.QuoteRecord) {
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
}

func (h *recordingHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// concurrencyAdvisor records the peak number of overlapping calls.
type concurrencyAdvisor struct {
	delay    time.Duration
	inFlight atomic.Int32
	max      atomic.Int32
}

func (a *concurrencyAdvisor) SuggestPricing(ctx context.Context, _ ai.PricingContext) (*ai.PricingSuggestion, error) {
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		m := a.max.Load()
		if n <= m || a.max.CompareAndSwap(m, n) {
			break
		}
	}
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
	}
	return nil, errors.New("no suggestion")
}

func (a *concurrencyAdvisor) SuggestRoute(context.Context, ai.RouteContext) (*ai.RouteSuggestion, error) {
	return nil, errors.New("not used")
}

func (a *concurrencyAdvisor) Name() string { return "concurrency" }

// blockingPublisher holds every send until release is closed or the send times out.
type blockingPublisher struct {
	release   chan struct{}
	mu        sync.Mutex
	published []string
}

func (p *blockingPublisher) PublishQuoteIssued(ctx context.Context, q QuoteResult) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	p.published = append(p.published, q.QuoteID)
	p.mu.Unlock()
	return nil
}

func (p *blockingPublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

type fixture struct {
	svc     *Service
	clock   *testClock
	history *recordingHistory
	store   storage.Store
	ids     atomic.Int32
}

func newFixture(t *testing.T, advisor ai.Advisor) *fixture {
	t.Helper()
	f := &fixture{clock: &testClock{now: neutralTime}, history: &recordingHistory{}, store: storage.NewMemoryStore()}
	rates := DefaultRates()
	rates.Location = time.UTC

	pricingStore := NewStore(f.store, nil)
	var client *ai.Client
	if advisor != nil {
		client = ai.NewClient(advisor, ai.ClientConfig{Timeout: 50 * time.Millisecond}, nil)
	}
	cache := quotecache.New[QuoteResult]("quote", quotecache.NewMemoryBackend(f.clock.Now), nil, quotecache.WithClock(f.clock.Now))
	f.svc = NewService(Deps{
		Rates:    rates,
		Factors:  NewFactorAggregator(nil, pricingStore, rates, nil),
		Advisor:  client,
		Cache:    cache,
		CacheTTL: 10 * time.Minute,
		History:  f.history,
		Store:    pricingStore,
		Now:      f.clock.Now,
		NewID: func() string {
			return fmt.Sprintf("q-%d", f.ids.Add(1))
		},
	})
	return f
}

func baseRequest() QuoteRequest {
	return QuoteRequest{Origin: "Toshkent", Destination: "Samarqand", CargoType: "general", WeightKg: 500, Urgency: UrgencyNormal}
}

func price(v float64) *float64 { return &v }

func TestGetQuote_NeutralTashkentSamarkand(t *testing.T) {
	f := newFixture(t, nil)

	q, err := f.svc.GetQuote(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "q-1", q.QuoteID)
	assert.Equal(t, "Toshkent-Samarqand", q.Route)
	assert.Equal(t, 280.0, q.DistanceKm)
	assert.Equal(t, int64(140000), q.BasePrice)
	assert.Equal(t, int64(140000), q.RecommendedPrice)
	assert.Equal(t, PriceRange{Min: 119000, Max: 168000, Optimal: 140000}, q.PriceRange)
	assert.Equal(t, 75, q.Confidence)
	assert.False(t, q.AdvisoryUsed)
	assert.Empty(t, q.Factors)
	assert.Equal(t, PositionUnknown, q.CompetitiveAnalysis.Position)
	assert.Equal(t, neutralTime.Add(2*time.Hour), q.ValidUntil)
	assert.Equal(t, 1, f.history.len())
}

func TestGetQuote_BasePrices(t *testing.T) {
	tests := []struct {
		name     string
		req      QuoteRequest
		wantKm   float64
		wantBase int64
	}{
		{"reverse direction is symmetric", QuoteRequest{Origin: "Samarqand", Destination: "Toshkent", WeightKg: 500}, 280, 140000},
		{"unknown pair defaults to 200 km", QuoteRequest{Origin: "Nukus", Destination: "Termiz", WeightKg: 500}, 200, 100000},
		{"short bulk haul is floored", QuoteRequest{Origin: "Toshkent", Destination: "Sirdaryo", CargoType: "bulk", WeightKg: 100}, 120, 50000},
		{"hazardous heavy express", QuoteRequest{Origin: "Andijon", Destination: "Fargona", CargoType: "hazardous", WeightKg: 8000, Urgency: "express"}, 40, 86400},
		{"overweight", QuoteRequest{Origin: "Toshkent", Destination: "Jizzax", WeightKg: 25000}, 180, 225000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			q, err := f.svc.GetQuote(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKm, q.DistanceKm)
			assert.Equal(t, tt.wantBase, q.BasePrice)
		})
	}
}

func TestGetQuote_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  QuoteRequest
	}{
		{"missing origin", QuoteRequest{Destination: "Samarqand"}},
		{"missing destination", QuoteRequest{Origin: "Toshkent"}},
		{"same city", QuoteRequest{Origin: "Toshkent", Destination: "  toshkent "}},
		{"unknown urgency", QuoteRequest{Origin: "Toshkent", Destination: "Samarqand", Urgency: "yesterday"}},
		{"negative weight", QuoteRequest{Origin: "Toshkent", Destination: "Samarqand", WeightKg: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.svc.GetQuote(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest), "got %v", err)
			assert.Equal(t, 0, f.history.len())
		})
	}
}

func TestGetQuote_AdvisoryPriceIsClamped(t *testing.T) {
	tests := []struct {
		name       string
		suggested  float64
		margin     json.RawMessage
		wantPrice  int64
		wantConfid int
	}{
		{"inside the window", 150000, nil, 150000, 90},
		{"with margin analysis", 150000, json.RawMessage(`{"margin":0.18}`), 150000, 95},
		{"absurdly high", 1e9, nil, 210000, 90},
		{"absurdly low", 1, nil, 98000, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := &stubAdvisor{suggestion: &ai.PricingSuggestion{RecommendedPrice: price(tt.suggested), MarginAnalysis: tt.margin}}
			f := newFixture(t, adv)

			q, err := f.svc.GetQuote(context.Background(), baseRequest())
			require.NoError(t, err)
			assert.True(t, q.AdvisoryUsed)
			assert.Equal(t, tt.wantPrice, q.RecommendedPrice)
			assert.Equal(t, tt.wantConfid, q.Confidence)
			assert.GreaterOrEqual(t, q.RecommendedPrice, int64(98000))
			assert.LessOrEqual(t, q.RecommendedPrice, int64(210000))
		})
	}
}

func TestGetQuote_AdvisoryFailureFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		advisor *stubAdvisor
	}{
		{"error", &stubAdvisor{err: errors.New("connection refused")}},
		{"timeout", &stubAdvisor{delay: time.Second, suggestion: &ai.PricingSuggestion{RecommendedPrice: price(150000)}}},
		{"untrusted shape", &stubAdvisor{suggestion: &ai.PricingSuggestion{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.advisor)
			start := time.Now()
			q, err := f.svc.GetQuote(context.Background(), baseRequest())
			require.NoError(t, err)
			assert.Less(t, time.Since(start), 500*time.Millisecond)
			assert.False(t, q.AdvisoryUsed)
			assert.Equal(t, 75, q.Confidence)
			assert.Equal(t, int64(140000), q.RecommendedPrice)
		})
	}
}

func TestGetQuote_CacheHitWithinTTL(t *testing.T) {
	adv := &stubAdvisor{suggestion: &ai.PricingSuggestion{RecommendedPrice: price(150000)}}
	f := newFixture(t, adv)

	first, err := f.svc.GetQuote(context.Background(), baseRequest())
	require.NoError(t, err)

	f.clock.Advance(9 * time.Minute)
	req := baseRequest()
	req.Origin = " toshkent "
	req.WeightKg = 900 // same weight tier
	second, err := f.svc.GetQuote(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), adv.calls.Load())
	assert.Equal(t, 1, f.history.len())
}

func TestGetQuote_RecomputedAfterTTL(t *testing.T) {
	adv := &stubAdvisor{suggestion: &ai.PricingSuggestion{RecommendedPrice: price(150000)}}
	f := newFixture(t, adv)

	first, err := f.svc.GetQuote(context.Background(), baseRequest())
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	second, err := f.svc.GetQuote(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first.QuoteID, second.QuoteID)
	assert.Equal(t, int32(2), adv.calls.Load())
	assert.Equal(t, 2, f.history.len())
}

func TestGetQuote_DistinctRequestsDoNotShareEntries(t *testing.T) {
	f := newFixture(t, nil)
	a, err := f.svc.GetQuote(context.Background(), baseRequest())
	require.NoError(t, err)

	req := baseRequest()
	req.WeightKg = 3000
	b, err := f.svc.GetQuote(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, a.QuoteID, b.QuoteID)
	assert.Equal(t, int64(168000), b.RecommendedPrice)
}

func TestGetQuote_ConcurrentCallersShareOneComputation(t *testing.T) {
	adv := &stubAdvisor{delay: 20 * time.Millisecond, suggestion: &ai.PricingSuggestion{RecommendedPrice: price(150000)}}
	f := newFixture(t, adv)

	const n = 10
	results := make([]QuoteResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := f.svc.GetQuote(context.Background(), baseRequest())
			assert.NoError(t, err)
			results[i] = q
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), adv.calls.Load())
	assert.Equal(t, 1, f.history.len())
	for _, q := range results {
		assert.Equal(t, results[0].QuoteID, q.QuoteID)
	}
}

func TestGetQuote_UrgencyIsMonotone(t *testing.T) {
	f := newFixture(t, nil)
	var prev int64
	for _, urgency := range []string{UrgencyNormal, UrgencyUrgent, UrgencyExpress} {
		req := baseRequest()
		req.Urgency = urgency
		q, err := f.svc.GetQuote(context.Background(), req)
		require.NoError(t, err)
		assert.Greater(t, q.RecommendedPrice, prev, urgency)
		prev = q.RecommendedPrice
	}
	assert.Equal(t, int64(224000), prev)
}

func TestGetQuote_CompetitiveAnalysis(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		position string
		recs     int
	}{
		{"premium against cheap market", []float64{100000, 110000}, PositionPremium, 2},
		{"competitive", []float64{135000, 145000}, PositionCompetitive, 0},
		{"low cost against pricey market", []float64{170000, 190000}, PositionLowCost, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			updates := make([]MarketPriceUpdate, 0, len(tt.prices))
			for i, p := range tt.prices {
				updates = append(updates, MarketPriceUpdate{Origin: "Toshkent", Destination: "Samarqand", Competitor: fmt.Sprintf("c%d", i), Price: p})
			}
			_, err := f.svc.UpdateMarketPrices(context.Background(), updates)
			require.NoError(t, err)

			q, err := f.svc.GetQuote(context.Background(), baseRequest())
			require.NoError(t, err)
			assert.Equal(t, tt.position, q.CompetitiveAnalysis.Position)
			assert.Equal(t, len(tt.prices), q.CompetitiveAnalysis.Competitors)
			assert.Len(t, q.Recommendations, tt.recs)
		})
	}
}

func TestUpdateMarketPrices_ReplacesSameCompetitor(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.UpdateMarketPrices(ctx, []MarketPriceUpdate{{Origin: "Toshkent", Destination: "Buxoro", Competitor: "Acme", Price: 200000}})
	require.NoError(t, err)
	md, err := f.svc.UpdateMarketPrices(ctx, []MarketPriceUpdate{{Origin: "toshkent", Destination: "BUXORO", Competitor: "acme", Price: 210000}})
	require.NoError(t, err)

	prices := md.Routes["toshkent-buxoro"]
	require.Len(t, prices, 1)
	assert.Equal(t, 210000.0, prices[0].Price)
	assert.Equal(t, neutralTime, md.UpdatedAt)

	_, err = f.svc.UpdateMarketPrices(ctx, []MarketPriceUpdate{{Origin: "Toshkent", Destination: "Buxoro", Competitor: "Acme"}})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestGetQuote_CustomerProfileDiscount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.UpsertCustomerProfile(ctx, CustomerProfile{CustomerID: "cust-7", LoyaltyScore: 90, Segment: "NEW"})
	require.NoError(t, err)

	req := baseRequest()
	req.CustomerID = "cust-7"
	q, err := f.svc.GetQuote(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int64(119700), q.RecommendedPrice)
	require.Len(t, q.Factors, 1)
	assert.Equal(t, "customer_loyalty", q.Factors[0].Name)
	assert.Negative(t, q.Factors[0].Impact)

	_, err = f.svc.UpsertCustomerProfile(ctx, CustomerProfile{CustomerID: "x", LoyaltyScore: 140})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	_, err = f.svc.UpsertCustomerProfile(ctx, CustomerProfile{})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestDynamicPricing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	table, err := f.svc.DynamicPricing(ctx, []string{"Toshkent-Samarqand", "Buxoro-Navoiy"}, "")
	require.NoError(t, err)
	assert.Equal(t, "24h", table.Timeframe)
	require.Len(t, table.Prices, 2)
	assert.Equal(t, int64(140000), table.Prices["Toshkent-Samarqand"].DynamicPrice)
	assert.Equal(t, int64(50000), table.Prices["Buxoro-Navoiy"].BasePrice)

	var stored DynamicPriceTable
	found, err := storage.ReadInto(ctx, f.store, dynamicPricesDoc, &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, stored.Prices, 2)

	_, err = f.svc.DynamicPricing(ctx, []string{"Toshkent"}, "")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestDynamicPricing_LimitsRoutesAndConcurrency(t *testing.T) {
	adv := &concurrencyAdvisor{delay: 30 * time.Millisecond}
	f := newFixture(t, adv)
	f.svc.concurrency = 2
	ctx := context.Background()

	routes := []string{"Toshkent-Samarqand", "Toshkent-Buxoro", "Toshkent-Andijon", "Buxoro-Navoiy", "Andijon-Fargona"}
	table, err := f.svc.DynamicPricing(ctx, routes, "1h")
	require.NoError(t, err)
	assert.Len(t, table.Prices, len(routes))
	assert.Equal(t, int32(2), adv.max.Load())

	tooMany := make([]string, MaxRoutes+1)
	for i := range tooMany {
		tooMany[i] = "Toshkent-Samarqand"
	}
	_, err = f.svc.DynamicPricing(ctx, tooMany, "")
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestPriceRecommendations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.UpsertCustomerProfile(ctx, CustomerProfile{
		CustomerID:   "cust-9",
		LoyaltyScore: 80,
		Segment:      "vip",
		TotalOrders:  25,
		RiskLevel:    "low",
	})
	require.NoError(t, err)

	got, err := f.svc.PriceRecommendations(ctx, "cust-9", []RoutePreference{
		{Origin: "Toshkent", Destination: "Samarqand"},
		{Origin: "Buxoro", Destination: "Navoiy", CargoType: "general"},
	})
	require.NoError(t, err)

	assert.Equal(t, "cust-9", got.CustomerID)
	assert.Equal(t, "vip", got.CustomerSegment)
	require.Len(t, got.Recommendations, 2)
	first := got.Recommendations[0]
	assert.Equal(t, "Toshkent-Samarqand", first.Route)
	assert.Equal(t, int64(135800), first.RecommendedPrice)
	assert.Equal(t, 7, first.CustomerDiscount)
	assert.Equal(t, int64(3000), first.LoyaltyBonus)
	assert.Equal(t, neutralTime.Add(2*time.Hour), first.PriceValidUntil)
	assert.Equal(t, int64(48500), got.Recommendations[1].RecommendedPrice)

	require.Len(t, got.SpecialOffers, 2)
	assert.Equal(t, OfferVolumeDiscount, got.SpecialOffers[0].Type)
	assert.Equal(t, OfferCreditTerms, got.SpecialOffers[1].Type)
	assert.Equal(t, neutralTime.AddDate(0, 0, 30), got.SpecialOffers[1].ValidUntil)
	assert.Equal(t, 2, f.history.len())
}

func TestPriceRecommendations_UnknownCustomer(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.svc.PriceRecommendations(context.Background(), "walk-in", []RoutePreference{{Origin: "Toshkent", Destination: "Samarqand"}})
	require.NoError(t, err)
	assert.Equal(t, SegmentStandard, got.CustomerSegment)
	assert.Equal(t, int64(140000), got.Recommendations[0].RecommendedPrice)
	assert.Zero(t, got.Recommendations[0].CustomerDiscount)
	assert.Zero(t, got.Recommendations[0].LoyaltyBonus)
	assert.Empty(t, got.SpecialOffers)
}

func TestPriceRecommendations_InvalidRequests(t *testing.T) {
	tests := []struct {
		name     string
		customer string
		prefs    []RoutePreference
	}{
		{"missing customer", " ", []RoutePreference{{Origin: "Toshkent", Destination: "Samarqand"}}},
		{"no routes", "c-1", nil},
		{"missing destination", "c-1", []RoutePreference{{Origin: "Toshkent"}}},
		{"same city", "c-1", []RoutePreference{{Origin: "Buxoro", Destination: "buxoro"}}},
		{"too many routes", "c-1", make([]RoutePreference, MaxRoutes+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			_, err := f.svc.PriceRecommendations(context.Background(), tt.customer, tt.prefs)
			assert.True(t, errors.Is(err, ErrInvalidRequest), "got %v", err)
		})
	}
}

func TestGetQuote_SlowPublisherDoesNotBlock(t *testing.T) {
	f := newFixture(t, &stubAdvisor{err: errors.New("503")})
	pub := &blockingPublisher{release: make(chan struct{})}
	f.svc.publisher = pub

	start := time.Now()
	q, err := f.svc.GetQuote(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, pub.ids())

	close(pub.release)
	f.svc.Drain()
	assert.Equal(t, []string{q.QuoteID}, pub.ids())
}

func TestGetQuote_PublishTimeout(t *testing.T) {
	f := newFixture(t, nil)
	pub := &blockingPublisher{release: make(chan struct{})}
	f.svc.publisher = pub
	f.svc.publishTimeout = 20 * time.Millisecond

	_, err := f.svc.GetQuote(context.Background(), baseRequest())
	require.NoError(t, err)

	f.svc.Drain()
	assert.Empty(t, pub.ids())
}

func TestBuildQuote_Bounds(t *testing.T) {
	r := DefaultRates()
	tests := []struct {
		name    string
		product float64
		want    int64
	}{
		{"neutral", 1.0, 140000},
		{"stacked surge clamps high", 2.2, 210000},
		{"deep discount clamps low", 0.5, 98000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := DynamicFactors{Demand: tt.product, Seasonal: 1, Timing: 1, Customer: 1}
			q := buildQuote(r, 140000, f, nil, 0, 0, neutralTime)
			if q.RecommendedPrice != tt.want {
				t.Errorf("RecommendedPrice = %d, want %d", q.RecommendedPrice, tt.want)
			}
			if q.PriceRange.Optimal != q.RecommendedPrice {
				t.Errorf("Optimal = %d, want %d", q.PriceRange.Optimal, q.RecommendedPrice)
			}
			if q.PriceRange.Min > q.RecommendedPrice || q.PriceRange.Max < q.RecommendedPrice {
				t.Errorf("range %+v does not contain %d", q.PriceRange, q.RecommendedPrice)
			}
		})
	}
}
