// README: Quote composer; blends base price, dynamic factors and the advisory oracle.
package pricing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"cargoquote/internal/ai"
	"cargoquote/internal/metrics"
	"cargoquote/internal/modules/distance"
	"cargoquote/internal/modules/history"
	"cargoquote/internal/modules/quotecache"
	"cargoquote/internal/validation"
)

// HistoryWriter receives one record per computed quote.
type HistoryWriter interface {
	RecordQuote(ctx context.Context, rec history.QuoteRecord)
}

const (
	defaultPublishTimeout = 5 * time.Second
	defaultConcurrency    = 8
	// MaxRoutes caps DynamicPricing and PriceRecommendations requests.
	MaxRoutes = 50
)

// QuotePublisher announces computed quotes. Events are sent off the request path;
// errors are logged, never returned to callers.
type QuotePublisher interface {
	PublishQuoteIssued(ctx context.Context, q QuoteResult) error
}

type Deps struct {
	Rates     Rates
	Distances *distance.Table
	Factors   *FactorAggregator
	Advisor   *ai.Client
	Cache     *quotecache.Cache[QuoteResult]
	// CacheTTL is capped at Rates.ValidFor.
	CacheTTL  time.Duration
	History   HistoryWriter
	Store     *Store
	Publisher QuotePublisher
	// PublishTimeout bounds one event send.
	PublishTimeout time.Duration
	// Concurrency limits the quotes computed at once for multi-route calls.
	Concurrency int
	Logger      *zap.Logger
	Now         func() time.Time
	NewID       func() string
}

type Service struct {
	rates     Rates
	distances *distance.Table
	factors   *FactorAggregator
	advisor   *ai.Client
	cache     *quotecache.Cache[QuoteResult]
	cacheTTL  time.Duration
	history   HistoryWriter
	store     *Store
	publisher QuotePublisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
	group     singleflight.Group

	publishTimeout time.Duration
	concurrency    int
	pending        sync.WaitGroup
}

func NewService(d Deps) *Service {
	if d.Rates.RatePerKm == 0 {
		d.Rates = DefaultRates()
	}
	s := &Service{
		rates:     d.Rates.clone(),
		distances: d.Distances,
		factors:   d.Factors,
		advisor:   d.Advisor,
		cache:     d.Cache,
		cacheTTL:  d.CacheTTL,
		history:   d.History,
		store:     d.Store,
		publisher: d.Publisher,
		logger:    d.Logger,
		now:       d.Now,
		newID:     d.NewID,

		publishTimeout: d.PublishTimeout,
		concurrency:    d.Concurrency,
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = defaultPublishTimeout
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}
	if s.distances == nil {
		s.distances = distance.Default()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.factors == nil {
		s.factors = NewFactorAggregator(nil, nil, s.rates, s.logger)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.cacheTTL <= 0 || s.cacheTTL > s.rates.ValidFor {
		s.cacheTTL = s.rates.ValidFor
	}
	return s
}

// GetQuote returns a cached quote for an equivalent request or computes a new one.
// Only invalid requests and caller cancellation produce an error.
func (s *Service) GetQuote(ctx context.Context, req QuoteRequest) (QuoteResult, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return QuoteResult{}, err
	}
	key := s.quoteKey(req)
	if q, ok := s.cached(ctx, key); ok {
		return q, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// The leader finishes for its followers even if its own caller goes away.
		ctx := context.WithoutCancel(ctx)
		if q, ok := s.cached(ctx, key); ok {
			return q, nil
		}
		q := s.compute(ctx, req, key)
		return q, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return QuoteResult{}, res.Err
		}
		return res.Val.(QuoteResult), nil
	case <-ctx.Done():
		return QuoteResult{}, ctx.Err()
	}
}

func (s *Service) cached(ctx context.Context, key string) (QuoteResult, bool) {
	if s.cache == nil {
		return QuoteResult{}, false
	}
	q, ok := s.cache.Get(ctx, key)
	if ok {
		metrics.ResultsServed.WithLabelValues("quote", "cache").Inc()
	}
	return q, ok
}

func (s *Service) compute(ctx context.Context, req QuoteRequest, key string) QuoteResult {
	now := s.now()
	ref := now
	if req.ScheduledAt != nil {
		ref = *req.ScheduledAt
	}

	km, known := s.distances.Distance(req.Origin, req.Destination)
	if !known {
		s.logger.Debug("unknown city pair, using default distance",
			zap.String("origin", req.Origin),
			zap.String("destination", req.Destination),
			zap.Float64("distance_km", km))
	}
	route := distance.RouteName(req.Origin, req.Destination)
	base := math.Round(s.rates.BasePrice(km, req.CargoType, req.WeightKg, req.Urgency))

	market := MarketData{}
	if s.store != nil {
		market = s.store.MarketData(ctx)
	}
	avg, competitors := market.average(req.Origin, req.Destination)

	doc := ai.PricingContext{
		Route:            route,
		Origin:           req.Origin,
		Destination:      req.Destination,
		DistanceKm:       km,
		CargoType:        req.CargoType,
		WeightKg:         req.WeightKg,
		Urgency:          req.Urgency,
		CustomerID:       req.CustomerID,
		ScheduledAt:      req.ScheduledAt,
		BasePrice:        base,
		CompetitorPrices: market.competitorPrices(req.Origin, req.Destination),
		MarketAverage:    avg,
	}

	var (
		factors    DynamicFactors
		suggestion *ai.PricingSuggestion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if sug, ok := s.advisor.AdvisePricing(gctx, doc); ok {
			suggestion = sug
		}
		return nil
	})
	g.Go(func() error {
		factors = s.factors.Compute(gctx, route, req.CustomerID, ref)
		return nil
	})
	_ = g.Wait()

	q := buildQuote(s.rates, base, factors, suggestion, avg, competitors, now)
	q.QuoteID = s.newID()
	q.Route = route
	q.DistanceKm = km

	if s.cache != nil {
		s.cache.Put(ctx, key, q, s.cacheTTL)
	}
	if s.history != nil {
		s.history.RecordQuote(ctx, history.QuoteRecord{
			QuoteID:        q.QuoteID,
			Route:          route,
			Origin:         req.Origin,
			Destination:    req.Destination,
			CargoType:      req.CargoType,
			WeightKg:       req.WeightKg,
			Urgency:        req.Urgency,
			CustomerID:     req.CustomerID,
			BasePrice:      q.BasePrice,
			Price:          q.RecommendedPrice,
			DemandLevel:    factors.DemandLevel,
			SeasonalFactor: factors.Seasonal,
			Confidence:     q.Confidence,
			AdvisoryUsed:   q.AdvisoryUsed,
			CreatedAt:      now,
		})
	}
	s.publish(ctx, q)

	metrics.ResultsServed.WithLabelValues("quote", "computed").Inc()
	metrics.RecommendedPrice.Observe(float64(q.RecommendedPrice))
	s.logger.Info("quote computed",
		zap.String("quote_id", q.QuoteID),
		zap.String("route", route),
		zap.Int64("recommended_price", q.RecommendedPrice),
		zap.Int("confidence", q.Confidence),
		zap.Bool("advisory_used", q.AdvisoryUsed))
	return q
}

// buildQuote is the pure composition step. base must already be rounded.
func buildQuote(r Rates, base float64, f DynamicFactors, sug *ai.PricingSuggestion, marketAvg float64, competitors int, now time.Time) QuoteResult {
	used := sug.Trusted()
	candidate := base * f.Product()
	if used {
		candidate = *sug.RecommendedPrice
	}
	lo, hi := r.bounds(base)
	rec := math.Min(math.Max(math.Round(candidate), lo), hi)
	recommended := int64(rec)

	analysis := CompetitiveAnalysis{
		MarketAverage: int64(math.Round(marketAvg)),
		Competitors:   competitors,
		Position:      position(rec, marketAvg),
	}

	recs := positionRecommendations(analysis.Position)
	if used {
		recs = append(recs, sug.Recommendations...)
	}

	return QuoteResult{
		BasePrice:        int64(base),
		RecommendedPrice: recommended,
		PriceRange: PriceRange{
			Min:     int64(math.Round(rec * r.RangeLow)),
			Max:     int64(math.Round(rec * r.RangeHigh)),
			Optimal: recommended,
		},
		Factors:             f.breakdown(),
		Multipliers:         f,
		Confidence:          r.confidence(used, used && sug.HasMarginAnalysis()),
		AdvisoryUsed:        used,
		CompetitiveAnalysis: analysis,
		Recommendations:     recs,
		ValidUntil:          now.Add(r.ValidFor),
		CreatedAt:           now,
	}
}

func position(price, marketAvg float64) string {
	switch {
	case marketAvg <= 0:
		return PositionUnknown
	case price < marketAvg*0.9:
		return PositionLowCost
	case price > marketAvg*1.1:
		return PositionPremium
	default:
		return PositionCompetitive
	}
}

func positionRecommendations(pos string) []string {
	switch pos {
	case PositionPremium:
		return []string{
			"Consider offering a discount to improve competitiveness",
			"Highlight value-added services to justify pricing",
		}
	case PositionLowCost:
		return []string{"Price is attractive; emphasise reliability"}
	default:
		return []string{}
	}
}

// normalizeRequest trims and defaults the request, then validates it.
func normalizeRequest(req QuoteRequest) (QuoteRequest, error) {
	req.Origin = strings.TrimSpace(req.Origin)
	req.Destination = strings.TrimSpace(req.Destination)
	req.CargoType = strings.ToLower(strings.TrimSpace(req.CargoType))
	req.Urgency = strings.ToLower(strings.TrimSpace(req.Urgency))
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CargoType == "" {
		req.CargoType = CargoGeneral
	}
	if req.Urgency == "" {
		req.Urgency = UrgencyNormal
	}
	if err := validation.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if distance.Normalize(req.Origin) == distance.Normalize(req.Destination) {
		return req, fmt.Errorf("%w: origin and destination must differ", ErrInvalidRequest)
	}
	return req, nil
}

// quoteKey covers every request field that can change the computed price.
func (s *Service) quoteKey(req QuoteRequest) string {
	scheduled := "now"
	if req.ScheduledAt != nil {
		scheduled = req.ScheduledAt.In(s.rates.Location).Truncate(time.Hour).Format("2006-01-02T15")
	}
	return quotecache.Key(
		"quote",
		req.Origin,
		req.Destination,
		req.CargoType,
		req.Urgency,
		fmt.Sprintf("w%d", s.rates.WeightTierIndex(req.WeightKg)),
		req.CustomerID,
		scheduled,
	)
}

// publish sends the quote-issued event in the background so a slow broker never
// holds up the caller.
func (s *Service) publish(ctx context.Context, q QuoteResult) {
	if s.publisher == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
		defer cancel()
		if err := s.publisher.PublishQuoteIssued(ctx, q); err != nil {
			s.logger.Warn("quote issued event not published", zap.String("quote_id", q.QuoteID), zap.Error(err))
		}
	}()
}

// Drain waits for in-flight quote events. Call it before closing the publisher.
func (s *Service) Drain() {
	s.pending.Wait()
}

// quoteAll computes one quote per request, at most s.concurrency at a time.
// The first failure cancels the rest.
func (s *Service) quoteAll(ctx context.Context, reqs []QuoteRequest, label func(int) string) ([]QuoteResult, error) {
	out := make([]QuoteResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			q, err := s.GetQuote(gctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", label(i), err)
			}
			out[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DynamicPricing precomputes a general/1000 kg/normal quote per "Origin-Destination" route
// and stores the table as the dynamic-prices document.
func (s *Service) DynamicPricing(ctx context.Context, routes []string, timeframe string) (DynamicPriceTable, error) {
	if len(routes) == 0 {
		return DynamicPriceTable{}, fmt.Errorf("%w: routes is required", ErrInvalidRequest)
	}
	if len(routes) > MaxRoutes {
		return DynamicPriceTable{}, fmt.Errorf("%w: at most %d routes per request", ErrInvalidRequest, MaxRoutes)
	}
	if timeframe == "" {
		timeframe = "24h"
	}
	reqs := make([]QuoteRequest, len(routes))
	for i, route := range routes {
		origin, destination, ok := strings.Cut(route, "-")
		if !ok {
			return DynamicPriceTable{}, fmt.Errorf("%w: route %q must look like Origin-Destination", ErrInvalidRequest, route)
		}
		reqs[i] = QuoteRequest{
			Origin:      origin,
			Destination: destination,
			CargoType:   CargoGeneral,
			WeightKg:    1000,
			Urgency:     UrgencyNormal,
		}
	}
	quotes, err := s.quoteAll(ctx, reqs, func(i int) string { return fmt.Sprintf("route %q", routes[i]) })
	if err != nil {
		return DynamicPriceTable{}, err
	}

	table := DynamicPriceTable{
		Timeframe:   timeframe,
		GeneratedAt: s.now(),
		Prices:      make(map[string]DynamicPrice, len(routes)),
	}
	for i, q := range quotes {
		table.Prices[routes[i]] = DynamicPrice{
			Route:            q.Route,
			BasePrice:        q.BasePrice,
			DynamicPrice:     q.RecommendedPrice,
			DemandMultiplier: q.Multipliers.Demand,
			DemandLevel:      q.Multipliers.DemandLevel,
			ValidUntil:       q.ValidUntil,
		}
	}
	if s.store != nil {
		s.store.SaveDynamicPrices(ctx, table)
	}
	return table, nil
}

// MarketPrices returns the current market data document.
func (s *Service) MarketPrices(ctx context.Context) MarketData {
	if s.store == nil {
		return MarketData{Routes: map[string][]CompetitorPrice{}}
	}
	return s.store.MarketData(ctx)
}

func (s *Service) UpdateMarketPrices(ctx context.Context, updates []MarketPriceUpdate) (MarketData, error) {
	if len(updates) == 0 {
		return MarketData{}, fmt.Errorf("%w: at least one price is required", ErrInvalidRequest)
	}
	for i, u := range updates {
		if err := validation.Struct(u); err != nil {
			return MarketData{}, fmt.Errorf("%w: prices[%d]: %v", ErrInvalidRequest, i, err)
		}
	}
	if s.store == nil {
		return MarketData{}, fmt.Errorf("update market prices: no store configured")
	}
	return s.store.UpdateMarketPrices(ctx, updates, s.now())
}

func (s *Service) UpsertCustomerProfile(ctx context.Context, p CustomerProfile) (CustomerProfile, error) {
	p.CustomerID = strings.TrimSpace(p.CustomerID)
	p.Segment = strings.ToLower(strings.TrimSpace(p.Segment))
	if p.CustomerID == "" {
		return CustomerProfile{}, fmt.Errorf("%w: customerId is required", ErrInvalidRequest)
	}
	if err := validation.Struct(p); err != nil {
		return CustomerProfile{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if s.store == nil {
		return CustomerProfile{}, fmt.Errorf("upsert customer profile: no store configured")
	}
	p.UpdatedAt = s.now()
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return CustomerProfile{}, err
	}
	return p, nil
}
