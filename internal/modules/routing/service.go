// README: Route planner; local estimates with a bounded advisory override.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

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

const (
	defaultCacheTTL         = 2 * time.Hour
	defaultBatchConcurrency = 8
)

type HistoryWriter interface {
	RecordRoute(ctx context.Context, rec history.RouteRecord)
}

type Deps struct {
	Rates            Rates
	Distances        *distance.Table
	Advisor          *ai.Client
	Traffic          TrafficProvider
	Cache            *quotecache.Cache[RoutePlan]
	CacheTTL         time.Duration
	History          HistoryWriter
	BatchConcurrency int
	Logger           *zap.Logger
	Now              func() time.Time
}

type Service struct {
	rates       Rates
	distances   *distance.Table
	advisor     *ai.Client
	traffic     TrafficProvider
	cache       *quotecache.Cache[RoutePlan]
	cacheTTL    time.Duration
	history     HistoryWriter
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
	group       singleflight.Group
}

func NewService(d Deps) *Service {
	if d.Rates.AverageSpeedKmh == 0 {
		d.Rates = DefaultRates()
	}
	s := &Service{
		rates:       d.Rates.clone(),
		distances:   d.Distances,
		advisor:     d.Advisor,
		traffic:     d.Traffic,
		cache:       d.Cache,
		cacheTTL:    d.CacheTTL,
		history:     d.History,
		concurrency: d.BatchConcurrency,
		logger:      d.Logger,
		now:         d.Now,
	}
	if s.distances == nil {
		s.distances = distance.Default()
	}
	if s.traffic == nil {
		s.traffic = ClockTraffic{Location: s.rates.Location}
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = defaultCacheTTL
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultBatchConcurrency
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// GetRoute returns a cached plan for an equivalent request or computes a new one.
func (s *Service) GetRoute(ctx context.Context, req RouteRequest) (RoutePlan, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return RoutePlan{}, err
	}
	key := s.routeKey(req)
	if p, ok := s.cached(ctx, key); ok {
		return p, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		if p, ok := s.cached(ctx, key); ok {
			return p, nil
		}
		return s.compute(ctx, req, key), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return RoutePlan{}, res.Err
		}
		return res.Val.(RoutePlan), nil
	case <-ctx.Done():
		return RoutePlan{}, ctx.Err()
	}
}

// BatchRoutes plans up to MaxBatch routes concurrently. A failing item carries its
// error; only an empty or oversized batch fails as a whole.
func (s *Service) BatchRoutes(ctx context.Context, reqs []RouteRequest) ([]BatchItem, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one route is required", ErrInvalidRequest)
	}
	if len(reqs) > MaxBatch {
		return nil, fmt.Errorf("%w: at most %d routes per batch", ErrInvalidRequest, MaxBatch)
	}

	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			plan, err := s.GetRoute(gctx, req)
			if err != nil {
				items[i] = BatchItem{Error: err.Error()}
				return nil
			}
			items[i] = BatchItem{Plan: &plan}
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}

func (s *Service) cached(ctx context.Context, key string) (RoutePlan, bool) {
	if s.cache == nil {
		return RoutePlan{}, false
	}
	p, ok := s.cache.Get(ctx, key)
	if ok {
		metrics.ResultsServed.WithLabelValues("route", "cache").Inc()
	}
	return p, ok
}

func (s *Service) compute(ctx context.Context, req RouteRequest, key string) RoutePlan {
	now := s.now()
	at := now
	if req.DepartAt != nil {
		at = *req.DepartAt
	}

	km, known := s.distances.Distance(req.Origin, req.Destination)
	if !known {
		s.logger.Debug("unknown city pair, using default distance",
			zap.String("origin", req.Origin),
			zap.String("destination", req.Destination),
			zap.Float64("distance_km", km))
	}

	traffic, err := s.traffic.CurrentTraffic(ctx, req.Origin, req.Destination, at)
	if err != nil {
		traffic = TrafficByHour(at.In(s.rates.Location).Hour())
		s.logger.Warn("traffic provider failed, using hour heuristic", zap.String("traffic", traffic), zap.Error(err))
	}

	plan := s.localPlan(req, km, traffic)
	plan.CreatedAt = now

	sug, ok := s.advisor.AdviseRoute(ctx, ai.RouteContext{
		Origin:            req.Origin,
		Destination:       req.Destination,
		Waypoints:         plan.OriginalRoute,
		DistanceKm:        km,
		CargoType:         req.CargoType,
		WeightKg:          req.WeightKg,
		Urgency:           req.Urgency,
		VehicleType:       req.VehicleType,
		Weather:           plan.Weather,
		Traffic:           traffic,
		EstimatedMinutes:  plan.EstimatedMinutes,
		EstimatedFuelCost: plan.EstimatedFuelCost,
	})
	if ok {
		plan = s.applySuggestion(plan, req, sug)
	}

	if s.cache != nil {
		s.cache.Put(ctx, key, plan, s.cacheTTL)
	}
	s.record(ctx, req, plan)

	metrics.ResultsServed.WithLabelValues("route", "computed").Inc()
	s.logger.Info("route planned",
		zap.String("order_id", req.OrderID),
		zap.String("route", distance.RouteName(req.Origin, req.Destination)),
		zap.Float64("estimated_minutes", plan.EstimatedMinutes),
		zap.Float64("estimated_fuel_cost", plan.EstimatedFuelCost),
		zap.Int("confidence", plan.Confidence),
		zap.Bool("advisory_used", plan.AdvisoryUsed))
	return plan
}

// localPlan is the deterministic plan used when the oracle contributes nothing.
func (s *Service) localPlan(req RouteRequest, km float64, traffic string) RoutePlan {
	r := s.rates
	minutes := r.Minutes(km)
	fuel := r.FuelCost(km)
	direct := []string{req.Origin, req.Destination}

	risks := []string{}
	if adverseWeather(req.Weather) {
		risks = append(risks, RiskAdverseWeather)
	}
	if traffic == TrafficHeavy {
		risks = append(risks, RiskHeavyTraffic)
	}
	if km > r.LongDistanceKm {
		risks = append(risks, RiskLongDistance)
	}
	if r.mountainous(req.Origin, req.Destination) {
		risks = append(risks, RiskMountainous)
	}

	recs := []string{}
	if traffic == TrafficHeavy {
		recs = append(recs, "Consider departing earlier to avoid traffic")
	}
	if adverseWeather(req.Weather) {
		recs = append(recs, "Check tire condition for weather")
	}
	if km > r.FuelStopKm {
		recs = append(recs, "Plan fuel stops for long journey")
	}
	recs = append(recs, "Maintain steady speed for fuel efficiency", "Check vehicle condition before departure")

	weather := req.Weather
	if weather == "" {
		weather = WeatherUnknown
	}

	return RoutePlan{
		OriginalRoute:     direct,
		OptimizedRoute:    direct,
		DistanceKm:        km,
		EstimatedMinutes:  minutes,
		EstimatedFuelCost: fuel,
		TrafficLevel:      traffic,
		Weather:           weather,
		RiskFactors:       risks,
		Alternatives: []Alternative{
			{
				Route:             direct,
				EstimatedMinutes:  math.Round(minutes * 0.9),
				EstimatedFuelCost: math.Round(fuel * 1.1),
				Pros:              []string{"Fastest arrival", "Direct route"},
				Cons:              []string{"Higher fuel cost", "More traffic"},
			},
			{
				Route:             direct,
				EstimatedMinutes:  math.Round(minutes * 1.1),
				EstimatedFuelCost: math.Round(fuel * 0.8),
				Pros:              []string{"Lower fuel cost", "Scenic route"},
				Cons:              []string{"Longer travel time", "Secondary roads"},
			},
		},
		Recommendations: recs,
		Confidence:      r.confidence(false, false),
	}
}

// applySuggestion overrides only the fields that pass the bounds checks.
func (s *Service) applySuggestion(plan RoutePlan, req RouteRequest, sug *ai.RouteSuggestion) RoutePlan {
	r := s.rates
	localMinutes, localFuel := plan.EstimatedMinutes, plan.EstimatedFuelCost
	var routeUsed, risksUsed, anyUsed bool

	if validWaypoints(sug.OptimizedRoute, req.Origin, req.Destination) {
		plan.OptimizedRoute = sug.OptimizedRoute
		routeUsed = true
	}
	if t := sug.EstimatedTime; t != nil && r.withinBounds(*t, localMinutes) {
		plan.EstimatedMinutes = math.Round(*t)
		anyUsed = true
	}
	if c := sug.FuelCost; c != nil && r.withinBounds(*c, localFuel) {
		plan.EstimatedFuelCost = math.Round(*c)
		anyUsed = true
	}
	if len(sug.RiskFactors) > 0 {
		plan.RiskFactors = sug.RiskFactors
		risksUsed = true
	}

	alts := make([]Alternative, 0, len(sug.Alternatives))
	for _, a := range sug.Alternatives {
		if !validWaypoints(a.Route, req.Origin, req.Destination) {
			continue
		}
		alt := Alternative{
			Route:             a.Route,
			EstimatedMinutes:  localMinutes,
			EstimatedFuelCost: localFuel,
			Pros:              orEmpty(a.Pros),
			Cons:              orEmpty(a.Cons),
		}
		if a.EstimatedTime != nil {
			if !r.withinBounds(*a.EstimatedTime, localMinutes) {
				continue
			}
			alt.EstimatedMinutes = math.Round(*a.EstimatedTime)
		}
		if a.FuelCost != nil {
			if !r.withinBounds(*a.FuelCost, localFuel) {
				continue
			}
			alt.EstimatedFuelCost = math.Round(*a.FuelCost)
		}
		alts = append(alts, alt)
	}
	if len(alts) > 0 {
		plan.Alternatives = alts
		anyUsed = true
	}
	if len(sug.Recommendations) > 0 {
		plan.Recommendations = sug.Recommendations
		anyUsed = true
	}

	plan.AdvisoryUsed = routeUsed || risksUsed || anyUsed
	plan.Confidence = r.confidence(routeUsed, risksUsed)
	return plan
}

func (s *Service) record(ctx context.Context, req RouteRequest, plan RoutePlan) {
	if s.history == nil {
		return
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		s.logger.Error("route request not encodable", zap.Error(err))
	}
	planJSON, err := json.Marshal(plan)
	if err != nil {
		s.logger.Error("route plan not encodable", zap.Error(err))
	}
	s.history.RecordRoute(ctx, history.RouteRecord{
		OrderID:           req.OrderID,
		Route:             distance.RouteName(req.Origin, req.Destination),
		DistanceKm:        plan.DistanceKm,
		EstimatedMinutes:  plan.EstimatedMinutes,
		EstimatedFuelCost: plan.EstimatedFuelCost,
		Confidence:        plan.Confidence,
		RiskFactors:       plan.RiskFactors,
		AdvisoryUsed:      plan.AdvisoryUsed,
		Request:           reqJSON,
		Plan:              planJSON,
		CreatedAt:         plan.CreatedAt,
	})
}

func normalizeRequest(req RouteRequest) (RouteRequest, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Origin = strings.TrimSpace(req.Origin)
	req.Destination = strings.TrimSpace(req.Destination)
	req.CargoType = strings.ToLower(strings.TrimSpace(req.CargoType))
	req.Urgency = strings.ToLower(strings.TrimSpace(req.Urgency))
	req.VehicleType = strings.ToLower(strings.TrimSpace(req.VehicleType))
	req.Weather = strings.ToLower(strings.TrimSpace(req.Weather))
	if req.CargoType == "" {
		req.CargoType = "general"
	}
	if req.Urgency == "" {
		req.Urgency = "normal"
	}
	if req.VehicleType == "" {
		req.VehicleType = "truck"
	}
	if err := validation.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if distance.Normalize(req.Origin) == distance.Normalize(req.Destination) {
		return req, fmt.Errorf("%w: origin and destination must differ", ErrInvalidRequest)
	}
	return req, nil
}

// routeKey ignores OrderID: plans are shared across orders for the TTL.
func (s *Service) routeKey(req RouteRequest) string {
	depart := "now"
	if req.DepartAt != nil {
		depart = req.DepartAt.In(s.rates.Location).Truncate(time.Hour).Format("2006-01-02T15")
	}
	return quotecache.Key(
		"route",
		req.Origin,
		req.Destination,
		req.CargoType,
		req.Urgency,
		fmt.Sprintf("w%d", s.rates.weightBand(req.WeightKg)),
		req.VehicleType,
		req.Weather,
		depart,
	)
}

func adverseWeather(w string) bool {
	return w == "rain" || w == "snow"
}

func validWaypoints(route []string, origin, destination string) bool {
	if len(route) < 2 {
		return false
	}
	return distance.Normalize(route[0]) == distance.Normalize(origin) &&
		distance.Normalize(route[len(route)-1]) == distance.Normalize(destination)
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
