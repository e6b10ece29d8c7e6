// README: History recorder; bounded append logs plus read-side aggregation.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"cargoquote/internal/metrics"
	"cargoquote/internal/storage"
)

const (
	DefaultMaxRecords = 1000
	topRoutes         = 10
	topRisks          = 5
	lowAcceptance     = 70.0
	highAcceptance    = 90.0
)

type Config struct {
	// MaxRecords bounds each log; oldest records are dropped first.
	MaxRecords int
	Location   *time.Location
}

type Recorder struct {
	store  storage.Store
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

func NewRecorder(store storage.Store, cfg Config, logger *zap.Logger) *Recorder {
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultMaxRecords
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, cfg: cfg, now: time.Now, logger: logger}
}

// RecordQuote appends rec. Failures are logged and swallowed.
func (r *Recorder) RecordQuote(ctx context.Context, rec QuoteRecord) {
	r.appendBounded(ctx, QuoteLog, rec)
}

// RecordRoute appends rec. Failures are logged and swallowed.
func (r *Recorder) RecordRoute(ctx context.Context, rec RouteRecord) {
	r.appendBounded(ctx, RouteLog, rec)
}

func (r *Recorder) appendBounded(ctx context.Context, name string, rec any) {
	if err := storage.AppendJSON(ctx, r.store, name, rec); err != nil {
		r.logger.Error("history append failed", zap.String("log", name), zap.Error(err))
		metrics.PersistenceFailures.WithLabelValues("history_append").Inc()
		return
	}
	if err := r.store.Trim(ctx, name, r.cfg.MaxRecords); err != nil {
		r.logger.Warn("history trim failed", zap.String("log", name), zap.Error(err))
		metrics.PersistenceFailures.WithLabelValues("history_trim").Inc()
	}
}

// MarkAccepted records that quoteID was accepted. Repeated calls are no-ops.
// Unlike the record paths, storage errors are returned so event consumers can redeliver.
func (r *Recorder) MarkAccepted(ctx context.Context, quoteID, orderID string, at time.Time) error {
	quoteID = strings.TrimSpace(quoteID)
	if quoteID == "" {
		return ErrInvalidQuoteID
	}
	quotes, err := readLog[QuoteRecord](ctx, r.store, QuoteLog)
	if err != nil {
		return err
	}
	found := false
	for _, q := range quotes {
		if q.QuoteID == quoteID {
			found = true
			break
		}
	}
	if !found {
		return ErrQuoteNotFound
	}

	accepted, err := readLog[AcceptanceRecord](ctx, r.store, AcceptanceLog)
	if err != nil {
		return err
	}
	for _, a := range accepted {
		if a.QuoteID == quoteID {
			return nil
		}
	}
	if at.IsZero() {
		at = r.now()
	}
	if err := storage.AppendJSON(ctx, r.store, AcceptanceLog, AcceptanceRecord{QuoteID: quoteID, OrderID: orderID, AcceptedAt: at}); err != nil {
		return fmt.Errorf("mark accepted: %w", err)
	}
	if err := r.store.Trim(ctx, AcceptanceLog, r.cfg.MaxRecords); err != nil {
		r.logger.Warn("history trim failed", zap.String("log", AcceptanceLog), zap.Error(err))
	}
	return nil
}

// QuoteCountBetween implements the demand forecaster's counter over [from, to).
func (r *Recorder) QuoteCountBetween(ctx context.Context, route string, from, to time.Time) (int, error) {
	quotes, err := readLog[QuoteRecord](ctx, r.store, QuoteLog)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, q := range quotes {
		if strings.EqualFold(q.Route, route) && !q.CreatedAt.Before(from) && q.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

// RecentRoutes returns up to limit route records, newest first.
func (r *Recorder) RecentRoutes(ctx context.Context, limit int) []RouteRecord {
	routes := r.routes(ctx)
	if limit <= 0 || limit > len(routes) {
		limit = len(routes)
	}
	out := make([]RouteRecord, 0, limit)
	for i := len(routes) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, routes[i])
	}
	return out
}

// PeriodStart resolves today/week/month/year; anything else means the last 30 days.
func PeriodStart(period string, now time.Time) time.Time {
	switch strings.ToLower(period) {
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case "week":
		return now.AddDate(0, 0, -7)
	case "month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	case "year":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	default:
		return now.AddDate(0, 0, -30)
	}
}

// Analytics combines pricing and route aggregates for the period.
func (r *Recorder) Analytics(ctx context.Context, period string) AggregateStats {
	now := r.now().In(r.cfg.Location)
	since := PeriodStart(period, now)
	return AggregateStats{
		Period:      period,
		Since:       since,
		GeneratedAt: now,
		Pricing:     r.pricingSince(ctx, since),
		Routes:      r.routesSince(ctx, since),
	}
}

func (r *Recorder) PricingAnalytics(ctx context.Context, period string) PricingStats {
	return r.pricingSince(ctx, PeriodStart(period, r.now().In(r.cfg.Location)))
}

func (r *Recorder) RouteAnalytics(ctx context.Context, period string) RouteStats {
	return r.routesSince(ctx, PeriodStart(period, r.now().In(r.cfg.Location)))
}

func (r *Recorder) pricingSince(ctx context.Context, since time.Time) PricingStats {
	accepted := map[string]bool{}
	acceptances, err := readLog[AcceptanceRecord](ctx, r.store, AcceptanceLog)
	if err != nil {
		r.readFailed(AcceptanceLog, err)
	}
	for _, a := range acceptances {
		accepted[a.QuoteID] = true
	}

	stats := PricingStats{MostCommonRoutes: []RouteCount{}, Recommendations: []string{}}
	var sum float64
	var advised int
	counts := map[string]int{}
	for _, q := range r.quotes(ctx) {
		if q.CreatedAt.Before(since) {
			continue
		}
		stats.TotalQuotes++
		sum += float64(q.Price)
		counts[q.Route]++
		if accepted[q.QuoteID] {
			stats.AcceptedQuotes++
		}
		if q.AdvisoryUsed {
			advised++
		}
	}
	if stats.TotalQuotes == 0 {
		return stats
	}

	n := float64(stats.TotalQuotes)
	stats.AveragePrice = int64(math.Round(sum / n))
	stats.AcceptanceRate = round1(float64(stats.AcceptedQuotes) / n * 100)
	stats.AdvisoryShare = round1(float64(advised) / n * 100)
	stats.MostCommonRoutes = topCounts(counts, topRoutes)

	switch {
	case stats.AcceptanceRate < lowAcceptance:
		stats.Recommendations = append(stats.Recommendations, "Consider reducing prices by 5-10% to improve acceptance rate")
	case stats.AcceptanceRate > highAcceptance:
		stats.Recommendations = append(stats.Recommendations, "Consider increasing prices by 3-5% to maximize revenue")
	}
	return stats
}

func (r *Recorder) routesSince(ctx context.Context, since time.Time) RouteStats {
	stats := RouteStats{
		MostCommonRoutes: []RouteCount{},
		RiskFactors:      []RiskCount{},
		RiskDistribution: map[string]int{"low": 0, "medium": 0, "high": 0},
	}
	var dist, minutes, fuel, conf float64
	routeCounts := map[string]int{}
	riskCounts := map[string]int{}
	for _, rec := range r.routes(ctx) {
		if rec.CreatedAt.Before(since) {
			continue
		}
		stats.TotalRoutes++
		dist += rec.DistanceKm
		minutes += rec.EstimatedMinutes
		fuel += rec.EstimatedFuelCost
		conf += float64(rec.Confidence)
		routeCounts[rec.Route]++
		for _, risk := range rec.RiskFactors {
			riskCounts[risk]++
		}
		switch n := len(rec.RiskFactors); {
		case n <= 1:
			stats.RiskDistribution["low"]++
		case n == 2:
			stats.RiskDistribution["medium"]++
		default:
			stats.RiskDistribution["high"]++
		}
	}
	if stats.TotalRoutes == 0 {
		return stats
	}

	n := float64(stats.TotalRoutes)
	stats.AverageDistanceKm = round1(dist / n)
	stats.AverageMinutes = round1(minutes / n)
	stats.AverageFuelCost = math.Round(fuel / n)
	stats.AverageConfidence = round1(conf / n)
	stats.MostCommonRoutes = topCounts(routeCounts, topRoutes)
	for _, rc := range topCounts(riskCounts, topRisks) {
		stats.RiskFactors = append(stats.RiskFactors, RiskCount{Risk: rc.Route, Frequency: rc.Count})
	}
	return stats
}

func (r *Recorder) quotes(ctx context.Context) []QuoteRecord {
	quotes, err := readLog[QuoteRecord](ctx, r.store, QuoteLog)
	if err != nil {
		r.readFailed(QuoteLog, err)
		return nil
	}
	return quotes
}

func (r *Recorder) routes(ctx context.Context) []RouteRecord {
	routes, err := readLog[RouteRecord](ctx, r.store, RouteLog)
	if err != nil {
		r.readFailed(RouteLog, err)
		return nil
	}
	return routes
}

func (r *Recorder) readFailed(name string, err error) {
	r.logger.Error("history read failed", zap.String("log", name), zap.Error(err))
	metrics.PersistenceFailures.WithLabelValues("history_read").Inc()
}

// readLog decodes every record of a log; undecodable records are skipped.
func readLog[T any](ctx context.Context, s storage.Store, name string) ([]T, error) {
	raw, err := s.Log(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, rec := range raw {
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func topCounts(counts map[string]int, n int) []RouteCount {
	out := make([]RouteCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, RouteCount{Route: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Route < out[j].Route
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
