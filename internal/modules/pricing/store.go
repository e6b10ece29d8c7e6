// README: Market data and customer profile documents kept in the shared store.
package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"cargoquote/internal/metrics"
	"cargoquote/internal/modules/distance"
	"cargoquote/internal/storage"
)

const (
	marketDataDoc       = "market-data"
	customerProfilesDoc = "customer-profiles"
	dynamicPricesDoc    = "dynamic-prices"
)

type CompetitorPrice struct {
	Competitor string    `json:"competitor"`
	Price      float64   `json:"price"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MarketData maps a canonical route key (see routeKey) to competitor prices.
type MarketData struct {
	Routes    map[string][]CompetitorPrice `json:"routes"`
	UpdatedAt time.Time                    `json:"updatedAt"`
}

// MarketPriceUpdate is one observed competitor price.
type MarketPriceUpdate struct {
	Origin      string  `json:"origin" validate:"required"`
	Destination string  `json:"destination" validate:"required"`
	Competitor  string  `json:"competitor" validate:"required"`
	Price       float64 `json:"price" validate:"gt=0"`
}

func routeKey(origin, destination string) string {
	return distance.Normalize(origin) + "-" + distance.Normalize(destination)
}

// average returns the mean competitor price for the route and how many were seen.
func (m MarketData) average(origin, destination string) (float64, int) {
	prices := m.Routes[routeKey(origin, destination)]
	if len(prices) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, p := range prices {
		sum += p.Price
	}
	return sum / float64(len(prices)), len(prices)
}

func (m MarketData) competitorPrices(origin, destination string) map[string]float64 {
	prices := m.Routes[routeKey(origin, destination)]
	if len(prices) == 0 {
		return nil
	}
	out := make(map[string]float64, len(prices))
	for _, p := range prices {
		out[p.Competitor] = p.Price
	}
	return out
}

// Store wraps the shared document store for pricing documents.
type Store struct {
	store  storage.Store
	logger *zap.Logger
}

func NewStore(store storage.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{store: store, logger: logger}
}

// MarketData returns the stored market data, or an empty document on absence or failure.
func (s *Store) MarketData(ctx context.Context) MarketData {
	md := MarketData{Routes: map[string][]CompetitorPrice{}}
	if _, err := storage.ReadInto(ctx, s.store, marketDataDoc, &md); err != nil {
		s.logger.Error("market data read failed", zap.Error(err))
		metrics.PersistenceFailures.WithLabelValues("market_read").Inc()
		return MarketData{Routes: map[string][]CompetitorPrice{}}
	}
	if md.Routes == nil {
		md.Routes = map[string][]CompetitorPrice{}
	}
	return md
}

// UpdateMarketPrices upserts competitor prices per route and competitor.
func (s *Store) UpdateMarketPrices(ctx context.Context, updates []MarketPriceUpdate, now time.Time) (MarketData, error) {
	md := s.MarketData(ctx)
	for _, u := range updates {
		key := routeKey(u.Origin, u.Destination)
		prices := md.Routes[key]
		replaced := false
		for i := range prices {
			if strings.EqualFold(prices[i].Competitor, u.Competitor) {
				prices[i] = CompetitorPrice{Competitor: u.Competitor, Price: u.Price, UpdatedAt: now}
				replaced = true
				break
			}
		}
		if !replaced {
			prices = append(prices, CompetitorPrice{Competitor: u.Competitor, Price: u.Price, UpdatedAt: now})
		}
		md.Routes[key] = prices
	}
	md.UpdatedAt = now
	if err := storage.WriteJSON(ctx, s.store, marketDataDoc, md); err != nil {
		return MarketData{}, fmt.Errorf("update market prices: %w", err)
	}
	return md, nil
}

// Profile implements CustomerDirectory.
func (s *Store) Profile(ctx context.Context, customerID string) (*CustomerProfile, error) {
	profiles, err := s.profiles(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := profiles[customerID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// UpsertProfile replaces the stored profile for p.CustomerID.
func (s *Store) UpsertProfile(ctx context.Context, p CustomerProfile) error {
	profiles, err := s.profiles(ctx)
	if err != nil {
		return err
	}
	profiles[p.CustomerID] = p
	if err := storage.WriteJSON(ctx, s.store, customerProfilesDoc, profiles); err != nil {
		return fmt.Errorf("upsert customer profile: %w", err)
	}
	return nil
}

func (s *Store) profiles(ctx context.Context) (map[string]CustomerProfile, error) {
	profiles := map[string]CustomerProfile{}
	if _, err := storage.ReadInto(ctx, s.store, customerProfilesDoc, &profiles); err != nil {
		return nil, fmt.Errorf("read customer profiles: %w", err)
	}
	if profiles == nil {
		profiles = map[string]CustomerProfile{}
	}
	return profiles, nil
}

// SaveDynamicPrices stores the latest dynamic price table. Failures are logged only.
func (s *Store) SaveDynamicPrices(ctx context.Context, table DynamicPriceTable) {
	if err := storage.WriteJSON(ctx, s.store, dynamicPricesDoc, table); err != nil {
		s.logger.Error("dynamic price table write failed", zap.Error(err))
		metrics.PersistenceFailures.WithLabelValues("dynamic_prices_write").Inc()
	}
}
