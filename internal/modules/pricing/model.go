// README: Quote request/result types and pricing sentinel errors.
package pricing

import (
	"errors"
	"time"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
)

const (
	UrgencyNormal  = "normal"
	UrgencyUrgent  = "urgent"
	UrgencyExpress = "express"

	CargoGeneral = "general"
)

// Competitive positions relative to the market average.
const (
	PositionLowCost     = "low_cost"
	PositionCompetitive = "competitive"
	PositionPremium     = "premium"
	PositionUnknown     = "unknown"
)

// QuoteRequest is immutable once issued. Zero CargoType and Urgency mean general/normal.
type QuoteRequest struct {
	Origin      string     `json:"origin" validate:"required,max=64"`
	Destination string     `json:"destination" validate:"required,max=64"`
	CargoType   string     `json:"cargoType,omitempty" validate:"max=32"`
	WeightKg    float64    `json:"weightKg" validate:"gte=0,lte=100000"`
	Urgency     string     `json:"urgency,omitempty" validate:"omitempty,oneof=normal urgent express"`
	CustomerID  string     `json:"customerId,omitempty" validate:"max=64"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

type PriceRange struct {
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
	Optimal int64 `json:"optimal"`
}

// Factor explains one non-neutral multiplier; Impact is a signed percentage.
type Factor struct {
	Name        string `json:"name"`
	Impact      int    `json:"impact"`
	Description string `json:"description"`
}

type CompetitiveAnalysis struct {
	MarketAverage int64  `json:"marketAverage"`
	Competitors   int    `json:"competitors"`
	Position      string `json:"position"`
}

// QuoteResult is never mutated after creation. Amounts are whole UZS.
type QuoteResult struct {
	QuoteID             string              `json:"quoteId"`
	Route               string              `json:"route"`
	DistanceKm          float64             `json:"distanceKm"`
	BasePrice           int64               `json:"basePrice"`
	RecommendedPrice    int64               `json:"recommendedPrice"`
	PriceRange          PriceRange          `json:"priceRange"`
	Factors             []Factor            `json:"factors"`
	Multipliers         DynamicFactors      `json:"multipliers"`
	Confidence          int                 `json:"confidence"`
	AdvisoryUsed        bool                `json:"advisoryUsed"`
	CompetitiveAnalysis CompetitiveAnalysis `json:"competitiveAnalysis"`
	Recommendations     []string            `json:"recommendations"`
	ValidUntil          time.Time           `json:"validUntil"`
	CreatedAt           time.Time           `json:"createdAt"`
}

// DynamicFactors are independent multipliers combined by product.
type DynamicFactors struct {
	Demand      float64 `json:"demand"`
	Seasonal    float64 `json:"seasonal"`
	Timing      float64 `json:"timing"`
	Customer    float64 `json:"customer"`
	DemandLevel string  `json:"demandLevel"`
}

func (f DynamicFactors) Product() float64 {
	return f.Demand * f.Seasonal * f.Timing * f.Customer
}

// CustomerProfile feeds the customer multiplier.
type CustomerProfile struct {
	CustomerID        string    `json:"customerId"`
	LoyaltyScore      float64   `json:"loyaltyScore" validate:"gte=0,lte=100"`
	AverageOrderValue float64   `json:"averageOrderValue" validate:"gte=0"`
	Segment           string    `json:"segment" validate:"omitempty,oneof=new standard regular vip"`
	TotalOrders       int       `json:"totalOrders" validate:"gte=0"`
	RiskLevel         string    `json:"riskLevel,omitempty" validate:"omitempty,oneof=low medium high"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// DynamicPrice is one row of the precomputed dynamic price table.
type DynamicPrice struct {
	Route            string    `json:"route"`
	BasePrice        int64     `json:"basePrice"`
	DynamicPrice     int64     `json:"dynamicPrice"`
	DemandMultiplier float64   `json:"demandMultiplier"`
	DemandLevel      string    `json:"demandLevel"`
	ValidUntil       time.Time `json:"validUntil"`
}

// DynamicPriceTable is stored as the dynamic-prices document.
type DynamicPriceTable struct {
	Timeframe   string                  `json:"timeframe"`
	GeneratedAt time.Time               `json:"generatedAt"`
	Prices      map[string]DynamicPrice `json:"prices"`
}
