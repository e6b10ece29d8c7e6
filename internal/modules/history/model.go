// README: Append-only history records and aggregate analytics shapes.
package history

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrQuoteNotFound  = errors.New("quote not found")
	ErrInvalidQuoteID = errors.New("invalid quote id")
)

// Log names in the shared store.
const (
	QuoteLog      = "quote-history"
	RouteLog      = "route-history"
	AcceptanceLog = "quote-acceptances"
)

// QuoteRecord snapshots one produced quote together with its request.
type QuoteRecord struct {
	QuoteID        string    `json:"quoteId"`
	Route          string    `json:"route"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	CargoType      string    `json:"cargoType"`
	WeightKg       float64   `json:"weightKg"`
	Urgency        string    `json:"urgency"`
	CustomerID     string    `json:"customerId,omitempty"`
	BasePrice      int64     `json:"basePrice"`
	Price          int64     `json:"price"`
	DemandLevel    string    `json:"demandLevel"`
	SeasonalFactor float64   `json:"seasonalFactor"`
	Confidence     int       `json:"confidence"`
	AdvisoryUsed   bool      `json:"advisoryUsed"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RouteRecord snapshots one produced route plan. Request and Plan hold the full
// documents; the remaining fields are what analytics aggregate over.
type RouteRecord struct {
	OrderID           string          `json:"orderId,omitempty"`
	Route             string          `json:"route"`
	DistanceKm        float64         `json:"distanceKm"`
	EstimatedMinutes  float64         `json:"estimatedMinutes"`
	EstimatedFuelCost float64         `json:"estimatedFuelCost"`
	Confidence        int             `json:"confidence"`
	RiskFactors       []string        `json:"riskFactors"`
	AdvisoryUsed      bool            `json:"advisoryUsed"`
	Request           json.RawMessage `json:"request,omitempty"`
	Plan              json.RawMessage `json:"plan,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// AcceptanceRecord marks a quote as accepted by an order.
type AcceptanceRecord struct {
	QuoteID    string    `json:"quoteId"`
	OrderID    string    `json:"orderId,omitempty"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

type RouteCount struct {
	Route string `json:"route"`
	Count int    `json:"count"`
}

type RiskCount struct {
	Risk      string `json:"risk"`
	Frequency int    `json:"frequency"`
}

type PricingStats struct {
	TotalQuotes      int          `json:"totalQuotes"`
	AcceptedQuotes   int          `json:"acceptedQuotes"`
	AcceptanceRate   float64      `json:"acceptanceRate"`
	AveragePrice     int64        `json:"averagePrice"`
	AdvisoryShare    float64      `json:"advisoryShare"`
	MostCommonRoutes []RouteCount `json:"mostCommonRoutes"`
	Recommendations  []string     `json:"recommendations"`
}

type RouteStats struct {
	TotalRoutes       int            `json:"totalRoutes"`
	AverageDistanceKm float64        `json:"averageDistanceKm"`
	AverageMinutes    float64        `json:"averageMinutes"`
	AverageFuelCost   float64        `json:"averageFuelCost"`
	AverageConfidence float64        `json:"averageConfidence"`
	MostCommonRoutes  []RouteCount   `json:"mostCommonRoutes"`
	RiskFactors       []RiskCount    `json:"riskFactors"`
	RiskDistribution  map[string]int `json:"riskDistribution"`
}

// AggregateStats is the getAnalytics answer.
type AggregateStats struct {
	Period      string       `json:"period"`
	Since       time.Time    `json:"since"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Pricing     PricingStats `json:"pricing"`
	Routes      RouteStats   `json:"routes"`
}
