// README: Route plan request/result types.
package routing

import (
	"errors"
	"time"
)

var ErrInvalidRequest = errors.New("invalid request")

const (
	TrafficLight    = "light"
	TrafficModerate = "moderate"
	TrafficHeavy    = "heavy"

	WeatherUnknown = "unknown"

	MaxBatch = 50
)

// Risk tags.
const (
	RiskAdverseWeather = "adverse_weather"
	RiskHeavyTraffic   = "heavy_traffic"
	RiskLongDistance   = "long_distance"
	RiskMountainous    = "mountainous_terrain"
)

type RouteRequest struct {
	OrderID     string     `json:"orderId,omitempty" validate:"max=64"`
	Origin      string     `json:"origin" validate:"required,max=64"`
	Destination string     `json:"destination" validate:"required,max=64"`
	CargoType   string     `json:"cargoType,omitempty" validate:"max=32"`
	WeightKg    float64    `json:"weightKg" validate:"gte=0,lte=100000"`
	Urgency     string     `json:"urgency,omitempty" validate:"omitempty,oneof=normal urgent express"`
	VehicleType string     `json:"vehicleType,omitempty" validate:"max=32"`
	Weather     string     `json:"weather,omitempty" validate:"max=32"`
	DepartAt    *time.Time `json:"departAt,omitempty"`
}

type Alternative struct {
	Route             []string `json:"route"`
	EstimatedMinutes  float64  `json:"estimatedMinutes"`
	EstimatedFuelCost float64  `json:"estimatedFuelCost"`
	Pros              []string `json:"pros"`
	Cons              []string `json:"cons"`
}

// RoutePlan is never mutated after creation. Costs are whole UZS, times whole minutes.
type RoutePlan struct {
	OriginalRoute     []string      `json:"originalRoute"`
	OptimizedRoute    []string      `json:"optimizedRoute"`
	DistanceKm        float64       `json:"distanceKm"`
	EstimatedMinutes  float64       `json:"estimatedMinutes"`
	EstimatedFuelCost float64       `json:"estimatedFuelCost"`
	TrafficLevel      string        `json:"trafficLevel"`
	Weather           string        `json:"weather"`
	RiskFactors       []string      `json:"riskFactors"`
	Alternatives      []Alternative `json:"alternatives"`
	Recommendations   []string      `json:"recommendations"`
	Confidence        int           `json:"confidence"`
	AdvisoryUsed      bool          `json:"advisoryUsed"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// BatchItem carries either a plan or the reason the request failed.
type BatchItem struct {
	Plan  *RoutePlan `json:"plan,omitempty"`
	Error string     `json:"error,omitempty"`
}
