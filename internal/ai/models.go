package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// PricingContext is the document sent to the oracle for a quote.
type PricingContext struct {
	Route       string     `json:"route"`
	Origin      string     `json:"origin"`
	Destination string     `json:"destination"`
	DistanceKm  float64    `json:"distanceKm"`
	CargoType   string     `json:"cargoType"`
	WeightKg    float64    `json:"weightKg"`
	Urgency     string     `json:"urgency"`
	CustomerID  string     `json:"customerId,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`

	// BasePrice is the deterministic price before dynamic factors, in UZS.
	BasePrice float64 `json:"basePrice"`

	// CompetitorPrices and MarketAverage come from the market-data document; empty when unknown.
	CompetitorPrices map[string]float64 `json:"competitorPrices,omitempty"`
	MarketAverage    float64            `json:"marketAverage,omitempty"`
}

// RouteContext is the document sent to the oracle for a route plan.
type RouteContext struct {
	Origin            string   `json:"origin"`
	Destination       string   `json:"destination"`
	Waypoints         []string `json:"waypoints"`
	DistanceKm        float64  `json:"distanceKm"`
	CargoType         string   `json:"cargoType"`
	WeightKg          float64  `json:"weightKg"`
	Urgency           string   `json:"urgency"`
	VehicleType       string   `json:"vehicleType,omitempty"`
	Weather           string   `json:"weather,omitempty"`
	Traffic           string   `json:"traffic"`
	EstimatedMinutes  float64  `json:"estimatedMinutes"`
	EstimatedFuelCost float64  `json:"estimatedFuelCost"`
}

// PricingSuggestion mirrors the oracle's pricing answer. Every field may be absent.
type PricingSuggestion struct {
	RecommendedPrice *float64        `json:"recommended_price"`
	PriceRange       *PriceRange     `json:"price_range,omitempty"`
	MarginAnalysis   json.RawMessage `json:"margin_analysis,omitempty"`
	Recommendations  []string        `json:"recommendations,omitempty"`
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Trusted reports whether the suggestion carries a usable recommended price.
func (s *PricingSuggestion) Trusted() bool {
	return s != nil && s.RecommendedPrice != nil && positiveFinite(*s.RecommendedPrice)
}

// HasMarginAnalysis reports whether margin_analysis holds a non-empty JSON value.
func (s *PricingSuggestion) HasMarginAnalysis() bool {
	if s == nil {
		return false
	}
	v := bytes.TrimSpace(s.MarginAnalysis)
	switch string(v) {
	case "", "null", "{}", "[]", `""`:
		return false
	}
	return true
}

// sanitize drops fields that cannot be used even when the price itself is fine.
func (s *PricingSuggestion) sanitize() {
	if r := s.PriceRange; r != nil && (!positiveFinite(r.Min) || !positiveFinite(r.Max) || r.Min > r.Max) {
		s.PriceRange = nil
	}
	s.Recommendations = cleanStrings(s.Recommendations)
}

// RouteSuggestion mirrors the oracle's route answer. Every field may be absent.
type RouteSuggestion struct {
	OptimizedRoute  []string                `json:"optimizedRoute,omitempty"`
	EstimatedTime   *float64                `json:"estimatedTime,omitempty"`
	FuelCost        *float64                `json:"fuelCost,omitempty"`
	RiskFactors     []string                `json:"riskFactors,omitempty"`
	Alternatives    []AlternativeSuggestion `json:"alternatives,omitempty"`
	Recommendations []string                `json:"recommendations,omitempty"`
}

type AlternativeSuggestion struct {
	Route         []string `json:"route"`
	EstimatedTime *float64 `json:"estimatedTime,omitempty"`
	FuelCost      *float64 `json:"fuelCost,omitempty"`
	Pros          []string `json:"pros,omitempty"`
	Cons          []string `json:"cons,omitempty"`
}

// Trusted reports whether at least one field survived sanitising.
func (s *RouteSuggestion) Trusted() bool {
	if s == nil {
		return false
	}
	return len(s.OptimizedRoute) > 0 || s.EstimatedTime != nil || s.FuelCost != nil ||
		len(s.RiskFactors) > 0 || len(s.Alternatives) > 0 || len(s.Recommendations) > 0
}

func (s *RouteSuggestion) sanitize() {
	s.OptimizedRoute = cleanStrings(s.OptimizedRoute)
	s.RiskFactors = cleanStrings(s.RiskFactors)
	s.Recommendations = cleanStrings(s.Recommendations)
	if s.EstimatedTime != nil && !positiveFinite(*s.EstimatedTime) {
		s.EstimatedTime = nil
	}
	if s.FuelCost != nil && !positiveFinite(*s.FuelCost) {
		s.FuelCost = nil
	}
	alts := s.Alternatives[:0]
	for _, a := range s.Alternatives {
		a.Route = cleanStrings(a.Route)
		if len(a.Route) < 2 {
			continue
		}
		if a.EstimatedTime != nil && !positiveFinite(*a.EstimatedTime) {
			a.EstimatedTime = nil
		}
		if a.FuelCost != nil && !positiveFinite(*a.FuelCost) {
			a.FuelCost = nil
		}
		a.Pros = cleanStrings(a.Pros)
		a.Cons = cleanStrings(a.Cons)
		alts = append(alts, a)
	}
	s.Alternatives = alts
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func cleanStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// decodeSuggestion parses raw oracle output into v.
func decodeSuggestion(raw string, v any) error {
	clean := cleanJSONString(raw)
	if clean == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSuggestion, err)
	}
	return nil
}

// cleanJSONString removes markdown code fences if present (e.g. ```json ... ```).
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
