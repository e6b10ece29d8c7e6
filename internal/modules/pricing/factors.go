package pricing

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	demandFloor   = 0.8
	demandCeiling = 1.3
	// demandScale maps an expected daily demand of demandScale to +0.5 over the floor.
	demandScale = 15.0
)

// DemandMultiplier maps an expected demand to [0.8, 1.3].
func DemandMultiplier(expectedDemand float64) float64 {
	m := demandFloor + expectedDemand/demandScale*0.5
	return math.Min(math.Max(m, demandFloor), demandCeiling)
}

// SeasonalMultiplier: summer 1.1, winter 0.9, harvest (Sep-Oct) 1.15.
func SeasonalMultiplier(month time.Month) float64 {
	switch month {
	case time.June, time.July, time.August:
		return 1.1
	case time.December, time.January, time.February:
		return 0.9
	case time.September, time.October:
		return 1.15
	default:
		return 1.0
	}
}

// TimeMultiplier stacks the peak, rush-hour and weekday bands for t's local clock.
func TimeMultiplier(t time.Time) float64 {
	m := 1.0
	hour := t.Hour()
	if (hour >= 8 && hour <= 10) || (hour >= 14 && hour <= 16) {
		m *= 1.1
	}
	if (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19) {
		m *= 1.15
	}
	switch t.Weekday() {
	case time.Monday, time.Friday:
		m *= 1.05
	case time.Saturday, time.Sunday:
		m *= 1.2
	}
	return m
}

// CustomerMultiplier stacks loyalty, order-value and new-customer discounts, floored at floor.
// A nil profile is neutral.
func CustomerMultiplier(p *CustomerProfile, floor float64) float64 {
	if p == nil {
		return 1.0
	}
	m := 1.0
	switch {
	case p.LoyaltyScore > 80:
		m *= 0.95
	case p.LoyaltyScore > 60:
		m *= 0.97
	}
	switch {
	case p.AverageOrderValue > 500000:
		m *= 0.93
	case p.AverageOrderValue > 300000:
		m *= 0.95
	}
	if p.Segment == "new" {
		m *= 0.9
	}
	return math.Max(m, floor)
}

// FactorAggregator computes DynamicFactors from request context and providers.
type FactorAggregator struct {
	demand    DemandForecaster
	customers CustomerDirectory
	floor     float64
	loc       *time.Location
	logger    *zap.Logger
}

func NewFactorAggregator(demand DemandForecaster, customers CustomerDirectory, rates Rates, logger *zap.Logger) *FactorAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := rates.Location
	if loc == nil {
		loc = time.UTC
	}
	return &FactorAggregator{demand: demand, customers: customers, floor: rates.CustomerFloor, loc: loc, logger: logger}
}

// Compute never fails; provider errors fall back to neutral factors.
func (a *FactorAggregator) Compute(ctx context.Context, route string, customerID string, ref time.Time) DynamicFactors {
	local := ref.In(a.loc)
	f := DynamicFactors{
		Demand:      1.0,
		DemandLevel: DemandUnknown,
		Seasonal:    SeasonalMultiplier(local.Month()),
		Timing:      TimeMultiplier(local),
		Customer:    1.0,
	}

	if a.demand != nil {
		forecast, err := a.demand.CurrentDemand(ctx, route, ref)
		switch {
		case err == nil:
			f.Demand = DemandMultiplier(forecast.ExpectedDemand)
			f.DemandLevel = forecast.Level
		case errors.Is(err, ErrNoForecast):
		default:
			a.logger.Warn("demand forecast failed", zap.String("route", route), zap.Error(err))
		}
	}

	if customerID != "" && a.customers != nil {
		profile, err := a.customers.Profile(ctx, customerID)
		if err != nil {
			a.logger.Warn("customer profile lookup failed", zap.String("customer_id", customerID), zap.Error(err))
		} else {
			f.Customer = CustomerMultiplier(profile, a.floor)
		}
	}
	return f
}

// breakdown lists the factors that moved the price.
func (f DynamicFactors) breakdown() []Factor {
	out := make([]Factor, 0, 4)
	if f.Demand != 1.0 {
		desc := "High demand increases price"
		if f.Demand < 1.0 {
			desc = "Low demand reduces price"
		}
		out = append(out, Factor{Name: "demand", Impact: impact(f.Demand), Description: desc})
	}
	if f.Seasonal != 1.0 {
		out = append(out, Factor{Name: "seasonal", Impact: impact(f.Seasonal), Description: "Seasonal demand adjustment"})
	}
	if f.Timing != 1.0 {
		out = append(out, Factor{Name: "timing", Impact: impact(f.Timing), Description: "Peak time pricing adjustment"})
	}
	if f.Customer != 1.0 {
		desc := "Loyalty discount applied"
		if f.Customer > 1.0 {
			desc = "Customer premium"
		}
		out = append(out, Factor{Name: "customer_loyalty", Impact: impact(f.Customer), Description: desc})
	}
	return out
}

func impact(m float64) int {
	return int(math.Round((m - 1) * 100))
}
