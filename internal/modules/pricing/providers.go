package pricing

import (
	"context"
	"errors"
	"time"
)

// ErrNoForecast means the forecaster has too little data; demand stays neutral.
var ErrNoForecast = errors.New("no demand forecast")

const (
	DemandLow     = "low"
	DemandMedium  = "medium"
	DemandHigh    = "high"
	DemandUnknown = "unknown"
)

type Forecast struct {
	// ExpectedDemand is the expected number of shipments per day on the route.
	ExpectedDemand float64
	Level          string
}

// DemandForecaster predicts short-horizon demand for a route such as "Toshkent-Samarqand".
type DemandForecaster interface {
	CurrentDemand(ctx context.Context, route string, at time.Time) (Forecast, error)
}

// CustomerDirectory returns nil, nil for unknown customers.
type CustomerDirectory interface {
	Profile(ctx context.Context, customerID string) (*CustomerProfile, error)
}

// QuoteCounter counts quotes recorded for a route in [from, to).
type QuoteCounter interface {
	QuoteCountBetween(ctx context.Context, route string, from, to time.Time) (int, error)
}

// HistoryForecaster derives expected daily demand from recent quote volume.
type HistoryForecaster struct {
	counter    QuoteCounter
	window     time.Duration
	minSamples int
	now        func() time.Time
}

func NewHistoryForecaster(counter QuoteCounter, window time.Duration, minSamples int) *HistoryForecaster {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &HistoryForecaster{counter: counter, window: window, minSamples: minSamples, now: time.Now}
}

// CurrentDemand counts the window ending at at. Future times are clamped to now,
// since no quotes exist past it yet.
func (f *HistoryForecaster) CurrentDemand(ctx context.Context, route string, at time.Time) (Forecast, error) {
	end := at
	if now := f.now(); end.After(now) {
		end = now
	}
	n, err := f.counter.QuoteCountBetween(ctx, route, end.Add(-f.window), end)
	if err != nil {
		return Forecast{}, err
	}
	if n == 0 || n < f.minSamples {
		return Forecast{}, ErrNoForecast
	}
	days := f.window.Hours() / 24
	expected := float64(n) / days
	return Forecast{ExpectedDemand: expected, Level: demandLevel(expected)}, nil
}

func demandLevel(expected float64) string {
	switch {
	case expected >= 10:
		return DemandHigh
	case expected >= 5:
		return DemandMedium
	default:
		return DemandLow
	}
}

// StaticForecaster returns the same forecast for every route.
type StaticForecaster struct {
	Forecast Forecast
	Err      error
}

func (f StaticForecaster) CurrentDemand(context.Context, string, time.Time) (Forecast, error) {
	return f.Forecast, f.Err
}
