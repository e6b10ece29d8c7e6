package pricing

import (
	"maps"
	"math"
	"slices"
	"time"
)

// WeightTier applies Factor to shipments up to and including MaxKg.
type WeightTier struct {
	MaxKg  float64
	Factor float64
}

// Rates is the immutable pricing configuration. Construct it once and pass it by value;
// NewService clones the map and slice fields.
type Rates struct {
	RatePerKm    float64
	MinimumPrice float64

	CargoMultipliers   map[string]float64
	UrgencyMultipliers map[string]float64
	// WeightTiers must be sorted by MaxKg. Weights above the last tier use OverweightFactor.
	WeightTiers      []WeightTier
	OverweightFactor float64

	// Recommended price is clamped to [ClampLow, ClampHigh] × base.
	ClampLow  float64
	ClampHigh float64
	// Published range is [RangeLow, RangeHigh] × recommended.
	RangeLow  float64
	RangeHigh float64

	BaseConfidence int
	AdvisoryBonus  int
	DetailBonus    int
	MaxConfidence  int

	CustomerFloor float64

	// ValidFor is added to the creation time to get validUntil.
	ValidFor time.Duration
	// Location is the zone used for the time-of-day and seasonal factors.
	Location *time.Location
}

func DefaultRates() Rates {
	loc, err := time.LoadLocation("Asia/Tashkent")
	if err != nil {
		loc = time.FixedZone("UZT", 5*60*60)
	}
	return Rates{
		RatePerKm:    500,
		MinimumPrice: 50000,
		CargoMultipliers: map[string]float64{
			"general":      1.0,
			"fragile":      1.3,
			"hazardous":    1.8,
			"oversized":    1.5,
			"refrigerated": 1.4,
			"liquid":       1.2,
			"bulk":         0.8,
		},
		UrgencyMultipliers: map[string]float64{
			UrgencyNormal:  1.0,
			UrgencyUrgent:  1.3,
			UrgencyExpress: 1.6,
		},
		WeightTiers: []WeightTier{
			{MaxKg: 1000, Factor: 1.0},
			{MaxKg: 5000, Factor: 1.2},
			{MaxKg: 10000, Factor: 1.5},
			{MaxKg: 20000, Factor: 2.0},
		},
		OverweightFactor: 2.5,
		ClampLow:         0.7,
		ClampHigh:        1.5,
		RangeLow:         0.85,
		RangeHigh:        1.2,
		BaseConfidence:   75,
		AdvisoryBonus:    15,
		DetailBonus:      10,
		MaxConfidence:    95,
		CustomerFloor:    0.8,
		ValidFor:         2 * time.Hour,
		Location:         loc,
	}
}

func (r Rates) clone() Rates {
	r.CargoMultipliers = maps.Clone(r.CargoMultipliers)
	r.UrgencyMultipliers = maps.Clone(r.UrgencyMultipliers)
	r.WeightTiers = slices.Clone(r.WeightTiers)
	if r.Location == nil {
		r.Location = time.UTC
	}
	return r
}

// CargoMultiplier returns 1.0 for unknown categories.
func (r Rates) CargoMultiplier(cargo string) float64 {
	if m, ok := r.CargoMultipliers[cargo]; ok {
		return m
	}
	return 1.0
}

func (r Rates) UrgencyMultiplier(level string) float64 {
	if m, ok := r.UrgencyMultipliers[level]; ok {
		return m
	}
	return 1.0
}

// WeightTierIndex returns the band the weight falls in; len(WeightTiers) means overweight.
func (r Rates) WeightTierIndex(kg float64) int {
	for i, t := range r.WeightTiers {
		if kg <= t.MaxKg {
			return i
		}
	}
	return len(r.WeightTiers)
}

func (r Rates) WeightFactor(kg float64) float64 {
	i := r.WeightTierIndex(kg)
	if i < len(r.WeightTiers) {
		return r.WeightTiers[i].Factor
	}
	return r.OverweightFactor
}

// BasePrice is distance × rate × cargo × weight × urgency, floored at MinimumPrice.
// The result is unrounded.
func (r Rates) BasePrice(distanceKm float64, cargo string, weightKg float64, urgency string) float64 {
	p := distanceKm * r.RatePerKm *
		r.CargoMultiplier(cargo) *
		r.WeightFactor(weightKg) *
		r.UrgencyMultiplier(urgency)
	return math.Max(p, r.MinimumPrice)
}

// bounds returns the integer clamp window for a rounded base price.
func (r Rates) bounds(base float64) (lo, hi float64) {
	return math.Ceil(base * r.ClampLow), math.Floor(base * r.ClampHigh)
}

func (r Rates) confidence(advisoryUsed, hasDetail bool) int {
	c := r.BaseConfidence
	if advisoryUsed {
		c += r.AdvisoryBonus
		if hasDetail {
			c += r.DetailBonus
		}
	}
	return min(c, r.MaxConfidence)
}
