package routing

import (
	"math"
	"slices"
	"time"

	"cargoquote/internal/modules/distance"
)

// Rates is the immutable routing configuration.
type Rates struct {
	AverageSpeedKmh   float64
	LitresPer100Km    float64
	FuelPricePerLitre float64

	// LongDistanceKm tags a route long_distance when exceeded.
	LongDistanceKm float64
	// FuelStopKm triggers the fuel-stop recommendation when exceeded.
	FuelStopKm float64

	// Mountainous pairs are matched in both directions.
	Mountainous []distance.Pair

	BaseConfidence int
	AdvisoryBonus  int
	RiskBonus      int
	MaxConfidence  int

	// Advisory time and cost are accepted only within [MinOverride, MaxOverride] × local estimate.
	MinOverride float64
	MaxOverride float64

	// WeightBandsKg are the upper bounds of the pricing weight tiers; plans are cached per band.
	WeightBandsKg []float64

	Location *time.Location
}

func DefaultRates() Rates {
	loc, err := time.LoadLocation("Asia/Tashkent")
	if err != nil {
		loc = time.FixedZone("UZT", 5*60*60)
	}
	return Rates{
		AverageSpeedKmh:   50,
		LitresPer100Km:    25,
		FuelPricePerLitre: 8000,
		LongDistanceKm:    400,
		FuelStopKm:        300,
		Mountainous: []distance.Pair{
			{From: "Toshkent", To: "Qashqadaryo"},
			{From: "Samarqand", To: "Qashqadaryo"},
		},
		BaseConfidence: 75,
		AdvisoryBonus:  15,
		RiskBonus:      10,
		MaxConfidence:  100,
		MinOverride:    0.5,
		MaxOverride:    2.0,
		WeightBandsKg:  []float64{1000, 5000, 10000, 20000},
		Location:       loc,
	}
}

func (r Rates) clone() Rates {
	r.Mountainous = slices.Clone(r.Mountainous)
	r.WeightBandsKg = slices.Clone(r.WeightBandsKg)
	if r.Location == nil {
		r.Location = time.UTC
	}
	return r
}

func (r Rates) Minutes(km float64) float64 {
	return math.Round(km / r.AverageSpeedKmh * 60)
}

func (r Rates) FuelCost(km float64) float64 {
	return math.Round(km / 100 * r.LitresPer100Km * r.FuelPricePerLitre)
}

func (r Rates) mountainous(origin, destination string) bool {
	o, d := distance.Normalize(origin), distance.Normalize(destination)
	for _, p := range r.Mountainous {
		from, to := distance.Normalize(p.From), distance.Normalize(p.To)
		if (o == from && d == to) || (o == to && d == from) {
			return true
		}
	}
	return false
}

// weightBand returns the band kg falls in; len(WeightBandsKg) means overweight.
func (r Rates) weightBand(kg float64) int {
	for i, upper := range r.WeightBandsKg {
		if kg <= upper {
			return i
		}
	}
	return len(r.WeightBandsKg)
}

// withinBounds reports whether v is an acceptable override of local.
func (r Rates) withinBounds(v, local float64) bool {
	return v >= local*r.MinOverride && v <= local*r.MaxOverride
}

func (r Rates) confidence(routeUsed, risksUsed bool) int {
	c := r.BaseConfidence
	if routeUsed {
		c += r.AdvisoryBonus
	}
	if risksUsed {
		c += r.RiskBonus
	}
	return min(c, r.MaxConfidence)
}
