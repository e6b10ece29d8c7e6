package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cargoquote/internal/validation"
)

const (
	SegmentStandard = "standard"

	OfferVolumeDiscount = "volume_discount"
	OfferCreditTerms    = "credit_terms"
)

// RoutePreference is one route a customer wants priced. Zero fields default to
// general cargo, 1000 kg and normal urgency.
type RoutePreference struct {
	Origin      string  `json:"origin" validate:"required,max=64"`
	Destination string  `json:"destination" validate:"required,max=64"`
	CargoType   string  `json:"cargoType,omitempty" validate:"max=32"`
	WeightKg    float64 `json:"weightKg,omitempty" validate:"gte=0,lte=100000"`
	Urgency     string  `json:"urgency,omitempty" validate:"omitempty,oneof=normal urgent express"`
}

type RouteRecommendation struct {
	Route            string `json:"route"`
	QuoteID          string `json:"quoteId"`
	RecommendedPrice int64  `json:"recommendedPrice"`
	// CustomerDiscount is a percentage offered on top of the quoted price.
	CustomerDiscount int `json:"customerDiscount"`
	// LoyaltyBonus is a flat UZS credit.
	LoyaltyBonus    int64     `json:"loyaltyBonus"`
	PriceValidUntil time.Time `json:"priceValidUntil"`
}

type SpecialOffer struct {
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ValidUntil  time.Time `json:"validUntil"`
}

type PriceRecommendations struct {
	CustomerID      string                `json:"customerId"`
	CustomerSegment string                `json:"customerSegment"`
	Recommendations []RouteRecommendation `json:"recommendations"`
	SpecialOffers   []SpecialOffer        `json:"specialOffers"`
}

// PriceRecommendations quotes every preferred route for the customer and adds the
// discounts and offers their profile qualifies for. Unknown customers get standard terms.
func (s *Service) PriceRecommendations(ctx context.Context, customerID string, prefs []RoutePreference) (PriceRecommendations, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return PriceRecommendations{}, fmt.Errorf("%w: customerId is required", ErrInvalidRequest)
	}
	if len(prefs) == 0 {
		return PriceRecommendations{}, fmt.Errorf("%w: at least one route is required", ErrInvalidRequest)
	}
	if len(prefs) > MaxRoutes {
		return PriceRecommendations{}, fmt.Errorf("%w: at most %d routes per request", ErrInvalidRequest, MaxRoutes)
	}
	reqs := make([]QuoteRequest, len(prefs))
	for i, p := range prefs {
		if err := validation.Struct(p); err != nil {
			return PriceRecommendations{}, fmt.Errorf("%w: routes[%d]: %v", ErrInvalidRequest, i, err)
		}
		if p.WeightKg == 0 {
			p.WeightKg = 1000
		}
		reqs[i] = QuoteRequest{
			Origin:      p.Origin,
			Destination: p.Destination,
			CargoType:   p.CargoType,
			WeightKg:    p.WeightKg,
			Urgency:     p.Urgency,
			CustomerID:  customerID,
		}
	}

	var profile *CustomerProfile
	if s.store != nil {
		p, err := s.store.Profile(ctx, customerID)
		if err != nil {
			return PriceRecommendations{}, fmt.Errorf("price recommendations: %w", err)
		}
		profile = p
	}

	quotes, err := s.quoteAll(ctx, reqs, func(i int) string { return fmt.Sprintf("routes[%d]", i) })
	if err != nil {
		return PriceRecommendations{}, err
	}

	discount, bonus := customerDiscount(profile), loyaltyBonus(profile)
	out := PriceRecommendations{
		CustomerID:      customerID,
		CustomerSegment: SegmentStandard,
		Recommendations: make([]RouteRecommendation, len(quotes)),
		SpecialOffers:   specialOffers(profile, s.now()),
	}
	if profile != nil && profile.Segment != "" {
		out.CustomerSegment = profile.Segment
	}
	for i, q := range quotes {
		out.Recommendations[i] = RouteRecommendation{
			Route:            q.Route,
			QuoteID:          q.QuoteID,
			RecommendedPrice: q.RecommendedPrice,
			CustomerDiscount: discount,
			LoyaltyBonus:     bonus,
			PriceValidUntil:  q.ValidUntil,
		}
	}
	return out, nil
}

func customerDiscount(p *CustomerProfile) int {
	if p == nil {
		return 0
	}
	switch {
	case p.LoyaltyScore > 90:
		return 10
	case p.LoyaltyScore > 75:
		return 7
	case p.LoyaltyScore > 60:
		return 5
	case p.LoyaltyScore > 40:
		return 3
	default:
		return 0
	}
}

func loyaltyBonus(p *CustomerProfile) int64 {
	if p == nil {
		return 0
	}
	switch {
	case p.TotalOrders > 50:
		return 5000
	case p.TotalOrders > 20:
		return 3000
	case p.TotalOrders > 10:
		return 2000
	default:
		return 0
	}
}

// specialOffers: regular and vip customers count as frequent shippers.
func specialOffers(p *CustomerProfile, now time.Time) []SpecialOffer {
	offers := []SpecialOffer{}
	if p == nil {
		return offers
	}
	if p.Segment == "regular" || p.Segment == "vip" {
		offers = append(offers, SpecialOffer{
			Type:        OfferVolumeDiscount,
			Title:       "Frequent Customer Discount",
			Description: "15% off orders over 300,000 UZS",
			ValidUntil:  now.Add(7 * 24 * time.Hour),
		})
	}
	if p.RiskLevel == "low" {
		offers = append(offers, SpecialOffer{
			Type:        OfferCreditTerms,
			Title:       "Extended Payment Terms",
			Description: "30-day payment terms available",
			ValidUntil:  now.Add(30 * 24 * time.Hour),
		})
	}
	return offers
}
