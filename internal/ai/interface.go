package ai

import (
	"context"
	"errors"
)

var (
	// ErrMalformedSuggestion means the oracle answered but not in the expected shape.
	ErrMalformedSuggestion = errors.New("ai: malformed suggestion")
	// ErrEmptyResponse means the oracle returned no content at all.
	ErrEmptyResponse = errors.New("ai: empty response")
)

// Advisor is the contract for an external pricing/routing oracle.
// This interface allows swapping providers (Gemini, OpenAI, a plain HTTP service).
// Implementations should honour ctx cancellation; the Client enforces the deadline regardless.
type Advisor interface {
	// SuggestPricing proposes a price for a shipment described by doc.
	SuggestPricing(ctx context.Context, doc PricingContext) (*PricingSuggestion, error)

	// SuggestRoute proposes waypoints, time, cost and risks for a trip described by doc.
	SuggestRoute(ctx context.Context, doc RouteContext) (*RouteSuggestion, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}
