// README: Google Maps traffic provider; compares duration in traffic with free-flow duration.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"cargoquote/internal/modules/routing"
)

var ErrNoRoute = errors.New("maps: no route found")

const (
	heavyRatio    = 1.3
	moderateRatio = 1.1
	defaultRegion = "uz"
	defaultSuffix = ", Uzbekistan"
)

// TrafficService implements routing.TrafficProvider with the Directions API.
type TrafficService struct {
	client *maps.Client
	// suffix is appended to bare city names so geocoding stays in the region.
	suffix string
}

// NewTrafficService creates a TrafficService with the given API key. Extra client
// options (for example maps.WithBaseURL in tests) are passed through.
func NewTrafficService(apiKey string, opts ...maps.ClientOption) (*TrafficService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &TrafficService{client: client, suffix: defaultSuffix}, nil
}

var _ routing.TrafficProvider = (*TrafficService)(nil)

// CurrentTraffic asks for a driving route departing at at. Departures in the past
// are sent as "now" since the API rejects them.
func (s *TrafficService) CurrentTraffic(ctx context.Context, origin, destination string, at time.Time) (string, error) {
	departure := "now"
	if at.After(time.Now()) {
		departure = strconv.FormatInt(at.Unix(), 10)
	}
	r := &maps.DirectionsRequest{
		Origin:        origin + s.suffix,
		Destination:   destination + s.suffix,
		Mode:          maps.TravelModeDriving,
		DepartureTime: departure,
		TrafficModel:  maps.TrafficModelBestGuess,
		Language:      "en",
		Region:        defaultRegion,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return "", fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return "", ErrNoRoute
	}

	leg := routes[0].Legs[0]
	return levelFor(leg.Duration, leg.DurationInTraffic), nil
}

// levelFor maps the traffic slowdown ratio to a level. Without a traffic
// estimate the route is treated as light.
func levelFor(freeFlow, inTraffic time.Duration) string {
	if freeFlow <= 0 || inTraffic <= 0 {
		return routing.TrafficLight
	}
	ratio := float64(inTraffic) / float64(freeFlow)
	switch {
	case ratio > heavyRatio:
		return routing.TrafficHeavy
	case ratio > moderateRatio:
		return routing.TrafficModerate
	default:
		return routing.TrafficLight
	}
}
