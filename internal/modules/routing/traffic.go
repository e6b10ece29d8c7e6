package routing

import (
	"context"
	"time"
)

// TrafficProvider reports the traffic level between two cities at a given time.
type TrafficProvider interface {
	CurrentTraffic(ctx context.Context, origin, destination string, at time.Time) (string, error)
}

// TrafficByHour is the rush-hour heuristic: 7-9 and 17-19 heavy, 10-16 moderate, otherwise light.
func TrafficByHour(hour int) string {
	switch {
	case (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19):
		return TrafficHeavy
	case hour >= 10 && hour <= 16:
		return TrafficModerate
	default:
		return TrafficLight
	}
}

// ClockTraffic applies TrafficByHour in a fixed zone. It never fails.
type ClockTraffic struct {
	Location *time.Location
}

func (c ClockTraffic) CurrentTraffic(_ context.Context, _, _ string, at time.Time) (string, error) {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return TrafficByHour(at.In(loc).Hour()), nil
}
