package maps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"googlemaps.github.io/maps"

	"cargoquote/internal/modules/routing"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name      string
		freeFlow  time.Duration
		inTraffic time.Duration
		want      string
	}{
		{"no traffic data", time.Hour, 0, routing.TrafficLight},
		{"free flowing", time.Hour, 62 * time.Minute, routing.TrafficLight},
		{"slowed", time.Hour, 70 * time.Minute, routing.TrafficModerate},
		{"jammed", time.Hour, 90 * time.Minute, routing.TrafficHeavy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := levelFor(tt.freeFlow, tt.inTraffic); got != tt.want {
				t.Errorf("levelFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrafficService_CurrentTraffic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("origin"); got != "Toshkent, Uzbekistan" {
			t.Errorf("origin = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"routes": [{
				"summary": "M39",
				"legs": [{
					"duration": {"value": 16800, "text": "4 hours 40 mins"},
					"duration_in_traffic": {"value": 23520, "text": "6 hours 32 mins"},
					"distance": {"value": 280000, "text": "280 km"}
				}]
			}]
		}`))
	}))
	defer srv.Close()

	svc, err := NewTrafficService("test-key", maps.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewTrafficService: %v", err)
	}
	got, err := svc.CurrentTraffic(context.Background(), "Toshkent", "Samarqand", time.Now())
	if err != nil {
		t.Fatalf("CurrentTraffic: %v", err)
	}
	if got != routing.TrafficHeavy {
		t.Errorf("CurrentTraffic() = %q, want heavy", got)
	}
}
