// README: Sends one pricing and one route context to the configured advisor and prints the result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"cargoquote/internal/ai"
	"cargoquote/internal/config"
	applog "cargoquote/internal/log"
	"cargoquote/internal/modules/distance"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Advisory.Provider == "none" {
		log.Fatal("set CQ_ADVISORY_PROVIDER to gemini, openai or http")
	}
	logger, err := applog.NewProduction(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	advisor, closeAdvisor, err := ai.NewProvider(ctx, ai.ProviderConfig{
		Name:      cfg.Advisory.Provider,
		GeminiKey: cfg.Advisory.GeminiKey,
		APIKey:    cfg.Advisory.APIKey,
		Model:     cfg.Advisory.Model,
		Endpoint:  cfg.Advisory.Endpoint,
	})
	if err != nil {
		log.Fatalf("Failed to initialize advisor: %v", err)
	}
	defer closeAdvisor()
	client := ai.NewClient(advisor, ai.ClientConfig{Timeout: cfg.Advisory.Timeout}, logger)

	origin, destination := "Toshkent", "Samarqand"
	if len(os.Args) == 3 {
		origin, destination = os.Args[1], os.Args[2]
	}
	km, _ := distance.Default().Distance(origin, destination)

	fmt.Printf("Route: %s -> %s (%.0f km)\n", origin, destination, km)

	pricing, ok := client.AdvisePricing(ctx, ai.PricingContext{
		Route:       distance.RouteName(origin, destination),
		Origin:      origin,
		Destination: destination,
		DistanceKm:  km,
		CargoType:   "general",
		WeightKg:    1000,
		Urgency:     "normal",
		BasePrice:   km * 500,
	})
	printSuggestion("Pricing", pricing, ok)

	route, ok := client.AdviseRoute(ctx, ai.RouteContext{
		Origin:            origin,
		Destination:       destination,
		Waypoints:         []string{origin, destination},
		DistanceKm:        km,
		CargoType:         "general",
		WeightKg:          1000,
		Urgency:           "normal",
		VehicleType:       "truck",
		Traffic:           "light",
		EstimatedMinutes:  km / 50 * 60,
		EstimatedFuelCost: km / 100 * 25 * 8000,
	})
	printSuggestion("Route", route, ok)
}

func printSuggestion(kind string, v any, ok bool) {
	if !ok {
		fmt.Printf("%s: unavailable\n", kind)
		return
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("%s:\n%s\n", kind, out)
}
