package ai

import (
	"encoding/json"
	"fmt"
)

// buildPricingPrompt embeds the context document in the pricing instructions.
func buildPricingPrompt(doc PricingContext) (string, error) {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal pricing context: %w", err)
	}
	return fmt.Sprintf(`Role: You are the pricing analyst for a freight marketplace operating in Uzbekistan.
Prices are in Uzbek som (UZS).

Shipment context (JSON):
%s

Task:
- Propose a competitive, profitable price for this shipment.
- Weigh distance, cargo type, weight, urgency and the competitor prices when present.
- basePrice is the operator's deterministic price; stay within 70%%-150%% of it.

Output JSON Schema (numbers only, no strings for amounts):
{
  "recommended_price": number,
  "price_range": {"min": number, "max": number},
  "margin_analysis": {"costs": number, "margin": number, "profitability": "low" | "medium" | "high"},
  "recommendations": ["string"]
}`, body), nil
}

// buildRoutePrompt embeds the context document in the routing instructions.
func buildRoutePrompt(doc RouteContext) (string, error) {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal route context: %w", err)
	}
	return fmt.Sprintf(`Role: You are the route planner for cargo trucks in Uzbekistan.

Trip context (JSON):
%s

Task:
- Suggest the best ordered list of waypoints from origin to destination.
- Estimate driving time in minutes and fuel cost in UZS.
- List concrete risk factors as short snake_case tags.

Output JSON Schema:
{
  "optimizedRoute": ["string"],
  "estimatedTime": number,
  "fuelCost": number,
  "riskFactors": ["string"],
  "alternatives": [{"route": ["string"], "estimatedTime": number, "fuelCost": number, "pros": ["string"], "cons": ["string"]}],
  "recommendations": ["string"]
}`, body), nil
}
