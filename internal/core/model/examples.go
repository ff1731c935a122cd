// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model defines the data structures that flow through an ad analysis
// run. This file, `examples.go`, provides hardcoded example instances that are
// embedded in prompts as few-shot output samples, so the model returns JSON
// that unmarshals into our structs.
package model

import "encoding/json"

// GetExampleInsightDetails returns a sample video insight in the shape the
// video analysis prompt asks for.
func GetExampleInsightDetails() *InsightDetails {
	pacing := "fast cuts every 1-2 seconds in the first 5 seconds, slowing for the product reveal"
	composition := "tight close-ups on the product, centered framing, shallow depth of field"
	messaging := "performance through everyday moments; the product removes friction from a routine"
	cta := "Shop now, shown as an end card with the logo"
	audience := "urban runners aged 20-35"
	effectiveness := "strong hook, clear product focus, CTA arrives late"
	duration := 15.0
	return &InsightDetails{
		Techniques:        []string{"close-up", "slow motion", "text overlay", "lifestyle montage"},
		Hooks:             []string{"athlete mid-stride in the first frame", "question overlay: Ready for more?"},
		Pacing:            &pacing,
		Composition:       &composition,
		Messaging:         &messaging,
		CallToAction:      &cta,
		TargetAudience:    &audience,
		EmotionalTriggers: []string{"aspiration", "belonging"},
		ColorPalette:      []string{"black", "volt green", "white"},
		TextOverlays:      []string{"Ready for more?", "Shop now"},
		Effectiveness:     &effectiveness,
		DurationSeconds:   &duration,
	}
}

// GetExampleProductProfile returns a sample product profile in the shape the
// webpage analysis prompt asks for.
func GetExampleProductProfile() *ProductProfile {
	return &ProductProfile{
		ProductName:       "Pegasus Trail Running Shoe",
		TargetAudience:    "recreational trail runners who want one shoe for road and trail",
		BrandTone:         "energetic, confident",
		ValuePropositions: []string{"responsive cushioning", "grippy outsole for mixed terrain", "lightweight upper"},
		KeySellingPoints:  []string{"road-to-trail versatility", "free returns within 30 days"},
		DesiredEmotion:    "excitement and freedom",
		CallToAction:      "Shop the Pegasus Trail",
		VideoDirection:    "open on a city street that turns into a forest trail without a cut",
		Summary:           "A versatile running shoe built for runners whose routes leave the pavement.",
	}
}

// ExampleJSON marshals a few-shot example for prompt templates.
func ExampleJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
