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

package model

import "strings"

// Generator describes one supported video generation model and its default
// output conventions.
type Generator struct {
	ID               string `json:"id"`
	Label            string `json:"label"`
	StyleDescriptor  string `json:"style_descriptor"`
	Model            string `json:"model"`
	Style            string `json:"style"`
	Motion           string `json:"motion"`
	Lighting         string `json:"lighting"`
	Camera           string `json:"camera"`
	RecommendedSpecs string `json:"recommended_specs"`
	TechnicalFocus   string `json:"technical_focus"`
}

// DefaultGeneratorType is used when a request does not name a generator.
const DefaultGeneratorType = "veo"

var generators = []Generator{
	{
		ID:               "veo",
		Label:            "Google Veo",
		StyleDescriptor:  "cinematic, high-quality, professional",
		Model:            "veo-2",
		Style:            "cinematic",
		Motion:           "smooth",
		Lighting:         "natural",
		Camera:           "slow dolly moves and sweeping establishing shots",
		RecommendedSpecs: "16:9 aspect ratio, 1080p resolution, 5-15 seconds duration",
		TechnicalFocus:   "Optimize for Veo's cinematic capabilities with photorealistic rendering.",
	},
	{
		ID:               "runway",
		Label:            "Runway ML",
		StyleDescriptor:  "creative, dynamic, artistic",
		Model:            "gen-3",
		Style:            "realistic",
		Motion:           "dynamic",
		Lighting:         "dramatic",
		Camera:           "handheld energy with quick push-ins",
		RecommendedSpecs: "16:9 or 9:16 aspect ratio, HD quality, 3-10 seconds",
		TechnicalFocus:   "Leverage Runway's creative tools for artistic expression.",
	},
	{
		ID:               "pika",
		Label:            "Pika Labs",
		StyleDescriptor:  "animated, stylized, creative",
		Model:            "pika-1.0",
		Style:            "artistic",
		Motion:           "fluid",
		Lighting:         "creative",
		Camera:           "playful orbits and stylized transitions",
		RecommendedSpecs: "square or 16:9 aspect ratio, artistic style, 2-8 seconds",
		TechnicalFocus:   "Utilize Pika's artistic capabilities for creative storytelling.",
	},
	{
		ID:               "stable_video",
		Label:            "Stable Video Diffusion",
		StyleDescriptor:  "stable, consistent, reliable",
		Model:            "svd",
		Style:            "stable",
		Motion:           "controlled",
		Lighting:         "balanced",
		Camera:           "locked-off framing with gentle pans",
		RecommendedSpecs: "16:9 aspect ratio, stable generation, 2-5 seconds",
		TechnicalFocus:   "Apply Stable Video's reliable generation for consistent output.",
	},
	{
		ID:               "sora",
		Label:            "OpenAI Sora",
		StyleDescriptor:  "realistic, detailed, high-fidelity",
		Model:            "sora-1.0",
		Style:            "photorealistic",
		Motion:           "natural",
		Lighting:         "realistic",
		Camera:           "long continuous takes with natural parallax",
		RecommendedSpecs: "16:9 aspect ratio, high quality, 5-20 seconds",
		TechnicalFocus:   "Harness Sora's advanced features for high-quality realism.",
	},
}

// SupportedGenerators returns the generator catalog in a stable order.
func SupportedGenerators() []Generator {
	out := make([]Generator, len(generators))
	copy(out, generators)
	return out
}

// LookupGenerator finds a generator by id, case-insensitively.
func LookupGenerator(id string) (Generator, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, g := range generators {
		if g.ID == id {
			return g, true
		}
	}
	return Generator{}, false
}

// GeneratorIDs lists the supported generator ids.
func GeneratorIDs() []string {
	out := make([]string, 0, len(generators))
	for _, g := range generators {
		out = append(out, g.ID)
	}
	return out
}
