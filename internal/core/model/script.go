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
// run. This file holds the request that starts a run and the script that a
// successful run returns.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Request limits.
const (
	DefaultAdLimit = 50
	MaxAdLimit     = 500
	VariationCount = 3
)

// Variation labels. Every generated script carries exactly one of each.
const (
	VariationEmotional   = "emotional"
	VariationTechnical   = "technical"
	VariationCompetitive = "competitive"
)

// ScriptRequest is one analyze-all request.
type ScriptRequest struct {
	BrandNames       []string          `json:"brand_names"`
	ProductURL       string            `json:"product_url"`
	UserQuery        string            `json:"user_query"`
	GeneratorType    string            `json:"generator_type"`
	Limit            int               `json:"limit"`
	Country          string            `json:"country,omitempty"`
	StylePreferences map[string]string `json:"style_preferences,omitempty"`
}

// Normalize trims the request, removes duplicate brand names (case
// insensitive, first spelling wins) and applies defaults.
func (r *ScriptRequest) Normalize() {
	seen := make(map[string]bool)
	names := make([]string, 0, len(r.BrandNames))
	for _, n := range r.BrandNames {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, n)
	}
	r.BrandNames = names
	r.ProductURL = strings.TrimSpace(r.ProductURL)
	r.UserQuery = strings.TrimSpace(r.UserQuery)
	r.GeneratorType = strings.ToLower(strings.TrimSpace(r.GeneratorType))
	if r.GeneratorType == "" {
		r.GeneratorType = DefaultGeneratorType
	}
	if r.Limit == 0 {
		r.Limit = DefaultAdLimit
	}
	r.Country = strings.ToUpper(strings.TrimSpace(r.Country))
}

// Validate checks a normalized request.
func (r *ScriptRequest) Validate() error {
	if len(r.BrandNames) == 0 {
		return &ValidationError{Field: "brand_names", Detail: "at least one brand name is required"}
	}
	if r.Limit < 1 || r.Limit > MaxAdLimit {
		return &ValidationError{Field: "limit", Detail: fmt.Sprintf("limit must be between 1 and %d", MaxAdLimit)}
	}
	if _, ok := LookupGenerator(r.GeneratorType); !ok {
		return &ValidationError{
			Field:  "generator_type",
			Detail: fmt.Sprintf("unsupported generator %q, supported: %s", r.GeneratorType, strings.Join(GeneratorIDs(), ", ")),
		}
	}
	return nil
}

// Scene is one timed beat of the primary script.
type Scene struct {
	Sequence     int    `json:"sequence"`
	StartSeconds int    `json:"start_seconds"`
	EndSeconds   int    `json:"end_seconds"`
	Title        string `json:"title"`
	Description  string `json:"description"`
}

// Variation is an alternative take on the primary script.
type Variation struct {
	Label       string `json:"label"`
	Title       string `json:"title"`
	Focus       string `json:"focus"`
	Description string `json:"description"`
}

// TechnicalSpecifications are the generator settings for the script.
type TechnicalSpecifications struct {
	GeneratorType    string `json:"generator_type"`
	Model            string `json:"model"`
	Resolution       string `json:"resolution"`
	AspectRatio      string `json:"aspect_ratio"`
	FPS              int    `json:"fps"`
	DurationSeconds  int    `json:"duration"`
	Format           string `json:"format"`
	Quality          string `json:"quality"`
	Style            string `json:"style"`
	Motion           string `json:"motion"`
	Lighting         string `json:"lighting"`
	RecommendedSpecs string `json:"recommended_specs"`
}

// Recommendations are the creative directions derived from the analysis.
type Recommendations struct {
	Style             string   `json:"style"`
	Duration          string   `json:"duration"`
	AspectRatio       string   `json:"aspect_ratio"`
	ColorScheme       string   `json:"color_scheme"`
	Mood              string   `json:"mood"`
	VisualElements    []string `json:"visual_elements"`
	MessagingApproach []string `json:"messaging_approach"`
}

// AnalysisMetadata is filled from the run state, never from model output.
type AnalysisMetadata struct {
	RunID             string    `json:"run_id"`
	BrandsAnalyzed    []string  `json:"brands_analyzed"`
	PlatformIDsFound  int       `json:"platform_ids_found"`
	AdsFetched        int       `json:"ads_fetched"`
	AdsAnalyzed       int       `json:"ads_analyzed"`
	AdsSkipped        int       `json:"ads_skipped"`
	AdsFailed         int       `json:"ads_failed"`
	CachedInsights    int       `json:"cached_insights"`
	WebpageAnalyzed   bool      `json:"webpage_analyzed"`
	Degraded          bool      `json:"degraded"`
	Warnings          []string  `json:"warnings,omitempty"`
	GeneratorType     string    `json:"generator_type"`
	UserQuery         string    `json:"user_query"`
	ProductURL        string    `json:"product_url,omitempty"`
	AnalysisTimestamp time.Time `json:"analysis_timestamp"`
}

// GeneratedScript is the artifact returned by a successful run.
type GeneratedScript struct {
	Success                 bool                    `json:"success"`
	Message                 string                  `json:"message"`
	VideoDescription        string                  `json:"video_description"`
	Scenes                  []Scene                 `json:"scenes"`
	Variations              []Variation             `json:"variations"`
	Recommendations         Recommendations         `json:"recommendations"`
	TechnicalSpecifications TechnicalSpecifications `json:"technical_specifications"`
	AnalysisMetadata        AnalysisMetadata        `json:"analysis_metadata"`
	VideoInsights           []*VideoInsight         `json:"video_insights"`
	AnalysisFailures        []AdFailure             `json:"analysis_failures"`
	TrendAnalysis           *TrendAnalysis          `json:"trend_analysis"`
	WebpageAnalysis         *ProductProfile         `json:"webpage_analysis,omitempty"`
}

// CompositionInput is everything the composer needs from a run.
type CompositionInput struct {
	Request  *ScriptRequest
	Profile  *ProductProfile
	Trends   *TrendAnalysis
	Insights []*VideoInsight
	Failures []AdFailure
	Metadata AnalysisMetadata
}
