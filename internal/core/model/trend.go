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
// run. This file holds the aggregate trend analysis computed over one run.
//
// The numeric parts (DataBreakdown, term counts, competitive numbers) are
// always present. Narrative parts that depend on the model are pointers and
// may be nil; consumers must check them.
package model

import "math"

// TermCount is a keyword or phrase with its number of occurrences.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// DataBreakdown counts the ads considered by media type. VideoAds + ImageAds
// always equals TotalAds.
type DataBreakdown struct {
	TotalAds        int     `json:"total_ads"`
	VideoAds        int     `json:"video_ads"`
	ImageAds        int     `json:"image_ads"`
	VideoPercentage float64 `json:"video_percentage"`
	ImagePercentage float64 `json:"image_percentage"`
	AnalyzedVideos  int     `json:"analyzed_videos"`
	UniqueBrands    int     `json:"unique_brands"`
}

// NewDataBreakdown computes the breakdown from raw counts.
func NewDataBreakdown(video int, image int) DataBreakdown {
	total := video + image
	return DataBreakdown{
		TotalAds:        total,
		VideoAds:        video,
		ImageAds:        image,
		VideoPercentage: Percentage(video, total),
		ImagePercentage: Percentage(image, total),
	}
}

// Percentage returns part/total*100 rounded to one decimal, or 0 when total is 0.
func Percentage(part int, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}

// CompetitorShare is one brand's share of the fetched ads.
type CompetitorShare struct {
	Brand   string  `json:"brand"`
	AdCount int     `json:"ad_count"`
	Share   float64 `json:"share"`
}

// CompetitiveAnalysis describes the competitive landscape of the run.
type CompetitiveAnalysis struct {
	TotalCompetitors     int               `json:"total_competitors"`
	TopCompetitors       []CompetitorShare `json:"top_competitors"`
	AdsPerCompetitor     float64           `json:"ads_per_competitor"`
	HerfindahlIndex      float64           `json:"herfindahl_index"`
	MarketConcentration  string            `json:"market_concentration"`
	CompetitiveIntensity string            `json:"competitive_intensity"`
}

// ContentTrends summarizes the ad copy.
type ContentTrends struct {
	CommonWords       []TermCount `json:"common_words"`
	CommonPhrases     []TermCount `json:"common_phrases"`
	Themes            []TermCount `json:"themes"`
	AverageBodyLength float64     `json:"average_body_length"`
}

// MessagingTrends summarizes how ads address the viewer.
type MessagingTrends struct {
	EmotionalTones      []TermCount `json:"emotional_tones"`
	CTAPatterns         []TermCount `json:"cta_patterns"`
	ValuePropositions   []TermCount `json:"value_propositions"`
	MessagingStrategies []TermCount `json:"messaging_strategies"`
}

// DominantTone returns the most frequent emotional tone, or "" if none.
func (m *MessagingTrends) DominantTone() string {
	if m == nil || len(m.EmotionalTones) == 0 {
		return ""
	}
	return m.EmotionalTones[0].Term
}

// VisualTrends summarizes what the video insights report.
type VisualTrends struct {
	VisualElements     []TermCount `json:"visual_elements"`
	CreativeTechniques []TermCount `json:"creative_techniques"`
	MessagingElements  []TermCount `json:"messaging_elements"`
	InsightsConsidered int         `json:"insights_considered"`
}

// FormatTrends summarizes creative formats and publishing placements.
type FormatTrends struct {
	MediaTypes         []TermCount `json:"media_types"`
	PublisherPlatforms []TermCount `json:"publisher_platforms"`
	DominantFormat     string      `json:"dominant_format"`
}

// AnalysisPeriod is the range of first-seen dates across the ads.
type AnalysisPeriod struct {
	Earliest string `json:"earliest"`
	Latest   string `json:"latest"`
}

// Reasoning is the explanatory part of the trend analysis.
type Reasoning struct {
	AnalysisSummary         string              `json:"analysis_summary"`
	DataBreakdown           DataBreakdown       `json:"data_breakdown"`
	KeyFindings             []string            `json:"key_findings"`
	TrendInsights           []string            `json:"trend_insights"`
	CompetitiveAnalysis     CompetitiveAnalysis `json:"competitive_analysis"`
	RecommendationRationale []string            `json:"recommendation_rationale"`
	AnalysisPeriod          *AnalysisPeriod     `json:"analysis_period,omitempty"`
	Narrative               *string             `json:"narrative,omitempty"`
}

// TrendAnalysis is the aggregate over all ads and insights of a run.
type TrendAnalysis struct {
	Reasoning       Reasoning       `json:"reasoning"`
	ContentTrends   ContentTrends   `json:"content_trends"`
	MessagingTrends MessagingTrends `json:"messaging_trends"`
	VisualTrends    VisualTrends    `json:"visual_trends"`
	FormatTrends    FormatTrends    `json:"format_trends"`
}

// TopThemes returns up to n theme names.
func (t *TrendAnalysis) TopThemes(n int) []string {
	if t == nil {
		return nil
	}
	return termNames(t.ContentTrends.Themes, n)
}

// TopTechniques returns up to n creative technique names.
func (t *TrendAnalysis) TopTechniques(n int) []string {
	if t == nil {
		return nil
	}
	return termNames(t.VisualTrends.CreativeTechniques, n)
}

func termNames(terms []TermCount, n int) []string {
	out := make([]string, 0, n)
	for i, tc := range terms {
		if i >= n {
			break
		}
		out = append(out, tc.Term)
	}
	return out
}
