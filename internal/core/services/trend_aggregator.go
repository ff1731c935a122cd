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

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"google.golang.org/genai"
)

const (
	topWords        = 20
	topPhrases      = 15
	topThemes       = 5
	topCTAs         = 10
	topTechniques   = 10
	topCompetitors  = 5
	maxKeyFindings  = 5
	denseAdsPerPage = 10
)

var (
	wordPattern   = regexp.MustCompile(`\b[a-z]{3,}\b`)
	letterPattern = regexp.MustCompile(`\b[a-z]+\b`)
)

// TrendAggregator summarizes the ads and insights of one run. Everything but
// the optional narrative is computed in process and does not depend on the
// order of its inputs.
type TrendAggregator struct {
	model            cloud.ContentGenerator
	promptTemplate   *template.Template
	narrativeTimeout time.Duration
	counters         modelCounters
}

// NewTrendAggregator creates an aggregator. A nil generator or template
// disables the narrative.
func NewTrendAggregator(generator cloud.ContentGenerator, prompt *template.Template, narrativeTimeout time.Duration) *TrendAggregator {
	if narrativeTimeout <= 0 {
		narrativeTimeout = 30 * time.Second
	}
	return &TrendAggregator{
		model:            generator,
		promptTemplate:   prompt,
		narrativeTimeout: narrativeTimeout,
		counters:         newModelCounters("trend-aggregator"),
	}
}

// Aggregate computes the trend analysis. It never fails: with no ads every
// count is zero and the summary says so.
func (t *TrendAggregator) Aggregate(ctx context.Context, ads []*model.Ad, insights []*model.VideoInsight) *model.TrendAnalysis {
	ads = model.SortAdsByID(ads)
	insights = sortInsights(insights)

	texts := make([]string, 0, len(ads))
	bodies := make([]string, 0, len(ads))
	for _, ad := range ads {
		if text := strings.ToLower(ad.Text()); text != "" {
			texts = append(texts, text)
		}
		if body := strings.TrimSpace(ad.Body); body != "" {
			bodies = append(bodies, body)
		}
	}

	analysis := &model.TrendAnalysis{
		ContentTrends: model.ContentTrends{
			CommonWords:       wordFrequency(texts).top(topWords),
			CommonPhrases:     bigrams(texts).top(topPhrases),
			Themes:            matchGroups(texts, themeGroups).top(topThemes),
			AverageBodyLength: averageLength(bodies),
		},
		MessagingTrends: model.MessagingTrends{
			EmotionalTones:      matchGroups(texts, toneGroups).top(0),
			CTAPatterns:         matchPhrases(texts, ctaPatterns).top(topCTAs),
			ValuePropositions:   matchGroups(texts, valuePropositionGroups).top(0),
			MessagingStrategies: matchGroups(texts, strategyGroups).top(0),
		},
		VisualTrends: visualTrends(insights),
		FormatTrends: formatTrends(ads),
	}

	breakdown := dataBreakdown(ads, insights)
	competitive := competitiveAnalysis(ads)
	analysis.Reasoning = model.Reasoning{
		AnalysisSummary:         analysisSummary(breakdown),
		DataBreakdown:           breakdown,
		KeyFindings:             keyFindings(breakdown, bodies, texts, competitive, analysis.VisualTrends),
		TrendInsights:           trendInsights(ads, analysis),
		CompetitiveAnalysis:     competitive,
		RecommendationRationale: recommendationRationale(breakdown, bodies, texts),
		AnalysisPeriod:          analysisPeriod(ads),
	}
	analysis.Reasoning.Narrative = t.narrative(ctx, analysis)

	slog.InfoContext(ctx, "aggregated trends",
		"total_ads", breakdown.TotalAds,
		"video_ads", breakdown.VideoAds,
		"insights", breakdown.AnalyzedVideos,
		"competitors", competitive.TotalCompetitors,
		"narrative", analysis.Reasoning.Narrative != nil)
	return analysis
}

func (t *TrendAggregator) narrative(ctx context.Context, analysis *model.TrendAnalysis) *string {
	if t.model == nil || t.promptTemplate == nil || analysis.Reasoning.DataBreakdown.TotalAds == 0 {
		return nil
	}
	stats, err := json.MarshalIndent(map[string]any{
		"data_breakdown":       analysis.Reasoning.DataBreakdown,
		"competitive_analysis": analysis.Reasoning.CompetitiveAnalysis,
		"themes":               analysis.ContentTrends.Themes,
		"emotional_tones":      analysis.MessagingTrends.EmotionalTones,
		"creative_techniques":  analysis.VisualTrends.CreativeTechniques,
	}, "", "  ")
	if err != nil {
		return nil
	}
	prompt, err := renderPrompt(t.promptTemplate, map[string]string{
		"STATISTICS":   string(stats),
		"KEY_FINDINGS": "- " + strings.Join(analysis.Reasoning.KeyFindings, "\n- "),
	})
	if err != nil {
		slog.WarnContext(ctx, "trend prompt failed to render", "error", err)
		return nil
	}

	narrativeCtx, cancel := context.WithTimeout(ctx, t.narrativeTimeout)
	defer cancel()
	out, err := t.counters.generate(narrativeCtx, t.model, []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}})
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		slog.WarnContext(ctx, "trend narrative unavailable, continuing without it", "error", err)
		return nil
	}
	return &out
}

// termCounter counts occurrences per term.
type termCounter map[string]int

// top returns the n most frequent terms, ties broken alphabetically. n <= 0
// returns every term.
func (c termCounter) top(n int) []model.TermCount {
	out := make([]model.TermCount, 0, len(c))
	for term, count := range c {
		if count > 0 {
			out = append(out, model.TermCount{Term: term, Count: count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (c termCounter) total() int {
	sum := 0
	for _, v := range c {
		sum += v
	}
	return sum
}

func wordFrequency(texts []string) termCounter {
	counts := termCounter{}
	for _, text := range texts {
		for _, w := range wordPattern.FindAllString(text, -1) {
			if len(w) > 3 && !stopWords[w] {
				counts[w]++
			}
		}
	}
	return counts
}

func bigrams(texts []string) termCounter {
	counts := termCounter{}
	for _, text := range texts {
		words := letterPattern.FindAllString(text, -1)
		for i := 0; i+1 < len(words); i++ {
			counts[words[i]+" "+words[i+1]]++
		}
	}
	return counts
}

// matchGroups counts, per group, the texts that mention any of its keywords.
func matchGroups(texts []string, groups []keywordGroup) termCounter {
	counts := termCounter{}
	for _, text := range texts {
		for _, g := range groups {
			if containsAny(text, g.keywords) {
				counts[g.label]++
			}
		}
	}
	return counts
}

func matchPhrases(texts []string, phrases []string) termCounter {
	counts := termCounter{}
	for _, text := range texts {
		for _, p := range phrases {
			if strings.Contains(text, p) {
				counts[p]++
			}
		}
	}
	return counts
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func averageLength(bodies []string) float64 {
	if len(bodies) == 0 {
		return 0
	}
	total := 0
	for _, b := range bodies {
		total += len([]rune(b))
	}
	return math.Round(float64(total)/float64(len(bodies))*100) / 100
}

func sortInsights(insights []*model.VideoInsight) []*model.VideoInsight {
	out := make([]*model.VideoInsight, 0, len(insights))
	for _, in := range insights {
		if in != nil {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdID < out[j].AdID })
	return out
}

// visualTrends counts, per insight, the techniques and visual elements it
// mentions. Structured techniques reported by the model count as well.
func visualTrends(insights []*model.VideoInsight) model.VisualTrends {
	techniques := termCounter{}
	elements := termCounter{}
	messaging := termCounter{}
	for _, in := range insights {
		text := in.Text()
		seen := map[string]bool{}
		for _, g := range techniqueGroups {
			if containsAny(text, g.keywords) {
				seen[g.label] = true
			}
		}
		if in.Details != nil {
			for _, tech := range in.Details.Techniques {
				if tech = strings.ToLower(strings.TrimSpace(tech)); tech != "" {
					seen[tech] = true
				}
			}
			for _, trigger := range in.Details.EmotionalTriggers {
				if trigger = strings.ToLower(strings.TrimSpace(trigger)); trigger != "" {
					messaging[trigger]++
				}
			}
		}
		for tech := range seen {
			techniques[tech]++
		}
		for _, g := range visualElementGroups {
			if containsAny(text, g.keywords) {
				elements[g.label]++
			}
		}
	}
	return model.VisualTrends{
		VisualElements:     elements.top(0),
		CreativeTechniques: techniques.top(topTechniques),
		MessagingElements:  messaging.top(topTechniques),
		InsightsConsidered: len(insights),
	}
}

func formatTrends(ads []*model.Ad) model.FormatTrends {
	media := termCounter{}
	platforms := termCounter{}
	for _, ad := range ads {
		media[string(mediaTypeOf(ad))]++
		for _, p := range ad.PublisherPlatforms {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				platforms[p]++
			}
		}
	}
	dominant := "unknown"
	switch video, image := media[string(model.MediaTypeVideo)], media[string(model.MediaTypeImage)]; {
	case video > image:
		dominant = string(model.MediaTypeVideo)
	case image > video:
		dominant = string(model.MediaTypeImage)
	case video > 0:
		dominant = "mixed"
	}
	return model.FormatTrends{
		MediaTypes:         media.top(0),
		PublisherPlatforms: platforms.top(0),
		DominantFormat:     dominant,
	}
}

// mediaTypeOf buckets an ad for the breakdown. The ads source only emits
// video and image ads; anything else counts as image so the totals add up.
func mediaTypeOf(ad *model.Ad) model.MediaType {
	if ad.MediaType == model.MediaTypeVideo {
		return model.MediaTypeVideo
	}
	return model.MediaTypeImage
}

func dataBreakdown(ads []*model.Ad, insights []*model.VideoInsight) model.DataBreakdown {
	video, image := 0, 0
	brands := map[string]bool{}
	for _, ad := range ads {
		if mediaTypeOf(ad) == model.MediaTypeVideo {
			video++
		} else {
			image++
		}
		brands[brandOf(ad)] = true
	}
	breakdown := model.NewDataBreakdown(video, image)
	breakdown.AnalyzedVideos = len(insights)
	breakdown.UniqueBrands = len(brands)
	return breakdown
}

func brandOf(ad *model.Ad) string {
	switch {
	case strings.TrimSpace(ad.PageName) != "":
		return strings.TrimSpace(ad.PageName)
	case ad.PageID != "":
		return ad.PageID
	}
	return "Unknown"
}

func competitiveAnalysis(ads []*model.Ad) model.CompetitiveAnalysis {
	brands := termCounter{}
	for _, ad := range ads {
		brands[brandOf(ad)]++
	}
	total := brands.total()
	analysis := model.CompetitiveAnalysis{
		TotalCompetitors:     len(brands),
		TopCompetitors:       []model.CompetitorShare{},
		MarketConcentration:  "Unknown",
		CompetitiveIntensity: "Low",
	}
	if total == 0 {
		return analysis
	}
	for _, tc := range brands.top(topCompetitors) {
		analysis.TopCompetitors = append(analysis.TopCompetitors, model.CompetitorShare{
			Brand:   tc.Term,
			AdCount: tc.Count,
			Share:   model.Percentage(tc.Count, total),
		})
	}
	hhi := 0.0
	for _, count := range brands {
		share := float64(count) / float64(total)
		hhi += share * share
	}
	analysis.HerfindahlIndex = math.Round(hhi*10000) / 10000
	analysis.AdsPerCompetitor = math.Round(float64(total)/float64(len(brands))*10) / 10
	analysis.MarketConcentration = marketConcentration(hhi)
	analysis.CompetitiveIntensity = competitiveIntensity(len(brands), analysis.AdsPerCompetitor)
	return analysis
}

func marketConcentration(hhi float64) string {
	switch {
	case hhi > 0.25:
		return "High concentration (few dominant players)"
	case hhi > 0.15:
		return "Medium concentration"
	}
	return "Low concentration (fragmented market)"
}

// competitiveIntensity buckets by brand count and moves up one level when
// competitors run many ads each.
func competitiveIntensity(brands int, adsPerBrand float64) string {
	levels := []string{"Low", "Medium", "High"}
	level := 0
	switch {
	case brands > 10:
		level = 2
	case brands > 5:
		level = 1
	}
	if adsPerBrand >= denseAdsPerPage && level < 2 {
		level++
	}
	return levels[level]
}

func analysisSummary(b model.DataBreakdown) string {
	if b.TotalAds == 0 {
		return "No competitor ads were available; recommendations rely on the product information alone."
	}
	return fmt.Sprintf("Analyzed %d competitor ads from %d brands (%d video, %d image); %d videos produced insights.",
		b.TotalAds, b.UniqueBrands, b.VideoAds, b.ImageAds, b.AnalyzedVideos)
}

func keyFindings(b model.DataBreakdown, bodies []string, texts []string, competitive model.CompetitiveAnalysis, visual model.VisualTrends) []string {
	findings := make([]string, 0, maxKeyFindings)
	switch {
	case b.VideoAds > b.ImageAds:
		findings = append(findings, fmt.Sprintf("Video content dominates (%d videos vs %d images), a shift toward dynamic content", b.VideoAds, b.ImageAds))
	case b.ImageAds > b.VideoAds:
		findings = append(findings, fmt.Sprintf("Static content is more common (%d images vs %d videos), likely because it is cheaper to produce", b.ImageAds, b.VideoAds))
	}
	if len(bodies) > 0 {
		switch avg := averageLength(bodies); {
		case avg < 50:
			findings = append(findings, "Short copy dominates; the audience prefers concise messages")
		case avg > 150:
			findings = append(findings, "Long descriptions are common; the audience is willing to read details")
		}
	}
	if len(competitive.TopCompetitors) > 0 {
		top := competitive.TopCompetitors[0]
		findings = append(findings, fmt.Sprintf("Most active brand: %s (%d ads)", top.Brand, top.AdCount))
	}
	if len(visual.CreativeTechniques) > 0 {
		tech := visual.CreativeTechniques[0]
		findings = append(findings, fmt.Sprintf("Most observed video technique: %s (%d of %d analyzed videos)", tech.Term, tech.Count, visual.InsightsConsidered))
	}
	joined := strings.Join(texts, " ")
	if strings.Contains(joined, "free") {
		findings = append(findings, "The keyword 'free' appears often; free offers are effective")
	}
	if strings.Contains(joined, "new") {
		findings = append(findings, "Novelty is emphasized; innovation attracts this audience")
	}
	if len(findings) > maxKeyFindings {
		findings = findings[:maxKeyFindings]
	}
	return findings
}

func trendInsights(ads []*model.Ad, analysis *model.TrendAnalysis) []string {
	insights := []string{}
	dated := 0
	for _, ad := range ads {
		if ad.FirstSeen != nil {
			dated++
		}
	}
	if dated > 0 {
		insights = append(insights, fmt.Sprintf("Activity: %d ads carry a launch date", dated))
	}
	if platforms := analysis.FormatTrends.PublisherPlatforms; len(platforms) > 0 {
		insights = append(insights, fmt.Sprintf("Most used platform: %s (%d ads)", platforms[0].Term, platforms[0].Count))
	}
	if themes := analysis.TopThemes(3); len(themes) > 0 {
		insights = append(insights, "Leading themes: "+strings.Join(themes, ", "))
	}
	if tone := analysis.MessagingTrends.DominantTone(); tone != "" {
		insights = append(insights, "Dominant emotional tone: "+tone)
	}
	return insights
}

func recommendationRationale(b model.DataBreakdown, bodies []string, texts []string) []string {
	rationale := []string{}
	if b.TotalAds == 0 {
		return rationale
	}
	if b.VideoAds > b.ImageAds {
		rationale = append(rationale, "Video leads among competitors; investing in video keeps the brand competitive")
	} else {
		rationale = append(rationale, "Static content is popular; a polished video can stand out")
	}
	if len(bodies) > 0 {
		if averageLength(bodies) < 100 {
			rationale = append(rationale, "Short messages work; the audience has little time to read")
		} else {
			rationale = append(rationale, "Detailed copy works; the audience values information")
		}
	}
	joined := strings.Join(texts, " ")
	if strings.Contains(joined, "urgent") || strings.Contains(joined, "limited") {
		rationale = append(rationale, "Urgency works; use time-limited offers")
	}
	return rationale
}

func analysisPeriod(ads []*model.Ad) *model.AnalysisPeriod {
	var earliest, latest time.Time
	for _, ad := range ads {
		if ad.FirstSeen == nil {
			continue
		}
		seen := ad.FirstSeen.UTC()
		if earliest.IsZero() || seen.Before(earliest) {
			earliest = seen
		}
		if seen.After(latest) {
			latest = seen
		}
	}
	if earliest.IsZero() {
		return nil
	}
	return &model.AnalysisPeriod{
		Earliest: earliest.Format(time.DateOnly),
		Latest:   latest.Format(time.DateOnly),
	}
}
