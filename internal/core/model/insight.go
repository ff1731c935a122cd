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
// run. This file describes the per-ad output of the video analysis step.
//
// A video analysis can end in one of three ways, captured by AdAnalysis:
//   - analyzed: a VideoInsight was produced (possibly from the cache).
//   - skipped: the ad has no analyzable video; this is not a failure.
//   - failed: the analysis raised an error, recorded as an AdFailure.
package model

import (
	"sort"
	"strings"
	"time"
)

// AnalysisStatus is the outcome of analyzing one ad.
type AnalysisStatus string

const (
	AnalysisStatusAnalyzed AnalysisStatus = "analyzed"
	AnalysisStatusSkipped  AnalysisStatus = "skipped"
	AnalysisStatusFailed   AnalysisStatus = "failed"
)

// InsightDetails is the structured part of a video insight. Every field is
// optional because the model may omit any of them.
type InsightDetails struct {
	Techniques        []string `json:"techniques,omitempty"`
	Hooks             []string `json:"hooks,omitempty"`
	Pacing            *string  `json:"pacing,omitempty"`
	Composition       *string  `json:"composition,omitempty"`
	Messaging         *string  `json:"messaging,omitempty"`
	CallToAction      *string  `json:"call_to_action,omitempty"`
	TargetAudience    *string  `json:"target_audience,omitempty"`
	EmotionalTriggers []string `json:"emotional_triggers,omitempty"`
	ColorPalette      []string `json:"color_palette,omitempty"`
	TextOverlays      []string `json:"text_overlays,omitempty"`
	Effectiveness     *string  `json:"effectiveness,omitempty"`
	DurationSeconds   *float64 `json:"duration_seconds,omitempty"`
}

// Empty reports whether the model returned nothing usable in structured form.
func (d *InsightDetails) Empty() bool {
	return d == nil || (len(d.Techniques) == 0 && len(d.Hooks) == 0 && d.Pacing == nil &&
		d.Composition == nil && d.Messaging == nil && d.CallToAction == nil &&
		d.TargetAudience == nil && len(d.EmotionalTriggers) == 0 && len(d.ColorPalette) == 0 &&
		len(d.TextOverlays) == 0 && d.Effectiveness == nil && d.DurationSeconds == nil)
}

// AssetMetadata describes the media file that was analyzed.
type AssetMetadata struct {
	FileSizeMB      float64  `json:"file_size_mb"`
	MIMEType        string   `json:"mime_type"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// VideoInsight is the analysis result for one ad. Exactly one exists per
// successfully analyzed ad.
type VideoInsight struct {
	AdID              string          `json:"ad_id"`
	PageName          string          `json:"page_name"`
	MediaURL          string          `json:"media_url"`
	ContentKey        string          `json:"content_key"`
	ModelUsed         string          `json:"model_used"`
	RawAnalysis       string          `json:"raw_analysis"`
	Details           *InsightDetails `json:"details,omitempty"`
	Metadata          AssetMetadata   `json:"video_metadata"`
	AnalysisTimestamp time.Time       `json:"analysis_timestamp"`
	FromCache         bool            `json:"from_cache"`
}

// Text returns everything the insight says as a single lower-cased string,
// used for keyword matching during aggregation.
func (v *VideoInsight) Text() string {
	var sb strings.Builder
	sb.WriteString(v.RawAnalysis)
	if d := v.Details; d != nil {
		for _, list := range [][]string{d.Techniques, d.Hooks, d.EmotionalTriggers, d.ColorPalette, d.TextOverlays} {
			for _, s := range list {
				sb.WriteString(" ")
				sb.WriteString(s)
			}
		}
		for _, p := range []*string{d.Pacing, d.Composition, d.Messaging, d.CallToAction, d.TargetAudience, d.Effectiveness} {
			if p != nil {
				sb.WriteString(" ")
				sb.WriteString(*p)
			}
		}
	}
	return strings.ToLower(sb.String())
}

// AdFailure records an ad that could not be analyzed.
type AdFailure struct {
	AdID   string `json:"ad_id"`
	Reason string `json:"reason"`
}

// AdAnalysis is the outcome of analyzing one ad.
type AdAnalysis struct {
	AdID    string         `json:"ad_id"`
	Status  AnalysisStatus `json:"status"`
	Insight *VideoInsight  `json:"insight,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// Skipped builds the sentinel result for an ad without analyzable video.
func Skipped(adID string, reason string) AdAnalysis {
	return AdAnalysis{AdID: adID, Status: AnalysisStatusSkipped, Reason: reason}
}

// Analyzed wraps a successful insight.
func Analyzed(insight *VideoInsight) AdAnalysis {
	return AdAnalysis{AdID: insight.AdID, Status: AnalysisStatusAnalyzed, Insight: insight}
}

// AnalysisOutcome is the collected result of the analysis stage, keyed by
// ad id so that completion order does not matter.
type AnalysisOutcome struct {
	Insights map[string]*VideoInsight
	Skipped  map[string]string
	Failures map[string]string
}

// NewAnalysisOutcome creates an empty outcome.
func NewAnalysisOutcome() *AnalysisOutcome {
	return &AnalysisOutcome{
		Insights: make(map[string]*VideoInsight),
		Skipped:  make(map[string]string),
		Failures: make(map[string]string),
	}
}

// Record stores one per-ad result.
func (o *AnalysisOutcome) Record(r AdAnalysis) {
	switch r.Status {
	case AnalysisStatusAnalyzed:
		o.Insights[r.AdID] = r.Insight
	case AnalysisStatusSkipped:
		o.Skipped[r.AdID] = r.Reason
	default:
		o.Failures[r.AdID] = r.Reason
	}
}

// Has reports whether a result for the ad was already recorded.
func (o *AnalysisOutcome) Has(adID string) bool {
	_, a := o.Insights[adID]
	_, s := o.Skipped[adID]
	_, f := o.Failures[adID]
	return a || s || f
}

// InsightList returns insights ordered by ad id.
func (o *AnalysisOutcome) InsightList() []*VideoInsight {
	out := make([]*VideoInsight, 0, len(o.Insights))
	for _, v := range o.Insights {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdID < out[j].AdID })
	return out
}

// FailureList returns failures ordered by ad id.
func (o *AnalysisOutcome) FailureList() []AdFailure {
	out := make([]AdFailure, 0, len(o.Failures))
	for id, reason := range o.Failures {
		out = append(out, AdFailure{AdID: id, Reason: reason})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdID < out[j].AdID })
	return out
}
