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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"google.golang.org/genai"
)

// VideoAnalyzer asks the model to describe a competitor video ad.
type VideoAnalyzer struct {
	cache          *MediaCache
	model          cloud.ContentGenerator
	promptTemplate *template.Template
	inlineLimit    int64
	counters       modelCounters
	exampleJSON    string
}

// NewVideoAnalyzer creates an analyzer. Assets larger than inlineLimit bytes
// can only be analyzed when the cache mirrors them to GCS.
func NewVideoAnalyzer(cache *MediaCache, generator cloud.ContentGenerator, prompt *template.Template, inlineLimit int64) *VideoAnalyzer {
	if inlineLimit <= 0 {
		inlineLimit = 20 << 20
	}
	return &VideoAnalyzer{
		cache:          cache,
		model:          generator,
		promptTemplate: prompt,
		inlineLimit:    inlineLimit,
		counters:       newModelCounters("video-analyzer"),
		exampleJSON:    model.ExampleJSON(model.GetExampleInsightDetails()),
	}
}

// Analyze returns an analyzed or skipped result. Any other outcome is an
// *model.AnalysisFailedError together with a failed AdAnalysis.
func (v *VideoAnalyzer) Analyze(ctx context.Context, ad *model.Ad) (model.AdAnalysis, error) {
	if ad == nil {
		return model.AdAnalysis{Status: model.AnalysisStatusFailed, Reason: "nil ad"}, errors.New("nil ad")
	}
	if ad.MediaURL == "" {
		return model.Skipped(ad.AdID, "ad has no media"), nil
	}
	if !ad.IsVideo() {
		return model.Skipped(ad.AdID, fmt.Sprintf("%s ad, only video ads are analyzed", ad.MediaType)), nil
	}
	fail := func(err error) (model.AdAnalysis, error) {
		failure := &model.AnalysisFailedError{Subject: "ad " + ad.AdID, Err: err}
		return model.AdAnalysis{AdID: ad.AdID, Status: model.AnalysisStatusFailed, Reason: err.Error()}, failure
	}

	key := model.ContentKey(ad.MediaURL)
	cached, ok, err := v.cache.LookupInsight(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "cached insight unreadable, analyzing again", "ad_id", ad.AdID, "error", err)
	} else if ok {
		insight := *cached
		insight.AdID = ad.AdID
		insight.PageName = ad.PageName
		insight.MediaURL = ad.MediaURL
		insight.FromCache = true
		return model.Analyzed(&insight), nil
	}

	if v.model == nil {
		return fail(errors.New("no model configured"))
	}
	entry, err := v.cache.GetOrFetch(ctx, ad.MediaURL)
	if err != nil {
		return fail(err)
	}
	mimeType := entry.MIMEType
	if !strings.HasPrefix(mimeType, "video/") {
		mimeType = "video/mp4"
	}

	var media *genai.Part
	switch {
	case entry.GCSURI != "":
		media = cloud.NewFileData(entry.GCSURI, mimeType)
	case entry.SizeBytes > v.inlineLimit:
		return fail(fmt.Errorf("asset is %.1f MB, above the inline limit of %.1f MB", model.BytesToMB(entry.SizeBytes), model.BytesToMB(v.inlineLimit)))
	default:
		data, err := v.cache.ReadContent(ctx, entry)
		if err != nil {
			return fail(err)
		}
		media = cloud.NewInlineData(data, mimeType)
	}

	prompt, err := renderPrompt(v.promptTemplate, map[string]string{
		"PAGE_NAME":    ad.PageName,
		"AD_ID":        ad.AdID,
		"BODY":         ad.Text(),
		"EXAMPLE_JSON": v.exampleJSON,
	})
	if err != nil {
		return fail(err)
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}, media}}}
	out, err := v.counters.generate(ctx, v.model, contents)
	if err != nil {
		return fail(err)
	}

	insight := &model.VideoInsight{
		AdID:        ad.AdID,
		PageName:    ad.PageName,
		MediaURL:    ad.MediaURL,
		ContentKey:  key,
		ModelUsed:   v.model.Name(),
		RawAnalysis: out,
		Metadata: model.AssetMetadata{
			FileSizeMB: model.BytesToMB(entry.SizeBytes),
			MIMEType:   entry.MIMEType,
		},
		AnalysisTimestamp: time.Now().UTC(),
	}
	if doc, ok := cloud.ExtractJSON(out); ok {
		details := &model.InsightDetails{}
		if err := json.Unmarshal([]byte(doc), details); err == nil && !details.Empty() {
			insight.Details = details
			insight.Metadata.DurationSeconds = details.DurationSeconds
		} else if err != nil {
			slog.DebugContext(ctx, "insight details not structured, keeping raw analysis", "ad_id", ad.AdID, "error", err)
		}
	}

	if err := v.cache.SaveInsight(ctx, key, insight); err != nil {
		slog.WarnContext(ctx, "failed to cache insight", "ad_id", ad.AdID, "error", err)
	}
	return model.Analyzed(insight), nil
}
