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

package services_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compositionInput(t *testing.T, generator string, prefs map[string]string) model.CompositionInput {
	t.Helper()
	ctx := traceCtx(t)
	req := &model.ScriptRequest{
		BrandNames:       []string{"Nike", "Adidas"},
		UserQuery:        "A launch video for our trail shoe",
		GeneratorType:    generator,
		StylePreferences: prefs,
	}
	req.Normalize()
	insights := sampleInsights()
	return model.CompositionInput{
		Request:  req,
		Profile:  model.GetExampleProductProfile(),
		Trends:   services.NewTrendAggregator(nil, nil, 0).Aggregate(ctx, sampleAds(), insights),
		Insights: insights,
		Failures: []model.AdFailure{{AdID: "2", Reason: "model unavailable"}},
		Metadata: model.AnalysisMetadata{
			RunID:            "run-1",
			BrandsAnalyzed:   []string{"Nike", "Adidas"},
			PlatformIDsFound: 2,
			AdsFetched:       5,
			AdsAnalyzed:      2,
			AdsSkipped:       2,
			AdsFailed:        1,
			WebpageAnalyzed:  true,
		},
	}
}

func TestScriptComposerVariations(t *testing.T) {
	ctx := traceCtx(t)
	composer := services.NewScriptComposer()

	for _, generator := range model.GeneratorIDs() {
		t.Run(generator, func(t *testing.T) {
			script, err := composer.Compose(ctx, compositionInput(t, generator, nil))
			require.NoError(t, err)
			assert.True(t, script.Success)

			require.Len(t, script.Variations, model.VariationCount)
			assert.Equal(t, model.VariationEmotional, script.Variations[0].Label)
			assert.Equal(t, model.VariationTechnical, script.Variations[1].Label)
			assert.Equal(t, model.VariationCompetitive, script.Variations[2].Label)
			seen := map[string]bool{script.VideoDescription: true}
			for _, v := range script.Variations {
				assert.NotEmpty(t, v.Description)
				assert.False(t, seen[v.Description], "variation %s repeats another text", v.Label)
				seen[v.Description] = true
			}

			g, _ := model.LookupGenerator(generator)
			assert.Contains(t, script.VideoDescription, g.StyleDescriptor)
			assert.Contains(t, script.Variations[1].Description, g.TechnicalFocus)
			assert.Equal(t, g.Model, script.TechnicalSpecifications.Model)
			assert.Equal(t, g.Style, script.TechnicalSpecifications.Style)
			assert.Equal(t, g.RecommendedSpecs, script.TechnicalSpecifications.RecommendedSpecs)
		})
	}
}

func TestScriptComposerScenesAndText(t *testing.T) {
	ctx := traceCtx(t)
	script, err := services.NewScriptComposer().Compose(ctx, compositionInput(t, "veo", nil))
	require.NoError(t, err)

	require.Len(t, script.Scenes, 5)
	bounds := [][2]int{{0, 3}, {3, 5}, {5, 15}, {15, 20}, {20, 25}}
	for i, s := range script.Scenes {
		assert.Equal(t, i+1, s.Sequence)
		assert.Equal(t, bounds[i][0], s.StartSeconds)
		assert.Equal(t, bounds[i][1], s.EndSeconds)
		assert.Contains(t, script.VideoDescription, s.Description)
	}
	assert.Contains(t, script.Scenes[0].Description, "city street")
	assert.Contains(t, script.Scenes[4].Description, "Shop the Pegasus Trail")
	assert.True(t, strings.HasPrefix(script.Variations[0].Description, "Craft a sophisticated"))
	assert.Contains(t, script.Variations[2].Description, "themes that competitors are missing")
	assert.Contains(t, script.Variations[2].Description, "Adidas")
	assert.Contains(t, script.Recommendations.ColorScheme, "volt green")
	assert.Equal(t, "excitement and freedom", script.Recommendations.Mood)
	assert.Equal(t, "30s", script.Recommendations.Duration)
}

func TestScriptComposerSpecifications(t *testing.T) {
	ctx := traceCtx(t)
	composer := services.NewScriptComposer()

	script, err := composer.Compose(ctx, compositionInput(t, "veo", nil))
	require.NoError(t, err)
	assert.Equal(t, model.TechnicalSpecifications{
		GeneratorType:    "veo",
		Model:            "veo-2",
		Resolution:       "1080p",
		AspectRatio:      "16:9",
		FPS:              30,
		DurationSeconds:  30,
		Format:           "mp4",
		Quality:          "high",
		Style:            "cinematic",
		Motion:           "smooth",
		Lighting:         "natural",
		RecommendedSpecs: "16:9 aspect ratio, 1080p resolution, 5-15 seconds duration",
	}, script.TechnicalSpecifications)

	overridden, err := composer.Compose(ctx, compositionInput(t, "runway", map[string]string{
		"aspect_ratio": "9:16",
		"resolution":   "720p",
		"duration":     "15s",
		"fps":          "not-a-number",
		"lighting":     "neon",
		"mood":         "ignored",
	}))
	require.NoError(t, err)
	specs := overridden.TechnicalSpecifications
	assert.Equal(t, "9:16", specs.AspectRatio)
	assert.Equal(t, "720p", specs.Resolution)
	assert.Equal(t, 15, specs.DurationSeconds)
	assert.Equal(t, 30, specs.FPS)
	assert.Equal(t, "neon", specs.Lighting)
	assert.Equal(t, "dynamic", specs.Motion)
	assert.Equal(t, "gen-3", specs.Model)
	assert.Equal(t, "9:16", overridden.Recommendations.AspectRatio)
}

func TestScriptComposerMetadataAndDegradation(t *testing.T) {
	ctx := traceCtx(t)
	composer := services.NewScriptComposer()

	in := compositionInput(t, "sora", nil)
	script, err := composer.Compose(ctx, in)
	require.NoError(t, err)
	meta := script.AnalysisMetadata
	assert.Equal(t, "run-1", meta.RunID)
	assert.Equal(t, []string{"Nike", "Adidas"}, meta.BrandsAnalyzed)
	assert.Equal(t, 2, meta.PlatformIDsFound)
	assert.Equal(t, 2, meta.AdsAnalyzed)
	assert.Equal(t, "sora", meta.GeneratorType)
	assert.Equal(t, "A launch video for our trail shoe", meta.UserQuery)
	assert.WithinDuration(t, time.Now(), meta.AnalysisTimestamp, time.Minute)
	assert.Len(t, script.VideoInsights, 2)
	assert.Len(t, script.AnalysisFailures, 1)
	assert.NotNil(t, script.WebpageAnalysis)

	bare := model.CompositionInput{Request: in.Request}
	degraded, err := composer.Compose(ctx, bare)
	require.NoError(t, err)
	require.Len(t, degraded.Variations, 3)
	assert.Contains(t, degraded.VideoDescription, "A launch video for our trail shoe")
	assert.True(t, strings.HasPrefix(degraded.Variations[2].Description, "Stand out from competitors"))
	assert.Nil(t, degraded.WebpageAnalysis)
	assert.NotNil(t, degraded.VideoInsights)
	assert.NotNil(t, degraded.AnalysisFailures)
	assert.NotNil(t, degraded.TrendAnalysis)

	_, err = composer.Compose(ctx, model.CompositionInput{Request: &model.ScriptRequest{GeneratorType: "midjourney"}})
	var validation *model.ValidationError
	assert.True(t, errors.As(err, &validation))
}
