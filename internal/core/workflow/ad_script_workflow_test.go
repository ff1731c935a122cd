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

package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/core/commands"
	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-adscript/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestAdScriptWorkflow(t *testing.T) {
	ctx := traceCtx(t)
	h := newHarness(t)
	h.addVideoAds("Nike", "15087023444", 6)
	w := h.workflow()

	script, err := w.Run(ctx, &model.ScriptRequest{
		BrandNames:    []string{"Nike"},
		ProductURL:    h.productURL(),
		UserQuery:     "30 second launch video for a trail running shoe",
		GeneratorType: "veo",
		Limit:         5,
	})
	require.NoError(t, err)
	require.NotNil(t, script)

	assert.True(t, script.Success)
	md := script.AnalysisMetadata
	assert.NotEmpty(t, md.RunID)
	assert.Equal(t, []string{"Nike"}, md.BrandsAnalyzed)
	assert.Equal(t, 1, md.PlatformIDsFound)
	assert.Equal(t, 5, md.AdsFetched)
	assert.Equal(t, 5, md.AdsAnalyzed)
	assert.Equal(t, 0, md.AdsFailed)
	assert.True(t, md.WebpageAnalyzed)
	assert.False(t, md.Degraded)
	assert.Equal(t, "veo", script.TechnicalSpecifications.GeneratorType)
	assert.Len(t, script.VideoInsights, 5)
	require.NotNil(t, script.WebpageAnalysis)
	assert.Equal(t, "Pegasus Trail Running Shoe", script.WebpageAnalysis.ProductName)

	require.Len(t, script.Variations, model.VariationCount)
	labels := []string{script.Variations[0].Label, script.Variations[1].Label, script.Variations[2].Label}
	assert.ElementsMatch(t, []string{model.VariationEmotional, model.VariationTechnical, model.VariationCompetitive}, labels)

	require.NotNil(t, script.TrendAnalysis)
	assert.Equal(t, 5, script.TrendAnalysis.Reasoning.DataBreakdown.TotalAds)
	assert.Equal(t, 5, h.video.Calls())

	runs := h.runs.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, md.RunID, runs[0].RunID)
	assert.Equal(t, string(model.StateDone), runs[0].State)
	assert.Equal(t, []string{"15087023444"}, runs[0].PlatformIDs)

	// The second run is served from the insight cache.
	again, err := w.Run(ctx, &model.ScriptRequest{BrandNames: []string{"nike"}, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, again.AnalysisMetadata.CachedInsights)
	assert.Equal(t, 5, h.video.Calls())
	assert.NotEqual(t, md.RunID, again.AnalysisMetadata.RunID)
	logger.InfoContext(ctx, "script generated", "run_id", md.RunID, "description", script.VideoDescription)
}

func TestAdScriptWorkflowProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		header map[string]string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "credit exhausted",
			status: http.StatusPaymentRequired,
			body:   `{"error":"credits","credits_remaining":0}`,
			check: func(t *testing.T, err error) {
				var credit *model.CreditExhaustedError
				require.True(t, errors.As(err, &credit))
				resp := model.NewErrorResponse(err)
				assert.Equal(t, http.StatusPaymentRequired, resp.Status)
				assert.Equal(t, model.ErrorTypeCreditExhausted, resp.Type)
				require.NotNil(t, resp.CreditsRemaining)
				assert.Equal(t, 0, *resp.CreditsRemaining)
				assert.NotEmpty(t, resp.TopupURL)
			},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":"slow down"}`,
			header: map[string]string{"Retry-After": "30"},
			check: func(t *testing.T, err error) {
				resp := model.NewErrorResponse(err)
				assert.Equal(t, http.StatusTooManyRequests, resp.Status)
				assert.Equal(t, model.ErrorTypeRateLimit, resp.Type)
				require.NotNil(t, resp.RetryAfter)
				assert.Equal(t, 30, *resp.RetryAfter)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := traceCtx(t)
			h := newHarness(t)
			h.addVideoAds("Nike", "111", 2)
			h.provider.FailWith(tc.status, tc.body, tc.header)

			script, err := h.workflow().Run(ctx, &model.ScriptRequest{BrandNames: []string{"Nike"}, Limit: 5})
			require.Error(t, err)
			assert.Nil(t, script)
			tc.check(t, err)
			assert.Equal(t, 0, h.video.Calls())

			runs := h.runs.Runs()
			require.Len(t, runs, 1)
			assert.Equal(t, string(model.StateFailed), runs[0].State)
			assert.Equal(t, string(model.NewErrorResponse(err).Type), runs[0].ErrorType)
		})
	}
}

func TestAdScriptWorkflowNoBrandsResolved(t *testing.T) {
	ctx := traceCtx(t)
	h := newHarness(t)

	_, err := h.workflow().Run(ctx, &model.ScriptRequest{BrandNames: []string{"Nobody Inc"}})
	var noBrands *model.NoBrandsResolvedError
	require.True(t, errors.As(err, &noBrands), "got %v", err)
	assert.Equal(t, []string{"Nobody Inc"}, noBrands.BrandNames)
	assert.Equal(t, http.StatusNotFound, model.NewErrorResponse(err).Status)
}

func TestAdScriptWorkflowInvalidRequest(t *testing.T) {
	ctx := traceCtx(t)
	h := newHarness(t)

	_, err := h.workflow().Run(ctx, &model.ScriptRequest{BrandNames: []string{"Nike"}, GeneratorType: "flipbook"})
	var validation *model.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
	assert.Equal(t, "generator_type", validation.Field)
	assert.Empty(t, h.provider.Requests())
}

func TestAdScriptWorkflowPartialFailure(t *testing.T) {
	ctx := traceCtx(t)
	h := newHarness(t)
	h.addVideoAds("Nike", "111", 4)
	// The only Adidas ad points at media the CDN does not have.
	broken := h.media.URL("/222/gone.mp4")
	h.provider.AddBrand("Adidas", "222", test.VideoAd("222-1", "222", "Adidas", broken, "Impossible is nothing"))

	script, err := h.workflow().Run(ctx, &model.ScriptRequest{BrandNames: []string{"Nike", "Adidas"}, Limit: 10})
	require.NoError(t, err)

	md := script.AnalysisMetadata
	assert.Equal(t, 5, md.AdsFetched)
	assert.Equal(t, 4, md.AdsAnalyzed)
	assert.Equal(t, 1, md.AdsFailed)
	require.Len(t, script.AnalysisFailures, 1)
	assert.Equal(t, "222-1", script.AnalysisFailures[0].AdID)
	assert.NotEmpty(t, script.AnalysisFailures[0].Reason)
	assert.ElementsMatch(t, []string{"Nike", "Adidas"}, md.BrandsAnalyzed)
	// The failed ad still counts toward the trend breakdown.
	assert.Equal(t, 5, script.TrendAnalysis.Reasoning.DataBreakdown.TotalAds)
}

func TestAdScriptWorkflowRunDeadline(t *testing.T) {
	ctx := traceCtx(t)
	h := newHarness(t)
	h.config.Orchestration.RunTimeoutSeconds = 1
	h.addVideoAds("Nike", "111", 3)
	// The model never answers, so every analysis runs into the run deadline.
	h.video.Respond = func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	start := time.Now()
	script, err := h.workflow().Run(ctx, &model.ScriptRequest{BrandNames: []string{"Nike"}, Limit: 5})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)

	md := script.AnalysisMetadata
	assert.True(t, md.Degraded)
	assert.Equal(t, 3, md.AdsFetched)
	assert.Equal(t, 0, md.AdsAnalyzed)
	assert.Equal(t, 3, md.AdsFailed)
	assert.Len(t, script.AnalysisFailures, 3)
	assert.True(t, script.Success)
	assert.Len(t, script.Variations, model.VariationCount)
}

func TestAdScriptWorkflowWebpageFailureDegrades(t *testing.T) {
	ctx := traceCtx(t)
	h := newHarness(t)
	h.addVideoAds("Nike", "111", 2)

	script, err := h.workflow().Run(ctx, &model.ScriptRequest{
		BrandNames: []string{"Nike"},
		ProductURL: h.pages.URL + "/products/discontinued",
		UserQuery:  "trail shoe launch",
	})
	require.NoError(t, err)

	md := script.AnalysisMetadata
	assert.False(t, md.WebpageAnalyzed)
	assert.True(t, md.Degraded)
	assert.Equal(t, 2, md.AdsAnalyzed)
	assert.Nil(t, script.WebpageAnalysis)
	found := false
	for _, w := range md.Warnings {
		found = found || strings.HasPrefix(w, "webpage analysis failed")
	}
	assert.True(t, found, "warnings: %v", md.Warnings)
}

func TestAdScriptWorkflowProductURLFromQuery(t *testing.T) {
	ctx := traceCtx(t)
	h := newHarness(t)
	h.addVideoAds("Nike", "111", 1)

	script, err := h.workflow().Run(ctx, &model.ScriptRequest{
		BrandNames: []string{"Nike"},
		UserQuery:  "Make a launch video for " + h.productURL() + " please",
	})
	require.NoError(t, err)
	assert.True(t, script.AnalysisMetadata.WebpageAnalyzed)
	assert.Equal(t, h.productURL(), script.AnalysisMetadata.ProductURL)
	assert.Equal(t, 1, h.webpage.Calls())
}

// TestAdScriptWorkflowPubSubMessage drives the workflow the way the Pub/Sub
// listener does: the input parameter is the message body.
func TestAdScriptWorkflowPubSubMessage(t *testing.T) {
	ctx := traceCtx(t)
	h := newHarness(t)
	h.addVideoAds("Nike", "111", 2)
	h.addVideoAds("Adidas", "222", 2)

	body, err := json.Marshal(map[string]any{
		"brand_names":    []string{"Nike", "nike", "Adidas"},
		"product_url":    h.productURL(),
		"user_query":     "30 second launch video for a trail running shoe",
		"generator_type": "sora",
		"limit":          10,
	})
	require.NoError(t, err)

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(cor.CtxIn, string(body))

	w := h.workflow()
	w.Execute(chainCtx)
	for k, err := range chainCtx.GetErrors() {
		t.Logf("error (%s): %v", k, err)
	}
	require.False(t, chainCtx.HasErrors())

	script, err := workflow.Result(chainCtx)
	require.NoError(t, err)
	assert.Equal(t, "sora", script.TechnicalSpecifications.GeneratorType)
	assert.Equal(t, []string{"Nike", "Adidas"}, script.AnalysisMetadata.BrandsAnalyzed)
	assert.Equal(t, 4, script.AnalysisMetadata.AdsAnalyzed)

	tracker := commands.RunTracker(chainCtx)
	require.NotNil(t, tracker)
	assert.Equal(t, model.StateDone, tracker.State())
	states := make([]model.RunState, 0)
	for _, tr := range tracker.Transitions() {
		states = append(states, tr.To)
	}
	assert.Equal(t, []model.RunState{
		model.StateResolvingBrands,
		model.StateFetchingAds,
		model.StateAnalyzing,
		model.StateAggregating,
		model.StateComposing,
		model.StateDone,
	}, states)
}

func TestAdScriptWorkflowMalformedMessage(t *testing.T) {
	ctx := traceCtx(t)
	h := newHarness(t)
	traceCtx, span := tracer.Start(ctx, "malformed-message")
	defer span.End()

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(traceCtx)
	chainCtx.Add(cor.CtxIn, "{not json")

	h.workflow().Execute(chainCtx)
	if chainCtx.HasErrors() {
		span.SetStatus(codes.Error, "malformed message rejected")
	}
	require.True(t, chainCtx.HasErrors())
	var validation *model.ValidationError
	assert.True(t, errors.As(chainCtx.FirstError(), &validation))
	runs := h.runs.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, string(model.StateFailed), runs[0].State)
}
