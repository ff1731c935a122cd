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

package commands_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
	"github.com/jaycherian/gcp-go-adscript/internal/core/commands"
	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
	test "github.com/jaycherian/gcp-go-adscript/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var videoPrompt = template.Must(template.New("video").Parse(cloud.DefaultVideoPrompt))

func TestMain(m *testing.M) {
	restore := test.FastRetries()
	code := m.Run()
	restore()
	os.Exit(code)
}

func newChainContext(ctx context.Context) cor.Context {
	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(ctx)
	return chainCtx
}

func TestAnalyzeRequestReader(t *testing.T) {
	reader := commands.NewAnalyzeRequestReader("read")

	t.Run("struct input is copied and normalized", func(t *testing.T) {
		in := &model.ScriptRequest{BrandNames: []string{"Nike", " nike "}, UserQuery: "see https://example.com/p/1."}
		chainCtx := newChainContext(context.Background())
		chainCtx.Add(cor.CtxIn, in)
		require.True(t, reader.IsExecutable(chainCtx))
		reader.Execute(chainCtx)

		require.False(t, chainCtx.HasErrors())
		req := chainCtx.Get(commands.ParamRequest).(*model.ScriptRequest)
		assert.Equal(t, []string{"Nike"}, req.BrandNames)
		assert.Equal(t, "https://example.com/p/1", req.ProductURL)
		assert.Equal(t, model.DefaultGeneratorType, req.GeneratorType)
		assert.Equal(t, []string{"Nike", " nike "}, in.BrandNames)
		assert.Empty(t, in.ProductURL)
	})

	t.Run("json message", func(t *testing.T) {
		for _, in := range []any{test.GetTestAnalyzeRequestText(), []byte(test.GetTestAnalyzeRequestText())} {
			chainCtx := newChainContext(context.Background())
			chainCtx.Add(cor.CtxIn, in)
			reader.Execute(chainCtx)

			require.False(t, chainCtx.HasErrors())
			req := chainCtx.Get(cor.CtxOut).(*model.ScriptRequest)
			assert.Equal(t, []string{"Nike", "Adidas"}, req.BrandNames)
			assert.Equal(t, 5, req.Limit)
			assert.Equal(t, "US", req.Country)
		}
	})

	t.Run("bad input fails the run", func(t *testing.T) {
		tests := []struct {
			in         any
			validation bool
		}{
			{"{oops", true},
			{`{"brand_names":[]}`, true},
			{`{"brand_names":["Nike"],"limit":9999}`, true},
			{42, false},
		}
		for _, tc := range tests {
			chainCtx := newChainContext(context.Background())
			tracker := model.NewRunTracker(time.Time{})
			chainCtx.Add(commands.ParamTracker, tracker)
			chainCtx.Add(cor.CtxIn, tc.in)
			reader.Execute(chainCtx)

			require.True(t, chainCtx.HasErrors(), "input %v", tc.in)
			var validation *model.ValidationError
			assert.Equal(t, tc.validation, errors.As(chainCtx.FirstError(), &validation), "input %v", tc.in)
			assert.Equal(t, model.StateFailed, tracker.State())
			assert.Nil(t, chainCtx.Get(commands.ParamRequest))
		}
	})
}

type analysisFixture struct {
	media *test.MediaServer
	cache *services.MediaCache
}

func newAnalysisFixture(t *testing.T) *analysisFixture {
	t.Helper()
	media := test.NewMediaServer()
	t.Cleanup(media.Close)
	cache, err := services.NewMediaCache(services.MediaCacheOptions{Dir: t.TempDir(), DownloadTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return &analysisFixture{media: media, cache: cache}
}

func (f *analysisFixture) ads(videos int) []*model.Ad {
	// The image ad goes first so it is skipped before any worker blocks.
	out := []*model.Ad{{AdID: "img", PageName: "Nike", MediaType: model.MediaTypeImage, MediaURL: f.media.Add("/img.png", test.PNGBytes)}}
	for i := 1; i <= videos; i++ {
		out = append(out, &model.Ad{
			AdID:      fmt.Sprintf("v%d", i),
			PageName:  "Nike",
			MediaType: model.MediaTypeVideo,
			MediaURL:  f.media.Add(fmt.Sprintf("/v%d.mp4", i), test.MP4Bytes),
			Body:      "Just do it",
		})
	}
	return out
}

// analyzingContext returns a context positioned just before the analysis stage.
func analyzingContext(t *testing.T, ctx context.Context, deadline time.Time, ads []*model.Ad) (cor.Context, *model.RunTracker) {
	t.Helper()
	tracker := model.NewRunTracker(deadline)
	require.NoError(t, tracker.Transition(model.StateResolvingBrands))
	require.NoError(t, tracker.Transition(model.StateFetchingAds))
	chainCtx := newChainContext(ctx)
	chainCtx.Add(commands.ParamTracker, tracker)
	chainCtx.Add(commands.ParamAds, ads)
	return chainCtx, tracker
}

func TestAdAnalyzerAnalyzesBatch(t *testing.T) {
	f := newAnalysisFixture(t)
	fake := test.NewStaticModel("fake-video", model.ExampleJSON(model.GetExampleInsightDetails()))
	analyzer := commands.NewAdAnalyzer("analyze", services.NewVideoAnalyzer(f.cache, fake, videoPrompt, 0), 2)

	chainCtx, tracker := analyzingContext(t, context.Background(), time.Time{}, f.ads(4))
	analyzer.Execute(chainCtx)

	require.False(t, chainCtx.HasErrors())
	outcome := chainCtx.Get(commands.ParamOutcome).(*model.AnalysisOutcome)
	assert.Len(t, outcome.Insights, 4)
	assert.Len(t, outcome.Skipped, 1)
	assert.Empty(t, outcome.Failures)
	assert.Equal(t, model.StateAnalyzing, tracker.State())
	assert.False(t, tracker.Degraded())
	assert.Equal(t, false, chainCtx.Get(commands.ParamWebpageAnalyzed))
	assert.Equal(t, 4, fake.Calls())
}

func TestAdAnalyzerRunDeadline(t *testing.T) {
	f := newAnalysisFixture(t)
	stuck := &test.FakeModel{
		ModelName: "stuck",
		Respond: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	analyzer := commands.NewAdAnalyzer("analyze", services.NewVideoAnalyzer(f.cache, stuck, videoPrompt, 0), 2)

	chainCtx, tracker := analyzingContext(t, context.Background(), time.Now().Add(300*time.Millisecond), f.ads(3))
	start := time.Now()
	analyzer.Execute(chainCtx)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.False(t, chainCtx.HasErrors())
	outcome := chainCtx.Get(commands.ParamOutcome).(*model.AnalysisOutcome)
	assert.Len(t, outcome.Failures, 3)
	assert.Len(t, outcome.Skipped, 1)
	assert.Empty(t, outcome.Insights)
	assert.True(t, tracker.Degraded())
	require.NotEmpty(t, tracker.Warnings())
	assert.True(t, strings.HasPrefix(tracker.Warnings()[0], commands.ReasonDeadlineExceeded))
}

func TestAdAnalyzerCanceledRun(t *testing.T) {
	f := newAnalysisFixture(t)
	fake := test.NewStaticModel("fake-video", model.ExampleJSON(model.GetExampleInsightDetails()))
	analyzer := commands.NewAdAnalyzer("analyze", services.NewVideoAnalyzer(f.cache, fake, videoPrompt, 0), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chainCtx, tracker := analyzingContext(t, ctx, time.Time{}, f.ads(2))
	analyzer.Execute(chainCtx)

	outcome := chainCtx.Get(commands.ParamOutcome).(*model.AnalysisOutcome)
	assert.Len(t, outcome.Failures, 3)
	for _, reason := range outcome.Failures {
		assert.Equal(t, commands.ReasonRunCanceled, reason)
	}
	assert.True(t, tracker.Degraded())
	assert.Equal(t, 0, fake.Calls())
}

func TestRunArchiverIsBestEffort(t *testing.T) {
	store := &test.MemoryRunStore{Err: errors.New("bigquery unavailable")}
	archiver := commands.NewRunArchiver("archive", store)

	chainCtx := newChainContext(context.Background())
	assert.False(t, archiver.IsExecutable(chainCtx))

	chainCtx.Add(commands.ParamTracker, model.NewRunTracker(time.Time{}))
	chainCtx.Add(commands.ParamRequest, &model.ScriptRequest{BrandNames: []string{"Nike"}})
	require.True(t, archiver.IsExecutable(chainCtx))
	archiver.Execute(chainCtx)
	assert.False(t, chainCtx.HasErrors())

	store.Err = nil
	chainCtx.Add(commands.ParamBrands, []model.BrandQuery{{Name: "Nike", PlatformID: "111"}, {Name: "Acme"}})
	archiver.Execute(chainCtx)
	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"Nike"}, runs[0].BrandNames)
	assert.Equal(t, []string{"111"}, runs[0].PlatformIDs)
}
