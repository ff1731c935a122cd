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

// Package workflow_test runs the workflows end to end against in-process
// fakes: the ads-library provider, a media CDN, a product page and the
// Gemini models. No Google Cloud project is needed.
package workflow_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
	"github.com/jaycherian/gcp-go-adscript/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-adscript/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const tName = "github.com/jaycherian/gcp-go-adscript/tests/workflow"

var (
	tracer = otel.Tracer(tName)
	logger = otelslog.NewLogger(tName)
)

const productPath = "/products/pegasus-trail"

func TestMain(m *testing.M) {
	restore := test.FastRetries()
	code := m.Run()
	restore()
	os.Exit(code)
}

func traceCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, span := tracer.Start(context.Background(), t.Name())
	t.Cleanup(func() { span.End() })
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	t.Cleanup(cancel)
	return ctx
}

// harness wires a workflow to fakes. Fields may be changed before workflow().
type harness struct {
	config   *cloud.Config
	provider *test.FakeAdsProvider
	media    *test.MediaServer
	pages    *httptest.Server
	cache    *services.MediaCache
	runs     *test.MemoryRunStore
	webpage  *test.FakeModel
	video    *test.FakeModel
	trend    *test.FakeModel
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		provider: test.NewFakeAdsProvider(),
		media:    test.NewMediaServer(),
		runs:     &test.MemoryRunStore{},
		webpage:  test.NewStaticModel("fake-webpage", model.ExampleJSON(model.GetExampleProductProfile())),
		video:    test.NewStaticModel("fake-video", model.ExampleJSON(model.GetExampleInsightDetails())),
		trend:    test.NewStaticModel("fake-trend", "Competitors lean on close-ups and limited-time offers."),
	}
	t.Cleanup(h.provider.Close)
	t.Cleanup(h.media.Close)

	h.pages = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != productPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(test.ProductPageHTML))
	}))
	t.Cleanup(h.pages.Close)

	h.config = test.NewTestConfig(t, h.provider.URL())
	cache, err := services.NewMediaCache(services.MediaCacheOptions{
		Dir:             h.config.Storage.MediaCacheDir,
		DBPath:          h.config.Storage.CacheDBPath,
		DownloadTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	h.cache = cache
	return h
}

func (h *harness) workflow() *workflow.AdScriptWorkflow {
	return workflow.NewAdScriptWorkflow(h.config, workflow.Dependencies{
		Cache:        h.cache,
		Ads:          services.NewAdsSourceFromConfig(h.config),
		WebpageModel: h.webpage,
		VideoModel:   h.video,
		TrendModel:   h.trend,
		Runs:         h.runs,
	})
}

// addVideoAds registers a brand running n video ads served by the media server.
func (h *harness) addVideoAds(brand string, pageID string, n int) {
	ads := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%s-%d", pageID, i)
		url := h.media.Add(fmt.Sprintf("/%s/%d.mp4", pageID, i), test.MP4Bytes)
		ads = append(ads, test.VideoAd(id, pageID, brand, url, fmt.Sprintf("%s ad %d: run further", brand, i)))
	}
	h.provider.AddBrand(brand, pageID, ads...)
}

func (h *harness) productURL() string {
	return h.pages.URL + productPath
}
