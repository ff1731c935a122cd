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

package commands

import (
	goctx "context"
	"log/slog"

	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
)

// WebpageFuture is a product page analysis running in the background.
type WebpageFuture struct {
	URL     string
	done    chan struct{}
	profile *model.ProductProfile
	err     error
}

// StartWebpageAnalysis analyzes pageURL in a new goroutine. cancel is called
// once the analysis returns.
func StartWebpageAnalysis(ctx goctx.Context, cancel goctx.CancelFunc, analyzer *services.WebpageAnalyzer, pageURL string) *WebpageFuture {
	f := &WebpageFuture{URL: pageURL, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer cancel()
		f.profile, f.err = analyzer.Analyze(ctx, pageURL)
	}()
	return f
}

// Wait blocks until the analysis finishes or ctx is done.
func (f *WebpageFuture) Wait(ctx goctx.Context) (*model.ProductProfile, error) {
	select {
	case <-f.done:
		return f.profile, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WebpageAnalysisStarter launches the product page analysis so that it
// overlaps brand resolution, ad fetching and ad analysis. Runs without a
// product URL skip it.
type WebpageAnalysisStarter struct {
	cor.BaseCommand
	analyzer *services.WebpageAnalyzer
}

// NewWebpageAnalysisStarter is the constructor for the WebpageAnalysisStarter command.
func NewWebpageAnalysisStarter(name string, analyzer *services.WebpageAnalyzer) *WebpageAnalysisStarter {
	return &WebpageAnalysisStarter{BaseCommand: *cor.NewBaseCommand(name), analyzer: analyzer}
}

// IsExecutable requires a request with a product URL.
func (c *WebpageAnalysisStarter) IsExecutable(context cor.Context) bool {
	req, ok := context.Get(ParamRequest).(*model.ScriptRequest)
	return ok && req.ProductURL != "" && c.analyzer != nil
}

// Execute starts the analysis and stores the future.
func (c *WebpageAnalysisStarter) Execute(context cor.Context) {
	req := context.Get(ParamRequest).(*model.ScriptRequest)
	ctx, cancel := runContext(context)
	context.Add(ParamWebpage, StartWebpageAnalysis(ctx, cancel, c.analyzer, req.ProductURL))
	slog.InfoContext(context.GetContext(), "webpage analysis started", "url", req.ProductURL)
	c.Succeed(context)
}

// awaitWebpage collects the webpage result. A failure degrades the run: the
// script is composed from the user query instead.
func awaitWebpage(context cor.Context) (*model.ProductProfile, bool) {
	future, ok := context.Get(ParamWebpage).(*WebpageFuture)
	if !ok {
		return nil, false
	}
	ctx := context.GetContext()
	profile, err := future.Wait(ctx)
	if err != nil {
		slog.WarnContext(ctx, "webpage analysis failed, continuing without a product profile", "url", future.URL, "error", err)
		if t := RunTracker(context); t != nil {
			t.MarkDegraded("webpage analysis failed: " + err.Error())
		}
		return nil, false
	}
	return profile, true
}
