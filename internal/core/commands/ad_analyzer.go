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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that analyzes every fetched ad.
//
// Logic Flow:
// Analyzing an ad means downloading its video and sending it to Gemini, which
// takes seconds per ad. The ads are therefore processed by a worker pool.
//
//  1. A buffered `jobs` channel receives every ad of the batch.
//  2. `numberOfWorkers` goroutines pull ads from it and call the VideoAnalyzer.
//     Each ad gets its own span.
//  3. Results (analyzed, skipped or failed) are sent on a buffered `results`
//     channel and collected into a `model.AnalysisOutcome` keyed by ad id, so
//     completion order does not matter.
//  4. Collection stops when every ad reported back or the run deadline
//     passes. Ads without a result by then are recorded as failed and the
//     run is marked degraded; the run continues with what it has.
//  5. Finally the command waits for the background webpage analysis, whose
//     result is needed by the composer.
//
// A failing ad never fails the run.
package commands

import (
	goctx "context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Reasons recorded for ads the run stopped waiting for.
const (
	ReasonDeadlineExceeded = "run deadline exceeded"
	ReasonRunCanceled      = "run canceled"
)

// AdAnalyzer runs the VideoAnalyzer over the ad batch with bounded concurrency.
type AdAnalyzer struct {
	cor.BaseCommand
	analyzer        *services.VideoAnalyzer
	numberOfWorkers int
	analyzedCounter metric.Int64Counter // OTel counter for analyzed ads.
	skippedCounter  metric.Int64Counter // OTel counter for skipped ads.
	failedCounter   metric.Int64Counter // OTel counter for failed ads.
}

// NewAdAnalyzer is the constructor for the AdAnalyzer command.
func NewAdAnalyzer(name string, analyzer *services.VideoAnalyzer, numberOfWorkers int) *AdAnalyzer {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	out := &AdAnalyzer{
		BaseCommand:     *cor.NewBaseCommand(name),
		analyzer:        analyzer,
		numberOfWorkers: numberOfWorkers,
	}
	out.analyzedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.ads.analyzed", name))
	out.skippedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.ads.skipped", name))
	out.failedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.ads.failed", name))
	return out
}

// IsExecutable requires the fetched ad batch.
func (c *AdAnalyzer) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(ParamAds) != nil
}

// Execute analyzes the batch, then collects the webpage analysis.
func (c *AdAnalyzer) Execute(context cor.Context) {
	ads := context.Get(ParamAds).([]*model.Ad)
	if !enter(&c.BaseCommand, context, model.StateAnalyzing) {
		return
	}
	ctx, cancel := runContext(context)
	outcome, missing := c.analyzeAll(ctx, ads)
	expired := ctx.Err()
	cancel()

	// Workers may report the deadline themselves, so missing can be zero.
	if missing > 0 || expired != nil {
		reason := ReasonDeadlineExceeded
		if errors.Is(expired, goctx.Canceled) {
			reason = ReasonRunCanceled
		}
		msg := fmt.Sprintf("%s, %d of %d ads not analyzed", reason, len(outcome.Failures), len(ads))
		slog.WarnContext(context.GetContext(), "ad analysis incomplete", "missing", missing, "failed", len(outcome.Failures), "ads", len(ads))
		if t := RunTracker(context); t != nil {
			t.MarkDegraded(msg)
		}
	}
	slog.InfoContext(context.GetContext(), "ad analysis finished",
		"analyzed", len(outcome.Insights),
		"skipped", len(outcome.Skipped),
		"failed", len(outcome.Failures))

	profile, analyzed := awaitWebpage(context)
	if profile != nil {
		context.Add(ParamProfile, profile)
	}
	context.Add(ParamWebpageAnalyzed, analyzed)

	c.Succeed(context)
	context.Add(ParamOutcome, outcome)
	context.Add(c.GetOutputParam(), outcome)
}

// analyzeAll fans the ads out to the workers and collects one result per ad.
// It returns early when ctx is done; missing counts the ads recorded as
// failed because of that.
func (c *AdAnalyzer) analyzeAll(ctx goctx.Context, ads []*model.Ad) (outcome *model.AnalysisOutcome, missing int) {
	outcome = model.NewAnalysisOutcome()
	if len(ads) == 0 {
		return outcome, 0
	}

	jobs := make(chan *model.Ad, len(ads))
	results := make(chan model.AdAnalysis, len(ads))

	var wg sync.WaitGroup
	for w := 0; w < c.numberOfWorkers && w < len(ads); w++ {
		wg.Add(1)
		go c.adWorker(ctx, jobs, results, &wg)
	}
	for _, ad := range ads {
		jobs <- ad
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

collect:
	for {
		select {
		case r, ok := <-results:
			if !ok {
				break collect
			}
			outcome.Record(r)
		case <-ctx.Done():
			break collect
		}
	}

	reason := ReasonDeadlineExceeded
	if errors.Is(ctx.Err(), goctx.Canceled) {
		reason = ReasonRunCanceled
	}
	for _, ad := range ads {
		if !outcome.Has(ad.AdID) {
			outcome.Record(model.AdAnalysis{AdID: ad.AdID, Status: model.AnalysisStatusFailed, Reason: reason})
			c.failedCounter.Add(ctx, 1)
			missing++
		}
	}
	return outcome, missing
}

// adWorker analyzes ads from jobs until the channel is closed. Once ctx is
// done the remaining jobs are drained without work.
func (c *AdAnalyzer) adWorker(ctx goctx.Context, jobs <-chan *model.Ad, results chan<- model.AdAnalysis, wg *sync.WaitGroup) {
	defer wg.Done()
	for ad := range jobs {
		if ctx.Err() != nil {
			continue
		}
		adCtx, span := c.Tracer.Start(ctx, fmt.Sprintf("%s_ad", c.GetName()))
		span.SetAttributes(
			attribute.String("ad_id", ad.AdID),
			attribute.String("page_name", ad.PageName),
			attribute.String("media_type", string(ad.MediaType)),
		)
		r, err := c.analyzer.Analyze(adCtx, ad)
		if r.AdID == "" {
			r.AdID = ad.AdID
		}
		switch {
		case err != nil:
			slog.WarnContext(adCtx, "ad analysis failed", "ad_id", ad.AdID, "error", err)
			c.failedCounter.Add(adCtx, 1)
			span.SetStatus(codes.Error, err.Error())
		case r.Status == model.AnalysisStatusSkipped:
			c.skippedCounter.Add(adCtx, 1)
			span.SetStatus(codes.Ok, r.Reason)
		default:
			c.analyzedCounter.Add(adCtx, 1)
			span.SetStatus(codes.Ok, "analyzed")
		}
		span.End()
		results <- r
	}
}
