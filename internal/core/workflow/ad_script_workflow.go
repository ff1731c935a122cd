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

// Package workflow defines the high-level business logic orchestrations,
// combining various commands into coherent pipelines. This file implements the
// ad analysis run: from a list of competitor brands to a video script.
package workflow

import (
	goctx "context"
	"errors"
	"log/slog"
	"text/template"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
	"github.com/jaycherian/gcp-go-adscript/internal/core/commands"
	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
)

// Dependencies are the collaborators of a run. Models may be nil: a missing
// webpage model degrades every run, a missing video model fails every ad and
// a missing trend model only drops the narrative.
type Dependencies struct {
	Cache        *services.MediaCache
	Ads          *services.AdsSource
	WebpageModel cloud.ContentGenerator
	VideoModel   cloud.ContentGenerator
	TrendModel   cloud.ContentGenerator
	Runs         services.RunStore // Optional run archive.
}

// DependenciesFromClients wires the configured agent models and the run
// archive from the service clients.
func DependenciesFromClients(config *cloud.Config, clients *cloud.ServiceClients, cache *services.MediaCache) Dependencies {
	deps := Dependencies{
		Cache:        cache,
		Ads:          services.NewAdsSourceFromConfig(config),
		WebpageModel: clients.Model(config.Orchestration.WebpageModel),
		VideoModel:   clients.Model(config.Orchestration.VideoModel),
		TrendModel:   clients.Model(config.Orchestration.TrendModel),
	}
	if archive := services.NewRunArchive(clients.BiqQueryClient, config.BigQueryDataSource.DatasetName, config.BigQueryDataSource.RunsTable); archive != nil {
		deps.Runs = archive
	}
	return deps
}

// AdScriptWorkflow runs the chain
//
//	read-analyze-request -> start-webpage-analysis -> resolve-brands -> fetch-ads
//	-> analyze-ads -> aggregate-trends -> compose-script -> archive-run
//
// It is used both by the HTTP API (Run) and by the Pub/Sub listener (Execute).
type AdScriptWorkflow struct {
	cor.BaseCommand
	config          *cloud.Config
	deps            Dependencies
	webpagePrompt   *template.Template
	videoPrompt     *template.Template
	trendPrompt     *template.Template
	numberOfWorkers int
	archiver        *commands.RunArchiver
	chain           cor.Chain // The underlying chain of commands to be executed.
}

// NewAdScriptWorkflow is the constructor for the AdScriptWorkflow. It parses
// the prompt templates and builds the command chain.
func NewAdScriptWorkflow(config *cloud.Config, deps Dependencies) *AdScriptWorkflow {
	webpagePrompt, err := template.New("webpage-template").Parse(config.PromptTemplates.WebpagePrompt)
	if err != nil {
		panic(err) // The app cannot run without valid templates.
	}
	videoPrompt, err := template.New("video-template").Parse(config.PromptTemplates.VideoPrompt)
	if err != nil {
		panic(err)
	}
	trendPrompt, err := template.New("trend-template").Parse(config.PromptTemplates.TrendPrompt)
	if err != nil {
		panic(err)
	}

	w := &AdScriptWorkflow{
		BaseCommand:     *cor.NewBaseCommand("ad-script-workflow"),
		config:          config,
		deps:            deps,
		webpagePrompt:   webpagePrompt,
		videoPrompt:     videoPrompt,
		trendPrompt:     trendPrompt,
		numberOfWorkers: config.Application.ThreadPoolSize,
	}
	w.initializeChain()
	return w
}

// initializeChain builds the sequence of commands that make up a run.
func (w *AdScriptWorkflow) initializeChain() {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	orchestration := w.config.Orchestration

	webpage := services.NewWebpageAnalyzer(w.deps.WebpageModel, w.webpagePrompt, seconds(orchestration.WebpageTimeoutSeconds))
	video := services.NewVideoAnalyzer(w.deps.Cache, w.deps.VideoModel, w.videoPrompt, int64(w.config.Cache.InlineLimitMB)<<20)
	var narrator cloud.ContentGenerator
	if orchestration.EnableNarrative {
		narrator = w.deps.TrendModel
	}
	trends := services.NewTrendAggregator(narrator, w.trendPrompt, seconds(orchestration.NarrativeTimeoutSeconds))

	w.archiver = commands.NewRunArchiver("archive-run", w.deps.Runs)

	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewAnalyzeRequestReader("read-analyze-request"))
	out.AddCommand(commands.NewWebpageAnalysisStarter("start-webpage-analysis", webpage))
	out.AddCommand(commands.NewBrandResolver("resolve-brands", w.deps.Ads))
	out.AddCommand(commands.NewAdsFetcher("fetch-ads", w.deps.Ads))
	out.AddCommand(commands.NewAdAnalyzer("analyze-ads", video, w.numberOfWorkers))
	out.AddCommand(commands.NewTrendAggregation("aggregate-trends", trends))
	out.AddCommand(commands.NewScriptComposition("compose-script", services.NewScriptComposer()))
	out.AddCommand(w.archiver)
	w.chain = out
}

// Execute runs the chain. The input parameter holds a *model.ScriptRequest
// or its JSON text. Background work started by the run (the webpage
// analysis) is canceled when Execute returns.
func (w *AdScriptWorkflow) Execute(context cor.Context) {
	parent := context.GetContext()
	ctx, cancel := goctx.WithCancel(parent)
	defer cancel()
	context.SetContext(ctx)
	defer context.SetContext(parent)

	var deadline time.Time
	if s := w.config.Orchestration.RunTimeoutSeconds; s > 0 {
		deadline = time.Now().Add(time.Duration(s) * time.Second)
	}
	tracker := commands.RunTracker(context)
	if tracker == nil {
		tracker = model.NewRunTracker(deadline)
		context.Add(commands.ParamTracker, tracker)
	}
	slog.InfoContext(ctx, "run started", "run_id", tracker.RunID())

	w.chain.Execute(context)

	if context.HasErrors() {
		tracker.Fail(context.FirstError())
		w.archiver.Archive(context)
		slog.WarnContext(ctx, "run failed", "run_id", tracker.RunID(), "error", context.FirstError())
		return
	}
	slog.InfoContext(ctx, "run finished",
		"run_id", tracker.RunID(),
		"state", tracker.State(),
		"degraded", tracker.Degraded(),
		"duration_ms", time.Since(tracker.StartedAt()).Milliseconds())
}

// Run executes one request and returns its script. The error keeps the kind
// of the failure that stopped the run (see model.NewErrorResponse).
func (w *AdScriptWorkflow) Run(ctx goctx.Context, req *model.ScriptRequest) (*model.GeneratedScript, error) {
	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(ctx)
	chainCtx.Add(cor.CtxIn, req)
	w.Execute(chainCtx)
	return Result(chainCtx)
}

// Result extracts the outcome of an executed run from its context.
func Result(context cor.Context) (*model.GeneratedScript, error) {
	if context.HasErrors() {
		return nil, context.FirstError()
	}
	script, ok := context.Get(commands.ParamScript).(*model.GeneratedScript)
	if !ok || script == nil {
		return nil, errors.New("run finished without a script")
	}
	return script, nil
}
