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
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
)

// TrendAggregation computes the trend analysis over the batch and the
// insights. It runs without the run deadline.
type TrendAggregation struct {
	cor.BaseCommand
	aggregator *services.TrendAggregator
}

// NewTrendAggregation is the constructor for the TrendAggregation command.
func NewTrendAggregation(name string, aggregator *services.TrendAggregator) *TrendAggregation {
	return &TrendAggregation{BaseCommand: *cor.NewBaseCommand(name), aggregator: aggregator}
}

// IsExecutable requires the ads and the analysis outcome.
func (c *TrendAggregation) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(ParamAds) != nil && context.Get(ParamOutcome) != nil
}

// Execute stores the trend analysis under ParamTrends.
func (c *TrendAggregation) Execute(context cor.Context) {
	ads := context.Get(ParamAds).([]*model.Ad)
	outcome := context.Get(ParamOutcome).(*model.AnalysisOutcome)
	if !enter(&c.BaseCommand, context, model.StateAggregating) {
		return
	}
	trends := c.aggregator.Aggregate(context.GetContext(), ads, outcome.InsightList())

	c.Succeed(context)
	context.Add(ParamTrends, trends)
	context.Add(c.GetOutputParam(), trends)
}

// ScriptComposition builds the final script and completes the run.
type ScriptComposition struct {
	cor.BaseCommand
	composer *services.ScriptComposer
}

// NewScriptComposition is the constructor for the ScriptComposition command.
func NewScriptComposition(name string, composer *services.ScriptComposer) *ScriptComposition {
	return &ScriptComposition{BaseCommand: *cor.NewBaseCommand(name), composer: composer}
}

// IsExecutable requires the request and the trend analysis.
func (c *ScriptComposition) IsExecutable(context cor.Context) bool {
	return context != nil && context.Get(ParamRequest) != nil && context.Get(ParamTrends) != nil
}

// Execute composes the script and moves the run to DONE.
func (c *ScriptComposition) Execute(context cor.Context) {
	if !enter(&c.BaseCommand, context, model.StateComposing) {
		return
	}
	profile, _ := context.Get(ParamProfile).(*model.ProductProfile)
	outcome, _ := context.Get(ParamOutcome).(*model.AnalysisOutcome)
	if outcome == nil {
		outcome = model.NewAnalysisOutcome()
	}
	in := model.CompositionInput{
		Request:  context.Get(ParamRequest).(*model.ScriptRequest),
		Profile:  profile,
		Trends:   context.Get(ParamTrends).(*model.TrendAnalysis),
		Insights: outcome.InsightList(),
		Failures: outcome.FailureList(),
		Metadata: RunMetadata(context),
	}
	script, err := c.composer.Compose(context.GetContext(), in)
	if err != nil {
		abort(&c.BaseCommand, context, err)
		return
	}
	if !enter(&c.BaseCommand, context, model.StateDone) {
		return
	}

	c.Succeed(context)
	context.Add(ParamScript, script)
	context.Add(c.GetOutputParam(), script)
}

// RunMetadata fills the analysis metadata from the run state. Nothing in it
// comes from model output.
func RunMetadata(context cor.Context) model.AnalysisMetadata {
	md := model.AnalysisMetadata{
		BrandsAnalyzed:    []string{},
		AnalysisTimestamp: time.Now().UTC(),
	}
	if t := RunTracker(context); t != nil {
		md.RunID = t.RunID()
		md.Degraded = t.Degraded()
		md.Warnings = t.Warnings()
	}
	if brands, ok := context.Get(ParamBrands).([]model.BrandQuery); ok {
		for _, b := range brands {
			if b.Resolved() {
				md.BrandsAnalyzed = append(md.BrandsAnalyzed, b.Name)
			}
		}
		md.PlatformIDsFound = len(model.ResolvedPlatformIDs(brands))
	}
	if ads, ok := context.Get(ParamAds).([]*model.Ad); ok {
		md.AdsFetched = len(ads)
	}
	if outcome, ok := context.Get(ParamOutcome).(*model.AnalysisOutcome); ok {
		md.AdsAnalyzed = len(outcome.Insights)
		md.AdsSkipped = len(outcome.Skipped)
		md.AdsFailed = len(outcome.Failures)
		for _, insight := range outcome.Insights {
			if insight.FromCache {
				md.CachedInsights++
			}
		}
	}
	md.WebpageAnalyzed, _ = context.Get(ParamWebpageAnalyzed).(bool)
	return md
}
