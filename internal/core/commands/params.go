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
// Responsibility (COR) pattern's Command interface for an ad analysis run.
// This file defines the well-known context keys the commands share, and the
// helpers that tie a command to the run state machine.
package commands

import (
	goctx "context"
	"log/slog"

	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
)

// Context keys written by the run commands.
const (
	ParamTracker         = "__RUN_TRACKER__"      // *model.RunTracker
	ParamRequest         = "__SCRIPT_REQUEST__"   // *model.ScriptRequest
	ParamWebpage         = "__WEBPAGE_FUTURE__"   // *WebpageFuture
	ParamBrands          = "__BRANDS__"           // []model.BrandQuery
	ParamAds             = "__ADS__"              // []*model.Ad
	ParamOutcome         = "__ANALYSIS_OUTCOME__" // *model.AnalysisOutcome
	ParamProfile         = "__PRODUCT_PROFILE__"  // *model.ProductProfile
	ParamWebpageAnalyzed = "__WEBPAGE_ANALYZED__" // bool
	ParamTrends          = "__TREND_ANALYSIS__"   // *model.TrendAnalysis
	ParamScript          = "__GENERATED_SCRIPT__" // *model.GeneratedScript
)

// RunTracker returns the tracker of the run, or nil outside a run.
func RunTracker(context cor.Context) *model.RunTracker {
	t, _ := context.Get(ParamTracker).(*model.RunTracker)
	return t
}

// abort fails both the command and the run.
func abort(cmd *cor.BaseCommand, context cor.Context, err error) {
	if t := RunTracker(context); t != nil {
		t.Fail(err)
	}
	cmd.Fail(context, err)
}

// enter moves the run to state. A rejected transition aborts the run.
func enter(cmd *cor.BaseCommand, context cor.Context, state model.RunState) bool {
	t := RunTracker(context)
	if t == nil {
		return true
	}
	if err := t.Transition(state); err != nil {
		abort(cmd, context, err)
		return false
	}
	slog.InfoContext(context.GetContext(), "run state", "run_id", t.RunID(), "state", state)
	return true
}

// runContext applies the run deadline to the command's context. Resolve,
// fetch, analysis and the webpage analysis use it; aggregation and
// composition do not.
func runContext(context cor.Context) (goctx.Context, goctx.CancelFunc) {
	ctx := context.GetContext()
	if t := RunTracker(context); t != nil {
		if deadline, ok := t.Deadline(); ok {
			return goctx.WithDeadline(ctx, deadline)
		}
	}
	return goctx.WithCancel(ctx)
}
