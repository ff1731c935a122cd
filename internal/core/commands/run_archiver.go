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
// command that archives a finished run.
//
// Logic Flow:
// One row per run is streamed into BigQuery so past runs can be listed.
//
//  1. The run tracker, the request, the resolved brands and (for successful
//     runs) the script are read from the context.
//  2. They are flattened into a `model.RunRecord`.
//  3. The record is written through the `services.RunStore`, using a context
//     detached from the request so a client disconnect does not lose it.
//
// Archiving is best effort: a failed write is logged and counted, but never
// recorded as a run error.
package commands

import (
	goctx "context"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
)

const archiveTimeout = 10 * time.Second

// RunArchiver writes a RunRecord for the run.
type RunArchiver struct {
	cor.BaseCommand
	store services.RunStore
}

// NewRunArchiver is the constructor for the RunArchiver command.
func NewRunArchiver(name string, store services.RunStore) *RunArchiver {
	return &RunArchiver{BaseCommand: *cor.NewBaseCommand(name), store: store}
}

// IsExecutable requires a store and a run tracker.
func (c *RunArchiver) IsExecutable(context cor.Context) bool {
	return context != nil && c.store != nil && RunTracker(context) != nil
}

// Execute archives the run.
func (c *RunArchiver) Execute(context cor.Context) {
	c.Archive(context)
}

// Archive writes the record. It is also called directly for runs whose chain
// stopped early.
func (c *RunArchiver) Archive(context cor.Context) {
	if !c.IsExecutable(context) {
		return
	}
	tracker := RunTracker(context)
	req, _ := context.Get(ParamRequest).(*model.ScriptRequest)
	script, _ := context.Get(ParamScript).(*model.GeneratedScript)
	rec := model.NewRunRecord(tracker, req, script)
	if brands, ok := context.Get(ParamBrands).([]model.BrandQuery); ok {
		rec.PlatformIDs = append(rec.PlatformIDs, model.ResolvedPlatformIDs(brands)...)
	}

	ctx, cancel := goctx.WithTimeout(goctx.WithoutCancel(context.GetContext()), archiveTimeout)
	defer cancel()
	if err := c.store.Put(ctx, rec); err != nil {
		c.GetErrorCounter().Add(ctx, 1)
		slog.ErrorContext(ctx, "failed to archive run", "run_id", rec.RunID, "error", err)
		return
	}
	c.Succeed(context)
	slog.InfoContext(ctx, "run archived", "run_id", rec.RunID, "state", rec.State)
}
