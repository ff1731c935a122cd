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

package workflow

import (
	goctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

// CleanupResultParam holds the *model.CleanupResult of the last execution.
const CleanupResultParam = "__CLEANUP_RESULT__"

// CacheMaintenanceWorkflow removes old media cache entries on a cron schedule.
type CacheMaintenanceWorkflow struct {
	cor.BaseCommand
	cache      *services.MediaCache
	maxAgeDays int
	schedule   string
	cron       *cron.Cron
}

// NewCacheMaintenanceWorkflow is the constructor for the workflow. schedule is
// a standard five field cron expression; an empty schedule disables it.
func NewCacheMaintenanceWorkflow(cache *services.MediaCache, schedule string, maxAgeDays int) *CacheMaintenanceWorkflow {
	return &CacheMaintenanceWorkflow{
		BaseCommand: *cor.NewBaseCommand("cache-maintenance"),
		cache:       cache,
		maxAgeDays:  maxAgeDays,
		schedule:    schedule,
	}
}

// IsExecutable requires a cache.
func (m *CacheMaintenanceWorkflow) IsExecutable(context cor.Context) bool {
	return context != nil && m.cache != nil && context.GetContext() != nil
}

// Execute runs one cleanup pass.
func (m *CacheMaintenanceWorkflow) Execute(context cor.Context) {
	ctx := context.GetContext()
	result, err := m.cache.Cleanup(ctx, m.maxAgeDays)
	if err != nil {
		m.Fail(context, fmt.Errorf("cache cleanup failed: %w", err))
		return
	}
	m.Succeed(context)
	slog.InfoContext(ctx, "cache cleanup finished",
		"removed", result.RemovedCount,
		"bytes_freed", result.BytesFreed,
		"max_age_days", m.maxAgeDays)
	context.Add(CleanupResultParam, result)
	context.Add(m.GetOutputParam(), result)
}

// RunOnce executes a cleanup pass inside its own span.
func (m *CacheMaintenanceWorkflow) RunOnce(ctx goctx.Context) (*model.CleanupResult, error) {
	traceCtx, span := otel.Tracer("cache-maintenance").Start(ctx, "cache-cleanup")
	defer span.End()

	chainCtx := cor.NewBaseContext()
	defer chainCtx.Close()
	chainCtx.SetContext(traceCtx)
	m.Execute(chainCtx)

	if chainCtx.HasErrors() {
		span.SetStatus(codes.Error, "failed to clean the media cache")
		return nil, chainCtx.FirstError()
	}
	span.SetStatus(codes.Ok, "cleaned the media cache")
	result, _ := chainCtx.Get(CleanupResultParam).(*model.CleanupResult)
	return result, nil
}

// Start schedules the cleanup. It returns false when no schedule is set.
func (m *CacheMaintenanceWorkflow) Start() (bool, error) {
	if m.schedule == "" || m.cache == nil {
		slog.Info("scheduled cache cleanup disabled")
		return false, nil
	}
	m.cron = cron.New()
	_, err := m.cron.AddFunc(m.schedule, func() {
		_, _ = m.RunOnce(goctx.Background())
	})
	if err != nil {
		return false, fmt.Errorf("invalid cache cleanup schedule %q: %w", m.schedule, err)
	}
	m.cron.Start()
	slog.Info("scheduled cache cleanup", "schedule", m.schedule, "max_age_days", m.maxAgeDays)
	return true, nil
}

// Stop waits up to timeout for a running cleanup to finish.
func (m *CacheMaintenanceWorkflow) Stop(timeout time.Duration) {
	if m.cron == nil {
		return
	}
	select {
	case <-m.cron.Stop().Done():
	case <-time.After(timeout):
		slog.Warn("cache cleanup still running at shutdown")
	}
}
