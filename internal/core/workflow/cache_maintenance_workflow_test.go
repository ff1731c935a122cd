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
	"errors"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-adscript/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheMaintenanceRunOnce(t *testing.T) {
	ctx := traceCtx(t)
	h := newHarness(t)
	url := h.media.Add("/ads/1.mp4", test.MP4Bytes)
	_, err := h.cache.GetOrFetch(ctx, url)
	require.NoError(t, err)

	keep := workflow.NewCacheMaintenanceWorkflow(h.cache, "", 30)
	result, err := keep.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.RemovedCount)
	assert.Equal(t, 30, result.MaxAgeDays)

	purge := workflow.NewCacheMaintenanceWorkflow(h.cache, "", 0)
	result, err = purge.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedCount)
	assert.Equal(t, int64(len(test.MP4Bytes)), result.BytesFreed)

	stats, err := h.cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.EntryCount)

	invalid := workflow.NewCacheMaintenanceWorkflow(h.cache, "", -1)
	_, err = invalid.RunOnce(ctx)
	var validation *model.ValidationError
	assert.True(t, errors.As(err, &validation))
}

func TestCacheMaintenanceSchedule(t *testing.T) {
	h := newHarness(t)

	disabled := workflow.NewCacheMaintenanceWorkflow(h.cache, "", 30)
	started, err := disabled.Start()
	require.NoError(t, err)
	assert.False(t, started)
	disabled.Stop(time.Second)

	broken := workflow.NewCacheMaintenanceWorkflow(h.cache, "every tuesday", 30)
	_, err = broken.Start()
	assert.Error(t, err)

	scheduled := workflow.NewCacheMaintenanceWorkflow(h.cache, "@every 1h", 30)
	started, err = scheduled.Start()
	require.NoError(t, err)
	assert.True(t, started)
	scheduled.Stop(time.Second)
}
