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

package services_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
	test "github.com/jaycherian/gcp-go-adscript/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string
}

func (f *fakeMirror) Upload(_ context.Context, _ string, objectName string, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uri := "gs://mirror/media-cache/" + objectName
	f.uploaded = append(f.uploaded, uri)
	return uri, nil
}

func (f *fakeMirror) Delete(_ context.Context, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, uri)
	return nil
}

func TestMediaCacheHitSkipsNetwork(t *testing.T) {
	ctx := traceCtx(t)
	media := test.NewMediaServer()
	defer media.Close()
	url := media.Add("/a.png", test.PNGBytes)
	cache := newCache(t, services.MediaCacheOptions{})

	first, err := cache.GetOrFetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, model.ContentKey(url), first.ContentKey)
	assert.Equal(t, "image/png", first.MIMEType)
	assert.True(t, strings.HasSuffix(first.LocalPath, ".png"))
	assert.Equal(t, int64(len(test.PNGBytes)), first.SizeBytes)

	first.LocalPath = "mutated"
	second, err := cache.GetOrFetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, 1, media.Hits("/a.png"))
	assert.NotEqual(t, "mutated", second.LocalPath)

	data, err := cache.ReadContent(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, test.PNGBytes, data)
	logger.InfoContext(ctx, "cache hit verified", "key", second.ContentKey)
}

func TestMediaCacheSingleFlight(t *testing.T) {
	ctx := traceCtx(t)
	media := test.NewMediaServer()
	defer media.Close()
	url := media.Add("/v.mp4", test.MP4Bytes)
	release := media.Hold()
	cache := newCache(t, services.MediaCacheOptions{})

	const callers = 8
	var wg sync.WaitGroup
	entries := make([]*model.CacheEntry, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], errs[i] = cache.GetOrFetch(ctx, url)
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	release()
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, entries[0].LocalPath, entries[i].LocalPath)
	}
	assert.Equal(t, 1, media.Hits("/v.mp4"))
}

func TestMediaCacheFailedDownloadLeavesNothing(t *testing.T) {
	ctx := traceCtx(t)
	media := test.NewMediaServer()
	defer media.Close()
	dir := t.TempDir()
	cache := newCache(t, services.MediaCacheOptions{Dir: dir, DBPath: filepath.Join(t.TempDir(), "idx.db")})

	_, err := cache.GetOrFetch(ctx, media.URL("/missing.mp4"))
	var fetchErr *model.FetchFailedError
	require.True(t, errors.As(err, &fetchErr))

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.EntryCount)
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMediaCacheSizeCap(t *testing.T) {
	ctx := traceCtx(t)
	media := test.NewMediaServer()
	defer media.Close()
	url := media.Add("/big.mp4", make([]byte, 2048))
	cache := newCache(t, services.MediaCacheOptions{MaxDownloadBytes: 1024})

	_, err := cache.GetOrFetch(ctx, url)
	var fetchErr *model.FetchFailedError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestMediaCacheMissingFileIsMiss(t *testing.T) {
	ctx := traceCtx(t)
	media := test.NewMediaServer()
	defer media.Close()
	url := media.Add("/a.png", test.PNGBytes)
	cache := newCache(t, services.MediaCacheOptions{})

	entry, err := cache.GetOrFetch(ctx, url)
	require.NoError(t, err)
	require.NoError(t, os.Remove(entry.LocalPath))

	again, err := cache.GetOrFetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, 2, media.Hits("/a.png"))
	_, err = os.Stat(again.LocalPath)
	assert.NoError(t, err)
}

func TestMediaCacheExpiredEntryIsRefetched(t *testing.T) {
	ctx := traceCtx(t)
	media := test.NewMediaServer()
	defer media.Close()
	url := media.Add("/a.png", test.PNGBytes)
	now := time.Now()
	clock := func() time.Time { return now }
	cache := newCache(t, services.MediaCacheOptions{TTL: time.Hour, Clock: clock})

	_, err := cache.GetOrFetch(ctx, url)
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	_, err = cache.GetOrFetch(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, 2, media.Hits("/a.png"))
}

func TestMediaCacheCleanup(t *testing.T) {
	ctx := traceCtx(t)
	media := test.NewMediaServer()
	defer media.Close()
	oldURL := media.Add("/old.png", test.PNGBytes)
	newURL := media.Add("/new.png", test.PNGBytes)
	now := time.Now()
	clock := func() time.Time { return now }
	mirror := &fakeMirror{}
	cache := newCache(t, services.MediaCacheOptions{Clock: clock, Mirror: mirror})

	empty, err := cache.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.RemovedCount)

	now = now.Add(-40 * 24 * time.Hour)
	old, err := cache.GetOrFetch(ctx, oldURL)
	require.NoError(t, err)
	assert.NotEmpty(t, old.GCSURI)
	now = now.Add(40 * 24 * time.Hour)
	_, err = cache.GetOrFetch(ctx, newURL)
	require.NoError(t, err)

	res, err := cache.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RemovedCount)
	assert.Equal(t, int64(len(test.PNGBytes)), res.BytesFreed)
	assert.Equal(t, 30, res.MaxAgeDays)
	assert.Equal(t, []string{old.GCSURI}, mirror.deleted)
	_, err = os.Stat(old.LocalPath)
	assert.True(t, os.IsNotExist(err))

	all, err := cache.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, all.RemovedCount)
	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.EntryCount)

	_, err = cache.Cleanup(ctx, -1)
	var validation *model.ValidationError
	assert.True(t, errors.As(err, &validation))
}

func TestMediaCacheCleanupLongRetention(t *testing.T) {
	ctx := traceCtx(t)
	media := test.NewMediaServer()
	defer media.Close()
	cache := newCache(t, services.MediaCacheOptions{})

	asset, err := cache.GetOrFetch(ctx, media.Add("/fresh.png", test.PNGBytes))
	require.NoError(t, err)

	for _, days := range []int{200000, math.MaxInt32} {
		res, err := cache.Cleanup(ctx, days)
		require.NoError(t, err)
		assert.Equal(t, 0, res.RemovedCount, "max age %d", days)
		assert.Equal(t, int64(0), res.BytesFreed, "max age %d", days)
	}
	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.EntryCount)
	_, err = os.Stat(asset.LocalPath)
	assert.NoError(t, err)
}

func TestMediaCacheInsightsAndStats(t *testing.T) {
	ctx := traceCtx(t)
	media := test.NewMediaServer()
	defer media.Close()
	cache := newCache(t, services.MediaCacheOptions{})

	for i, brand := range []string{"Nike", "Adidas", "Nike"} {
		url := media.Add("/v"+string(rune('a'+i))+".mp4", test.MP4Bytes)
		entry, err := cache.GetOrFetch(ctx, url)
		require.NoError(t, err)
		insight := &model.VideoInsight{AdID: "ad-" + brand, PageName: brand, ModelUsed: "fake", RawAnalysis: "close-up shots"}
		require.NoError(t, cache.SaveInsight(ctx, entry.ContentKey, insight))
	}

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.EntryCount)
	assert.Equal(t, int64(3), stats.AnalyzedCount)
	assert.Equal(t, int64(2), stats.UniqueBrands)
	assert.Equal(t, int64(3*len(test.MP4Bytes)), stats.TotalBytes)

	key := model.ContentKey(media.URL("/va.mp4"))
	insight, ok, err := cache.LookupInsight(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Nike", insight.PageName)

	entry, err := cache.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Nike", entry.BrandName)

	_, err = cache.Lookup(ctx, "nope")
	var notFound *model.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}
