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

// Package services holds the domain services used by the workflows and the API.
// This file implements the content-addressed media cache. Assets are stored on
// local disk under their content key, indexed in a SQLite database, and can be
// mirrored to a GCS bucket so the model reads them by URI.
//
// Concurrency:
//   - Misses are single-flight per content key, so concurrent requests for the
//     same asset download it once.
//   - An RWMutex lets lookups, reads and publishing a new entry run together,
//     while cleanup takes the write lock.
//   - Entries handed to callers are copies.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"golang.org/x/sync/singleflight"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// BrowserUserAgent is sent with media and webpage downloads; several CDNs
// refuse requests without one.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// AssetMirror copies cached assets to remote storage. cloud.GCSMirror implements it.
type AssetMirror interface {
	Upload(ctx context.Context, localPath string, objectName string, mimeType string) (string, error)
	Delete(ctx context.Context, uri string) error
}

// cacheEntryRow is the index row for one cached asset.
type cacheEntryRow struct {
	ContentKey string `gorm:"column:content_key;primaryKey"`
	MediaURL   string `gorm:"column:media_url;not null"`
	LocalPath  string `gorm:"column:local_path;not null"`
	MIMEType   string `gorm:"column:mime_type"`
	SizeBytes  int64  `gorm:"column:size_bytes"`
	FetchedAt  int64  `gorm:"column:fetched_at;index"` // unix nanoseconds
	TTLSeconds int64  `gorm:"column:ttl_seconds"`
	GCSURI     string `gorm:"column:gcs_uri"`
	BrandName  string `gorm:"column:brand_name;index"`
}

func (cacheEntryRow) TableName() string { return "media_cache_entries" }

func (r *cacheEntryRow) toEntry() *model.CacheEntry {
	return &model.CacheEntry{
		ContentKey: r.ContentKey,
		MediaURL:   r.MediaURL,
		LocalPath:  r.LocalPath,
		MIMEType:   r.MIMEType,
		SizeBytes:  r.SizeBytes,
		FetchedAt:  time.Unix(0, r.FetchedAt).UTC(),
		TTL:        time.Duration(r.TTLSeconds) * time.Second,
		GCSURI:     r.GCSURI,
		BrandName:  r.BrandName,
	}
}

// cacheInsightRow stores the analysis of a cached asset as JSON.
type cacheInsightRow struct {
	ContentKey string `gorm:"column:content_key;primaryKey"`
	ModelUsed  string `gorm:"column:model_used"`
	Insight    string `gorm:"column:insight"`
	CreatedAt  int64  `gorm:"column:created_at"`
}

func (cacheInsightRow) TableName() string { return "media_cache_insights" }

// MediaCacheOptions configures a MediaCache.
type MediaCacheOptions struct {
	Dir              string        // Directory holding the cached files.
	DBPath           string        // SQLite index file; defaults to <Dir>/cache.db.
	TTL              time.Duration // Zero keeps entries until cleanup.
	DownloadTimeout  time.Duration
	MaxDownloadBytes int64
	Mirror           AssetMirror // Optional.
	HTTPClient       *http.Client
	Clock            func() time.Time
}

// MediaCache is a content-addressed store of downloaded ad media.
type MediaCache struct {
	db         *gorm.DB
	dir        string
	ttl        time.Duration
	timeout    time.Duration
	maxBytes   int64
	mirror     AssetMirror
	httpClient *http.Client
	now        func() time.Time

	mu      sync.RWMutex
	flights singleflight.Group
}

// NewMediaCache opens (or creates) the cache directory and its index.
func NewMediaCache(opts MediaCacheOptions) (*MediaCache, error) {
	if opts.Dir == "" {
		return nil, errors.New("media cache directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if opts.DBPath == "" {
		opts.DBPath = filepath.Join(opts.Dir, "cache.db")
	}
	if err := os.MkdirAll(filepath.Dir(opts.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache db dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(opts.DBPath), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open cache index %s: %w", opts.DBPath, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serialize at the pool instead of retrying on SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err = db.AutoMigrate(&cacheEntryRow{}, &cacheInsightRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate cache index: %w", err)
	}

	c := &MediaCache{
		db:         db,
		dir:        opts.Dir,
		ttl:        opts.TTL,
		timeout:    opts.DownloadTimeout,
		maxBytes:   opts.MaxDownloadBytes,
		mirror:     opts.Mirror,
		httpClient: opts.HTTPClient,
		now:        opts.Clock,
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.maxBytes <= 0 {
		c.maxBytes = 200 << 20
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Close closes the index database.
func (c *MediaCache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetOrFetch returns the cached entry for mediaURL, downloading it on a miss.
func (c *MediaCache) GetOrFetch(ctx context.Context, mediaURL string) (*model.CacheEntry, error) {
	if strings.TrimSpace(mediaURL) == "" {
		return nil, &model.FetchFailedError{URL: mediaURL, Err: errors.New("empty media url")}
	}
	key := model.ContentKey(mediaURL)
	if entry, ok := c.lookupFresh(ctx, key); ok {
		return entry, nil
	}

	ch := c.flights.DoChan(key, func() (interface{}, error) {
		// Another flight may have finished between the miss and this call.
		if entry, ok := c.lookupFresh(ctx, key); ok {
			return entry, nil
		}
		// The flight is shared, so one caller giving up must not cancel it.
		return c.download(context.WithoutCancel(ctx), key, mediaURL)
	})
	select {
	case <-ctx.Done():
		return nil, &model.FetchFailedError{URL: mediaURL, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		entry := *(res.Val.(*model.CacheEntry))
		return &entry, nil
	}
}

// lookupFresh returns a copy of a usable entry. A row whose file disappeared
// is removed.
func (c *MediaCache) lookupFresh(ctx context.Context, key string) (*model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var row cacheEntryRow
	err := c.db.WithContext(ctx).Where("content_key = ?", key).Take(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.WarnContext(ctx, "cache index lookup failed", "key", key, "error", err)
		}
		return nil, false
	}
	if _, err = os.Stat(row.LocalPath); err != nil {
		slog.InfoContext(ctx, "cached file missing, dropping entry", "key", key, "path", row.LocalPath)
		c.db.WithContext(ctx).Delete(&cacheEntryRow{}, "content_key = ?", key)
		c.db.WithContext(ctx).Delete(&cacheInsightRow{}, "content_key = ?", key)
		return nil, false
	}
	entry := row.toEntry()
	if entry.Expired(c.now()) {
		return nil, false
	}
	return entry, true
}

func (c *MediaCache) download(ctx context.Context, key string, mediaURL string) (*model.CacheEntry, error) {
	fail := func(err error) (*model.CacheEntry, error) {
		return nil, &model.FetchFailedError{URL: mediaURL, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if resp.ContentLength > c.maxBytes {
		return fail(fmt.Errorf("asset is %d bytes, limit is %d", resp.ContentLength, c.maxBytes))
	}

	tmp, err := os.CreateTemp(c.dir, key+"-*.part")
	if err != nil {
		return fail(err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()
	n, err := io.Copy(tmp, io.LimitReader(resp.Body, c.maxBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fail(err)
	}
	if n > c.maxBytes {
		return fail(fmt.Errorf("asset exceeds %d bytes", c.maxBytes))
	}
	if n == 0 {
		return fail(errors.New("empty response body"))
	}

	ext, mimeType := detectType(tmpPath, resp.Header.Get("Content-Type"))
	finalPath := filepath.Join(c.dir, key+ext)
	row := cacheEntryRow{
		ContentKey: key,
		MediaURL:   mediaURL,
		LocalPath:  finalPath,
		MIMEType:   mimeType,
		SizeBytes:  n,
		FetchedAt:  c.now().UTC().UnixNano(),
		TTLSeconds: int64(c.ttl / time.Second),
	}

	c.mu.RLock()
	if err = os.Rename(tmpPath, finalPath); err != nil {
		c.mu.RUnlock()
		return fail(err)
	}
	tmpPath = ""
	err = c.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	c.mu.RUnlock()
	if err != nil {
		_ = os.Remove(finalPath)
		return fail(fmt.Errorf("index entry: %w", err))
	}
	slog.InfoContext(ctx, "cached media", "key", key, "bytes", n, "mime_type", mimeType)

	if c.mirror != nil {
		uri, err := c.mirror.Upload(ctx, finalPath, filepath.Base(finalPath), mimeType)
		if err != nil {
			slog.WarnContext(ctx, "media mirror upload failed", "key", key, "error", err)
		} else {
			row.GCSURI = uri
			c.db.WithContext(ctx).Model(&cacheEntryRow{}).Where("content_key = ?", key).Update("gcs_uri", uri)
		}
	}
	return row.toEntry(), nil
}

// detectType sniffs the file, then falls back to the Content-Type header.
func detectType(path string, contentType string) (ext string, mimeType string) {
	if kind, err := filetype.MatchFile(path); err == nil && kind != filetype.Unknown {
		return "." + kind.Extension, kind.MIME.Value
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			return exts[0], mediaType
		}
		return ".bin", mediaType
	}
	return ".bin", "application/octet-stream"
}

// Lookup returns the entry stored under key, expired or not.
func (c *MediaCache) Lookup(ctx context.Context, key string) (*model.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var row cacheEntryRow
	err := c.db.WithContext(ctx).Where("content_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &model.NotFoundError{Detail: fmt.Sprintf("no cache entry %s", key)}
	}
	if err != nil {
		return nil, err
	}
	return row.toEntry(), nil
}

// ReadContent returns the bytes of a cached asset.
func (c *MediaCache) ReadContent(ctx context.Context, entry *model.CacheEntry) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(entry.LocalPath)
}

// LookupInsight returns a previously saved analysis of the asset.
func (c *MediaCache) LookupInsight(ctx context.Context, key string) (*model.VideoInsight, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var row cacheInsightRow
	err := c.db.WithContext(ctx).Where("content_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	insight := &model.VideoInsight{}
	if err = json.Unmarshal([]byte(row.Insight), insight); err != nil {
		return nil, false, fmt.Errorf("decode cached insight %s: %w", key, err)
	}
	return insight, true, nil
}

// SaveInsight stores the analysis of an asset and tags the entry with the brand.
func (c *MediaCache) SaveInsight(ctx context.Context, key string, insight *model.VideoInsight) error {
	data, err := json.Marshal(insight)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	row := cacheInsightRow{
		ContentKey: key,
		ModelUsed:  insight.ModelUsed,
		Insight:    string(data),
		CreatedAt:  c.now().UTC().UnixNano(),
	}
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		if insight.PageName == "" {
			return nil
		}
		return tx.Model(&cacheEntryRow{}).Where("content_key = ?", key).Update("brand_name", insight.PageName).Error
	})
}

// Stats summarizes the cache contents.
func (c *MediaCache) Stats(ctx context.Context) (*model.CacheStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	db := c.db.WithContext(ctx)
	stats := &model.CacheStats{}
	if err := db.Model(&cacheEntryRow{}).Count(&stats.EntryCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&cacheEntryRow{}).Select("COALESCE(SUM(size_bytes), 0)").Scan(&stats.TotalBytes).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&cacheInsightRow{}).Count(&stats.AnalyzedCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&cacheEntryRow{}).Where("brand_name <> ''").Distinct("brand_name").Count(&stats.UniqueBrands).Error; err != nil {
		return nil, err
	}
	stats.TotalMB = model.BytesToMB(stats.TotalBytes)
	return stats, nil
}

// Cleanup removes entries fetched at or before now minus maxAgeDays. Zero
// removes everything.
func (c *MediaCache) Cleanup(ctx context.Context, maxAgeDays int) (*model.CleanupResult, error) {
	if maxAgeDays < 0 {
		return nil, &model.ValidationError{Field: "max_age_days", Detail: "must not be negative"}
	}
	// Entries are stamped in Unix nanoseconds, so nothing predates the epoch.
	cutoff := int64(0)
	if t := c.now().AddDate(0, 0, -maxAgeDays); t.After(time.Unix(0, 0)) {
		cutoff = t.UnixNano()
	}
	result := &model.CleanupResult{MaxAgeDays: maxAgeDays}

	c.mu.Lock()
	var rows []cacheEntryRow
	err := c.db.WithContext(ctx).Where("fetched_at <= ?", cutoff).Find(&rows).Error
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	keys := make([]string, 0, len(rows))
	mirrored := make([]string, 0)
	for _, row := range rows {
		if err := os.Remove(row.LocalPath); err != nil && !os.IsNotExist(err) {
			slog.WarnContext(ctx, "failed to remove cached file", "path", row.LocalPath, "error", err)
		}
		keys = append(keys, row.ContentKey)
		result.BytesFreed += row.SizeBytes
		if row.GCSURI != "" {
			mirrored = append(mirrored, row.GCSURI)
		}
	}
	if len(keys) > 0 {
		err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("content_key IN ?", keys).Delete(&cacheEntryRow{}).Error; err != nil {
				return err
			}
			return tx.Where("content_key IN ?", keys).Delete(&cacheInsightRow{}).Error
		})
	}
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if c.mirror != nil {
		for _, uri := range mirrored {
			if err := c.mirror.Delete(ctx, uri); err != nil {
				slog.WarnContext(ctx, "failed to remove mirrored asset", "uri", uri, "error", err)
			}
		}
	}
	result.RemovedCount = len(keys)
	result.SpaceFreedMB = model.BytesToMB(result.BytesFreed)
	slog.InfoContext(ctx, "cache cleanup complete", "removed", result.RemovedCount, "bytes_freed", result.BytesFreed, "max_age_days", maxAgeDays)
	return result, nil
}
