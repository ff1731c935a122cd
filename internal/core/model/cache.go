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

package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ContentKey derives the cache key for a media URL. The key is a UUIDv5 of the
// URL, so the same URL always maps to the same entry.
func ContentKey(mediaURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(mediaURL)).String()
}

// CacheEntry describes one cached media asset. Values handed out by the cache
// are copies; mutating them does not affect the cache.
type CacheEntry struct {
	ContentKey string        `json:"content_key"`
	MediaURL   string        `json:"media_url"`
	LocalPath  string        `json:"local_path"`
	MIMEType   string        `json:"mime_type"`
	SizeBytes  int64         `json:"size_bytes"`
	FetchedAt  time.Time     `json:"fetched_at"`
	TTL        time.Duration `json:"ttl"`
	GCSURI     string        `json:"gcs_uri,omitempty"`
	BrandName  string        `json:"brand_name,omitempty"`
	SignedURL  string        `json:"signed_url,omitempty"`
}

// Expired reports whether the entry outlived its TTL. A zero TTL never expires.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.FetchedAt) > e.TTL
}

// CacheStats summarizes the cache content.
type CacheStats struct {
	EntryCount    int64   `json:"entry_count"`
	TotalBytes    int64   `json:"total_bytes"`
	TotalMB       float64 `json:"total_mb"`
	AnalyzedCount int64   `json:"analyzed_count"`
	UniqueBrands  int64   `json:"unique_brands"`
}

// CleanupResult is returned by a cache cleanup pass.
type CleanupResult struct {
	RemovedCount int     `json:"removed_count"`
	BytesFreed   int64   `json:"bytes_freed"`
	SpaceFreedMB float64 `json:"space_freed_mb"`
	MaxAgeDays   int     `json:"max_age_days"`
}

// BytesToMB converts a byte count to megabytes rounded to two decimals.
func BytesToMB(b int64) float64 {
	return math.Round(float64(b)/(1024*1024)*100) / 100
}
