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

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
)

// DefaultCleanupMaxAgeDays applies when a cleanup request omits max_age_days.
const DefaultCleanupMaxAgeDays = 30

// BrandSearchRequest is the body of POST /brands/search. Limit and country
// are accepted for compatibility; resolution does not use them.
type BrandSearchRequest struct {
	BrandNames []string `json:"brand_names"`
	Limit      int      `json:"limit,omitempty"`
	Country    string   `json:"country,omitempty"`
}

// BrandSearchResponse maps every requested name to its page id, or null.
type BrandSearchResponse struct {
	PlatformIDs map[string]*string `json:"platform_ids"`
	Brands      []model.BrandQuery `json:"brands"`
	TotalFound  int                `json:"total_found"`
}

// CleanupRequest is the body of POST /cache/cleanup.
type CleanupRequest struct {
	MaxAgeDays *int `json:"max_age_days"`
}

// AnalyzeAll runs the full analysis and returns the generated script.
func (s *Server) AnalyzeAll(c *gin.Context) {
	var req model.ScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	script, err := s.Runner.Run(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, script)
}

// SearchBrands resolves brand names without running an analysis.
func (s *Server) SearchBrands(c *gin.Context) {
	var req BrandSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	probe := model.ScriptRequest{BrandNames: req.BrandNames}
	probe.Normalize()
	if len(probe.BrandNames) == 0 {
		respondError(c, &model.ValidationError{Field: "brand_names", Detail: "at least one brand name is required"})
		return
	}
	brands, err := s.Brands.Resolve(c.Request.Context(), probe.BrandNames)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, BrandSearchResponse{
		PlatformIDs: model.PlatformIDMap(brands),
		Brands:      brands,
		TotalFound:  len(model.ResolvedPlatformIDs(brands)),
	})
}

// SupportedGenerators lists the video generators a script can target.
func (s *Server) SupportedGenerators(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"generators": model.SupportedGenerators(),
		"default":    model.DefaultGeneratorType,
	})
}

// CacheStats reports the size of the media cache.
func (s *Server) CacheStats(c *gin.Context) {
	stats, err := s.Cache.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CacheCleanup removes cache entries older than max_age_days. An empty body
// uses the default age.
func (s *Server) CacheCleanup(c *gin.Context) {
	var req CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, bindError(err))
		return
	}
	maxAge := DefaultCleanupMaxAgeDays
	if req.MaxAgeDays != nil {
		maxAge = *req.MaxAgeDays
	}
	result, err := s.Cache.Cleanup(c.Request.Context(), maxAge)
	if err != nil {
		respondError(c, err)
		return
	}
	result.SpaceFreedMB = model.BytesToMB(result.BytesFreed)
	c.JSON(http.StatusOK, result)
}

// CacheEntry returns one cache entry. Mirrored entries carry a signed URL
// when URL signing is configured.
func (s *Server) CacheEntry(c *gin.Context) {
	entry, err := s.Cache.Lookup(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	if entry.GCSURI != "" && s.Links != nil {
		u, err := s.Links.GenerateSignedURL(c.Request.Context(), entry.GCSURI)
		if err != nil {
			respondError(c, err)
			return
		}
		entry.SignedURL = u
	}
	c.JSON(http.StatusOK, entry)
}

// RecentRuns lists archived runs, newest first.
func (s *Server) RecentRuns(c *gin.Context) {
	if s.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Type:   model.ErrorTypeServerError,
			Status: http.StatusServiceUnavailable,
			Detail: "run archive is not configured",
		})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultRecentRuns)))
	if err != nil || limit < 1 || limit > model.MaxAdLimit {
		respondError(c, &model.ValidationError{Field: "limit", Detail: "limit must be a positive number"})
		return
	}
	runs, err := s.Runs.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// GetRun returns one archived run.
func (s *Server) GetRun(c *gin.Context) {
	if s.Runs == nil {
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Type:   model.ErrorTypeServerError,
			Status: http.StatusServiceUnavailable,
			Detail: "run archive is not configured",
		})
		return
	}
	run, err := s.Runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// Health is the liveness signal.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      time.Now().UTC(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"version":        s.Version,
		"integrations":   s.Integrations,
	})
}
