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

// Package api exposes the ad analysis service over HTTP with gin. Every
// failed request is answered with a model.ErrorResponse so clients can branch
// on its type.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
)

// ScriptRunner executes one analyze-all request.
type ScriptRunner interface {
	Run(ctx context.Context, req *model.ScriptRequest) (*model.GeneratedScript, error)
}

// BrandSearcher resolves brand names to ads-library pages.
type BrandSearcher interface {
	Resolve(ctx context.Context, brandNames []string) ([]model.BrandQuery, error)
}

// Integrations reports which optional backends are configured. It is shown
// by the health endpoint.
type Integrations struct {
	AdsLibrary  bool `json:"ads_library"`
	GenAI       bool `json:"genai"`
	MediaMirror bool `json:"media_mirror"`
	RunArchive  bool `json:"run_archive"`
	PubSub      bool `json:"pubsub"`
}

// Server holds the collaborators of the HTTP handlers. Links and Runs are
// optional.
type Server struct {
	Runner       ScriptRunner
	Brands       BrandSearcher
	Cache        *services.MediaCache
	Links        *services.MediaLinkService
	Runs         services.RunStore
	Integrations Integrations
	Version      string
	startedAt    time.Time
}

// NewServer creates the handler set.
func NewServer(runner ScriptRunner, brands BrandSearcher, cache *services.MediaCache) *Server {
	return &Server{Runner: runner, Brands: brands, Cache: cache, startedAt: time.Now()}
}

// Register mounts the versioned routes on r.
func (s *Server) Register(r *gin.RouterGroup) {
	r.POST("/analyze-all", s.AnalyzeAll)
	video := r.Group("/video")
	{
		video.POST("/analyze-all", s.AnalyzeAll)
	}
	r.POST("/brands/search", s.SearchBrands)
	r.GET("/generators/supported", s.SupportedGenerators)

	cache := r.Group("/cache")
	{
		cache.GET("/stats", s.CacheStats)
		cache.POST("/cleanup", s.CacheCleanup)
		cache.GET("/entries/:key", s.CacheEntry)
	}

	runs := r.Group("/runs")
	{
		runs.GET("", s.RecentRuns)
		runs.GET("/:id", s.GetRun)
	}
	r.GET("/health", s.Health)
}

// NewRouter builds a gin engine with the routes under /api/v1 and the health
// endpoint at the root. Middleware is added by the caller.
func (s *Server) NewRouter(middleware ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware...)
	r.GET("/health", s.Health)
	s.Register(r.Group("/api/v1"))
	return r
}

// respondError writes the structured error body for err.
func respondError(c *gin.Context, err error) {
	resp := model.NewErrorResponse(err)
	if resp.Status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	} else {
		slog.WarnContext(c.Request.Context(), "request rejected", "path", c.FullPath(), "type", resp.Type, "detail", resp.Detail)
	}
	c.AbortWithStatusJSON(resp.Status, resp)
}

func bindError(err error) error {
	return &model.ValidationError{Field: "body", Detail: err.Error()}
}
