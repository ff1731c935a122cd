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
// *****************************************************************************************************//
// Package main is the entry point for the ad script server.
//
// The server studies a set of competitor brands' ads and turns what it
// learns into a video script for a product. It exposes a REST API built on
// Gin, instrumented with OpenTelemetry, and listens for the same requests on
// a Pub/Sub subscription.
//
// Routes (all under /api/v1, plus /health at the root):
//   - POST /video/analyze-all (and /analyze-all): Runs an analysis and returns the script.
//   - POST /brands/search: Resolves brand names to ads-library pages.
//   - GET /generators/supported: Lists the video generators a script can target.
//   - GET /cache/stats, POST /cache/cleanup, GET /cache/entries/:key: Media cache maintenance.
//   - GET /runs, GET /runs/:id: Archived runs, when BigQuery is configured.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/gcp-go-adscript/internal/telemetry"
)

func main() {
	config := GetConfig()

	closeLog := telemetry.SetupLogging(config.Application.LogFile, config.Application.LogLevel)
	defer closeLog()
	slog.Info("Logging initialized", "level", config.Application.LogLevel)

	// Root context; canceling it stops the Pub/Sub listeners.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized")

	InitState(ctx)
	defer CloseState()
	slog.Info("Initialized State")

	if config.Application.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := state.server.NewRouter(
		gin.Logger(),
		otelgin.Middleware(config.Application.Name),
		cors.Default(),
	)

	// Analysis runs take minutes, so the write timeout follows the run deadline.
	writeTimeout := time.Duration(config.Orchestration.RunTimeoutSeconds+30) * time.Second
	srv := &http.Server{
		Addr:         ":" + config.Application.Port,
		Handler:      r,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: writeTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to listen", "error", err)
		}
	}()
	slog.Info("Server Ready", "port", config.Application.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("Telemetry Shutdown Failed", "error", err)
	}

	log.Println("Server exiting")
}
