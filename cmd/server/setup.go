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

// Package main contains the setup and initialization logic for the application's state.
// This file creates the state manager that holds all shared dependencies: the
// configuration, the Google Cloud clients, the media cache, the run workflow
// and the HTTP handlers built on top of them.
//
// Functions:
//   - SetupOS: Points the configuration loader at the configs directory.
//   - GetConfig: A singleton that loads the configuration and secrets once.
//   - InitState: Creates the clients and services, then starts the scheduled
//     cache cleanup and the Pub/Sub listeners.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/api"
	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
	"github.com/jaycherian/gcp-go-adscript/internal/core/workflow"
)

// StateManager holds all the shared dependencies for the application.
type StateManager struct {
	config      *cloud.Config
	cloud       *cloud.ServiceClients
	cache       *services.MediaCache
	adScript    *workflow.AdScriptWorkflow
	maintenance *workflow.CacheMaintenanceWorkflow
	server      *api.Server
}

// state is a package-level variable that holds the single instance of StateManager.
var state = &StateManager{}

// SetupOS sets the environment variables the configuration loader uses to
// find the TOML files. An already set runtime is kept.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

// GetConfig provides a singleton instance of the application configuration.
func GetConfig() *cloud.Config {
	if state.config == nil {
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup os: %v\n", err)
		}
		config := cloud.NewConfig()
		cloud.LoadConfig(config)
		cloud.LoadSecrets(config)
		state.config = config
	}
	return state.config
}

// newMediaCache opens the media cache, mirroring into GCS when a bucket is configured.
func newMediaCache(config *cloud.Config, clients *cloud.ServiceClients) (*services.MediaCache, error) {
	opts := services.MediaCacheOptions{
		Dir:              config.Storage.MediaCacheDir,
		DBPath:           config.Storage.CacheDBPath,
		TTL:              time.Duration(config.Cache.TTLDays) * 24 * time.Hour,
		DownloadTimeout:  time.Duration(config.Cache.DownloadTimeoutSeconds) * time.Second,
		MaxDownloadBytes: int64(config.Cache.MaxDownloadMB) << 20,
	}
	if mirror := cloud.NewGCSMirror(clients.StorageClient, config.Storage.MediaCacheBucket, config.Storage.MediaCachePrefix); mirror != nil {
		opts.Mirror = mirror
	}
	return services.NewMediaCache(opts)
}

// InitState initializes the entire application state.
//
//  1. Loads the configuration.
//  2. Initializes the Google Cloud clients (GenAI, Storage, IAM, BigQuery, Pub/Sub).
//  3. Opens the media cache and builds the run workflow and HTTP handlers.
//  4. Starts the scheduled cache cleanup and the Pub/Sub listeners.
func InitState(ctx context.Context) {
	config := GetConfig()

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		panic(err)
	}
	state.cloud = cloudClients

	state.cache, err = newMediaCache(config, cloudClients)
	if err != nil {
		panic(err)
	}

	deps := workflow.DependenciesFromClients(config, cloudClients, state.cache)
	state.adScript = workflow.NewAdScriptWorkflow(config, deps)

	server := api.NewServer(state.adScript, deps.Ads, state.cache)
	server.Links = services.NewMediaLinkService(cloudClients.StorageClient, cloudClients.IAMClient,
		config.Application.SignerServiceAccountEmail, time.Duration(config.Cache.SignedURLMinutes)*time.Minute)
	server.Runs = deps.Runs
	server.Version = config.Application.Name
	server.Integrations = api.Integrations{
		AdsLibrary:  config.Secrets.AdsLibraryAPIKey != "",
		GenAI:       len(cloudClients.AgentModels) > 0,
		MediaMirror: config.Storage.MediaCacheBucket != "",
		RunArchive:  deps.Runs != nil,
		PubSub:      len(cloudClients.PubSubListeners) > 0,
	}
	state.server = server

	state.maintenance = workflow.NewCacheMaintenanceWorkflow(state.cache, config.Cache.CleanupSchedule, config.Cache.CleanupMaxAgeDays)
	if _, err := state.maintenance.Start(); err != nil {
		panic(err)
	}

	SetupListeners(config, cloudClients, ctx)
}

// CloseState releases the clients and the cache.
func CloseState() {
	if state.maintenance != nil {
		state.maintenance.Stop(5 * time.Second)
	}
	if state.cache != nil {
		_ = state.cache.Close()
	}
	if state.cloud != nil {
		state.cloud.Close()
	}
}
