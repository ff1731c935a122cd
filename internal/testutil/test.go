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

// Package test provides utility functions and mock data to support the application's
// test suite. It helps in setting up a consistent test environment, loading
// test-specific configurations, and providing fakes for the external systems a
// run talks to: the Gemini model, the ads-library provider, media CDNs and
// product webpages.
package test

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
)

// StateManager acts as a simple in-memory cache for the application configuration
// during test runs.
type StateManager struct {
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test when err is not nil.
func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// GetTestAnalyzeRequestText returns a Pub/Sub payload requesting a run.
func GetTestAnalyzeRequestText() string {
	return `{
  "brand_names": ["Nike", "nike", "Adidas"],
  "product_url": "https://example.com/products/pegasus-trail",
  "user_query": "30 second launch video for a trail running shoe",
  "generator_type": "veo",
  "limit": 5,
  "country": "us"
}`
}

// SetupOS points the configuration loader at the test configuration files.
func SetupOS() (err error) {
	err = os.Setenv(cloud.EnvConfigFilePrefix, "configs")
	if err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig is a singleton accessor for the test configuration loaded from TOML.
func GetConfig() *cloud.Config {
	if state.config == nil {
		err := SetupOS()
		if err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		cloud.LoadConfig(config)
		state.config = config
	}
	return state.config
}

// NewTestConfig returns a config isolated to a temp directory, pointing the
// ads-library client at baseURL. Telemetry export is off and pacing is loose.
func NewTestConfig(t *testing.T, baseURL string) *cloud.Config {
	t.Helper()
	dir := t.TempDir()
	config := cloud.NewConfig()
	config.Telemetry.Enabled = false
	config.Application.ThreadPoolSize = 3
	config.Storage.MediaCacheDir = filepath.Join(dir, "media")
	config.Storage.CacheDBPath = filepath.Join(dir, "cache.db")
	config.Cache.DownloadTimeoutSeconds = 5
	config.AdsLibrary.BaseURL = baseURL
	config.AdsLibrary.RequestsPerSecond = 1000
	config.AdsLibrary.TimeoutSeconds = 5
	config.Orchestration.RunTimeoutSeconds = 20
	config.Orchestration.WebpageTimeoutSeconds = 5
	config.Orchestration.NarrativeTimeoutSeconds = 5
	config.Secrets.AdsLibraryAPIKey = "test-key"
	return config
}

// FastRetries shortens the model retry backoff for the duration of a test package.
// The returned function restores the previous value.
func FastRetries() (restore func()) {
	previous := cloud.RetryBackoff
	cloud.RetryBackoff = time.Millisecond
	return func() { cloud.RetryBackoff = previous }
}
