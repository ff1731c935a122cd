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

package cloud

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables holding credentials.
const (
	EnvScrapeCreatorsAPIKey = "SCRAPECREATORS_API_KEY"
	EnvGeminiAPIKey         = "GEMINI_API_KEY"
	EnvDotEnvFile           = "GCP_DOTENV_FILE"
)

// Secrets are credentials that must never live in the TOML files.
type Secrets struct {
	AdsLibraryAPIKey string
	GeminiAPIKey     string
}

// LoadSecrets reads credentials from the environment. A .env file (or the
// file named by GCP_DOTENV_FILE) is loaded first when present; variables
// already set in the environment win.
//
// Inputs:
//   - config: Names the ads library key variable (AdsLibrary.APIKeyEnv) and
//     receives both keys in Secrets.
func LoadSecrets(config *Config) {
	file := os.Getenv(EnvDotEnvFile)
	if file == "" {
		file = ".env"
	}
	if fileExists(file) {
		if err := godotenv.Load(file); err != nil {
			slog.Warn("failed to load dotenv file", "file", file, "error", err)
		}
	}
	keyEnv := config.AdsLibrary.APIKeyEnv
	if keyEnv == "" {
		keyEnv = EnvScrapeCreatorsAPIKey
	}
	config.Secrets.AdsLibraryAPIKey = os.Getenv(keyEnv)
	config.Secrets.GeminiAPIKey = os.Getenv(EnvGeminiAPIKey)
	if config.Secrets.AdsLibraryAPIKey == "" {
		slog.Warn("ads library API key not configured", "env", keyEnv)
	}
}
