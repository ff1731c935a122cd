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

// Package cloud defines the data structures for application configuration,
// loaded from TOML files. It provides a structured way to manage settings
// for the Google Cloud clients, the Gemini models, the ads-library provider,
// the media cache and the run orchestration.
//
// Structs:
//   - BigQueryDataSource: Dataset and table used to archive finished runs.
//   - PromptTemplates: Text templates for the webpage, video and trend prompts.
//   - VertexAiLLMModel: Settings for one Gemini model.
//   - TopicSubscription: Settings for one Pub/Sub subscription.
//   - Storage: Local cache directory, metadata database and optional GCS mirror.
//   - CacheSettings: Media cache TTL, download limits and cleanup schedule.
//   - AdsLibrary: Ads-library provider endpoint, pacing and top-up link.
//   - Orchestration: Run deadline and which agent model serves each step.
//   - Config: The top-level struct that aggregates all other configuration structs.
//
// Functions:
//   - NewConfig: A constructor that returns a Config populated with defaults.
package cloud

import "google.golang.org/genai"

// DefaultSafetySettings defines the default content safety thresholds for GenAI models.
// Competitor ads are trusted input, so nothing is blocked.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// GenAI backends.
const (
	BackendVertex = "vertex"
	BackendGemini = "gemini"
)

// Logical names used to look up agent models and subscriptions.
const (
	DefaultAgentModel         = "creative-flash"
	AnalyzeRequestsSubscriber = "AnalyzeRequests"
)

// BigQueryDataSource represents the configuration for the run archive.
type BigQueryDataSource struct {
	DatasetName string `toml:"dataset"`    // The name of the BigQuery dataset.
	RunsTable   string `toml:"runs_table"` // The table receiving one row per finished run.
}

// PromptTemplates holds the Go text/template sources for each model call.
type PromptTemplates struct {
	WebpagePrompt string `toml:"webpage"` // Product page analysis.
	VideoPrompt   string `toml:"video"`   // Per-ad video analysis.
	TrendPrompt   string `toml:"trend"`   // Trend narrative.
}

// VertexAiLLMModel represents the configuration for a Gemini model.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`               // The name of the model.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the model.
	Temperature        float32 `toml:"temperature"`         // The temperature parameter.
	TopP               float32 `toml:"top_p"`               // The top_p parameter.
	TopK               float32 `toml:"top_k"`               // The top_k parameter.
	MaxTokens          int32   `toml:"max_tokens"`          // The maximum number of output tokens.
	OutputFormat       string  `toml:"output_format"`       // The response MIME type, e.g. application/json.
	RateLimit          int     `toml:"rate_limit"`          // Requests per second (also the burst size).
}

// TopicSubscription represents the configuration for a Pub/Sub topic subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The processing timeout for one message.
}

// Storage represents where cached media and its index live.
type Storage struct {
	MediaCacheDir    string `toml:"media_cache_dir"`    // Local directory holding cached assets.
	CacheDBPath      string `toml:"cache_db_path"`      // SQLite file holding the cache index.
	MediaCacheBucket string `toml:"media_cache_bucket"` // Optional GCS bucket mirroring cached assets.
	MediaCachePrefix string `toml:"media_cache_prefix"` // Object prefix inside the mirror bucket.
}

// CacheSettings controls the media cache.
type CacheSettings struct {
	TTLDays                int    `toml:"ttl_days"`                 // 0 keeps entries until cleanup.
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"` // Per asset download timeout.
	MaxDownloadMB          int    `toml:"max_download_mb"`          // Assets larger than this are rejected.
	InlineLimitMB          int    `toml:"inline_limit_mb"`          // Largest asset sent inline to the model.
	CleanupSchedule        string `toml:"cleanup_schedule"`         // Cron spec for scheduled cleanup, empty disables it.
	CleanupMaxAgeDays      int    `toml:"cleanup_max_age_days"`     // Age threshold used by scheduled cleanup.
	SignedURLMinutes       int    `toml:"signed_url_minutes"`       // Lifetime of signed links to mirrored assets.
}

// AdsLibrary configures the ads-library provider.
type AdsLibrary struct {
	BaseURL           string  `toml:"base_url"`
	APIKeyEnv         string  `toml:"api_key_env"` // Environment variable holding the API key.
	TopupURL          string  `toml:"topup_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	MaxPagesPerID     int     `toml:"max_pages_per_id"`
}

// Orchestration configures a run.
type Orchestration struct {
	RunTimeoutSeconds       int    `toml:"run_timeout_seconds"`       // Overall deadline for resolve, fetch and analysis.
	WebpageTimeoutSeconds   int    `toml:"webpage_timeout_seconds"`   // Product page download timeout.
	NarrativeTimeoutSeconds int    `toml:"narrative_timeout_seconds"` // Trend narrative model call timeout.
	EnableNarrative         bool   `toml:"enable_narrative"`          // Ask the model for a trend narrative.
	WebpageModel            string `toml:"webpage_model"`             // Agent model key for webpage analysis.
	VideoModel              string `toml:"video_model"`               // Agent model key for video analysis.
	TrendModel              string `toml:"trend_model"`               // Agent model key for the trend narrative.
}

// Config represents the overall configuration for the application, loaded from TOML files.
// It acts as the root container for all other configuration structs.
type Config struct {
	// Application holds general application settings.
	Application struct {
		Name                      string `toml:"name"`                         // The name of the application.
		GoogleProjectId           string `toml:"google_project_id"`            // The Google Cloud project ID.
		GoogleLocation            string `toml:"location"`                     // The Google Cloud location.
		GenAIBackend              string `toml:"genai_backend"`                // "vertex" or "gemini".
		ThreadPoolSize            int    `toml:"thread_pool_size"`             // The size of the per-ad analysis worker pool.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // The service account email used for signing GCS URLs.
		Port                      string `toml:"port"`                         // HTTP listen port.
		LogFile                   string `toml:"log_file"`                     // Optional file receiving a copy of the logs.
		LogLevel                  string `toml:"log_level"`                    // debug, info, warn or error.
	} `toml:"application"`
	Telemetry struct {
		Enabled               bool    `toml:"enabled"`                 // Export traces and metrics to Google Cloud.
		TraceSampleRatio      float64 `toml:"trace_sample_ratio"`      // Fraction of root spans kept, 0..1.
		MetricIntervalSeconds int     `toml:"metric_interval_seconds"` // Metric export period.
	} `toml:"telemetry"`
	Storage            Storage                     `toml:"storage"`               // Media cache storage.
	Cache              CacheSettings               `toml:"cache"`                 // Media cache behaviour.
	AdsLibrary         AdsLibrary                  `toml:"ads_library"`           // Ads-library provider.
	Orchestration      Orchestration               `toml:"orchestration"`         // Run settings.
	BigQueryDataSource BigQueryDataSource          `toml:"big_query_data_source"` // Run archive.
	PromptTemplates    PromptTemplates             `toml:"prompt_templates"`      // Prompt templates configuration.
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"`   // Pub/Sub subscriptions keyed by a logical name (e.g., "AnalyzeRequests").
	AgentModels        map[string]VertexAiLLMModel  `toml:"agent_models"`          // Gemini models keyed by a logical name (e.g., "creative-flash").
	Secrets            Secrets                     `toml:"-"`                     // Loaded from the environment, never from TOML.
}

// NewConfig is a constructor function that creates a new Config with its maps
// initialized and defaults for every setting a run depends on. Values loaded
// from TOML overwrite these defaults.
//
// Outputs:
//   - *Config: A pointer to a new Config struct.
func NewConfig() *Config {
	c := &Config{
		TopicSubscriptions: make(map[string]TopicSubscription),
		AgentModels:        make(map[string]VertexAiLLMModel),
	}
	c.Application.Name = "ad-script-server"
	c.Application.GoogleLocation = "us-central1"
	c.Application.GenAIBackend = BackendVertex
	c.Application.ThreadPoolSize = 4
	c.Application.Port = "8080"
	c.Application.LogLevel = "info"

	c.Telemetry.TraceSampleRatio = 1
	c.Telemetry.MetricIntervalSeconds = 60

	c.Storage.MediaCacheDir = "media_cache"
	c.Storage.CacheDBPath = "media_cache/cache.db"
	c.Storage.MediaCachePrefix = "media-cache"

	c.Cache.DownloadTimeoutSeconds = 30
	c.Cache.MaxDownloadMB = 200
	c.Cache.InlineLimitMB = 20
	c.Cache.CleanupMaxAgeDays = 30
	c.Cache.SignedURLMinutes = 15

	c.AdsLibrary.BaseURL = "https://api.scrapecreators.com"
	c.AdsLibrary.APIKeyEnv = EnvScrapeCreatorsAPIKey
	c.AdsLibrary.TopupURL = "https://scrapecreators.com/dashboard"
	c.AdsLibrary.RequestsPerSecond = 2
	c.AdsLibrary.TimeoutSeconds = 30
	c.AdsLibrary.MaxPagesPerID = 10

	c.Orchestration.RunTimeoutSeconds = 300
	c.Orchestration.WebpageTimeoutSeconds = 15
	c.Orchestration.NarrativeTimeoutSeconds = 30
	c.Orchestration.EnableNarrative = true
	c.Orchestration.WebpageModel = DefaultAgentModel
	c.Orchestration.VideoModel = DefaultAgentModel
	c.Orchestration.TrendModel = DefaultAgentModel

	c.PromptTemplates.WebpagePrompt = DefaultWebpagePrompt
	c.PromptTemplates.VideoPrompt = DefaultVideoPrompt
	c.PromptTemplates.TrendPrompt = DefaultTrendPrompt
	return c
}
