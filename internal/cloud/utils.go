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

// Package cloud holds the Google Cloud side of the service: configuration,
// the service clients, the rate-limited Gemini models, the Pub/Sub listener
// and the GCS media mirror.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/BurntSushi/toml"
	"google.golang.org/genai"
)

// Cloud Constants define key strings and values used throughout the package,
// primarily for configuration loading and API interaction policies.
const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
	MaxRetries          = 3                   // The maximum number of times to retry a failed API call.
)

// RetryBackoff is the base wait between model retries; attempt n waits n times this.
var RetryBackoff = 2 * time.Second

// ErrEmptyResponse is returned when the model answers with no text at all.
var ErrEmptyResponse = errors.New("model returned an empty response")

// fileExists checks if a file or directory exists at the given path.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig decodes "<prefix>.env.toml" and then "<prefix>.env.<runtime>.toml"
// into baseConfig, so runtime values win. GCP_CONFIG_PREFIX sets the prefix
// and GCP_RUNTIME the runtime, "test" when unset. Missing files are skipped;
// a file that does not decode stops the process.
//
// Inputs:
//   - baseConfig: A pointer to the struct the TOML files decode into,
//     normally the result of NewConfig.
func LoadConfig(baseConfig any) {
	prefix := os.Getenv(EnvConfigFilePrefix)
	if prefix != "" && !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	runtime := os.Getenv(EnvConfigRuntime)
	if runtime == "" {
		runtime = "test"
	}

	files := []string{
		prefix + ConfigFileBaseName + ConfigFileExtension,
		prefix + ConfigFileBaseName + ConfigSeparator + runtime + ConfigFileExtension,
	}
	slog.Info("loading configuration", "base", files[0], "runtime", files[1])
	for _, name := range files {
		if !fileExists(name) {
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			log.Fatalf("failed to decode configuration file %s with error: %s", name, err)
		}
	}
}

// GenerateMultiModalResponse sends content to the model and returns the text
// of the answer with any markdown fence removed. Failed calls are retried up
// to MaxRetries times with a linear backoff, never once ctx is done. Token
// usage and retries are counted.
//
// Inputs:
//   - ctx: Bounds every attempt and the waits between them.
//   - inputTokenCounter, outputTokenCounter: Receive the token usage of the
//     successful call.
//   - retryCounter: Incremented for every retried attempt.
//   - tryCount: The number of the current attempt, zero on the first call.
//   - model: The generator to call.
//   - content: The prompt parts.
//
// Outputs:
//   - value: The answer text without markdown fences.
//   - err: The last error once the retries are spent, or ctx.Err().
func GenerateMultiModalResponse(
	ctx context.Context,
	inputTokenCounter metric.Int64Counter,
	outputTokenCounter metric.Int64Counter,
	retryCounter metric.Int64Counter,
	tryCount int,
	model ContentGenerator,
	content []*genai.Content) (value string, err error) {
	var resp *genai.GenerateContentResponse
	for attempt := tryCount; ; attempt++ {
		resp, err = model.GenerateContent(ctx, content)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return "", err
		}
		if attempt >= MaxRetries {
			return "", fmt.Errorf("model %s failed after %d attempts: %w", model.Name(), attempt+1, err)
		}
		retryCounter.Add(ctx, 1)
		slog.WarnContext(ctx, "model call failed, retrying", "model", model.Name(), "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(RetryBackoff * time.Duration(attempt+1)):
		}
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	if resp.UsageMetadata != nil {
		inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}
	if value = stripFence(responseText(resp)); value == "" {
		return "", ErrEmptyResponse
	}
	return value, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// ExtractJSON returns the outermost JSON object in a model response. Models
// sometimes wrap the document in prose even when asked not to.
func ExtractJSON(in string) (string, bool) {
	start := strings.Index(in, "{")
	end := strings.LastIndex(in, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return in[start : end+1], true
}

// NewFileData creates a part referencing a file by URI (e.g., a GCS path).
func NewFileData(in string, mimeType string) *genai.Part {
	return &genai.Part{FileData: &genai.FileData{FileURI: in, MIMEType: mimeType}}
}

// NewInlineData creates a part carrying the bytes of a media file.
func NewInlineData(data []byte, mimeType string) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}
}
