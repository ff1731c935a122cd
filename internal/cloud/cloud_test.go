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

package cloud_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"google.golang.org/genai"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(`
[application]
name = "base-name"
port = "9000"

[cache]
cleanup_max_age_days = 10
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.unit.toml"), []byte(`
[application]
port = "9100"

[agent_models.creative-flash]
model = "gemini-2.5-flash"
`), 0o600))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")

	config := cloud.NewConfig()
	cloud.LoadConfig(config)

	assert.Equal(t, "base-name", config.Application.Name)
	assert.Equal(t, "9100", config.Application.Port)
	assert.Equal(t, 10, config.Cache.CleanupMaxAgeDays)
	assert.Equal(t, 4, config.Application.ThreadPoolSize, "defaults survive")
	assert.Equal(t, cloud.DefaultVideoPrompt, config.PromptTemplates.VideoPrompt)
	assert.Contains(t, config.AgentModels, cloud.DefaultAgentModel)
}

func TestLoadSecretsFromDotEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "secrets.env")
	require.NoError(t, os.WriteFile(file, []byte("SCRAPECREATORS_API_KEY=from-file\n"), 0o600))
	t.Setenv(cloud.EnvDotEnvFile, file)
	// Setenv restores the original value on cleanup; unset so the file is read.
	t.Setenv(cloud.EnvScrapeCreatorsAPIKey, "")
	require.NoError(t, os.Unsetenv(cloud.EnvScrapeCreatorsAPIKey))
	t.Setenv(cloud.EnvGeminiAPIKey, "from-env")

	config := cloud.NewConfig()
	cloud.LoadSecrets(config)
	assert.Equal(t, "from-file", config.Secrets.AdsLibraryAPIKey)
	assert.Equal(t, "from-env", config.Secrets.GeminiAPIKey)
}

func TestShouldAck(t *testing.T) {
	assert.True(t, cloud.ShouldAck(nil))
	assert.True(t, cloud.ShouldAck(map[string]error{"read": &model.ValidationError{Field: "body"}}))
	assert.True(t, cloud.ShouldAck(map[string]error{"fetch": &model.CreditExhaustedError{}}))
	assert.True(t, cloud.ShouldAck(map[string]error{"analyze": context.Canceled}))
	assert.False(t, cloud.ShouldAck(map[string]error{
		"read":  &model.ValidationError{},
		"fetch": &model.RateLimitedError{RetryAfter: 30},
	}))
}

// flakyModel fails a fixed number of times before answering.
type flakyModel struct {
	failures int32
	answer   string
	calls    atomic.Int32
}

func (f *flakyModel) GenerateContent(ctx context.Context, _ []*genai.Content) (*genai.GenerateContentResponse, error) {
	n := f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= f.failures {
		return nil, errors.New("unavailable")
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: f.answer}}}}},
	}, nil
}

func (f *flakyModel) Name() string { return "flaky" }

func TestGenerateMultiModalResponse(t *testing.T) {
	backoff := cloud.RetryBackoff
	cloud.RetryBackoff = time.Millisecond
	t.Cleanup(func() { cloud.RetryBackoff = backoff })

	meter := otel.Meter("cloud-test")
	in, _ := meter.Int64Counter("in")
	out, _ := meter.Int64Counter("out")
	retries, _ := meter.Int64Counter("retries")
	content := genai.Text("describe the ad")

	t.Run("retries then strips the fence", func(t *testing.T) {
		m := &flakyModel{failures: 2, answer: "```json\n{\"hook\":\"run\"}\n```"}
		value, err := cloud.GenerateMultiModalResponse(context.Background(), in, out, retries, 0, m, content)
		require.NoError(t, err)
		assert.Equal(t, `{"hook":"run"}`, value)
		assert.Equal(t, int32(3), m.calls.Load())
	})

	t.Run("gives up after the last retry", func(t *testing.T) {
		m := &flakyModel{failures: 100}
		_, err := cloud.GenerateMultiModalResponse(context.Background(), in, out, retries, 0, m, content)
		require.Error(t, err)
		assert.Equal(t, int32(cloud.MaxRetries+1), m.calls.Load())
	})

	t.Run("no retries once the context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m := &flakyModel{}
		_, err := cloud.GenerateMultiModalResponse(ctx, in, out, retries, 0, m, content)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(1), m.calls.Load())
	})

	t.Run("blank answer", func(t *testing.T) {
		m := &flakyModel{answer: "```\n```"}
		_, err := cloud.GenerateMultiModalResponse(context.Background(), in, out, retries, 0, m, content)
		assert.ErrorIs(t, err, cloud.ErrEmptyResponse)
	})
}

func TestExtractJSON(t *testing.T) {
	got, ok := cloud.ExtractJSON("Here you go: {\"a\": {\"b\": 1}} hope it helps")
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": 1}}`, got)
	_, ok = cloud.ExtractJSON("no json here")
	assert.False(t, ok)
}

func TestGCSURI(t *testing.T) {
	obj, err := cloud.ParseGCSURI("gs://media-bucket/media-cache/abc.mp4")
	require.NoError(t, err)
	assert.Equal(t, "media-bucket", obj.Bucket)
	assert.Equal(t, "media-cache/abc.mp4", obj.Name)
	assert.Equal(t, "gs://media-bucket/media-cache/abc.mp4", obj.URI())

	for _, bad := range []string{"https://x/y", "gs://bucket", "gs:///name"} {
		_, err := cloud.ParseGCSURI(bad)
		assert.Error(t, err, bad)
	}
	assert.Nil(t, cloud.NewGCSMirror(nil, "bucket", "prefix"))
}
