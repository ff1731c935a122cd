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

// Package cloud provides components for interacting with Google Cloud services.
// This file implements a wrapper around the Generative AI client that adds
// rate limiting, so that the per-ad worker pool cannot exceed the model quota.
//
// Structs:
//   - QuotaAwareGenerativeAIModel: wraps `genai.Models` with a model name, a
//     content config and a token bucket limiter.
//
// Interfaces:
//   - ContentGenerator: the narrow surface the services depend on. Tests
//     provide fakes that implement it.
package cloud

import (
	"context"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ContentGenerator is a named model that turns prompt contents into a response.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error)
	Name() string
}

// QuotaAwareGenerativeAIModel is a decorator that rate limits calls to a
// Gemini model.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter
}

// NewQuotaAwareModel wraps a model handle. requestsPerSecond is both the
// refill rate and the burst; values below 1 are treated as 1.
//
// Inputs:
//   - config: The content config (temperature, safety, system instructions).
//   - name: The model name, e.g. gemini-2.5-flash.
//   - handle: The Models service of a genai client.
//   - requestsPerSecond: The maximum number of calls per second.
func NewQuotaAwareModel(config *genai.GenerateContentConfig, name string, handle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: config,
		ModelName:               name,
		ModelHandle:             handle,
		RateLimit:               rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

// GenerateContent waits for a limiter token, then calls the model. Waiting
// respects the context, so a run deadline also bounds time spent queued.
// Retries are handled by GenerateMultiModalResponse.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}

// Name returns the wrapped model name.
func (q *QuotaAwareGenerativeAIModel) Name() string {
	return q.ModelName
}
