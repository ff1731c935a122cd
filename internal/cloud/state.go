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
// This file is responsible for initializing and holding all the client objects
// needed to communicate with Google Cloud and Gemini. It acts as a dependency
// injection container: a single `ServiceClients` struct is built at startup and
// passed to the workflows and API handlers.
//
// Logic Flow:
//  1. `NewCloudServiceClients` is called at application startup with the config.
//  2. The GenAI client is always created, on Vertex AI or on the Gemini API
//     depending on `application.genai_backend`.
//  3. Storage, BigQuery and Pub/Sub clients are created only when the config
//     names something for them to do (a mirror bucket, a runs dataset, a
//     subscription). A local deployment needs none of them.
//  4. Every configured agent model is wrapped in a QuotaAwareGenerativeAIModel.
//
// Functions:
//   - Close: Shuts down every client that was created.
//   - NewCloudServiceClients: Builds the container from the configuration.
//   - NewAgentModel: Builds one rate limited model from its settings.
package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients is a struct that acts as a central container for all the clients
// that interact with external services. Optional clients are nil when unused.
type ServiceClients struct {
	StorageClient   *storage.Client                         // Client for Google Cloud Storage, used by the cache mirror.
	PubsubClient    *pubsub.Client                          // Client for Google Cloud Pub/Sub.
	GenAIClient     *genai.Client                           // Client for Gemini.
	BiqQueryClient  *bigquery.Client                        // Client for BigQuery, used by the run archive.
	IAMClient       *credentials.IamCredentialsClient       // Client for IAM to sign GCS URLs.
	PubSubListeners map[string]*PubSubListener              // Active listeners keyed by the logical name from the config.
	AgentModels     map[string]*QuotaAwareGenerativeAIModel // Gemini models keyed by the logical name from the config.
}

// Close shuts down every client that was created.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.BiqQueryClient != nil {
		_ = c.BiqQueryClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// Model returns the agent model registered under name, or nil.
func (c *ServiceClients) Model(name string) ContentGenerator {
	if m, ok := c.AgentModels[name]; ok {
		return m
	}
	return nil
}

// NewCloudServiceClients is a factory function that initializes the service
// clients required by the configuration.
//
// Inputs:
//   - ctx: The root context for the application.
//   - config: The loaded application configuration.
//
// Outputs:
//   - *ServiceClients: The initialized container.
//   - error: An error if any required client fails to initialize.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}

	clientConfig := &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	}
	if config.Application.GenAIBackend == BackendGemini {
		clientConfig = &genai.ClientConfig{APIKey: config.Secrets.GeminiAPIKey, Backend: genai.BackendGeminiAPI}
	}
	cloud.GenAIClient, err = genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}
	slog.Info("genai client ready", "backend", config.Application.GenAIBackend, "project", config.Application.GoogleProjectId)

	if config.Storage.MediaCacheBucket != "" {
		cloud.StorageClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("error creating storage client: %w", err)
		}
		if config.Application.SignerServiceAccountEmail != "" {
			cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx)
			if err != nil {
				cloud.Close()
				return nil, fmt.Errorf("error creating iam client: %w", err)
			}
		}
	}

	if config.BigQueryDataSource.DatasetName != "" && config.BigQueryDataSource.RunsTable != "" {
		cloud.BiqQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId)
		if err != nil {
			cloud.Close()
			return nil, fmt.Errorf("error creating bigquery client: %w", err)
		}
	}

	if len(config.TopicSubscriptions) > 0 {
		cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId)
		if err != nil {
			cloud.Close()
			return nil, fmt.Errorf("error creating pubsub client: %w", err)
		}
		// The command is attached later, when the workflows are built.
		for subKey, values := range config.TopicSubscriptions {
			listener, err := NewPubSubListener(cloud.PubsubClient, values.Name, nil)
			if err != nil {
				cloud.Close()
				return nil, err
			}
			cloud.PubSubListeners[subKey] = listener
		}
	}

	for amKey, values := range config.AgentModels {
		cloud.AgentModels[amKey] = NewAgentModel(cloud.GenAIClient, values)
		slog.Info("agent model ready", "key", amKey, "model", values.Model, "rate_limit", values.RateLimit)
	}

	return cloud, nil
}

// NewAgentModel applies the model settings (temperature, TopK, output format)
// and wraps the model in the rate limiting decorator.
func NewAgentModel(client *genai.Client, values VertexAiLLMModel) *QuotaAwareGenerativeAIModel {
	contentConfig := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](values.Temperature),
		TopP:             genai.Ptr[float32](values.TopP),
		TopK:             genai.Ptr[float32](values.TopK),
		MaxOutputTokens:  values.MaxTokens,
		SafetySettings:   DefaultSafetySettings,
		ResponseMIMEType: values.OutputFormat,
	}
	if values.SystemInstructions != "" {
		contentConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
	}
	return NewQuotaAwareModel(contentConfig, values.Model, client.Models, values.RateLimit)
}
