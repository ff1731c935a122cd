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

// Package main contains the logic for setting up and starting the Pub/Sub message listeners.
// A message on the analyze-requests subscription carries a JSON analyze-all
// request and runs the same workflow as the HTTP endpoint.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
)

// SetupListeners attaches the ad script workflow to its subscription and
// starts listening. Without a configured subscription only the HTTP API runs.
func SetupListeners(config *cloud.Config, cloudClients *cloud.ServiceClients, ctx context.Context) {
	listener, ok := cloudClients.PubSubListeners[cloud.AnalyzeRequestsSubscriber]
	if !ok {
		slog.Info("no analyze request subscription configured")
		return
	}
	listener.SetCommand(state.adScript)
	if seconds := config.TopicSubscriptions[cloud.AnalyzeRequestsSubscriber].TimeoutInSeconds; seconds > 0 {
		listener.SetTimeout(time.Duration(seconds) * time.Second)
	}
	listener.Listen(ctx)
}
