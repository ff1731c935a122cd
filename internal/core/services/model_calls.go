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

package services

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/jaycherian/gcp-go-adscript/internal/cloud"
	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

// modelCounters are the token and retry counters recorded for one kind of model call.
type modelCounters struct {
	input  metric.Int64Counter
	output metric.Int64Counter
	retry  metric.Int64Counter
}

func newModelCounters(name string) modelCounters {
	meter := otel.Meter(cor.MeterNamespace)
	var c modelCounters
	c.input, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.token.input", name))
	c.output, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.token.output", name))
	c.retry, _ = meter.Int64Counter(fmt.Sprintf("%s.gemini.retry", name))
	return c
}

func (c modelCounters) generate(ctx context.Context, model cloud.ContentGenerator, contents []*genai.Content) (string, error) {
	return cloud.GenerateMultiModalResponse(ctx, c.input, c.output, c.retry, 0, model, contents)
}

// renderPrompt executes a prompt template against an upper-case vocabulary.
func renderPrompt(tmpl *template.Template, vocabulary map[string]string) (string, error) {
	var doc bytes.Buffer
	if err := tmpl.Execute(&doc, vocabulary); err != nil {
		return "", err
	}
	return doc.String(), nil
}
