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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// first command of an ad analysis run.
//
// Logic Flow:
// A run can be started two ways: by the HTTP API, which hands over a decoded
// `*model.ScriptRequest`, or by a Pub/Sub message, which carries the same
// request as raw JSON. This command accepts either form.
//
//  1. The request is read from the input parameter (struct, string or bytes).
//  2. A copy is normalized: brand names de-duplicated, defaults applied.
//  3. When no product URL was given, one is taken from the user query.
//  4. The copy is validated; a bad request fails the run with a
//     `*model.ValidationError`.
//  5. The normalized request is stored under `ParamRequest` for every later
//     command.
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/jaycherian/gcp-go-adscript/internal/core/model"
	"github.com/jaycherian/gcp-go-adscript/internal/core/services"
)

// AnalyzeRequestReader turns the run input into a validated ScriptRequest.
type AnalyzeRequestReader struct {
	cor.BaseCommand
}

// NewAnalyzeRequestReader is the constructor for the AnalyzeRequestReader command.
func NewAnalyzeRequestReader(name string) *AnalyzeRequestReader {
	return &AnalyzeRequestReader{BaseCommand: *cor.NewBaseCommand(name)}
}

// Execute parses, normalizes and validates the request.
func (c *AnalyzeRequestReader) Execute(context cor.Context) {
	var req model.ScriptRequest
	switch in := context.Get(c.GetInputParam()).(type) {
	case *model.ScriptRequest:
		req = *in
	case string:
		if err := json.Unmarshal([]byte(in), &req); err != nil {
			abort(&c.BaseCommand, context, &model.ValidationError{Field: "body", Detail: fmt.Sprintf("malformed analyze request: %v", err)})
			return
		}
	case []byte:
		if err := json.Unmarshal(in, &req); err != nil {
			abort(&c.BaseCommand, context, &model.ValidationError{Field: "body", Detail: fmt.Sprintf("malformed analyze request: %v", err)})
			return
		}
	default:
		abort(&c.BaseCommand, context, fmt.Errorf("unsupported analyze request input %T", in))
		return
	}

	req.Normalize()
	if req.ProductURL == "" {
		if u, ok := services.ExtractURL(req.UserQuery); ok {
			req.ProductURL = u
		}
	}
	if err := req.Validate(); err != nil {
		abort(&c.BaseCommand, context, err)
		return
	}

	c.Succeed(context)
	context.Add(ParamRequest, &req)
	context.Add(c.GetOutputParam(), &req)
}
