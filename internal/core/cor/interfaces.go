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

// Package cor is a small Chain of Responsibility framework. An ad analysis
// run is a chain of commands sharing one Context: each command reads what
// earlier commands stored, adds its own results and records failures under
// its name.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Keys the chain uses to pipe one command's output into the next command.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// Context is the state of one chain execution. Implementations must be safe
// for concurrent use; the ad workers and the webpage analysis write to it
// from their own goroutines.
type Context interface {
	// SetContext replaces the Go context. The chain swaps it per command so
	// spans nest correctly.
	SetContext(context context.Context)
	GetContext() context.Context

	Add(key string, value any) Context
	Get(key string) any
	Remove(key string)

	// AddError records err under key, normally the command name. A second
	// error under the same key replaces the first but keeps its position.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool
	// FirstError returns the earliest recorded error, or nil.
	FirstError() error

	// AddTempFile registers a file for removal by Close.
	AddTempFile(file string)
	GetTempFiles() []string
	Close()
}

// Executable is anything that runs against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one step of a run.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string

	// IsExecutable reports whether the Context holds what the command needs.
	// A chain skips commands that are not executable.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a Command made of Commands.
type Chain interface {
	Command
	ContinueOnFailure(bool) Chain
	AddCommand(command Command) Chain
}
