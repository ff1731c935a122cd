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

package cor

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MeterNamespace is the instrumentation scope for every command's metrics.
const MeterNamespace = "github.com/jaycherian/gcp-go-adscript"

// BaseCommand carries what every run command needs: a name, the context keys
// it reads and writes, a tracer and two counters. Concrete commands embed it
// and implement Execute.
type BaseCommand struct {
	Name            string
	InputParamName  string // defaults to CtxIn
	OutputParamName string // defaults to CtxOut
	Tracer          trace.Tracer
	Meter           metric.Meter
	SuccessCounter  metric.Int64Counter
	ErrorCounter    metric.Int64Counter
}

// NewBaseCommand wires the command to the global tracer and meter providers.
// Counters are named "<name>.counter.success" and "<name>.counter.error".
func NewBaseCommand(name string) *BaseCommand {
	meter := otel.Meter(MeterNamespace)
	return &BaseCommand{
		Name:           name,
		Tracer:         otel.Tracer(name),
		Meter:          meter,
		SuccessCounter: counter(meter, name, "success"),
		ErrorCounter:   counter(meter, name, "error"),
	}
}

func counter(meter metric.Meter, name string, kind string) metric.Int64Counter {
	c, err := meter.Int64Counter(fmt.Sprintf("%s.counter.%s", name, kind))
	if err != nil {
		slog.Error("error creating counter", "command", name, "kind", kind, "error", err)
	}
	return c
}

// WithParams overrides the input and output keys. Empty values keep the
// defaults.
func (c *BaseCommand) WithParams(input string, output string) *BaseCommand {
	c.InputParamName = input
	c.OutputParamName = output
	return c
}

func (c *BaseCommand) GetName() string {
	return c.Name
}

// IsExecutable requires a Go context and a value under the input key.
func (c *BaseCommand) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(c.GetInputParam()) != nil
}

func (c *BaseCommand) GetInputParam() string {
	if c.InputParamName == "" {
		return CtxIn
	}
	return c.InputParamName
}

func (c *BaseCommand) GetOutputParam() string {
	if c.OutputParamName == "" {
		return CtxOut
	}
	return c.OutputParamName
}

func (c *BaseCommand) GetTracer() trace.Tracer {
	return c.Tracer
}

func (c *BaseCommand) GetMeter() metric.Meter {
	return c.Meter
}

func (c *BaseCommand) GetSuccessCounter() metric.Int64Counter {
	return c.SuccessCounter
}

func (c *BaseCommand) GetErrorCounter() metric.Int64Counter {
	return c.ErrorCounter
}

// Fail records err against this command, counts it and logs it.
func (c *BaseCommand) Fail(context Context, err error) {
	ctx := context.GetContext()
	if c.ErrorCounter != nil {
		c.ErrorCounter.Add(ctx, 1)
	}
	slog.ErrorContext(ctx, "command failed", "command", c.Name, "error", err)
	context.AddError(c.Name, err)
}

// Succeed counts a successful execution.
func (c *BaseCommand) Succeed(context Context) {
	if c.SuccessCounter != nil {
		c.SuccessCounter.Add(context.GetContext(), 1)
	}
}
