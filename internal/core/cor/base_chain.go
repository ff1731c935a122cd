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
	goctx "context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
)

// BaseChain runs its commands in order over one shared Context. After each
// command the value in CtxOut becomes CtxIn for the next one. A chain is a
// Command too, so chains nest.
//
// The chain stops at the first recorded error unless ContinueOnFailure is
// set. Commands that are not executable are skipped and do not count as
// failures; optional run steps rely on that.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
}

// NewBaseChain creates an empty chain.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

// ContinueOnFailure keeps the chain running after a command records an error.
func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

// AddCommand appends a command.
func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// Len reports the number of commands in the chain.
func (c *BaseChain) Len() int {
	return len(c.commands)
}

// IsExecutable only needs a Go context to trace under.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

// Execute runs the commands. Each command gets its own span under the chain
// span, and the Go context is restored after every command so the spans stay
// siblings.
func (c *BaseChain) Execute(chCtx Context) {
	outerCtx, chainSpan := c.Tracer.Start(chCtx.GetContext(), fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()

	for _, command := range c.commands {
		if chCtx.HasErrors() && !c.continueOnFailure {
			chainSpan.AddEvent(fmt.Sprintf("stopped before %s", command.GetName()))
			break
		}
		c.run(chCtx, outerCtx, command)
		pipe(chCtx)
	}
	chCtx.SetContext(outerCtx)

	if chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Error, "chain failed")
		c.GetErrorCounter().Add(outerCtx, 1)
		return
	}
	chainSpan.SetStatus(codes.Ok, "chain completed")
	c.GetSuccessCounter().Add(outerCtx, 1)
}

func (c *BaseChain) run(chCtx Context, outerCtx goctx.Context, command Command) {
	commandCtx, span := c.Tracer.Start(outerCtx, command.GetName())
	defer span.End()

	if !command.IsExecutable(chCtx) {
		slog.DebugContext(outerCtx, "command skipped", "chain", c.GetName(), "command", command.GetName())
		span.AddEvent("not executable")
		return
	}
	chCtx.SetContext(commandCtx)
	command.Execute(chCtx)
	chCtx.SetContext(outerCtx)

	if chCtx.HasErrors() {
		span.SetStatus(codes.Error, "error recorded")
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// pipe moves the output of the last command to the input of the next.
func pipe(chCtx Context) {
	out := chCtx.Get(CtxOut)
	chCtx.Remove(CtxIn)
	chCtx.Remove(CtxOut)
	if out != nil {
		chCtx.Add(CtxIn, out)
	}
}
