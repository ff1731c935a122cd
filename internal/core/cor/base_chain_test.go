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

package cor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-adscript/internal/core/cor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upper turns its string input into upper case, or fails when asked to.
type upper struct {
	cor.BaseCommand
	err   error
	calls int
}

func newUpper(name string, err error) *upper {
	return &upper{BaseCommand: *cor.NewBaseCommand(name), err: err}
}

func (u *upper) Execute(context cor.Context) {
	u.calls++
	if u.err != nil {
		u.Fail(context, u.err)
		return
	}
	in := context.Get(u.GetInputParam()).(string)
	context.Add(u.GetOutputParam(), strings.ToUpper(in)+"!")
	u.Succeed(context)
}

func newContext(in any) cor.Context {
	ctx := cor.NewBaseContext()
	ctx.SetContext(context.Background())
	if in != nil {
		ctx.Add(cor.CtxIn, in)
	}
	return ctx
}

func TestChainPipesOutputToInput(t *testing.T) {
	first, second := newUpper("first", nil), newUpper("second", nil)
	chain := cor.NewBaseChain("pipe").AddCommand(first).AddCommand(second)

	ctx := newContext("go")
	chain.Execute(ctx)

	require.False(t, ctx.HasErrors())
	assert.Equal(t, "GO!!", ctx.Get(cor.CtxIn))
	assert.Nil(t, ctx.Get(cor.CtxOut))
	assert.Equal(t, 1, second.calls)
}

func TestChainStopsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	failing, after := newUpper("failing", boom), newUpper("after", nil)

	ctx := newContext("go")
	cor.NewBaseChain("stop").AddCommand(failing).AddCommand(after).Execute(ctx)

	assert.True(t, ctx.HasErrors())
	assert.ErrorIs(t, ctx.FirstError(), boom)
	assert.Equal(t, 0, after.calls)
}

func TestChainContinueOnFailure(t *testing.T) {
	failing, after := newUpper("failing", errors.New("boom")), newUpper("after", nil)

	ctx := newContext("go")
	ctx.Add("keep", "value")
	cor.NewBaseChain("continue").ContinueOnFailure(true).AddCommand(failing).AddCommand(after).Execute(ctx)

	assert.True(t, ctx.HasErrors())
	// The failed command produced no output, so the next one has no input and is skipped.
	assert.Equal(t, 0, after.calls)
	assert.Equal(t, "value", ctx.Get("keep"))
}

func TestChainSkipsNonExecutableCommands(t *testing.T) {
	cmd := newUpper("needs-input", nil)
	ctx := newContext(nil)
	cor.NewBaseChain("skip").AddCommand(cmd).Execute(ctx)

	assert.False(t, ctx.HasErrors())
	assert.Equal(t, 0, cmd.calls)
}

func TestContextFirstErrorKeepsOrder(t *testing.T) {
	ctx := cor.NewBaseContext()
	first, second := errors.New("first"), errors.New("second")
	ctx.AddError("b", first)
	ctx.AddError("a", second)
	ctx.AddError("b", errors.New("replaced"))

	assert.EqualError(t, ctx.FirstError(), "replaced")
	assert.Len(t, ctx.GetErrors(), 2)
	assert.Nil(t, cor.NewBaseContext().FirstError())
}

func TestContextConcurrentAccess(t *testing.T) {
	ctx := cor.NewBaseContext()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			ctx.Add(key, i)
			_ = ctx.Get(key)
			_ = ctx.HasErrors()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 19, ctx.Get("t"))
}

func TestContextCloseRemovesTempFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "scratch.bin")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	ctx := cor.NewBaseContext()
	ctx.AddTempFile(file)
	ctx.AddTempFile(filepath.Join(t.TempDir(), "never-created"))
	ctx.Close()

	_, err := os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}
