package main

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/rustplay/internal/executor"
)

type runFunc func(ctx context.Context, req executor.Request) *executor.Result

func (f runFunc) Execute(ctx context.Context, req executor.Request) *executor.Result {
	return f(ctx, req)
}

func call(t *testing.T, exec runner, args any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = "rust_run"
	req.Params.Arguments = args

	res, err := newRunHandler(exec, 1024)(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestRustRunSuccess(t *testing.T) {
	res := call(t, runFunc(func(_ context.Context, req executor.Request) *executor.Result {
		return &executor.Result{
			Outcome:  executor.OutcomeSucceeded,
			Response: executor.Response{Success: true, Output: "hello\n"},
		}
	}), map[string]any{"code": "fn main() {}"})

	assert.False(t, res.IsError)
	assert.Equal(t, "hello\n", text(t, res))
}

func TestRustRunCompileFailure(t *testing.T) {
	res := call(t, runFunc(func(context.Context, executor.Request) *executor.Result {
		return &executor.Result{
			Outcome:  executor.OutcomeCompileFailed,
			Response: executor.Response{Error: "error: expected `;`"},
		}
	}), map[string]any{"code": "fn main() {"})

	assert.True(t, res.IsError)
	assert.Equal(t, "STDERR:\nerror: expected `;`\noutcome: compile_failed", text(t, res))
}

func TestRustRunRejectsBadArguments(t *testing.T) {
	never := runFunc(func(context.Context, executor.Request) *executor.Result {
		t.Fatal("executor must not be called")
		return nil
	})

	for name, args := range map[string]any{
		"no arguments": nil,
		"empty code":   map[string]any{"code": ""},
		"wrong type":   map[string]any{"code": 42},
		"too large":    map[string]any{"code": strings.Repeat("a", 2048)},
	} {
		t.Run(name, func(t *testing.T) {
			res := call(t, never, args)
			assert.True(t, res.IsError)
			assert.True(t, strings.HasPrefix(text(t, res), "error:"))
		})
	}
}

func TestFormatResultTruncates(t *testing.T) {
	r := &executor.Result{
		Outcome:  executor.OutcomeSucceeded,
		Response: executor.Response{Success: true, Output: strings.Repeat("x", maxToolOutput+100)},
	}
	out := formatResult(r)
	assert.True(t, strings.HasSuffix(out, "... (output truncated)"))
	assert.Len(t, out, maxToolOutput+len("\n... (output truncated)"))
}

func TestFormatResultTruncatesOnRuneBoundary(t *testing.T) {
	// 'é' is two bytes, so the cap lands inside a rune.
	r := &executor.Result{
		Outcome:  executor.OutcomeSucceeded,
		Response: executor.Response{Success: true, Output: "x" + strings.Repeat("é", maxToolOutput)},
	}
	out := formatResult(r)

	assert.True(t, utf8.ValidString(out))
	body := strings.TrimSuffix(out, "\n... (output truncated)")
	assert.Len(t, body, maxToolOutput-1)
	assert.True(t, strings.HasPrefix(body, "xé"))
}
