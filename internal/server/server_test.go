package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/rustplay/internal/config"
	"github.com/michaelbrown/rustplay/internal/executor"
	"github.com/michaelbrown/rustplay/internal/sandbox"
	"github.com/michaelbrown/rustplay/internal/workspace"
)

type execFunc func(ctx context.Context, req executor.Request) *executor.Result

func (f execFunc) Execute(ctx context.Context, req executor.Request) *executor.Result {
	return f(ctx, req)
}

func echoExec(_ context.Context, req executor.Request) *executor.Result {
	return &executor.Result{
		Outcome:  executor.OutcomeSucceeded,
		Response: executor.Response{Success: true, Output: req.Code},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ShutdownTimeout: time.Second},
		Execution: config.ExecutionConfig{
			Workers:        2,
			QueueSize:      4,
			MaxSourceBytes: 1024,
		},
	}
}


func startServer(t *testing.T, cfg *config.Config, exec execFunc) *Server {
	t.Helper()
	logger := zerolog.Nop()
	s := New(cfg, exec, &logger)
	s.startWorkers()
	t.Cleanup(func() {
		require.NoError(t, s.Shutdown(context.Background()))
	})
	return s
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) executor.Response {
	t.Helper()
	var resp executor.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestHealth(t *testing.T) {
	s := startServer(t, testConfig(), echoExec)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Rust Playground API is running", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}

func TestCORSPreflight(t *testing.T) {
	s := startServer(t, testConfig(), echoExec)

	req := httptest.NewRequest(http.MethodOptions, "/execute", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCORSOnSimpleRequest(t *testing.T) {
	s := startServer(t, testConfig(), echoExec)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.org")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestExecute(t *testing.T) {
	s := startServer(t, testConfig(), echoExec)

	rec := post(t, s.Handler(), `{"code":"fn main() {}"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"output":"fn main() {}","error":""}`, rec.Body.String())
}

func TestExecuteStatusFollowsOutcome(t *testing.T) {
	tests := []struct {
		outcome executor.Outcome
		status  int
	}{
		{executor.OutcomeSucceeded, http.StatusOK},
		{executor.OutcomeCompileFailed, http.StatusOK},
		{executor.OutcomeRuntimeFailed, http.StatusOK},
		{executor.OutcomeRunTimeout, http.StatusOK},
		{executor.OutcomeWorkspaceFailed, http.StatusInternalServerError},
		{executor.OutcomeCompilerUnavailable, http.StatusInternalServerError},
		{executor.OutcomeProgramUnavailable, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			s := startServer(t, testConfig(), func(context.Context, executor.Request) *executor.Result {
				return &executor.Result{Outcome: tt.outcome, Response: executor.Response{Error: "x"}}
			})
			rec := post(t, s.Handler(), `{"code":""}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "x", decodeResponse(t, rec).Error)
		})
	}
}

func TestExecuteRejectsBadInput(t *testing.T) {
	s := startServer(t, testConfig(), echoExec)

	rec := post(t, s.Handler(), `{"code":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid JSON")

	big, err := json.Marshal(executor.Request{Code: strings.Repeat("a", 2048)})
	require.NoError(t, err)
	rec = post(t, s.Handler(), string(big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	huge, err := json.Marshal(executor.Request{Code: strings.Repeat("a", 64<<10)})
	require.NoError(t, err)
	rec = post(t, s.Handler(), string(huge))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestExecuteQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Execution.Workers = 1
	cfg.Execution.QueueSize = 1

	release := make(chan struct{})
	var started atomic.Int32
	s := startServer(t, cfg, func(_ context.Context, req executor.Request) *executor.Result {
		started.Add(1)
		<-release
		return echoExec(context.Background(), req)
	})

	var wg sync.WaitGroup
	codes := make(chan int, 2)
	send := func() {
		defer wg.Done()
		codes <- post(t, s.Handler(), `{"code":"slow"}`).Code
	}

	wg.Add(1)
	go send()
	require.Eventually(t, func() bool { return started.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	wg.Add(1)
	go send()
	require.Eventually(t, func() bool { return s.queue.Len() == 1 }, 5*time.Second, 5*time.Millisecond)

	rec := post(t, s.Handler(), `{"code":"rejected"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "execution queue is full", decodeResponse(t, rec).Error)

	close(release)
	wg.Wait()
	close(codes)
	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
}

func TestExecuteRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, PerIPRPS: 0.001, PerIPBurst: 1}
	s := startServer(t, cfg, echoExec)

	assert.Equal(t, http.StatusOK, post(t, s.Handler(), `{"code":""}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, s.Handler(), `{"code":""}`).Code)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")
}

// countingSandbox fails the compile step with a fixed diagnostic.
type countingSandbox struct{ calls atomic.Int32 }

func (c *countingSandbox) Exec(context.Context, sandbox.ExecOpts) (*sandbox.ExecResult, error) {
	c.calls.Add(1)
	return &sandbox.ExecResult{ExitCode: 1, Stderr: "error[E0425]: cannot find value `x`\n"}, nil
}

func pipeline(t *testing.T, root string, sb sandbox.Sandbox) *executor.Executor {
	t.Helper()
	logger := zerolog.Nop()
	tc := executor.NewToolchain(sb, executor.ToolchainConfig{Policy: sandbox.DefaultPolicy()})
	return executor.New(workspace.NewManager(root), tc, &logger)
}

func TestExecuteWorkspaceRootUnusable(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	require.NoError(t, os.WriteFile(root, nil, 0o644))
	sb := &countingSandbox{}
	exec := pipeline(t, root, sb)
	s := startServer(t, testConfig(), exec.Execute)

	rec := post(t, s.Handler(), `{"code":"fn main() { println!(\"hi\"); }"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Output)
	assert.NotEmpty(t, resp.Error)
	assert.Zero(t, sb.calls.Load())
}

func TestExecuteCompileError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	sb := &countingSandbox{}
	exec := pipeline(t, root, sb)
	s := startServer(t, testConfig(), exec.Execute)

	rec := post(t, s.Handler(), `{"code":"fn main() { x }"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false,"output":"","error":"error[E0425]: cannot find value `+"`x`"+`\n"}`, rec.Body.String())
	assert.Equal(t, int32(1), sb.calls.Load(), "run step must not follow a failed compile")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMetricsEndpoint(t *testing.T) {
	s := startServer(t, testConfig(), echoExec)
	post(t, s.Handler(), `{"code":"m"}`)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(body, []byte("rustplay_executions_total")))
	assert.True(t, bytes.Contains(body, []byte("rustplay_queue_depth")))
}
