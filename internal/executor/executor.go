// Package executor turns submitted source text into a classified execution
// result: workspace allocation, compile, run, classification and cleanup.
package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/michaelbrown/rustplay/internal/metrics"
	"github.com/michaelbrown/rustplay/internal/sandbox"
	"github.com/michaelbrown/rustplay/internal/workspace"
)

// Request is one submission.
type Request struct {
	Code string `json:"code"`
}

// Executor runs the compile-and-execute pipeline. It holds no per-request
// state and is safe for concurrent use.
type Executor struct {
	workspaces *workspace.Manager
	toolchain  *Toolchain
	logger     *zerolog.Logger
}

// New creates an Executor.
func New(workspaces *workspace.Manager, toolchain *Toolchain, logger *zerolog.Logger) *Executor {
	return &Executor{
		workspaces: workspaces,
		toolchain:  toolchain,
		logger:     logger,
	}
}

// Workspaces returns the manager the executor allocates from.
func (e *Executor) Workspaces() *workspace.Manager { return e.workspaces }

// Execute runs req to completion. The workspace is removed before Execute
// returns, including when a stage panics.
func (e *Executor) Execute(ctx context.Context, req Request) *Result {
	ws, err := e.workspaces.Create(req.Code)
	if err != nil {
		r := classifyWorkspaceError(err)
		e.logger.Error().Err(err).Str("outcome", string(r.Outcome)).Msg("workspace allocation failed")
		return r
	}

	metrics.ActiveWorkspaces.Set(float64(e.workspaces.Active()))

	log := e.logger.With().Str("workspace", ws.ID()).Logger()
	defer func() {
		if err := ws.Remove(); err != nil {
			log.Error().Err(err).Msg("removing workspace")
		}
		metrics.ActiveWorkspaces.Set(float64(e.workspaces.Active()))
	}()

	compiled, err := e.toolchain.Compile(ctx, ws)
	if r := canceled(ctx, err); r != nil {
		return logResult(&log, r, err)
	}
	if r := classifyCompile(compiled, err); r != nil {
		return logResult(&log, r, err)
	}

	ran, err := e.toolchain.Run(ctx, ws)
	if r := canceled(ctx, err); r != nil {
		r.CompileDuration = compiled.Duration
		return logResult(&log, r, err)
	}

	r := classifyRun(ran, err)
	r.CompileDuration = compiled.Duration
	return logResult(&log, r, err)
}

// canceled reports a result when the caller gave up mid-pipeline.
func canceled(ctx context.Context, err error) *Result {
	if err == nil || ctx.Err() == nil {
		return nil
	}
	return infraFailure(OutcomeCanceled, fmt.Sprintf("Request canceled: %v", ctx.Err()))
}

func logResult(log *zerolog.Logger, r *Result, err error) *Result {
	var ev *zerolog.Event
	switch {
	case r.Outcome.Infrastructure():
		ev = log.Error().Err(err)
	case r.Response.TimedOut:
		ev = log.Warn()
	default:
		ev = log.Info()
	}
	ev.Str("outcome", string(r.Outcome)).
		Dur("compile", r.CompileDuration).
		Dur("run", r.RunDuration).
		Bool("truncated", r.Response.Truncated).
		Msg("execution finished")
	return r
}

// NewFromPolicy wires the default pipeline: a sandbox for backend, a rustc
// toolchain and a workspace manager rooted at root.
func NewFromPolicy(backend, root string, tc ToolchainConfig, logger *zerolog.Logger) (*Executor, error) {
	sb, err := sandbox.New(backend, tc.Policy)
	if err != nil {
		return nil, err
	}
	return New(workspace.NewManager(root), NewToolchain(sb, tc), logger), nil
}
