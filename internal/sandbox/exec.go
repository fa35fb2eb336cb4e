package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait keeps reading output after the process
// exited or was killed, in case a descendant still holds the pipes.
const waitDelay = 2 * time.Second

// withTimeout derives the per-process deadline.
func withTimeout(ctx context.Context, l Limits) (context.Context, context.CancelFunc) {
	if l.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.Timeout)
}

// runCaptured runs cmd with capped stdout/stderr and converts the outcome into
// an ExecResult. parent is the caller's context and runCtx the one cmd was
// built with; a deadline on runCtx alone is a timeout, while cancellation of
// parent is returned as an error.
func runCaptured(parent, runCtx context.Context, cmd *exec.Cmd, l Limits) (*ExecResult, error) {
	stdout := newCappedBuffer(l.MaxOutputBytes)
	stderr := newCappedBuffer(l.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	killGroup(cmd)

	res := &ExecResult{Duration: time.Since(start)}
	collect := func() {
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()
		res.Truncated = stdout.Truncated() || stderr.Truncated()
	}

	if err == nil {
		collect()
		return res, nil
	}

	if parent.Err() != nil {
		return nil, parent.Err()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		collect()
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		collect()
		res.ExitCode = exitErr.ExitCode()
		if name, code, ok := signalOf(exitErr.ProcessState); ok {
			res.Signal = name
			res.ExitCode = code
		}
		return res, nil
	case errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil:
		// The process itself finished; only a lingering descendant was cut off.
		collect()
		res.ExitCode = cmd.ProcessState.ExitCode()
		return res, nil
	default:
		return nil, &SpawnError{Command: cmd.Path, Err: err}
	}
}
