// Package sandbox runs the compiler and compiled programs inside an isolation
// boundary with CPU, memory, file-size, output and wall-clock ceilings.
package sandbox

import (
	"context"
	"fmt"
	"time"
)

// ExecOpts describes one subprocess invocation.
type ExecOpts struct {
	// Command is the program and its arguments. A program containing a slash
	// is resolved relative to Dir.
	Command []string
	Dir     string   // working directory, normally a workspace
	Env     []string // nil inherits the service environment
	Limits  Limits

	// ReadOnly forbids writes to Dir where the backend can enforce it.
	ReadOnly bool
}

// ExecResult is the captured outcome of one process.
type ExecResult struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Signal    string // set when the process was killed by a signal
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Success reports whether the process exited zero within its deadline.
func (r *ExecResult) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Sandbox runs commands in an isolated environment.
//
// A non-nil error means the process could not be spawned at all. A process
// that ran and failed is reported through ExecResult.
type Sandbox interface {
	Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error)
}

// SpawnError reports that a command could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// New returns the sandbox for the named backend.
func New(backend string, policy Policy) (Sandbox, error) {
	switch backend {
	case "", BackendLocal:
		return NewLocalSandbox(), nil
	case BackendDocker:
		return NewDockerSandbox(policy), nil
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", backend)
	}
}
