package executor

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/michaelbrown/rustplay/internal/sandbox"
	"github.com/michaelbrown/rustplay/internal/workspace"
)

// Outcome is the classified result of one pipeline run.
type Outcome string

const (
	OutcomeWorkspaceFailed     Outcome = "workspace_failed"
	OutcomeCompilerUnavailable Outcome = "compiler_unavailable"
	OutcomeCompileTimeout      Outcome = "compile_timeout"
	OutcomeCompileFailed       Outcome = "compile_failed"
	OutcomeProgramUnavailable  Outcome = "program_unavailable"
	OutcomeRunTimeout          Outcome = "run_timeout"
	OutcomeSucceeded           Outcome = "succeeded"
	OutcomeRuntimeFailed       Outcome = "runtime_failed"
	OutcomeCanceled            Outcome = "canceled"
	OutcomeInternal            Outcome = "internal_error"
)

// Infrastructure reports whether the outcome is a failure of the service
// rather than a result of the submitted code.
func (o Outcome) Infrastructure() bool {
	switch o {
	case OutcomeWorkspaceFailed, OutcomeCompilerUnavailable, OutcomeProgramUnavailable,
		OutcomeCanceled, OutcomeInternal:
		return true
	}
	return false
}

// HTTPStatus is the transport status the outcome is reported with.
func (o Outcome) HTTPStatus() int {
	if o.Infrastructure() {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// Response is the externally visible execution result.
type Response struct {
	Success   bool   `json:"success" yaml:"success"`
	Output    string `json:"output" yaml:"output"`
	Error     string `json:"error" yaml:"error"`
	TimedOut  bool   `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Truncated bool   `json:"truncated,omitempty" yaml:"truncated,omitempty"`
}

// Result pairs a Response with how it was reached.
type Result struct {
	Outcome         Outcome
	Response        Response
	CompileDuration time.Duration
	RunDuration     time.Duration
}

// Status is shorthand for r.Outcome.HTTPStatus().
func (r *Result) Status() int { return r.Outcome.HTTPStatus() }

func infraFailure(o Outcome, msg string) *Result {
	return &Result{Outcome: o, Response: Response{Error: msg}}
}

// classifyWorkspaceError renders a workspace failure the way callers expect
// to read it.
func classifyWorkspaceError(err error) *Result {
	var wsErr *workspace.Error
	if errors.As(err, &wsErr) {
		switch wsErr.Step {
		case workspace.StepCreateDir:
			return infraFailure(OutcomeWorkspaceFailed, fmt.Sprintf("Failed to create temporary directory: %v", wsErr.Err))
		case workspace.StepCreateFile:
			return infraFailure(OutcomeWorkspaceFailed, fmt.Sprintf("Failed to create file: %v", wsErr.Err))
		case workspace.StepWriteFile:
			return infraFailure(OutcomeWorkspaceFailed, fmt.Sprintf("Failed to write to file: %v", wsErr.Err))
		}
	}
	return infraFailure(OutcomeWorkspaceFailed, fmt.Sprintf("Failed to create workspace: %v", err))
}

// classifyCompile returns the final result when compilation did not succeed,
// or nil when the pipeline should go on to run the program.
func classifyCompile(res *sandbox.ExecResult, err error) *Result {
	if err != nil {
		return infraFailure(OutcomeCompilerUnavailable, fmt.Sprintf("Failed to compile program: %v", err))
	}

	r := &Result{CompileDuration: res.Duration}
	switch {
	case res.TimedOut:
		r.Outcome = OutcomeCompileTimeout
		r.Response = Response{
			Error:     appendNote(res.Stderr, "Compilation timed out"),
			TimedOut:  true,
			Truncated: res.Truncated,
		}
	case res.ExitCode != 0:
		r.Outcome = OutcomeCompileFailed
		r.Response = Response{
			Error:     appendNote(res.Stderr, signalNote(res)),
			Truncated: res.Truncated,
		}
	default:
		return nil
	}
	return r
}

// classifyRun maps the program's own result onto a Response.
func classifyRun(res *sandbox.ExecResult, err error) *Result {
	if err != nil {
		return infraFailure(OutcomeProgramUnavailable, fmt.Sprintf("Failed to execute program: %v", err))
	}

	r := &Result{
		RunDuration: res.Duration,
		Response: Response{
			Success:   res.Success(),
			Output:    res.Stdout,
			Error:     res.Stderr,
			Truncated: res.Truncated,
		},
	}

	switch {
	case res.TimedOut:
		r.Outcome = OutcomeRunTimeout
		r.Response.TimedOut = true
		r.Response.Error = appendNote(res.Stderr, "Execution timed out")
	case res.ExitCode == 0:
		r.Outcome = OutcomeSucceeded
	default:
		r.Outcome = OutcomeRuntimeFailed
		r.Response.Error = appendNote(res.Stderr, signalNote(res))
	}
	return r
}

func signalNote(res *sandbox.ExecResult) string {
	if res.Signal == "" {
		return ""
	}
	return "process terminated by signal " + res.Signal
}

// appendNote puts note on its own line after text. text is returned
// unchanged when there is no note.
func appendNote(text, note string) string {
	switch {
	case note == "":
		return text
	case text == "":
		return note
	case strings.HasSuffix(text, "\n"):
		return text + note
	default:
		return text + "\n" + note
	}
}
