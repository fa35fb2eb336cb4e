package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

const containerWorkdir = "/workspace"

// cleanupTimeout bounds the docker rm that follows every execution.
const cleanupTimeout = 10 * time.Second

// DockerSandbox runs code in throwaway Docker containers with the workspace
// bind-mounted at /workspace. The container is created first and started
// second, so failures of docker itself surface before the program runs and
// every exit status after start belongs to the program.
type DockerSandbox struct {
	Policy Policy
	Binary string
}

// NewDockerSandbox creates a sandbox with the given policy.
func NewDockerSandbox(policy Policy) *DockerSandbox {
	return &DockerSandbox{Policy: policy, Binary: "docker"}
}

// containerState is the subset of docker inspect's .State we read.
type containerState struct {
	ExitCode  int    `json:"ExitCode"`
	Error     string `json:"Error"`
	OOMKilled bool   `json:"OOMKilled"`
}

func (d *DockerSandbox) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	if len(opts.Command) == 0 {
		return nil, &SpawnError{Err: errors.New("empty command")}
	}

	// Programs inside the workspace are checked on the host, where the
	// mount source lives.
	if strings.ContainsRune(opts.Command[0], '/') {
		if _, err := resolveProgram(opts.Dir, opts.Command[0]); err != nil {
			return nil, &SpawnError{Command: opts.Command[0], Err: err}
		}
	}

	binary, err := exec.LookPath(d.Binary)
	if err != nil {
		return nil, &SpawnError{Command: d.Binary, Err: err}
	}

	name := "rustplay-" + uuid.NewString()
	if _, err := docker(ctx, binary, d.createArgs(name, opts)...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &SpawnError{Command: opts.Command[0], Err: err}
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		_, _ = docker(rmCtx, binary, "rm", "-f", name)
	}()

	runCtx, cancel := withTimeout(ctx, opts.Limits)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, "start", "--attach", name)
	cmd.Cancel = func() error {
		// Killing the CLI leaves the container running; kill it by name.
		_ = exec.Command(binary, "kill", name).Run()
		return cmd.Process.Kill()
	}

	res, err := runCaptured(ctx, runCtx, cmd, opts.Limits)
	if err != nil {
		return nil, err
	}
	if res.TimedOut {
		return res, nil
	}

	// The CLI's own status mixes docker and program failures; the container
	// state tells them apart.
	state, err := inspectState(ctx, binary, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &SpawnError{Command: opts.Command[0], Err: err}
	}
	if state.Error != "" {
		return nil, &SpawnError{Command: opts.Command[0], Err: errors.New(state.Error)}
	}

	res.ExitCode = state.ExitCode
	res.Signal = ""
	if state.OOMKilled {
		res.Signal = "SIGKILL"
	}
	return res, nil
}

// docker runs one docker CLI command and returns its stdout. A failure
// carries the command's stderr.
func docker(ctx context.Context, binary string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func inspectState(ctx context.Context, binary, name string) (*containerState, error) {
	out, err := docker(ctx, binary, "inspect", "--format", "{{json .State}}", name)
	if err != nil {
		return nil, err
	}
	var state containerState
	if err := json.Unmarshal(bytes.TrimSpace(out), &state); err != nil {
		return nil, fmt.Errorf("parsing container state: %w", err)
	}
	return &state, nil
}

func (d *DockerSandbox) createArgs(name string, opts ExecOpts) []string {
	l := opts.Limits
	mount := opts.Dir + ":" + containerWorkdir
	if opts.ReadOnly {
		mount += ":ro"
	}

	args := []string{
		"create",
		"--name", name,
		"--user", fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		"--read-only",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=64m",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"-v", mount,
		"-w", containerWorkdir,
	}

	if !d.Policy.Network {
		args = append(args, "--network=none")
	}
	if l.MemoryMB > 0 {
		mem := fmt.Sprintf("%dm", l.MemoryMB)
		args = append(args, "--memory", mem, "--memory-swap", mem)
	}
	if d.Policy.CPUs != "" {
		args = append(args, "--cpus", d.Policy.CPUs)
	}
	if d.Policy.PidsLimit > 0 {
		args = append(args, "--pids-limit", fmt.Sprintf("%d", d.Policy.PidsLimit))
	}
	if l.CPUSeconds > 0 {
		args = append(args, "--ulimit", fmt.Sprintf("cpu=%d:%d", l.CPUSeconds, l.CPUSeconds))
	}
	if l.FileSizeMB > 0 {
		size := l.FileSizeMB << 20
		args = append(args, "--ulimit", fmt.Sprintf("fsize=%d:%d", size, size))
	}
	for _, kv := range opts.Env {
		args = append(args, "-e", kv)
	}

	args = append(args, d.Policy.Image)
	return append(args, opts.Command...)
}
