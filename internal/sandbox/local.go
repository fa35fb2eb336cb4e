package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LocalSandbox runs processes directly on the host. Resource ceilings are
// applied with ulimit in a wrapper shell that then execs the real program,
// and each process gets its own process group so a deadline kills every
// descendant. It cannot cut network access; use DockerSandbox for that.
type LocalSandbox struct {
	Shell string
}

// NewLocalSandbox creates a sandbox using /bin/sh for the ulimit wrapper.
func NewLocalSandbox() *LocalSandbox {
	return &LocalSandbox{Shell: "/bin/sh"}
}

func (s *LocalSandbox) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	if len(opts.Command) == 0 {
		return nil, &SpawnError{Err: errors.New("empty command")}
	}

	program, err := resolveProgram(opts.Dir, opts.Command[0])
	if err != nil {
		return nil, &SpawnError{Command: opts.Command[0], Err: err}
	}

	runCtx, cancel := withTimeout(ctx, opts.Limits)
	defer cancel()

	// $0 is the script name; "$@" is the program and its arguments.
	args := append([]string{"-c", ulimitScript(opts.Limits), "rustplay-sandbox", program}, opts.Command[1:]...)
	cmd := exec.CommandContext(runCtx, s.Shell, args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	setProcessGroup(cmd)

	return runCaptured(ctx, runCtx, cmd, opts.Limits)
}

// ulimitScript builds the wrapper that applies l and execs "$@". ulimit -f
// counts 512-byte blocks as POSIX specifies; -v counts KiB.
func ulimitScript(l Limits) string {
	var b strings.Builder
	if l.CPUSeconds > 0 {
		fmt.Fprintf(&b, "ulimit -t %d && ", l.CPUSeconds)
	}
	if l.MemoryMB > 0 {
		fmt.Fprintf(&b, "ulimit -v %d && ", l.MemoryMB*1024)
	}
	if l.FileSizeMB > 0 {
		fmt.Fprintf(&b, "ulimit -f %d && ", l.FileSizeMB*2048)
	}
	b.WriteString(`exec "$@"`)
	return b.String()
}

// resolveProgram finds the executable up front so that a missing compiler or
// artifact is a spawn failure rather than a shell "not found" exit status.
func resolveProgram(dir, name string) (string, error) {
	if !strings.ContainsRune(name, '/') {
		return exec.LookPath(name)
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%s is not executable", path)
	}
	return path, nil
}
