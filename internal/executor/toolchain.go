package executor

import (
	"context"

	"github.com/michaelbrown/rustplay/internal/sandbox"
	"github.com/michaelbrown/rustplay/internal/workspace"
)

// runEnv is the entire environment a compiled program sees.
var runEnv = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "LANG=C.UTF-8"}

// ToolchainConfig selects the compiler and the limits for each step.
type ToolchainConfig struct {
	Compiler     string   // e.g. "rustc"
	CompilerArgs []string // inserted before the source file
	Policy       sandbox.Policy
}

// Toolchain invokes the compiler and the compiled artifact through a sandbox.
type Toolchain struct {
	sandbox sandbox.Sandbox
	cfg     ToolchainConfig
}

// NewToolchain creates a Toolchain that runs everything through sb.
func NewToolchain(sb sandbox.Sandbox, cfg ToolchainConfig) *Toolchain {
	if cfg.Compiler == "" {
		cfg.Compiler = "rustc"
	}
	return &Toolchain{sandbox: sb, cfg: cfg}
}

// Compile builds the workspace's source file into its artifact path.
func (t *Toolchain) Compile(ctx context.Context, ws *workspace.Workspace) (*sandbox.ExecResult, error) {
	cmd := make([]string, 0, len(t.cfg.CompilerArgs)+4)
	cmd = append(cmd, t.cfg.Compiler)
	cmd = append(cmd, t.cfg.CompilerArgs...)
	cmd = append(cmd, ws.SourceFile(), "-o", ws.Artifact())

	return t.sandbox.Exec(ctx, sandbox.ExecOpts{
		Command: cmd,
		Dir:     ws.Dir(),
		Limits:  t.cfg.Policy.Compile,
	})
}

// Run executes the compiled artifact with no arguments and no stdin.
func (t *Toolchain) Run(ctx context.Context, ws *workspace.Workspace) (*sandbox.ExecResult, error) {
	return t.sandbox.Exec(ctx, sandbox.ExecOpts{
		Command:  []string{"./" + ws.Artifact()},
		Dir:      ws.Dir(),
		Env:      runEnv,
		Limits:   t.cfg.Policy.Run,
		ReadOnly: true,
	})
}
