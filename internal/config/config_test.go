package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/rustplay/internal/sandbox"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, sandbox.BackendLocal, cfg.Execution.Backend)
	assert.Equal(t, "rustc", cfg.Execution.Compiler)
	assert.Equal(t, []string{"--edition=2021"}, cfg.Execution.CompilerArgs)
	assert.Equal(t, int64(64<<10), cfg.Execution.MaxSourceBytes)
	assert.GreaterOrEqual(t, cfg.Execution.Workers, 1)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, sandbox.DefaultPolicy(), cfg.Policy())
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rustplay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: 127.0.0.1:9000
execution:
  backend: docker
  workers: 3
  compiler_args: ["--edition=2021", "-O"]
  run:
    timeout: 3s
    memory_mb: 128
  docker:
    image: rust:1.80
ratelimit:
  enabled: false
log:
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, sandbox.BackendDocker, cfg.Execution.Backend)
	assert.Equal(t, 3, cfg.Execution.Workers)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)

	tc := cfg.Toolchain()
	assert.Equal(t, []string{"--edition=2021", "-O"}, tc.CompilerArgs)
	assert.Equal(t, 3*time.Second, tc.Policy.Run.Timeout)
	assert.Equal(t, 128, tc.Policy.Run.MemoryMB)
	assert.Equal(t, 5, tc.Policy.Run.CPUSeconds, "unset keys keep their defaults")
	assert.Equal(t, "rust:1.80", tc.Policy.Image)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RUSTPLAY_SERVER_ADDR", ":7000")
	t.Setenv("RUSTPLAY_EXECUTION_WORKERS", "7")
	t.Setenv("RUSTPLAY_EXECUTION_RUN_TIMEOUT", "2s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, 7, cfg.Execution.Workers)
	assert.Equal(t, 2*time.Second, cfg.Execution.Run.Timeout)
}

func TestMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Execution.Backend = "vm" }, "execution.backend"},
		{"no workers", func(c *Config) { c.Execution.Workers = 0 }, "execution.workers"},
		{"no queue", func(c *Config) { c.Execution.QueueSize = 0 }, "execution.queue_size"},
		{"no compiler", func(c *Config) { c.Execution.Compiler = "" }, "execution.compiler"},
		{"zero run timeout", func(c *Config) { c.Execution.Run.Timeout = 0 }, "execution.run.timeout"},
		{"negative memory", func(c *Config) { c.Execution.Compile.MemoryMB = -1 }, "execution.compile"},
		{"short write timeout", func(c *Config) { c.Server.WriteTimeout = 5 * time.Second }, "server.write_timeout"},
		{"zero burst", func(c *Config) { c.RateLimit.PerIPBurst = 0 }, "ratelimit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("write timeout disabled", func(t *testing.T) {
		cfg := *base
		cfg.Server.WriteTimeout = 0
		assert.NoError(t, cfg.Validate())
	})
}
