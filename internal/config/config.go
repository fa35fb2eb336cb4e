package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelbrown/rustplay/internal/executor"
	"github.com/michaelbrown/rustplay/internal/sandbox"
)

// EnvPrefix prefixes every environment override, e.g. RUSTPLAY_SERVER_ADDR.
const EnvPrefix = "RUSTPLAY"

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StepConfig holds the limits for one pipeline step.
type StepConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	CPUSeconds int           `mapstructure:"cpu_seconds"`
	MemoryMB   int           `mapstructure:"memory_mb"`
	FileSizeMB int           `mapstructure:"file_size_mb"`
}

type DockerConfig struct {
	Image     string `mapstructure:"image"`
	CPUs      string `mapstructure:"cpus"`
	PidsLimit int    `mapstructure:"pids_limit"`
	Network   bool   `mapstructure:"network"`
}

type ExecutionConfig struct {
	Backend        string       `mapstructure:"backend"`
	WorkspaceRoot  string       `mapstructure:"workspace_root"`
	Compiler       string       `mapstructure:"compiler"`
	CompilerArgs   []string     `mapstructure:"compiler_args"`
	Workers        int          `mapstructure:"workers"`
	QueueSize      int          `mapstructure:"queue_size"`
	MaxSourceBytes int64        `mapstructure:"max_source_bytes"`
	MaxOutputBytes int          `mapstructure:"max_output_bytes"`
	Compile        StepConfig   `mapstructure:"compile"`
	Run            StepConfig   `mapstructure:"run"`
	Docker         DockerConfig `mapstructure:"docker"`
}

type RateLimitConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	GlobalRPS  float64 `mapstructure:"global_rps"`
	PerIPRPS   float64 `mapstructure:"per_ip_rps"`
	PerIPBurst int     `mapstructure:"per_ip_burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Execution ExecutionConfig `mapstructure:"execution"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	def := sandbox.DefaultPolicy()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("execution.backend", sandbox.BackendLocal)
	v.SetDefault("execution.workspace_root", filepath.Join(os.TempDir(), "rustplay"))
	v.SetDefault("execution.compiler", "rustc")
	v.SetDefault("execution.compiler_args", []string{"--edition=2021"})
	v.SetDefault("execution.workers", runtime.NumCPU())
	v.SetDefault("execution.queue_size", 64)
	v.SetDefault("execution.max_source_bytes", 64<<10)
	v.SetDefault("execution.max_output_bytes", def.Run.MaxOutputBytes)

	for name, l := range map[string]sandbox.Limits{"compile": def.Compile, "run": def.Run} {
		v.SetDefault("execution."+name+".timeout", l.Timeout)
		v.SetDefault("execution."+name+".cpu_seconds", l.CPUSeconds)
		v.SetDefault("execution."+name+".memory_mb", l.MemoryMB)
		v.SetDefault("execution."+name+".file_size_mb", l.FileSizeMB)
	}

	v.SetDefault("execution.docker.image", def.Image)
	v.SetDefault("execution.docker.cpus", def.CPUs)
	v.SetDefault("execution.docker.pids_limit", def.PidsLimit)
	v.SetDefault("execution.docker.network", def.Network)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.global_rps", 50.0)
	v.SetDefault("ratelimit.per_ip_rps", 2.0)
	v.SetDefault("ratelimit.per_ip_burst", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration from defaults, an optional rustplay.yaml (path,
// or ./ and $HOME/.rustplay when path is empty) and RUSTPLAY_* environment
// variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rustplay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.rustplay")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	e := c.Execution

	switch e.Backend {
	case sandbox.BackendLocal, sandbox.BackendDocker:
	default:
		errs = append(errs, fmt.Errorf("execution.backend: unknown backend %q", e.Backend))
	}
	if e.WorkspaceRoot == "" {
		errs = append(errs, errors.New("execution.workspace_root: must be set"))
	}
	if e.Compiler == "" {
		errs = append(errs, errors.New("execution.compiler: must be set"))
	}
	if e.Workers < 1 {
		errs = append(errs, fmt.Errorf("execution.workers: must be at least 1, got %d", e.Workers))
	}
	if e.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("execution.queue_size: must be at least 1, got %d", e.QueueSize))
	}
	if e.MaxSourceBytes < 1 {
		errs = append(errs, fmt.Errorf("execution.max_source_bytes: must be positive, got %d", e.MaxSourceBytes))
	}
	if e.MaxOutputBytes < 1 {
		errs = append(errs, fmt.Errorf("execution.max_output_bytes: must be positive, got %d", e.MaxOutputBytes))
	}
	for name, s := range map[string]StepConfig{"compile": e.Compile, "run": e.Run} {
		if s.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("execution.%s.timeout: must be positive", name))
		}
		if s.CPUSeconds < 0 || s.MemoryMB < 0 || s.FileSizeMB < 0 {
			errs = append(errs, fmt.Errorf("execution.%s: limits must not be negative", name))
		}
	}
	if w := c.Server.WriteTimeout; w > 0 && w <= e.Compile.Timeout+e.Run.Timeout {
		errs = append(errs, fmt.Errorf("server.write_timeout: %s does not cover compile and run timeouts (%s)",
			w, e.Compile.Timeout+e.Run.Timeout))
	}
	if c.RateLimit.Enabled && (c.RateLimit.PerIPRPS <= 0 || c.RateLimit.PerIPBurst < 1) {
		errs = append(errs, errors.New("ratelimit: per_ip_rps and per_ip_burst must be positive when enabled"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (s StepConfig) limits(maxOutput int) sandbox.Limits {
	return sandbox.Limits{
		Timeout:        s.Timeout,
		CPUSeconds:     s.CPUSeconds,
		MemoryMB:       s.MemoryMB,
		FileSizeMB:     s.FileSizeMB,
		MaxOutputBytes: maxOutput,
	}
}

// Policy assembles the sandbox policy from the execution settings.
func (c *Config) Policy() sandbox.Policy {
	e := c.Execution
	return sandbox.Policy{
		Compile:   e.Compile.limits(e.MaxOutputBytes),
		Run:       e.Run.limits(e.MaxOutputBytes),
		Network:   e.Docker.Network,
		Image:     e.Docker.Image,
		CPUs:      e.Docker.CPUs,
		PidsLimit: e.Docker.PidsLimit,
	}
}

// Toolchain returns the compiler settings for the executor.
func (c *Config) Toolchain() executor.ToolchainConfig {
	return executor.ToolchainConfig{
		Compiler:     c.Execution.Compiler,
		CompilerArgs: c.Execution.CompilerArgs,
		Policy:       c.Policy(),
	}
}
