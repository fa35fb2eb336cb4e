package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/michaelbrown/rustplay/internal/config"
	"github.com/michaelbrown/rustplay/internal/executor"
	"github.com/michaelbrown/rustplay/internal/logging"
)

// setup loads configuration and builds the logger and execution pipeline
// every subcommand shares.
func setup() (*config.Config, *zerolog.Logger, *executor.Executor, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("configuring logging: %w", err)
	}

	exec, err := executor.NewFromPolicy(cfg.Execution.Backend, cfg.Execution.WorkspaceRoot, cfg.Toolchain(), &logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating executor: %w", err)
	}
	return cfg, &logger, exec, nil
}
