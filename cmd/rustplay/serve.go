package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/rustplay/internal/server"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playground HTTP server",
	Long: `Start the playground HTTP server.

Endpoints:
  GET  /health    liveness probe
  POST /execute   compile and run {"code": "..."}
  GET  /ws        websocket, one {"code": "..."} message per execution
  GET  /metrics   Prometheus metrics

Examples:
  rustplay serve
  rustplay serve --addr 127.0.0.1:9090
  RUSTPLAY_EXECUTION_BACKEND=docker rustplay serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Address to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, exec, err := setup()
	if err != nil {
		return err
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}

	srv := server.New(cfg, exec, logger)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigCh
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	if err := srv.Start(); err != nil {
		return err
	}
	<-done
	return nil
}
