package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/rustplay/internal/executor"
)

var formatFlag string

var runCmd = &cobra.Command{
	Use:   "run [file.rs]",
	Short: "Compile and run a Rust file",
	Long: `Compile and run a single Rust source file with the same limits the
server applies. Reads standard input when the file is "-" or omitted.

Exits 0 when the program succeeds, 1 when compilation or the program
fails, and 2 when the toolchain itself could not be used.

Examples:
  rustplay run hello.rs
  rustplay run --format json hello.rs
  echo 'fn main() { println!("hi"); }' | rustplay run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&formatFlag, "format", "f", formatText, "Output format: text, json or yaml")
	rootCmd.AddCommand(runCmd)
}

func readSource(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading source: %w", err)
	}
	return string(data), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	code, err := readSource(args)
	if err != nil {
		return err
	}

	cfg, _, exec, err := setup()
	if err != nil {
		return err
	}
	if int64(len(code)) > cfg.Execution.MaxSourceBytes {
		return fmt.Errorf("source exceeds %d bytes", cfg.Execution.MaxSourceBytes)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := exec.Execute(ctx, executor.Request{Code: code})
	if err := writeResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), formatFlag, r); err != nil {
		return err
	}
	if c := exitCode(r); c != 0 {
		return &exitCodeError{code: c}
	}
	return nil
}
