package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "rustplay",
	Short: "rustplay - compile and run Rust snippets",
	Long: `rustplay compiles single-file Rust programs with rustc and runs them
under resource limits.

It serves the playground HTTP API, runs files from the command line, and
offers an interactive prompt.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (default ./rustplay.yaml or $HOME/.rustplay/rustplay.yaml)")
}

// exitCodeError ends the process with a specific status and no message.
type exitCodeError struct{ code int }

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
