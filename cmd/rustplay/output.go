package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/rustplay/internal/executor"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// writeResult renders a result for the terminal. In text mode the program's
// stdout goes to stdout and everything else to stderr.
func writeResult(stdout, stderr io.Writer, format string, r *executor.Result) error {
	switch format {
	case formatText, "":
		fmt.Fprint(stdout, r.Response.Output)
		fmt.Fprint(stderr, r.Response.Error)
		if r.Response.Truncated {
			fmt.Fprintln(stderr, "\n... (output truncated)")
		}
		return nil
	case formatJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r.Response)
	case formatYAML:
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(r.Response); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

// exitCode maps a result onto a process exit status.
func exitCode(r *executor.Result) int {
	switch {
	case r.Response.Success:
		return 0
	case r.Outcome.Infrastructure():
		return 2
	default:
		return 1
	}
}
