package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/rustplay/internal/config"
	"github.com/michaelbrown/rustplay/internal/executor"
	"github.com/michaelbrown/rustplay/internal/logging"
)

// maxToolOutput caps the text returned to the calling agent.
const maxToolOutput = 4000

func main() {
	cfg, err := config.Load(os.Getenv("RUSTPLAY_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuring logging: %v\n", err)
		os.Exit(1)
	}
	exec, err := executor.NewFromPolicy(cfg.Execution.Backend, cfg.Execution.WorkspaceRoot, cfg.Toolchain(), &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("creating executor")
	}

	s := server.NewMCPServer("rustplay-rust-runner", "0.1.0")

	s.AddTool(mcp.Tool{
		Name:        "rust_run",
		Description: "Compile a single-file Rust program with rustc and run it under resource limits. Returns the program's stdout and stderr, or the compiler diagnostics.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Complete Rust source including fn main()",
				},
			},
			Required: []string{"code"},
		},
	}, newRunHandler(exec, cfg.Execution.MaxSourceBytes))

	if err := server.ServeStdio(s); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
}

type runner interface {
	Execute(ctx context.Context, req executor.Request) *executor.Result
}

func newRunHandler(exec runner, maxSource int64) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		if args == nil {
			return errResult("error: invalid arguments"), nil
		}

		code, _ := args["code"].(string)
		if code == "" {
			return errResult("error: 'code' is required"), nil
		}
		if int64(len(code)) > maxSource {
			return errResult(fmt.Sprintf("error: source exceeds %d bytes", maxSource)), nil
		}

		r := exec.Execute(ctx, executor.Request{Code: code})
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: formatResult(r)}},
			IsError: !r.Response.Success,
		}, nil
	}
}

func formatResult(r *executor.Result) string {
	var output strings.Builder
	if r.Response.Output != "" {
		output.WriteString(r.Response.Output)
	}
	if r.Response.Error != "" {
		if output.Len() > 0 {
			output.WriteString("\n")
		}
		output.WriteString("STDERR:\n" + r.Response.Error)
	}
	if r.Outcome != executor.OutcomeSucceeded {
		output.WriteString(fmt.Sprintf("\noutcome: %s", r.Outcome))
	}

	text := output.String()
	if len(text) > maxToolOutput {
		cut := maxToolOutput
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "\n... (output truncated)"
	}
	return text
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
