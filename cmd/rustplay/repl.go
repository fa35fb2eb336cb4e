package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/rustplay/internal/executor"
)

const (
	promptFirst = "\033[36mrust>\033[0m "
	promptMore  = "\033[36m  ..>\033[0m "
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactively compile and run Rust snippets",
	Long: `Start an interactive prompt. Type Rust source over one or more lines and
finish it with an empty line or :run. Input without a main function is
wrapped in one.

Examples:
  rustplay repl`,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

// snippet accumulates the lines of one submission.
type snippet struct {
	lines []string
	last  string
}

func (s *snippet) add(line string) { s.lines = append(s.lines, line) }

func (s *snippet) empty() bool { return len(s.lines) == 0 }

func (s *snippet) reset() { s.lines = nil }

// take returns the accumulated program and clears the buffer.
func (s *snippet) take() string {
	code := wrapSnippet(strings.Join(s.lines, "\n"))
	s.last = code
	s.reset()
	return code
}

// wrapSnippet turns bare statements into a complete program.
func wrapSnippet(src string) string {
	if strings.Contains(src, "fn main") {
		return src + "\n"
	}
	var b strings.Builder
	b.WriteString("fn main() {\n")
	for _, line := range strings.Split(src, "\n") {
		b.WriteString("    " + line + "\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func runRepl(cmd *cobra.Command, args []string) error {
	_, _, exec, err := setup()
	if err != nil {
		return err
	}

	fmt.Printf("rustplay - interactive Rust\n")
	fmt.Printf("Finish input with an empty line or :run. Type /help for commands, /quit to exit\n\n")

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptFirst,
		HistoryFile:     filepath.Join(home, ".rustplay_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C cancels the running program, not the prompt.
	var active activeRequest
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			active.cancel()
		}
	}()

	var buf snippet
	for {
		if buf.empty() {
			rl.SetPrompt(promptFirst)
		} else {
			rl.SetPrompt(promptMore)
		}

		input, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) && !buf.empty() {
				buf.reset()
				fmt.Println("(input discarded)")
				continue
			}
			if errors.Is(err, readline.ErrInterrupt) || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		trimmed := strings.TrimSpace(input)
		if buf.empty() && strings.HasPrefix(trimmed, "/") {
			if quit := handleCommand(trimmed, &buf); quit {
				return nil
			}
			continue
		}

		submit := trimmed == ":run" || (trimmed == "" && !buf.empty())
		if !submit {
			if trimmed != "" {
				buf.add(input)
			}
			continue
		}
		if buf.empty() {
			continue
		}

		reqCtx, done := active.start()
		r := exec.Execute(reqCtx, executor.Request{Code: buf.take()})
		done()

		printResult(r)
	}
}

// activeRequest holds the cancel func of the execution in flight. The signal
// goroutine cancels through it while the prompt goroutine starts and ends
// requests.
type activeRequest struct {
	fn atomic.Pointer[context.CancelFunc]
}

// start begins a request. done must be called when it finishes.
func (a *activeRequest) start() (ctx context.Context, done func()) {
	ctx, cancel := context.WithCancel(context.Background())
	a.fn.Store(&cancel)
	return ctx, func() {
		a.fn.CompareAndSwap(&cancel, nil)
		cancel()
	}
}

// cancel stops the request in flight, if any.
func (a *activeRequest) cancel() {
	if fn := a.fn.Load(); fn != nil {
		(*fn)()
	}
}

func printResult(r *executor.Result) {
	if r.Response.Output != "" {
		fmt.Print(r.Response.Output)
		if !strings.HasSuffix(r.Response.Output, "\n") {
			fmt.Println()
		}
	}
	if r.Response.Error != "" {
		color := "\033[90m"
		if !r.Response.Success {
			color = "\033[31m"
		}
		fmt.Printf("%s%s\033[0m", color, strings.TrimRight(r.Response.Error, "\n"))
		fmt.Println()
	}
	if r.Outcome != executor.OutcomeSucceeded {
		fmt.Printf("\033[33m[%s]\033[0m\n", r.Outcome)
	}
	fmt.Println()
}

// handleCommand runs a slash command and reports whether the REPL should exit.
func handleCommand(input string, buf *snippet) bool {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		return true
	case "/reset":
		buf.reset()
		fmt.Println("Input cleared.")
		fmt.Println()
	case "/last":
		if buf.last == "" {
			fmt.Println("Nothing has been run yet.")
		} else {
			fmt.Print(buf.last)
		}
		fmt.Println()
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help     - Show this help")
		fmt.Println("  /reset    - Clear pending input")
		fmt.Println("  /last     - Show the last program that ran")
		fmt.Println("  /quit     - Exit")
		fmt.Println()
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
	}
	return false
}
