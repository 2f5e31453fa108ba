package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/sokinpui/aiwriter/aiwriter"
	"github.com/sokinpui/aiwriter/cli"
	"github.com/sokinpui/aiwriter/internal/source"
	"github.com/sokinpui/aiwriter/internal/tui"
	"github.com/sokinpui/aiwriter/internal/ui"
	"github.com/sokinpui/aiwriter/model"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := cli.ParseFlags(args, os.LookupEnv)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		// pflag already prints the error message.
		return 1
	}

	cfg.Prompt, err = source.New(cfg.Clipboard).Instruction(cfg.Prompt)
	if err != nil {
		ui.Error("Error: %v", err)
		return 1
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	app, err := aiwriter.New(cfg, aiwriter.WithLogger(logger))
	if err != nil {
		ui.Error("Error: %v", err)
		return 1
	}
	pol := app.Policy()
	logger.Debug("policy resolved", "max_bytes", pol.MaxBytes, "globs", pol.AllowGlobs, "allow_creates", pol.AllowCreates)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := !cfg.NoAnimation && !cfg.Verbose && isatty.IsTerminal(os.Stderr.Fd())

	var summary model.Summary
	if interactive {
		summary, err = runInteractive(ctx, app)
	} else {
		summary, err = app.Execute(ctx)
		if err == nil {
			ui.PrintUpdateSummary(summary)
		}
	}

	if err != nil {
		var detailed *aiwriter.DetailedError
		if errors.As(err, &detailed) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		if !interactive {
			ui.Error("Error: %v", err)
		}
		return 1
	}

	fmt.Println(ui.SummaryLine(summary))
	return 0
}

// runInteractive shows a spinner on stderr while the pipeline runs.
func runInteractive(ctx context.Context, app *aiwriter.App) (model.Summary, error) {
	opts := []tea.ProgramOption{tea.WithOutput(os.Stderr), tea.WithContext(ctx)}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		opts = append(opts, tea.WithInput(nil))
	}

	m := tui.New(ctx, app)
	p := tea.NewProgram(m, opts...)
	m.SetProgram(p)

	final, err := p.Run()
	if err != nil {
		ui.Error("Error running program: %v", err)
		return model.Summary{}, err
	}
	return final.(tui.Model).Result()
}
