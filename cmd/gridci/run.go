package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gridci/gridci/internal/config"
	"github.com/gridci/gridci/internal/logger"
	"github.com/gridci/gridci/internal/matrix"
	"github.com/gridci/gridci/internal/model"
	"github.com/gridci/gridci/internal/runner"
	"github.com/gridci/gridci/internal/tui"
)

type runOptions struct {
	ConfigPath     string
	Workdir        string
	Parallel       int
	Timeout        int
	DryRun         bool
	Verbose        bool
	NonInteractive bool
}

var runCmdRunner = runMatrix

func newRunCmd(root *rootFlags, settings userSettings) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the build matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.DryRun = root.dryRun
			opts.Verbose = root.verbose
			opts.NonInteractive = !term.IsTerminal(int(os.Stdout.Fd()))
			if opts.Parallel <= 0 {
				opts.Parallel = settings.Parallel
			}
			if opts.Timeout <= 0 {
				opts.Timeout = settings.Timeout
			}
			if opts.Workdir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				opts.Workdir = wd
			}
			return runCmdRunner(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVarP(&opts.Workdir, "workdir", "w", "", "Working directory for the run (defaults to cwd)")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 0, "Maximum entries executing concurrently")
	cmd.Flags().IntVar(&opts.Timeout, "timeout", 0, "Per-step timeout in seconds")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runMatrix(opts runOptions) error {
	cfg, err := config.ParseConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level := "info"
	if opts.Verbose || cfg.Settings.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true})
	if err != nil {
		return err
	}

	registry, err := newRegistry(log)
	if err != nil {
		return err
	}

	entries, err := matrix.Expand(cfg)
	if err != nil {
		return err
	}

	interactive := !opts.NonInteractive
	modelState := tui.NewModel(cfg, entries, opts.NonInteractive)

	var program *tea.Program
	var programErr error
	done := make(chan struct{})
	if interactive {
		program = tea.NewProgram(modelState)
		go func() {
			_, programErr = program.Run()
			close(done)
		}()
	}

	events := runner.Events{
		OnEntryStart: func(entry matrix.Entry) {
			dispatch(interactive, program, &modelState, tui.EntryStartMsg{Entry: entry, Time: time.Now()})
		},
		OnStepStart: func(version, stepID string) {
			dispatch(interactive, program, &modelState, tui.StepStartMsg{Version: version, ID: stepID, Time: time.Now()})
		},
		OnStepResult: func(version string, result model.StepResult) {
			dispatch(interactive, program, &modelState, tui.StepCompleteMsg{Version: version, Result: result})
		},
		OnEntryResult: func(result model.EntryResult) {
			dispatch(interactive, program, &modelState, tui.EntryCompleteMsg{Result: result})
		},
	}

	r := runner.New(cfg, registry, log, runner.Options{
		Workdir:     opts.Workdir,
		DryRun:      opts.DryRun,
		Parallel:    opts.Parallel,
		StepTimeout: time.Duration(opts.Timeout) * time.Second,
	}, events)

	// The TUI was seeded from the same entries, so run identifiers match
	// what it already displays.
	report, err := r.RunEntries(ctx, entries)

	dispatch(interactive, program, &modelState, tui.RunCompleteMsg{Report: report})
	if interactive {
		<-done
		if programErr != nil {
			return programErr
		}
	} else {
		fmt.Fprintln(os.Stdout, modelState.View())
	}

	if err != nil {
		return err
	}
	if !report.Success() {
		return fmt.Errorf("matrix failed: %s", report.Summary())
	}
	return nil
}

var dispatchMu sync.Mutex

// dispatch routes a progress message either into the running Bubbletea
// program or directly into the local model for plain output. The local
// path is locked because entry goroutines emit events concurrently.
func dispatch(interactive bool, program *tea.Program, modelState *tui.Model, msg tea.Msg) {
	if interactive && program != nil {
		program.Send(msg)
		return
	}

	dispatchMu.Lock()
	defer dispatchMu.Unlock()
	updated, _ := modelState.Update(msg)
	if next, ok := updated.(tui.Model); ok {
		*modelState = next
	}
}
