package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eventwindow/eventwindow/internal/observability"
	"github.com/eventwindow/eventwindow/internal/output"
	"github.com/eventwindow/eventwindow/internal/scenario"
)

var replayWatch bool

var allFormats = []output.Format{output.FormatTable, output.FormatJSON, output.FormatMarkdown}

var replayCmd = &cobra.Command{
	Use:   "replay <scenario>",
	Short: "Replay a scripted scenario against a fresh window",
	Long: `Replay a scenario file step by step against a fresh event window and
check each step against its expectation.

Scenarios are YAML (.yaml, .yml) or NDJSON (.ndjson, .jsonl). The command
fails when any expectation is not met. With --watch the scenario is replayed
every time the file changes, until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := outputFormat(cmd, allFormats...)
		if err != nil {
			return err
		}
		path := args[0]

		if replayWatch {
			return watchScenario(cmd.Context(), path, format)
		}

		s, err := scenario.Load(path)
		if err != nil {
			return err
		}
		trace, err := scenario.Run(s)
		if err != nil {
			return err
		}

		sink, err := openOutput(cmd, format, "replay."+sanitizeFilename(trace.Name))
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if err := writeTrace(sink, format, trace); err != nil {
			return err
		}
		return traceError(trace)
	},
}

func writeTrace(sink *outputSink, format output.Format, trace *scenario.Trace) error {
	rendered, err := output.NewFormatter(format).FormatTrace(trace)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

// traceError reports failed expectations as a command failure.
func traceError(trace *scenario.Trace) error {
	if trace.Passed() {
		return nil
	}
	return fmt.Errorf("scenario %q: %d of %d expectations failed", trace.Name, trace.Failures, trace.Checked)
}

func watchScenario(ctx context.Context, path string, format output.Format) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	observability.CLILogger.Info("Watching scenario", zap.String("path", path))

	return scenario.Watch(ctx, path, func(trace *scenario.Trace, err error) {
		if err != nil {
			observability.CLILogger.Warn("Scenario replay failed", zap.String("path", path), zap.Error(err))
			return
		}
		if err := writeTrace(stdoutSink, format, trace); err != nil {
			observability.CLILogger.Warn("Failed to write trace", zap.Error(err))
			return
		}
		if err := traceError(trace); err != nil {
			observability.CLILogger.Warn("Expectations failed", zap.Error(err))
		}
	})
}

func init() {
	rootCmd.AddCommand(replayCmd)

	addOutputFlags(replayCmd, allFormats...)
	replayCmd.Flags().BoolVarP(&replayWatch, "watch", "w", false, "Replay again whenever the file changes")
}
