package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"songfactory/internal/catalog"
	"songfactory/internal/config"
	"songfactory/internal/jobs"
	"songfactory/internal/notifications"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Generate queued songs",
	}

	queueCmd.AddCommand(newQueueRunCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))

	return queueCmd
}

func newQueueRunCommand(ctx *commandContext) *cobra.Command {
	var idArgs []string
	var opts jobs.RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate every queued song",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if opts.IDs, err = parseIDs(idArgs); err != nil {
				return err
			}
			transport := strings.TrimSpace(opts.Transport)
			if transport == "" {
				transport = cfg.Generation.Transport
			}

			runner := jobs.NewRunner(cfg, logger)
			out := cmd.OutOrStdout()
			interactive := transport == config.TransportBrowser && !opts.DryRun && isInteractive()

			drain := consumeEvents(runner.Events(),
				progressPrinter(out, interactive),
				notifications.Sink(notifications.NewService(cfg), "Queue run", logger),
			)
			defer drain()

			if interactive {
				go forwardConfirmations(os.Stdin, runner)
			}

			runCtx, release := stopOnInterrupt(cmd.Context(), cmd.ErrOrStderr(), runner.Stop)
			defer release()
			summary, err := runner.Run(runCtx, opts)
			drain()
			if err != nil {
				return err
			}
			printRunSummary(out, summary)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&idArgs, "ids", nil, "Only process these queued record ids")
	cmd.Flags().StringVar(&opts.Transport, "transport", "", "Override generation.transport (api or browser)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Write placeholder files instead of calling the service")
	return cmd
}

// progressPrinter renders run events as one line each.
func progressPrinter(out io.Writer, interactive bool) func(jobs.Event) {
	return func(ev jobs.Event) {
		switch ev.Type {
		case jobs.EventJobStarted:
			fmt.Fprintf(out, "▶ #%d %s\n", ev.RecordID, ev.Title)
		case jobs.EventProgress:
			if ev.Message != "" {
				fmt.Fprintf(out, "  %s\n", ev.Message)
			}
		case jobs.EventAwaitingConfirmation:
			if interactive {
				fmt.Fprintf(out, "  Confirm \"%s\" is generating in the browser, then press Enter\n", ev.Title)
			} else {
				fmt.Fprintf(out, "  Waiting for confirmation of \"%s\"\n", ev.Title)
			}
		case jobs.EventJobCompleted:
			fmt.Fprintf(out, "✓ #%d %s", ev.RecordID, ev.Title)
			if len(ev.Paths) > 0 {
				fmt.Fprintf(out, " -> %s", strings.Join(ev.Paths, ", "))
			}
			fmt.Fprintln(out)
		case jobs.EventJobFailed:
			fmt.Fprintf(out, "✗ #%d %s: %s\n", ev.RecordID, ev.Title, ev.Message)
		}
	}
}

// forwardConfirmations turns each line read from in into a confirmation.
// Lines read while nothing is pending are dropped by the runner.
func forwardConfirmations(in io.Reader, runner *jobs.Runner) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		runner.Confirm()
	}
}

func printRunSummary(out io.Writer, summary jobs.RunSummary) {
	if summary.Processed == 0 && !summary.Stopped {
		fmt.Fprintln(out, "No queued songs")
		return
	}
	fmt.Fprintf(out, "Processed %d: %d completed, %d failed in %s\n",
		summary.Processed, summary.Completed, summary.Failed, summary.Duration.Round(time.Second))
	if summary.Stopped {
		fmt.Fprintln(out, "Run stopped before the queue was drained")
	}
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show record counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *catalog.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(stats))
				total := 0
				for _, status := range catalog.AllStatuses() {
					count := stats[status]
					total += count
					rows = append(rows, []string{statusLabel(status, colorize), fmt.Sprint(count)})
				}
				rows = append(rows, []string{"total", fmt.Sprint(total)})
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
