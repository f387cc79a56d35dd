package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"songfactory/internal/automation"
	"songfactory/internal/config"
	"songfactory/internal/history"
	"songfactory/internal/notifications"
	"songfactory/internal/selectors"
	"songfactory/internal/textutil"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Import songs generated outside songfactory",
	}

	historyCmd.AddCommand(newHistoryDiscoverCommand(ctx))
	historyCmd.AddCommand(newHistoryImportCommand(ctx))
	historyCmd.AddCommand(newHistorySyncCommand(ctx))

	return historyCmd
}

type historyFlags struct {
	profile bool
}

func (f *historyFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.profile, "profile", false, "Read the public profile page through the browser instead of the history feed")
}

// newHistoryRunner builds a runner over the selected source. The returned
// closer releases the browser when the profile source is used.
func newHistoryRunner(cfg *config.Config, logger *slog.Logger, flags historyFlags) (*history.Runner, func(), error) {
	if !flags.profile {
		return history.NewRunner(cfg, logger), func() {}, nil
	}
	username := strings.TrimSpace(cfg.History.Username)
	if username == "" {
		return nil, nil, errors.New("history.username (or SONGFACTORY_USERNAME) is required for profile discovery")
	}
	registry := selectors.Open(cfg.SelectorRegistryPath(), logger)
	if err := registry.RegisterDefaults(); err != nil {
		return nil, nil, fmt.Errorf("register selector defaults: %w", err)
	}
	opts := automation.OptionsFromConfig(cfg)
	driver := automation.New(opts, registry, logger)
	source := history.NewProfileSource(driver, opts.ProfileURL(username), cfg.History.MaxLoadMore, cfg.History.StalePageLimit, logger)
	runner := history.NewRunner(cfg, logger, history.WithSources(source))
	return runner, func() { _ = driver.Close() }, nil
}

func newHistoryDiscoverCommand(ctx *commandContext) *cobra.Command {
	var flags historyFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List songs in the service history without importing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			runner, closeRunner, err := newHistoryRunner(cfg, logger, flags)
			if err != nil {
				return err
			}
			defer closeRunner()

			items, err := runner.Discover(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No songs found")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					textutil.Truncate(item.DisplayTitle(), 40),
					item.JobID,
					item.Status,
					yesNo(item.AudioURL != "" || item.ConversionIDs[0] != ""),
					item.CreatedAt,
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Title", "Job", "Status", "Audio", "Created"},
				rows,
				nil,
			))
			fmt.Fprintf(cmd.OutOrStdout(), "%d song(s) discovered\n", len(items))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newHistoryImportCommand(ctx *commandContext) *cobra.Command {
	var flags historyFlags

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Discover history and merge it into the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			runner, closeRunner, err := newHistoryRunner(cfg, logger, flags)
			if err != nil {
				return err
			}
			defer closeRunner()

			out := cmd.OutOrStdout()
			drain := consumeEvents(runner.Events(),
				progressPrinter(out, false),
				notifications.Sink(notifications.NewService(cfg), "History import", logger),
			)
			defer drain()

			runCtx, release := stopOnInterrupt(cmd.Context(), cmd.ErrOrStderr(), runner.Stop)
			defer release()
			summary, err := runner.Run(runCtx)
			drain()
			if err != nil {
				return err
			}
			printImportSummary(out, summary)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func printImportSummary(out io.Writer, summary history.ImportSummary) {
	fmt.Fprintf(out, "Discovered %d song(s), %d already complete\n", summary.Items, summary.Skipped)
	fmt.Fprintf(out, "Inserted %d, updated %d: %d completed, %d without audio, %d failed in %s\n",
		summary.Inserted, summary.Updated, summary.Completed, summary.Imported, summary.Failed,
		summary.Duration.Round(time.Second))
	if summary.Stopped {
		fmt.Fprintln(out, "Import stopped before every song was processed")
	}
}

func newHistorySyncCommand(ctx *commandContext) *cobra.Command {
	var flags historyFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fill missing prompts and lyrics from the service history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			runner, closeRunner, err := newHistoryRunner(cfg, logger, flags)
			if err != nil {
				return err
			}
			defer closeRunner()

			runCtx, release := stopOnInterrupt(cmd.Context(), cmd.ErrOrStderr(), runner.Stop)
			defer release()
			n, err := runner.SyncDetails(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d record(s)\n", n)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
