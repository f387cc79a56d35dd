package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"songfactory/internal/daemon"
	"songfactory/internal/jobs"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control server and the scheduled queue runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, jobs.NewRunner(cfg, logger), logger)
			if err != nil {
				return err
			}
			if err := d.Start(cmd.Context()); err != nil {
				return err
			}
			defer d.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s (Ctrl+C to stop)\n", d.Addr())
			if cfg.Serve.Schedule != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Queue runs scheduled at %q\n", cfg.Serve.Schedule)
			}
			<-cmd.Context().Done()
			waitCtx, release := stopOnInterrupt(cmd.Context(), cmd.ErrOrStderr(), d.StopRun)
			defer release()
			d.Shutdown(waitCtx)
			return nil
		},
	}
}
