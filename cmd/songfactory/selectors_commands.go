package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"songfactory/internal/automation"
	"songfactory/internal/selectors"
)

func newSelectorsCommand(ctx *commandContext) *cobra.Command {
	selectorsCmd := &cobra.Command{
		Use:   "selectors",
		Short: "Inspect and repair the learned page selectors",
	}

	selectorsCmd.AddCommand(newSelectorsListCommand(ctx))
	selectorsCmd.AddCommand(newSelectorsResetCommand(ctx))
	selectorsCmd.AddCommand(newSelectorsCheckCommand(ctx))

	return selectorsCmd
}

func (c *commandContext) openRegistry() (*selectors.Registry, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	registry := selectors.Open(cfg.SelectorRegistryPath(), logger)
	if err := registry.RegisterDefaults(); err != nil {
		return nil, fmt.Errorf("register selector defaults: %w", err)
	}
	return registry, nil
}

func newSelectorsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show every group in its current priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ctx.openRegistry()
			if err != nil {
				return err
			}
			groups := registry.Groups()
			if asJSON {
				payload := make(map[string][]string, len(groups))
				for _, name := range groups {
					payload[name] = registry.Selectors(name)
				}
				return writeJSON(cmd, payload)
			}
			rows := make([][]string, 0, len(groups))
			for _, name := range groups {
				for i, selector := range registry.Selectors(name) {
					label := ""
					if i == 0 {
						label = name
					}
					rows = append(rows, []string{label, strconv.Itoa(i + 1), selector})
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Group", "#", "Selector"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "Registry: %s\n", registry.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSelectorsResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [group...]",
		Short: "Restore the built-in order (every group when none is named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ctx.openRegistry()
			if err != nil {
				return err
			}
			defaults := selectors.Defaults()
			names := args
			if len(names) == 0 {
				names = make([]string, 0, len(defaults))
				for name := range defaults {
					names = append(names, name)
				}
			}
			for _, name := range names {
				name = strings.TrimSpace(name)
				candidates, ok := defaults[name]
				if !ok {
					return fmt.Errorf("unknown selector group %q", name)
				}
				if err := registry.ResetGroup(name, candidates); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d group(s)\n", len(names))
			return nil
		},
	}
}

func newSelectorsCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Open the site and verify each group still matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			registry, err := ctx.openRegistry()
			if err != nil {
				return err
			}
			opts := automation.OptionsFromConfig(cfg)
			driver := automation.New(opts, registry, logger)
			defer driver.Close()

			report := driver.CheckSelectors(cmd.Context(), automation.DefaultChecks(opts))
			fmt.Fprint(cmd.OutOrStdout(), report.Summary())
			if report.Failed() > 0 {
				return errors.New("selector health check failed")
			}
			return nil
		},
	}
}
