package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"songfactory/internal/catalog"
	"songfactory/internal/textutil"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Add and inspect song records",
	}

	catalogCmd.AddCommand(newCatalogAddCommand(ctx))
	catalogCmd.AddCommand(newCatalogListCommand(ctx))
	catalogCmd.AddCommand(newCatalogShowCommand(ctx))
	catalogCmd.AddCommand(newCatalogRetryCommand(ctx))

	return catalogCmd
}

func newCatalogAddCommand(ctx *commandContext) *cobra.Command {
	var params catalog.NewRecordParams
	var lyricsFile string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a new song",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lyricsFile != "" {
				data, err := os.ReadFile(lyricsFile)
				if err != nil {
					return fmt.Errorf("read lyrics file: %w", err)
				}
				params.Lyrics = string(data)
			}
			return ctx.withStore(func(store *catalog.Store) error {
				rec, err := store.NewRecord(cmd.Context(), params)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued #%d %s\n", rec.ID, rec.Title)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&params.Title, "title", "t", "", "Song title")
	cmd.Flags().StringVarP(&params.Prompt, "prompt", "p", "", "Style prompt (max 500 characters)")
	cmd.Flags().StringVarP(&params.Lyrics, "lyrics", "l", "", "Lyrics (max 3000 characters)")
	cmd.Flags().StringVar(&lyricsFile, "lyrics-file", "", "Read lyrics from a file")
	cmd.Flags().StringVarP(&params.GenreLabel, "genre", "g", "", "Genre label for your own bookkeeping")
	_ = cmd.MarkFlagRequired("title")
	cmd.MarkFlagsMutuallyExclusive("lyrics", "lyrics-file")
	return cmd
}

func newCatalogListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog records",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *catalog.Store) error {
				records, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty")
					return nil
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						strconv.FormatInt(rec.ID, 10),
						textutil.Truncate(rec.Title, 40),
						statusLabel(rec.Status, colorize),
						rec.GenreLabel,
						rec.TaskID,
						rec.UpdatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Status", "Genre", "Job", "Updated"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newCatalogShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one record in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *catalog.Store) error {
				rec, err := store.GetByID(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("record %d not found", ids[0])
				}
				if asJSON {
					return writeJSON(cmd, rec)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, recordRows(rec), nil))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func recordRows(rec *catalog.Record) [][]string {
	rows := [][]string{
		{"ID", strconv.FormatInt(rec.ID, 10)},
		{"Title", rec.Title},
		{"Status", string(rec.Status)},
	}
	optional := []struct {
		label string
		value string
	}{
		{"Genre", rec.GenreLabel},
		{"Prompt", rec.Prompt},
		{"Lyrics", textutil.Truncate(strings.ReplaceAll(rec.Lyrics, "\n", " / "), 120)},
		{"Job ID", rec.TaskID},
		{"Conversion 1", rec.ConversionID1},
		{"Conversion 2", rec.ConversionID2},
		{"Audio URL 1", rec.AudioURL1},
		{"Audio URL 2", rec.AudioURL2},
		{"File 1", fileLabel(rec.FilePath1, rec.FileSize1)},
		{"File 2", fileLabel(rec.FilePath2, rec.FileSize2)},
		{"Format", rec.FileFormat},
		{"Style", rec.MusicStyle},
		{"Voice", rec.VoiceUsed},
		{"Service created", rec.ServiceCreatedAt},
		{"Notes", rec.Notes},
	}
	for _, field := range optional {
		if strings.TrimSpace(field.value) != "" {
			rows = append(rows, []string{field.label, field.value})
		}
	}
	if rec.DurationSeconds > 0 {
		rows = append(rows, []string{"Duration", fmt.Sprintf("%.1fs", rec.DurationSeconds)})
	}
	rows = append(rows,
		[]string{"Created", rec.CreatedAt.Local().Format("2006-01-02 15:04:05")},
		[]string{"Updated", rec.UpdatedAt.Local().Format("2006-01-02 15:04:05")},
	)
	return rows
}

func fileLabel(path string, size int64) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf("%s (%d bytes)", path, size)
}

func newCatalogRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Requeue errored records (all of them when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *catalog.Store) error {
				n, err := store.RequeueErrored(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d record(s)\n", n)
				return nil
			})
		},
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid record id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func parseStatuses(values []string) ([]catalog.Status, error) {
	statuses := make([]catalog.Status, 0, len(values))
	for _, value := range values {
		status, ok := catalog.ParseStatus(value)
		if !ok {
			return nil, errors.New("unknown status " + strconv.Quote(value))
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
