package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"songfactory/internal/catalog"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func isInteractive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// statusLabel colors a status for terminals.
func statusLabel(status catalog.Status, colorize bool) string {
	if !colorize {
		return string(status)
	}
	switch status {
	case catalog.StatusCompleted:
		return text.FgGreen.Sprint(status)
	case catalog.StatusError:
		return text.FgRed.Sprint(status)
	case catalog.StatusQueued:
		return text.FgCyan.Sprint(status)
	case catalog.StatusImported:
		return text.FgBlue.Sprint(status)
	default:
		return text.FgYellow.Sprint(status)
	}
}

func passLabel(ok, colorize bool) string {
	label := "FAIL"
	color := text.FgRed
	if ok {
		label = "PASS"
		color = text.FgGreen
	}
	if !colorize {
		return label
	}
	return color.Sprint(label)
}
