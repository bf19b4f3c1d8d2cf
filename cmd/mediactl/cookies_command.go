package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/media-relay/internal/retrieval"
)

func newCookiesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cookies",
		Short: "List the credential files in the worker's cookie pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			pool := retrieval.NewCookiePool(cfg.Pipeline.CookiePoolDir, cfg.Pipeline.CookieCooldown, slog.New(slog.NewTextHandler(io.Discard, nil)))
			entries, err := pool.List()
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "Cookie pool %s is empty; jobs run without cookies\n", cfg.Pipeline.CookiePoolDir)
				return nil
			}

			fmt.Fprintln(out, renderTable(
				[]string{"File", "Size", "Modified"},
				cookieRows(entries, time.Now()),
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d file(s) in %s\n", len(entries), cfg.Pipeline.CookiePoolDir)
			return nil
		},
	}
}

func cookieRows(entries []retrieval.CookieEntry, now time.Time) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			filepath.Base(e.Path),
			humanize.IBytes(uint64(e.Size)),
			humanize.RelTime(e.ModTime, now, "ago", "from now"),
		})
	}
	return rows
}
