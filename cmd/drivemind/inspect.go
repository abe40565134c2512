package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-drivemind/internal/log"
	"github.com/teslashibe/go-drivemind/pkg/eventlog"
	"github.com/teslashibe/go-drivemind/pkg/profile"
)

func runProfiles(cmd *cobra.Command, _ []string) error {
	store := profile.Open(cfg.Storage.ThresholdsPath, log.L())
	return printProfiles(cmd.OutOrStdout(), store)
}

func runEvents(cmd *cobra.Command, _ []string) error {
	return printEvents(cmd.OutOrStdout(), cfg.Storage.EventsLogPath, tailFlag)
}

func printProfiles(w io.Writer, store *profile.JSONStore) error {
	ids := store.Identities()
	if len(ids) == 0 {
		_, err := fmt.Fprintf(w, "No profiles in %s\n", store.Path())
		return err
	}

	all := store.All()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DRIVER\tEAR BASELINE\tEAR\tPERCLOS\tYAWN")
	for _, id := range ids {
		p := all[id]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id,
			optional(p.EARBaseline, "%.3f"),
			optional(p.EARThresh, "%.3f"),
			optional(p.PERCLOSThresh, "%.2f"),
			optional(p.YawnThresh, "%.1f"),
		)
	}
	return tw.Flush()
}

func printEvents(w io.Writer, path string, n int) error {
	rows, err := eventlog.Tail(path, n)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(rows) == 0) {
		_, err := fmt.Fprintf(w, "No events in %s\n", path)
		return err
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(eventlog.Header, "\t")))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
