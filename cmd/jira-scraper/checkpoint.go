package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/Sternrassler/jira-scraper/pkg/scraper"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newCheckpointCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or reset scrape progress",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Show committed progress per project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			snapshot := store.Snapshot()
			out := cmd.OutOrStdout()

			if asJSON || pipedOutput(out) {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snapshot)
			}

			if len(snapshot) == 0 {
				fmt.Fprintln(out, "No checkpointed projects")
				return nil
			}

			keys := make([]string, 0, len(snapshot))
			for k := range snapshot {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PROJECT\tSTART_AT\tITEMS_FETCHED\tUPDATED")
			for _, k := range keys {
				p := snapshot[k]
				updated := "-"
				if !p.UpdatedAt.IsZero() {
					updated = p.UpdatedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", k, p.StartAt, p.ItemsFetched, updated)
			}
			return tw.Flush()
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print the raw checkpoint as JSON (default when stdout is not a terminal)")

	var all bool
	reset := &cobra.Command{
		Use:   "reset [PROJECT...]",
		Short: "Forget progress so projects are scraped from the start",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := scraper.NormalizeKeys(args)
			if len(keys) == 0 && !all {
				return errors.New("name projects to reset or pass --all")
			}

			store, closeStore, err := openStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Reset(cmd.Context(), keys...); err != nil {
				return err
			}

			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Reset all projects")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d project(s)\n", len(keys))
			}
			return nil
		},
	}
	reset.Flags().BoolVar(&all, "all", false, "reset every project")

	cmd.AddCommand(show, reset)
	return cmd
}

// pipedOutput reports whether w is a file that is not a terminal.
func pipedOutput(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && !term.IsTerminal(int(f.Fd()))
}
