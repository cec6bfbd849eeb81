package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/impresso/consolidator/internal/runlog"
)

var runsFlags struct {
	status string
	limit  int
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the local partition run log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		log, err := runlog.Open(cfg.RunLog.Path)
		if err != nil {
			return err
		}
		defer log.Close() //nolint:errcheck
		if err := log.Migrate(ctx); err != nil {
			return err
		}

		entries, err := log.List(ctx, runsFlags.status, runsFlags.limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRuns(os.Stdout, entries)
		return nil
	},
}

func init() {
	f := runsCmd.Flags()
	f.StringVar(&runsFlags.status, "status", "", "filter by status (running, complete, failed, skipped)")
	f.IntVar(&runsFlags.limit, "limit", 50, "max entries to show")
	rootCmd.AddCommand(runsCmd)
}

func formatRuns(w io.Writer, entries []runlog.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTITION\tVERSION\tSTATUS\tSTARTED\tDURATION\tISSUES\tITEMS\tERROR")
	for _, e := range entries {
		duration := ""
		if e.CompletedAt != nil {
			duration = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}
		errMsg := e.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		fmt.Fprintf(tw, "%s/%s/%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			e.Provider, e.Newspaper, e.Year, e.Version, e.Status,
			e.StartedAt.Local().Format("2006-01-02 15:04"),
			duration, e.Issues, e.ItemsConsolidated, errMsg,
		)
	}
	tw.Flush()
}
