package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

func historyCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent sync runs, or the files of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, files, err := svc.runs.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				printRun(out, *run, files)
				return nil
			}

			runs, err := svc.runs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(out, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func printRuns(w io.Writer, runs []model.SyncRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No sync runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tISSUES\tDOWNLOADED\tPRESENT\tFAILED\tBYTES\tNOTE")
	for _, run := range runs {
		note := ""
		switch {
		case run.FatalError != "":
			note = "aborted: " + run.FatalError
		case run.DryRun:
			note = "dry run"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Issues,
			run.Downloaded,
			run.Present,
			run.Failed,
			humanize.Bytes(uint64(max(run.Bytes, 0))),
			note,
		)
	}
	_ = tw.Flush()
}

func printRun(w io.Writer, run model.SyncRun, files []model.SyncRunFile) {
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	if run.FatalError != "" {
		fmt.Fprintf(w, "  Aborted:  %s\n", run.FatalError)
	}

	if len(files) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ISSUE\tFILE\tOUTCOME\tBYTES\tERROR")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			f.IssueKey, f.Filename, f.Outcome, humanize.Bytes(uint64(max(f.Bytes, 0))), f.Message)
	}
	_ = tw.Flush()
}
