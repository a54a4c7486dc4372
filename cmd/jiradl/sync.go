package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/jiradl/internal/application"
	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

func syncCmd(a *app) *cobra.Command {
	var (
		issues []string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download new attachments of the issues matching the configured query",
		Long: `Lists the issues matching the configured JQL, compares their attachments
with the local tree and downloads whatever is missing. Files already on disk
are never downloaded again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys, err := parseIssueKeys(issues)
			if err != nil {
				return err
			}

			svc, err := a.openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.sync.Run(cmd.Context(), application.SyncOptions{
				DryRun:    dryRun,
				IssueKeys: keys,
			})
			printReport(cmd.OutOrStdout(), report)
			if err != nil {
				return err
			}
			if n := report.Failed(); n > 0 {
				return fmt.Errorf("%d of %d files failed", n, len(report.Results))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&issues, "issue", nil, "sync only this issue key or URL (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be downloaded without writing anything")

	return cmd
}

// parseIssueKeys normalizes keys or browse URLs and drops duplicates.
func parseIssueKeys(inputs []string) ([]string, error) {
	seen := make(map[string]bool, len(inputs))
	keys := make([]string, 0, len(inputs))
	for _, in := range inputs {
		key, ok := model.ParseIssueKey(in)
		if !ok {
			return nil, fmt.Errorf("%w: %q", application.ErrInvalidIssueKey, in)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys, nil
}

// printReport writes a per-issue listing of the pass followed by a summary.
func printReport(w io.Writer, report *model.SyncReport) {
	if report == nil {
		return
	}

	byIssue := make(map[string][]model.FetchResult)
	for _, res := range report.Results {
		byIssue[res.Entry.IssueKey] = append(byIssue[res.Entry.IssueKey], res)
	}
	pending := make(map[string][]model.SyncPlanEntry)
	for _, e := range report.Pending {
		pending[e.IssueKey] = append(pending[e.IssueKey], e)
	}

	for _, ip := range report.Issues {
		fmt.Fprintf(w, "%s  %s [%s]\n", ip.Key, ip.Summary, ip.Status)
		if ip.Error != nil {
			fmt.Fprintf(w, "    Error: %s\n", ip.Error.Message())
			continue
		}
		for _, res := range byIssue[ip.Key] {
			fmt.Fprintf(w, "    %-40s %10s  %s\n", res.Entry.Attachment.Filename, size(res.Entry.Attachment.Size), res.Label())
		}
		for _, e := range pending[ip.Key] {
			fmt.Fprintf(w, "    %-40s %10s  would download\n", e.Attachment.Filename, size(e.Attachment.Size))
		}
	}

	if report.Fatal != nil {
		fmt.Fprintf(w, "Sync stopped: %s\n", report.Fatal.Message())
		return
	}

	if report.DryRun {
		var total int64
		for _, e := range report.Pending {
			total += e.Attachment.Size
		}
		fmt.Fprintf(w, "Dry run: %d files (%s) would be downloaded from %d issues.\n",
			len(report.Pending), humanize.Bytes(uint64(total)), len(report.Issues))
		return
	}

	fmt.Fprintf(w, "Downloaded %d files (%s), %d already on disk, %d failed, %d issues checked in %s.\n",
		report.Downloaded(),
		humanize.Bytes(uint64(report.Bytes())),
		report.Present(),
		report.Failed(),
		len(report.Issues),
		report.FinishedAt.Sub(report.StartedAt).Round(100*time.Millisecond),
	)
}

func size(n int64) string {
	if n <= 0 {
		return "?"
	}
	return humanize.Bytes(uint64(n))
}
