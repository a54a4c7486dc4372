package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
)

func incidentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "incidents",
		Aliases: []string{"inc"},
		Short:   "List and clean up local issue folders",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listIncidents(cmd, a)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List local issue folders with status and size",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return listIncidents(cmd, a)
			},
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Re-read the status of every local issue from Jira",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := a.openServices(cmd.Context())
				if err != nil {
					return err
				}
				defer svc.Close()

				n, err := svc.cleanup.RefreshStatuses(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d issues.\n", n)
				return nil
			},
		},
		markCmd(a, "mark", "Flag issue folders for deletion", true),
		markCmd(a, "unmark", "Clear the deletion flag", false),
		deleteIncidentCmd(a),
		purgeCmd(a),
	)

	return cmd
}

func listIncidents(cmd *cobra.Command, a *app) error {
	svc, err := a.openServices(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	incidents, err := svc.cleanup.ListIncidents(cmd.Context())
	if err != nil {
		return err
	}
	printIncidents(cmd.OutOrStdout(), incidents)
	return nil
}

// printIncidents writes incidents as an aligned table.
func printIncidents(w io.Writer, incidents []model.Incident) {
	if len(incidents) == 0 {
		fmt.Fprintln(w, "No local issue folders.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSTATUS\tSIZE\tCHECKED\tFLAGS\tSUMMARY")
	for _, inc := range incidents {
		status := string(inc.Status)
		if status == "" {
			status = "unknown"
		}
		checked := "never"
		if !inc.LastChecked.IsZero() {
			checked = humanize.Time(inc.LastChecked)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inc.Key, status, humanize.Bytes(uint64(max(inc.FolderSize, 0))), checked, incidentFlags(inc), inc.Summary)
	}
	_ = tw.Flush()
}

func incidentFlags(inc model.Incident) string {
	var flags []string
	if inc.NeedsCleanup() {
		flags = append(flags, "closed")
	}
	if inc.MarkedForDeletion {
		flags = append(flags, "marked")
	}
	if !inc.OnDisk {
		flags = append(flags, "no-folder")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func markCmd(a *app, use, short string, marked bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <key-or-url>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			mark := svc.cleanup.Unmark
			if marked {
				mark = svc.cleanup.Mark
			}
			for _, arg := range args {
				key, err := mark(cmd.Context(), arg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %sed.\n", key, use)
			}
			return nil
		},
	}
}

func deleteIncidentCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <key-or-url>...",
		Short: "Delete issue folders and their records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := parseIssueKeys(args)
			if err != nil {
				return err
			}

			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Delete the local folders of %s?", strings.Join(keys, ", ")))
				if err != nil || !ok {
					return err
				}
			}

			svc, err := a.openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			for _, key := range keys {
				if _, err := svc.cleanup.DeleteIncident(cmd.Context(), key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s deleted.\n", key)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func purgeCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every issue folder flagged for deletion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete all marked issue folders?")
				if err != nil || !ok {
					return err
				}
			}

			svc, err := a.openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			deleted, err := svc.cleanup.DeleteMarked(cmd.Context())
			for _, key := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "%s deleted.\n", key)
			}
			if err != nil {
				return err
			}
			if len(deleted) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing marked for deletion.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		fmt.Fprintln(out, "Aborted.")
		return false, nil
	}
}
