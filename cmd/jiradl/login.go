package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ericfisherdev/jiradl/internal/adapter/driven/jira"
)

func loginCmd(a *app) *cobra.Command {
	var jiraURL, email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify and save Jira credentials",
		Long: `Prompts for the Jira site URL, account email and API token, verifies them
against the site and saves them. The token is encrypted with a key kept in
the operating system keyring.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			var err error
			if jiraURL == "" {
				if jiraURL, err = prompt(in, out, "Jira URL", a.cfg.JiraURL); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = prompt(in, out, "Email", a.cfg.Email); err != nil {
					return err
				}
			}
			token, err := readToken(in, out)
			if err != nil {
				return err
			}

			baseURL, err := jira.NormalizeBaseURL(jiraURL)
			if err != nil {
				return err
			}
			client, err := jira.NewClient(baseURL, email, token)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			name, err := client.Myself(ctx)
			if err != nil {
				return fmt.Errorf("verify credentials: %w", err)
			}

			enc, err := a.vault.Encrypt(token)
			if err != nil {
				return err
			}
			a.cfg.SetCredentials(baseURL, email, enc)
			if err := a.cfg.Save(); err != nil {
				return err
			}

			fmt.Fprintf(out, "Logged in to %s as %s.\n", baseURL, name)
			return nil
		},
	}

	cmd.Flags().StringVar(&jiraURL, "url", "", "Jira site URL, e.g. https://acme.atlassian.net")
	cmd.Flags().StringVar(&email, "email", "", "account email")

	return cmd
}

// prompt asks for a line of input, offering def when the answer is empty.
func prompt(in *bufio.Reader, out io.Writer, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}

	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		line = def
	}
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return line, nil
}

// readToken reads the API token without echo when stdin is a terminal, and
// as a plain line otherwise so it can be piped in.
func readToken(in *bufio.Reader, out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(in, io.Discard, "API token", "")
	}

	fmt.Fprint(out, "API token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read api token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", errors.New("api token is required")
	}
	return token, nil
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved API token and its encryption key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg.ClearToken()
			if err := a.cfg.Save(); err != nil {
				return err
			}
			if err := a.vault.Forget(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
