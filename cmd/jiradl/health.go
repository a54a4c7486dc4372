package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/jiradl/internal/config"
)

func healthCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that a running 'jiradl serve' answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.ListenAddr
			}

			status, err := check(cmd.Context(), normalizeAddr(addr))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "address of the running server")
	return cmd
}

// check probes the health endpoint and returns a one-line status.
func check(ctx context.Context, addr string) (string, error) {
	client := &http.Client{Timeout: 2 * time.Second}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/api/v1/health", addr), nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("server at %s is not reachable: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server at %s answered %s", addr, resp.Status)
	}

	var body struct {
		Status   string `json:"status"`
		LastSync string `json:"last_sync"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode health response: %w", err)
	}

	if body.LastSync == "" {
		return fmt.Sprintf("%s (no sync yet)", body.Status), nil
	}
	return fmt.Sprintf("%s (last sync %s)", body.Status, body.LastSync), nil
}

// normalizeAddr ensures the check connects to loopback rather than the
// bind-all address.
func normalizeAddr(raw string) string {
	if raw == "" {
		return config.DefaultListenAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return config.DefaultListenAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
