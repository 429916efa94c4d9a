package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// healthResponse matches the bodies of /healthz and /readyz.
type healthResponse struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks,omitempty"`
}

type healthcheckOptions struct {
	timeout time.Duration
	url     string
	ready   bool
}

func newHealthcheckCommand() *cobra.Command {
	opts := &healthcheckOptions{}
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check against a running server.

By default it calls /healthz, which only proves the process is serving.
With --ready it calls /readyz, which also checks the database and the
schema version. It is used by the container HEALTHCHECK and exits non-zero
when the server is unhealthy or unreachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(commandContext(cmd), opts)
		},
	}
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVar(&opts.url, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/healthz)")
	cmd.Flags().BoolVar(&opts.ready, "ready", false, "check readiness instead of liveness")
	return cmd
}

func runHealthcheck(ctx context.Context, opts *healthcheckOptions) error {
	target := opts.url
	if target == "" {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		path := "/healthz"
		if opts.ready {
			path = "/readyz"
		}
		target = fmt.Sprintf("http://localhost:%s%s", port, path)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build health check request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("invalid health check response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d (%s)", resp.StatusCode, body.Status)
	}
	switch body.Status {
	case "ok", "healthy", "degraded":
		return nil
	default:
		return fmt.Errorf("unhealthy: status=%s", body.Status)
	}
}
