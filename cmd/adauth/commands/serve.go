package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/isometry/adauth/internal/logging"
	"github.com/isometry/adauth/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP authentication service",
	Long: `Run the HTTP authentication service.

Endpoints:
  GET  /ping      liveness probe
  POST /auth_ad   {"username": "...", "password": "..."}
  GET  /metrics   Prometheus metrics (metrics.enabled)

Examples:
  adauth serve --config /etc/adauth/config.yaml
  ADAUTH_LOGGING_LEVEL=DEBUG adauth serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			a.logger.Warn("Failed to close directory client", "error", err)
		}
	}()

	opts := server.Options{Logger: logging.Subsystem(a.logger, "http")}
	if a.metrics != nil {
		opts.Metrics = a.metrics.Handler()
		opts.MetricsPath = a.config.Metrics.Path
	}

	srv := server.NewServer(a.config.Listen, server.NewRouter(a.resolver, opts), a.config.ShutdownTimeout, a.logger)
	return srv.Start(ctx)
}
