package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"qa-gateway/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server. POST /ask answers questions, GET / serves a small
web form, and /healthz, /stats and /metrics are there for operators.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	e, err := server.New(server.Deps{
		Gateway:   c.gateway,
		Store:     c.store,
		Redis:     c.rdb,
		Metrics:   c.metrics,
		Log:       log,
		RateLimit: cfg.RateLimit,
	})
	if err != nil {
		return err
	}
	if c.rdb == nil && cfg.RateLimit.Enabled {
		log.Warn("rate limiting needs redis; /ask is not limited")
	}

	return server.Run(ctx, e, cfg.Server, log)
}
