package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/docstore-mcp/internal/mcp"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools over stdio",
		Long: `Serve the document store as MCP tools over stdin/stdout.

Logs go to stderr. With --metrics-addr (or metrics.addr in the config file)
Prometheus metrics are served at /metrics on that address.

Examples:
  # Serve with the default database
  docstore serve

  # Serve with a config file and metrics on :9090
  docstore serve --config docstore.yaml --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, opts, func(a *app) error {
				addr := metricsAddr
				if addr == "" {
					addr = a.cfg.Metrics.Addr
				}
				if addr != "" {
					shutdown := a.serveMetrics(addr)
					defer shutdown()
				}

				server, err := mcp.NewServer(a.registry, mcp.Options{
					DefaultPageSize: a.cfg.Documents.DefaultPageSize,
					MaxPageSize:     a.cfg.Documents.MaxPageSize,
					Logger:          a.logger,
				})
				if err != nil {
					return err
				}

				a.logger.Info("docstore MCP server starting", zap.String("version", version))

				errChan := make(chan error, 1)
				go func() {
					errChan <- server.Serve(ctx)
				}()

				select {
				case <-ctx.Done():
					a.logger.Info("shutting down")
					return nil
				case err := <-errChan:
					return err
				}
			})
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for Prometheus metrics (e.g. :9090)")
	return cmd
}

// serveMetrics starts the /metrics listener and returns its shutdown func
func (a *app) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("metrics listener started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
