package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/scanreport/internal/httpapi"
	"github.com/Sumatoshi-tech/scanreport/pkg/observability"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		addr           string
		maxReportBytes string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the report HTTP API",
		Long: `Serve report ingestion and queries over HTTP:

  POST   /v1/report              load a report from the request body
  GET    /v1/report              report summary and operations
  GET    /v1/issues              page of issues (page, perPage, sort, order, path, type, method)
  GET    /v1/issues/{id}         one issue
  GET    /v1/paths               page of paths (page, perPage, contains)
  GET    /v1/operations/skipped  skipped operations
  GET    /v1/session             statistics of the current load
  DELETE /v1/session             cancel the current load
  GET    /healthz, /readyz       probes
  GET    /metrics                Prometheus metrics when telemetry.prometheus is set`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, observability.ModeServe, func(ctx context.Context, a *app) error {
				var limit uint64

				if maxReportBytes != "" {
					var err error

					limit, err = humanize.ParseBytes(maxReportBytes)
					if err != nil {
						return err
					}
				}

				srvCfg := a.cfg.Server
				if addr != "" {
					srvCfg.Addr = addr
				}

				srv := httpapi.New(a.manager, a.engine, httpapi.Options{
					Logger:         a.providers.Logger,
					Tracer:         a.providers.Tracer,
					RED:            a.red,
					MetricsHandler: a.providers.MetricsHandler,
					FragmentSize:   a.cfg.Parser.FragmentSize,
					DefaultPerPage: a.cfg.Query.DefaultPerPage,
					MaxReportBytes: int64(limit),
				})

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				return srv.Run(ctx, &http.Server{
					Addr:         srvCfg.Addr,
					ReadTimeout:  srvCfg.ReadTimeout,
					WriteTimeout: srvCfg.WriteTimeout,
					IdleTimeout:  srvCfg.IdleTimeout,
				})
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&maxReportBytes, "max-report-size", "", "reject report bodies larger than this (e.g. 2GB)")

	return cmd
}
