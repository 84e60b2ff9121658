package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/university-rankings/internal/api"
	"github.com/JakeFAU/university-rankings/internal/dispatcher"
	"github.com/JakeFAU/university-rankings/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newScheduleCmd() *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Refreshes stale sources on a cron schedule and serves health and metrics",
		Long: `Runs until interrupted. On every tick of schedule.cron, each stale source
that has an extractor is fetched. An HTTP server on server.port exposes
/healthz, /readyz, /metrics, /v1/stale and POST /v1/refresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.GetConfig()
			logger := appInstance.GetLogger()
			tracker := appInstance.GetTracker()

			if _, err := appInstance.EnsureSources(cmd.Context()); err != nil {
				return fmt.Errorf("register sources: %w", err)
			}
			d := dispatcher.New(appInstance.GetOrchestrator(), tracker, appInstance.GetRegistry(), logger.Named("dispatcher"))

			srv := api.NewServer(api.Options{
				Store:      appInstance.GetStore(),
				Stale:      tracker,
				Refresher:  d,
				Metrics:    metrics.Handler(appInstance.GetGatherer()),
				Middleware: []api.Middleware{appInstance.GetMetrics().Middleware},
				Logger:     logger.Named("api"),
			})
			httpServer := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				logger.Info("http server listening", zap.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				return d.Run(ctx, cfg.Schedule.Cron)
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})
			if runNow {
				g.Go(func() error {
					if _, err := d.RefreshStale(ctx); err != nil {
						logger.Warn("initial refresh failed", zap.Error(err))
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "refresh stale sources once at startup")
	return cmd
}
