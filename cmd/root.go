// Package cmd defines and implements the CLI commands for the rankings
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/university-rankings/internal/app"
	"github.com/JakeFAU/university-rankings/internal/cachestate"
	"github.com/JakeFAU/university-rankings/internal/config"
	"github.com/JakeFAU/university-rankings/internal/extract"
	"github.com/JakeFAU/university-rankings/internal/ingest"
	"github.com/JakeFAU/university-rankings/internal/logging"
	"github.com/JakeFAU/university-rankings/internal/metrics"
	"github.com/JakeFAU/university-rankings/internal/ranking"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what commands need from the service container. *app.App
// satisfies it; tests inject their own.
type App interface {
	Close()
	EnsureSources(ctx context.Context) (int, error)
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetStore() ranking.Repository
	GetRegistry() *extract.Registry
	GetTracker() *cachestate.Tracker
	GetOrchestrator() *ingest.Orchestrator
	GetGatherer() prometheus.Gatherer
	GetMetrics() *metrics.Collectors
}

// appFactory builds the App from the --config path.
type appFactory func(ctx context.Context, cfgPath string) (App, error)

func defaultAppFactory(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command. The returned func
// closes the App when the command failed before PersistentPostRun ran.
func newRootCmd(newApp appFactory) (*cobra.Command, func()) {
	var (
		cfgFile string
		built   App
	)
	closeApp := func() {
		if built != nil {
			built.Close()
			built = nil
		}
	}
	cmd := &cobra.Command{
		Use:   "rankings",
		Short: "Ingests university ranking tables into one canonical store.",
		Long: `rankings fetches ranking tables from independent publishers (QS, ARWU,
U.S. News, Forbes, Niche), normalizes them into one schema, and tracks how
fresh each source is. Stored rows feed composite leaderboards per region.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Build the services once the flags are parsed.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			built = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(*cobra.Command, []string) {
			closeApp()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); RANKINGS_* env vars override it")

	cmd.AddCommand(
		newFetchCmd(),
		newStatusCmd(),
		newStaleCmd(),
		newCompositeCmd(),
		newSeedCmd(),
		newScheduleCmd(),
		newMigrateCmd(),
	)
	return cmd, closeApp
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, closeApp := newRootCmd(defaultAppFactory)
	err := root.ExecuteContext(ctx)
	closeApp()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}
