// Package dispatcher runs scheduled and on-demand refreshes of stale
// ranking sources. At most one refresh runs at a time per process.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/university-rankings/internal/api"
	"github.com/JakeFAU/university-rankings/internal/cachestate"
	"github.com/JakeFAU/university-rankings/internal/ingest"
)

// Runner executes an ingest run, e.g. *ingest.Orchestrator.
type Runner interface {
	Run(ctx context.Context, codes []string) (ingest.Report, error)
}

// StaleLister lists sources due for a refresh, e.g. *cachestate.Tracker.
type StaleLister interface {
	Stale(ctx context.Context) ([]cachestate.StaleSource, error)
}

// Fetchable reports whether a source has an extractor.
type Fetchable interface {
	Has(code string) bool
}

// Dispatcher refreshes stale sources on a cron schedule and on demand.
type Dispatcher struct {
	runner    Runner
	stale     StaleLister
	fetchable Fetchable
	logger    *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup
	base    context.Context
	stopped bool
	mu      sync.Mutex
}

// New creates a Dispatcher.
func New(runner Runner, stale StaleLister, fetchable Fetchable, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		runner:    runner,
		stale:     stale,
		fetchable: fetchable,
		logger:    logger,
		base:      context.Background(),
	}
}

// RefreshStale runs every stale source that has an extractor. It returns
// api.ErrRefreshRunning when another refresh holds the dispatcher.
func (d *Dispatcher) RefreshStale(ctx context.Context) (ingest.Report, error) {
	if !d.running.CompareAndSwap(false, true) {
		return ingest.Report{}, api.ErrRefreshRunning
	}
	defer d.running.Store(false)
	return d.refreshHeld(ctx)
}

// refreshHeld runs a refresh; the caller holds d.running.
func (d *Dispatcher) refreshHeld(ctx context.Context) (ingest.Report, error) {
	stale, err := d.stale.Stale(ctx)
	if err != nil {
		return ingest.Report{}, fmt.Errorf("list stale sources: %w", err)
	}
	var codes []string
	for _, s := range stale {
		if d.fetchable.Has(s.Code) {
			codes = append(codes, s.Code)
		}
	}
	if len(codes) == 0 {
		d.logger.Info("all fetchable sources are fresh")
		return ingest.Report{}, nil
	}
	d.logger.Info("refreshing stale sources", zap.Strings("sources", codes))
	report, err := d.runner.Run(ctx, codes)
	if err != nil {
		return report, fmt.Errorf("run refresh: %w", err)
	}
	d.logger.Info("refresh finished",
		zap.Int("succeeded", report.Count(ingest.OutcomeSuccess)),
		zap.Int("failed", report.Count(ingest.OutcomeFailed)),
		zap.Int("skipped", report.Count(ingest.OutcomeSkipped)),
	)
	return report, nil
}

// TriggerRefresh starts RefreshStale in the background under the context
// passed to Run. It implements api.Refresher and returns
// api.ErrRefreshStopped once Run is shutting down.
func (d *Dispatcher) TriggerRefresh() error {
	if !d.running.CompareAndSwap(false, true) {
		return api.ErrRefreshRunning
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.running.Store(false)
		return api.ErrRefreshStopped
	}
	ctx := d.base
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		defer d.running.Store(false)
		_, err := d.refreshHeld(ctx)
		d.logOutcome(err)
	}()
	return nil
}

func (d *Dispatcher) refresh(ctx context.Context) {
	_, err := d.RefreshStale(ctx)
	d.logOutcome(err)
}

func (d *Dispatcher) logOutcome(err error) {
	switch {
	case errors.Is(err, api.ErrRefreshRunning):
		d.logger.Info("refresh skipped; another is running")
	case err != nil && !errors.Is(err, context.Canceled):
		d.logger.Error("refresh failed", zap.Error(err))
	}
}

// Run schedules refreshes with the standard cron spec and blocks until ctx
// finishes, then waits for in-flight refreshes.
func (d *Dispatcher) Run(ctx context.Context, spec string) error {
	d.mu.Lock()
	d.base = ctx
	d.mu.Unlock()

	c := cron.New(cron.WithLogger(cron.PrintfLogger(zap.NewStdLog(d.logger.Named("cron")))))
	if _, err := c.AddFunc(spec, func() {
		d.wg.Add(1)
		defer d.wg.Done()
		d.refresh(ctx)
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()
	d.logger.Info("refresh schedule started", zap.String("cron", spec))

	<-ctx.Done()
	// No wg.Add may race the Wait below.
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	<-c.Stop().Done()
	d.wg.Wait()
	return nil
}
