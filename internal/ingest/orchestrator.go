// Package ingest runs the fetch cycle: scrape each requested source, upsert
// the canonical records and record the outcome in the cache state. A failing
// source never stops the others.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/university-rankings/internal/cachestate"
	"github.com/JakeFAU/university-rankings/internal/clock/system"
	"github.com/JakeFAU/university-rankings/internal/extract"
	idgen "github.com/JakeFAU/university-rankings/internal/id/uuid"
	"github.com/JakeFAU/university-rankings/internal/progress"
	"github.com/JakeFAU/university-rankings/internal/ranking"
)

// Store is the persistence the orchestrator writes through.
type Store interface {
	ranking.Store
	ranking.Locker
}

// Scraper fetches and extracts every page of a source.
type Scraper interface {
	Scrape(ctx context.Context, ex extract.Extractor) (extract.Result, error)
}

// Extractors resolves source codes to extractors.
type Extractors interface {
	Resolve(code string) (extract.Extractor, error)
	Has(code string) bool
	Codes() []string
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Orchestrator drives ingest runs.
type Orchestrator struct {
	store      Store
	scraper    Scraper
	extractors Extractors
	tracker    *cachestate.Tracker
	clock      ranking.Clock
	ids        IDGenerator
	emitter    progress.Emitter
	logger     *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used for timestamps and the ranking year.
func WithClock(c ranking.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithIDGenerator sets the run id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.ids = g
		}
	}
}

// WithEmitter sets where progress events go.
func WithEmitter(e progress.Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New builds an Orchestrator.
func New(store Store, scraper Scraper, extractors Extractors, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		scraper:    scraper,
		extractors: extractors,
		clock:      system.New(),
		ids:        idgen.New(),
		emitter:    progress.Nop{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.tracker = cachestate.NewTracker(store, o.clock)
	return o
}

type target struct {
	source    ranking.Source
	extractor extract.Extractor
}

// Run fetches codes in order. Every code is resolved before anything is
// fetched; an unknown code returns *UnknownSourceError and an empty report.
// Source failures are recorded in the report, never returned.
func (o *Orchestrator) Run(ctx context.Context, codes []string) (Report, error) {
	targets, err := o.resolve(ctx, codes)
	if err != nil {
		return Report{}, err
	}
	runID, err := o.ids.NewRawID()
	if err != nil {
		return Report{}, fmt.Errorf("new run id: %w", err)
	}
	report := Report{RunID: runID}
	logger := o.logger.With(zap.String("run_id", runID.String()))
	started := o.clock.Now()
	o.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart})

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			logger.Warn("run cancelled", zap.Error(err))
			break
		}
		sr := o.runSource(ctx, runID, t, logger.With(zap.String("source", t.source.Code)))
		report.Sources = append(report.Sources, sr)
	}

	o.emit(progress.Event{RunID: runID, Stage: progress.StageRunDone, Dur: o.since(started)})
	logger.Info("run finished",
		zap.Int("succeeded", report.Count(OutcomeSuccess)),
		zap.Int("failed", report.Count(OutcomeFailed)),
		zap.Int("skipped", report.Count(OutcomeSkipped)),
	)
	return report, ctx.Err()
}

func (o *Orchestrator) resolve(ctx context.Context, codes []string) ([]target, error) {
	targets := make([]target, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		src, err := o.store.GetSource(ctx, code)
		if errors.Is(err, ranking.ErrNotFound) {
			return nil, &UnknownSourceError{Code: code, Available: o.extractors.Codes()}
		}
		if err != nil {
			return nil, fmt.Errorf("get source %s: %w", code, err)
		}
		if !o.extractors.Has(code) {
			return nil, &UnknownSourceError{
				Code:      code,
				Available: o.extractors.Codes(),
				Reason:    "no extractor is available",
			}
		}
		ex, err := o.extractors.Resolve(code)
		if err != nil {
			return nil, fmt.Errorf("resolve extractor %s: %w", code, err)
		}
		targets = append(targets, target{source: src, extractor: ex})
	}
	return targets, nil
}

func (o *Orchestrator) runSource(ctx context.Context, runID uuid.UUID, t target, logger *zap.Logger) SourceReport {
	code := t.source.Code
	sr := SourceReport{Code: code}
	started := o.clock.Now()
	o.emit(progress.Event{RunID: runID, Stage: progress.StageSourceStart, Source: code})

	state, err := o.tracker.Begin(ctx, code)
	if err != nil {
		logger.Error("load cache state failed", zap.Error(err))
		return o.failed(runID, sr, started, err)
	}

	release, err := o.store.AcquireSourceLock(ctx, code)
	if errors.Is(err, ranking.ErrSourceBusy) {
		logger.Info("source locked by another run")
		sr.Outcome = OutcomeSkipped
		sr.Error = err.Error()
		o.emit(progress.Event{RunID: runID, Stage: progress.StageSourceSkipped, Source: code, Note: sr.Error})
		return sr
	}
	if err != nil {
		return o.fail(ctx, runID, sr, state, started, fmt.Errorf("acquire source lock: %w", err), logger)
	}
	defer release()

	logger.Info("fetching source", zap.String("name", t.source.Name))

	result, err := o.scrape(ctx, t.extractor)
	if err != nil {
		return o.fail(ctx, runID, sr, state, started, err, logger)
	}
	sr.Skipped = len(result.Skipped)
	if len(result.Entries) == 0 {
		return o.fail(ctx, runID, sr, state, started, ErrEmptyResult, logger)
	}

	year := o.clock.Now().Year()
	for i, raw := range result.Entries {
		if err := o.persist(ctx, code, year, raw, &sr); err != nil {
			sr.Skipped++
			logger.Warn("row not stored",
				zap.Int("row", i+1),
				zap.String("institution", raw.InstitutionName),
				zap.Error(err),
			)
		}
	}
	sr.Rows = len(result.Entries)

	if _, err := o.tracker.MarkSuccess(ctx, state, sr.Rows); err != nil {
		logger.Error("record success failed", zap.Error(err))
		return o.failed(runID, sr, started, err)
	}
	sr.Outcome = OutcomeSuccess
	sr.Duration = o.since(started)
	o.emit(progress.Event{
		RunID:           runID,
		Stage:           progress.StageSourceDone,
		Source:          code,
		Rows:            sr.Rows,
		Skipped:         sr.Skipped,
		NewInstitutions: sr.NewInstitutions,
		Created:         sr.Created,
		Updated:         sr.Updated,
		Dur:             sr.Duration,
	})
	logger.Info("source stored",
		zap.Int("rows", sr.Rows),
		zap.Int("skipped", sr.Skipped),
		zap.Int("new_institutions", sr.NewInstitutions),
		zap.Int("created", sr.Created),
		zap.Int("updated", sr.Updated),
	)
	return sr
}

// scrape converts a panic anywhere in fetching or extraction into an error.
func (o *Orchestrator) scrape(ctx context.Context, ex extract.Extractor) (res extract.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("scrape panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("scrape panic: %v", r)
		}
	}()
	return o.scraper.Scrape(ctx, ex)
}

func (o *Orchestrator) persist(ctx context.Context, code string, year int, raw ranking.RawEntry, sr *SourceReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("persist panic: %v", r)
		}
	}()
	country := raw.Country
	if country == "" {
		country = ranking.UnknownCountry
	}
	inst, created, err := o.store.GetOrCreateInstitution(ctx, ranking.Institution{
		Name:       raw.InstitutionName,
		Country:    country,
		WebsiteURL: raw.SourceURL,
	})
	if err != nil {
		return fmt.Errorf("get or create institution: %w", err)
	}
	if created {
		sr.NewInstitutions++
	}
	_, created, err = o.store.UpsertEntry(ctx, ranking.EntryUpsert{
		Key:           ranking.EntryKey{InstitutionID: inst.ID, SourceCode: code, Year: year},
		Rank:          raw.Rank,
		Score:         raw.Score,
		Metrics:       raw.Metrics,
		DataSourceURL: raw.SourceURL,
	})
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	if created {
		sr.Created++
	} else {
		sr.Updated++
	}
	return nil
}

// fail records cause in the cache state and reports the source as FAILED.
func (o *Orchestrator) fail(
	ctx context.Context,
	runID uuid.UUID,
	sr SourceReport,
	state ranking.CacheState,
	started time.Time,
	cause error,
	logger *zap.Logger,
) SourceReport {
	logger.Warn("source failed", zap.Error(cause))
	if _, err := o.tracker.MarkFailed(ctx, state, cause.Error()); err != nil {
		logger.Error("record failure failed", zap.Error(err))
	}
	return o.failed(runID, sr, started, cause)
}

func (o *Orchestrator) failed(runID uuid.UUID, sr SourceReport, started time.Time, cause error) SourceReport {
	sr.Outcome = OutcomeFailed
	sr.Error = cause.Error()
	sr.Duration = o.since(started)
	o.emit(progress.Event{
		RunID:  runID,
		Stage:  progress.StageSourceFailed,
		Source: sr.Code,
		Dur:    sr.Duration,
		Note:   sr.Error,
	})
	return sr
}

func (o *Orchestrator) emit(evt progress.Event) {
	evt.TS = o.clock.Now()
	o.emitter.Emit(evt)
}

func (o *Orchestrator) since(t time.Time) time.Duration {
	d := o.clock.Now().Sub(t)
	if d < 0 {
		return 0
	}
	return d
}
