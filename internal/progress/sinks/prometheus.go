package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/university-rankings/internal/progress"
)

// PrometheusSink turns run events into counters and histograms.
type PrometheusSink struct {
	runsStarted     prometheus.Counter
	sourcesRunning  prometheus.Gauge
	sourceOutcomes  *prometheus.CounterVec
	sourceDuration  *prometheus.HistogramVec
	rows            *prometheus.CounterVec
	entries         *prometheus.CounterVec
	newInstitutions prometheus.Counter
	lastSuccess     *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rankings_runs_started_total",
			Help: "Ingest runs started.",
		}),
		sourcesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rankings_sources_running",
			Help: "Sources currently being fetched.",
		}),
		sourceOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rankings_source_runs_total",
			Help: "Source runs partitioned by outcome.",
		}, []string{"source", "outcome"}),
		sourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rankings_source_run_duration_seconds",
			Help:    "Wall time per source run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"source"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rankings_rows_total",
			Help: "Extracted rows partitioned by result.",
		}, []string{"source", "result"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rankings_entries_written_total",
			Help: "Ranking entries written partitioned by operation.",
		}, []string{"source", "op"}),
		newInstitutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rankings_institutions_created_total",
			Help: "Institutions created on first sighting.",
		}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rankings_source_last_success_timestamp_seconds",
			Help: "Unix time of the last successful source run.",
		}, []string{"source"}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted,
		s.sourcesRunning,
		s.sourceOutcomes,
		s.sourceDuration,
		s.rows,
		s.entries,
		s.newInstitutions,
		s.lastSuccess,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
	case progress.StageSourceStart:
		s.sourcesRunning.Inc()
	case progress.StageSourceDone:
		s.finish(evt, "success")
		s.rows.WithLabelValues(evt.Source, "stored").Add(float64(evt.Rows))
		s.rows.WithLabelValues(evt.Source, "skipped").Add(float64(evt.Skipped))
		s.entries.WithLabelValues(evt.Source, "created").Add(float64(evt.Created))
		s.entries.WithLabelValues(evt.Source, "updated").Add(float64(evt.Updated))
		s.newInstitutions.Add(float64(evt.NewInstitutions))
		s.lastSuccess.WithLabelValues(evt.Source).Set(float64(evt.TS.Unix()))
	case progress.StageSourceFailed:
		s.finish(evt, "failed")
	case progress.StageSourceSkipped:
		s.finish(evt, "skipped")
	}
}

func (s *PrometheusSink) finish(evt progress.Event, outcome string) {
	s.sourcesRunning.Dec()
	s.sourceOutcomes.WithLabelValues(evt.Source, outcome).Inc()
	if evt.Dur > 0 {
		s.sourceDuration.WithLabelValues(evt.Source).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
