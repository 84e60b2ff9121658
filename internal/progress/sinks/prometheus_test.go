package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/university-rankings/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	run := uuid.New()
	now := time.Unix(1_700_000_000, 0).UTC()
	batch := []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageRunStart},
		{RunID: run, TS: now, Stage: progress.StageSourceStart, Source: "qs"},
		{
			RunID: run, TS: now, Stage: progress.StageSourceDone, Source: "qs",
			Rows: 3, Skipped: 1, NewInstitutions: 2, Created: 2, Updated: 1, Dur: 4 * time.Second,
		},
		{RunID: run, TS: now, Stage: progress.StageSourceStart, Source: "arwu"},
		{RunID: run, TS: now, Stage: progress.StageSourceFailed, Source: "arwu", Note: "no data returned"},
		{RunID: run, TS: now, Stage: progress.StageSourceStart, Source: "forbes"},
		{RunID: run, TS: now, Stage: progress.StageSourceSkipped, Source: "forbes"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.sourcesRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sourceOutcomes.WithLabelValues("qs", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sourceOutcomes.WithLabelValues("arwu", "failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.sourceOutcomes.WithLabelValues("forbes", "skipped")))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.rows.WithLabelValues("qs", "stored")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.rows.WithLabelValues("qs", "skipped")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.entries.WithLabelValues("qs", "created")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.newInstitutions))
	require.Equal(t, float64(now.Unix()), testutil.ToFloat64(sink.lastSuccess.WithLabelValues("qs")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.sourceDuration, "rankings_source_run_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
