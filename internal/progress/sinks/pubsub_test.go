package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/university-rankings/internal/progress"
)

type sent struct {
	data  []byte
	attrs map[string]string
}

func TestPubSubSinkPublishesOutcomes(t *testing.T) {
	t.Parallel()

	var got []sent
	stopped := false
	sink := &PubSubSink{
		send: func(_ context.Context, data []byte, attrs map[string]string) (string, error) {
			got = append(got, sent{data: data, attrs: attrs})
			return "id", nil
		},
		stop: func() { stopped = true },
	}

	run := uuid.New()
	now := time.Now().UTC()
	batch := []progress.Event{
		{RunID: run, TS: now, Stage: progress.StageRunStart},
		{RunID: run, TS: now, Stage: progress.StageSourceStart, Source: "qs"},
		{RunID: run, TS: now, Stage: progress.StageSourceDone, Source: "qs", Rows: 5},
		{RunID: run, TS: now, Stage: progress.StageRunDone},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Len(t, got, 2)
	require.Equal(t, "qs", got[0].attrs["source"])
	require.Equal(t, string(progress.StageSourceDone), got[0].attrs["stage"])
	require.NotContains(t, got[1].attrs, "source")

	var decoded progress.Event
	require.NoError(t, json.Unmarshal(got[0].data, &decoded))
	require.Equal(t, run, decoded.RunID)
	require.Equal(t, 5, decoded.Rows)

	require.NoError(t, sink.Close(context.Background()))
	require.True(t, stopped)
}

func TestPubSubSinkJoinsErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	sink := &PubSubSink{send: func(context.Context, []byte, map[string]string) (string, error) {
		calls++
		return "", errors.New("unavailable")
	}}
	run := uuid.New()
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: run, TS: time.Now(), Stage: progress.StageSourceFailed, Source: "qs"},
		{RunID: run, TS: time.Now(), Stage: progress.StageSourceSkipped, Source: "arwu"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unavailable")
	require.Equal(t, 2, calls)
}

func TestNewPubSubSinkRequiresPublisher(t *testing.T) {
	t.Parallel()

	_, err := NewPubSubSink(nil)
	require.Error(t, err)
}
