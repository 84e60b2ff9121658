package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/JakeFAU/university-rankings/internal/progress"
)

type sendFunc func(ctx context.Context, data []byte, attrs map[string]string) (string, error)

// PubSubSink publishes source outcomes and run completions as JSON messages
// so downstream consumers can react to refreshed data.
type PubSubSink struct {
	send sendFunc
	stop func()
}

// NewPubSubSink publishes through p. Close stops p.
func NewPubSubSink(p *pubsub.Publisher) (*PubSubSink, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher is required")
	}
	send := func(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
		return p.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	}
	return &PubSubSink{send: send, stop: p.Stop}, nil
}

// Consume publishes terminal source events and RUN_DONE; the rest are
// ignored. Every event is attempted; failures are joined.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	var errs []error
	for _, evt := range batch {
		if !evt.Stage.Terminal() && evt.Stage != progress.StageRunDone {
			continue
		}
		data, err := json.Marshal(evt)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal event: %w", err))
			continue
		}
		attrs := map[string]string{
			"stage":  string(evt.Stage),
			"run_id": evt.RunID.String(),
		}
		if evt.Source != "" {
			attrs["source"] = evt.Source
		}
		if _, err := s.send(ctx, data, attrs); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", evt.Stage, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes pending messages.
func (s *PubSubSink) Close(context.Context) error {
	if s.stop != nil {
		s.stop()
	}
	return nil
}
