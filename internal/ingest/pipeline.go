// Package ingest runs inbound payloads through validation, storage and the
// event stream. HTTP and MQTT share the same pipeline.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/clock"
	"github.com/smukkama/helmet-monitor/internal/protocol"
	"github.com/smukkama/helmet-monitor/internal/reading"
	"github.com/smukkama/helmet-monitor/internal/store"
)

// Publisher forwards persisted readings downstream
type Publisher interface {
	PublishReading(ctx context.Context, ev *protocol.ReadingEvent) error
}

// Pipeline validates, persists and publishes readings
type Pipeline struct {
	clock     clock.Clock
	store     store.Store
	publisher Publisher
	logger    *zap.Logger
}

// NewPipeline creates a pipeline. publisher may be nil.
func NewPipeline(clk clock.Clock, st store.Store, publisher Publisher, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		clock:     clk,
		store:     st,
		publisher: publisher,
		logger:    logger,
	}
}

// Ingest validates payload and appends it to the store. Validation errors are
// reading.ErrNoData or reading.ErrMissingIdentifier; storage errors wrap
// store.ErrWrite. Publishing is best effort and never fails the call.
func (p *Pipeline) Ingest(ctx context.Context, payload []byte, source string) (reading.Reading, error) {
	r, err := reading.Validate(payload, p.clock)
	if err != nil {
		return reading.Reading{}, err
	}

	if err := p.store.Append(ctx, r); err != nil {
		return reading.Reading{}, err
	}

	p.publish(ctx, r, source)
	return r, nil
}

func (p *Pipeline) publish(ctx context.Context, r reading.Reading, source string) {
	if p.publisher == nil {
		return
	}

	ev := protocol.NewReadingEvent(r, source)
	if err := p.publisher.PublishReading(ctx, ev); err != nil {
		p.logger.Warn("failed to publish reading event",
			zap.String("person_id", r.PersonID),
			zap.String("event_id", ev.EventID),
			zap.Error(err))
	}
}
