package audit

import (
	"context"
	"time"
)

// Sink receives emitted events. Implementations must be safe for concurrent
// use; emission happens on request paths.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events and fans them out to every
// configured sink. A sink failure never fails the calling operation.
type Publisher struct {
	sinks []Sink
	now   func() time.Time
}

func NewPublisher(sinks ...Sink) *Publisher {
	return &Publisher{sinks: sinks, now: time.Now}
}

// Emit stamps and forwards the event. Best effort by contract: audit loss is
// logged by sinks themselves, the pipeline keeps going.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	for _, sink := range p.sinks {
		_ = sink.Append(ctx, event)
	}
}
