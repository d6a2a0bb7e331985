// Package events fans domain events out to the transports that care about them.
package events

import (
	"context"
	"log/slog"

	"github.com/chess-tournaments/internal/domain"
)

// Dispatcher receives events after the state change that produced them has committed
type Dispatcher interface {
	Dispatch(ctx context.Context, events ...domain.Event)
}

// Sink consumes events for one transport
type Sink interface {
	Name() string
	Handle(ctx context.Context, event domain.Event) error
}

// Fanout delivers every event to every sink. A failing sink is logged and
// skipped; it never affects the caller or the other sinks.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewFanout creates a dispatcher over the given sinks
func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{
		sinks:  sinks,
		logger: logger,
	}
}

// Add registers another sink
func (f *Fanout) Add(sink Sink) {
	f.sinks = append(f.sinks, sink)
}

// Dispatch implements Dispatcher
func (f *Fanout) Dispatch(ctx context.Context, events ...domain.Event) {
	for _, event := range events {
		for _, sink := range f.sinks {
			if err := f.deliver(ctx, sink, event); err != nil {
				f.logger.Warn("event sink failed",
					"sink", sink.Name(),
					"event_type", event.Type,
					"tournament_id", event.TournamentID,
					"error", err,
				)
			}
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, sink Sink, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event sink panicked", "sink", sink.Name(), "panic", r)
		}
	}()
	return sink.Handle(ctx, event)
}

// Discard drops every event
type Discard struct{}

// Dispatch implements Dispatcher
func (Discard) Dispatch(context.Context, ...domain.Event) {}
