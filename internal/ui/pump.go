// internal/ui/pump.go
package ui

import (
	"context"
	"log/slog"

	"github.com/user/kamibot/internal/agent"
)

// Sink receives every agent event in emission order.
type Sink interface {
	Record(ctx context.Context, e agent.Event) error
}

// Pump is the single consumer of an agent's event stream. It hands each
// event to every sink in turn and returns once the stream closes or ctx
// ends. A failing sink is logged and does not stop the pump.
func Pump(ctx context.Context, events <-chan agent.Event, sinks ...Sink) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			for _, s := range sinks {
				if err := s.Record(ctx, e); err != nil {
					slog.Warn("event sink failed", "kind", e.Kind, "error", err)
				}
			}
		}
	}
}
