package pipeline

import (
	"time"

	"github.com/Iron-Ham/vulntune/internal/event"
	"github.com/Iron-Ham/vulntune/internal/logging"
)

// Option configures a RunContext.
type Option func(*RunContext)

// WithLogger sets the logger phases and the runner write to. The run id is
// attached automatically.
func WithLogger(logger *logging.Logger) Option {
	return func(rc *RunContext) {
		rc.Logger = logger
	}
}

// WithBus sets the event bus lifecycle events are published on. Without it
// events go to a private bus nobody listens to.
func WithBus(bus *event.Bus) Option {
	return func(rc *RunContext) {
		rc.Bus = bus
	}
}

// WithTimestamp fixes the invocation time.
func WithTimestamp(ts time.Time) Option {
	return func(rc *RunContext) {
		rc.Timestamp = ts
	}
}

// WithRunID fixes the run id.
func WithRunID(id string) Option {
	return func(rc *RunContext) {
		rc.RunID = id
	}
}
