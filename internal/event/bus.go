package event

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/Iron-Ham/vulntune/internal/logging"
)

// subscription is one registered handler. deliver reports whether the event
// matched the handler's type.
type subscription struct {
	run     string // "" receives every run
	deliver func(Event) bool
}

// Bus is a synchronous pub-sub event bus. The orchestrator publishes phase
// lifecycle events on it and the CLI subscribes to render progress.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *logging.Logger
}

// NewBus creates a bus that reports handler panics to logger. A nil logger
// discards them.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{logger: logger}
}

// On registers handler for every event of type E. E may be an interface;
// On[Event] receives everything published on the bus.
func On[E Event](b *Bus, handler func(E)) {
	subscribe(b, "", handler)
}

// OnRun is On restricted to events published for runID.
func OnRun[E Event](b *Bus, runID string, handler func(E)) {
	subscribe(b, runID, handler)
}

func subscribe[E Event](b *Bus, runID string, handler func(E)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = append(b.subs, subscription{
		run: runID,
		deliver: func(e Event) bool {
			typed, ok := e.(E)
			if ok {
				handler(typed)
			}
			return ok
		},
	})
}

// Publish dispatches e to matching handlers in registration order. A nil
// Bus drops the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.run != "" && sub.run != e.runID() {
			continue
		}
		b.safeDeliver(sub, e)
	}
}

// safeDeliver recovers a panicking handler so later handlers still receive
// the event.
func (b *Bus) safeDeliver(sub subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithRun(e.runID()).Error("event handler panicked",
				"event", e.EventType(),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	sub.deliver(e)
}
