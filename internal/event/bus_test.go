package event

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/vulntune/internal/logging"
)

func TestOn_DeliversByType(t *testing.T) {
	bus := NewBus(nil)

	var started, completed []string
	On(bus, func(e PhaseStartedEvent) { started = append(started, e.Phase) })
	On(bus, func(e PhaseCompletedEvent) { completed = append(completed, e.Phase+"="+e.Output) })

	bus.Publish(NewPhaseStartedEvent("r1", "parsing", map[string]string{"scan-results": "/scans/a"}))
	bus.Publish(NewPhaseCompletedEvent("r1", "parsing", "/ws/parsed-findings_20250926_120000.json", time.Second))
	bus.Publish(NewUploadDecidedEvent("r1", "BLOCKED", "skip-upload requested", "/models/a"))

	if diff := cmp.Diff([]string{"parsing"}, started); diff != "" {
		t.Errorf("started mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"parsing=/ws/parsed-findings_20250926_120000.json"}, completed); diff != "" {
		t.Errorf("completed mismatch (-want +got):\n%s", diff)
	}
}

func TestOn_EventInterfaceReceivesEverything(t *testing.T) {
	bus := NewBus(nil)

	var types []string
	On(bus, func(e Event) { types = append(types, e.EventType()) })

	bus.Publish(NewPhaseStartedEvent("r1", "training", nil))
	bus.Publish(NewPhaseFailedEvent("r1", "training", errors.New("exit status 1"), time.Second))
	bus.Publish(NewPipelineCompletedEvent("r1", nil, false, time.Second))

	want := []string{TypePhaseStarted, TypePhaseFailed, TypePipelineCompleted}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
}

func TestOnRun_ScopesToOneRun(t *testing.T) {
	bus := NewBus(nil)

	var mine, all []string
	OnRun(bus, "r1", func(e PhaseCompletedEvent) { mine = append(mine, e.RunID+"/"+e.Phase) })
	On(bus, func(e PhaseCompletedEvent) { all = append(all, e.RunID+"/"+e.Phase) })

	bus.Publish(NewPhaseCompletedEvent("r1", "parsing", "/ws/a.json", 0))
	bus.Publish(NewPhaseCompletedEvent("r2", "parsing", "/ws/b.json", 0))
	bus.Publish(NewPhaseCompletedEvent("r1", "vulnerability-analysis", "/ws/c.json", 0))

	if diff := cmp.Diff([]string{"r1/parsing", "r1/vulnerability-analysis"}, mine); diff != "" {
		t.Errorf("scoped handler mismatch (-want +got):\n%s", diff)
	}
	if len(all) != 3 {
		t.Errorf("unscoped handler saw %d events, want 3", len(all))
	}
}

func TestPublish_RegistrationOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	On(bus, func(Event) { order = append(order, "any") })
	On(bus, func(UploadDecidedEvent) { order = append(order, "upload") })
	OnRun(bus, "r1", func(Event) { order = append(order, "run") })

	bus.Publish(NewUploadDecidedEvent("r1", "REAL", "no test signals detected", "/models/a"))

	if diff := cmp.Diff([]string{"any", "upload", "run"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestPublish_HandlerPanicIsLogged(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(logging.NewLoggerWithWriter(&buf, logging.LevelError))

	var reached bool
	On(bus, func(PhaseStartedEvent) { panic("renderer broke") })
	On(bus, func(PhaseStartedEvent) { reached = true })

	bus.Publish(NewPhaseStartedEvent("r9", "upload", nil))

	if !reached {
		t.Error("handler after the panicking one was not called")
	}
	out := buf.String()
	for _, want := range []string{`"msg":"event handler panicked"`, `"run_id":"r9"`, `"event":"phase.started"`, "renderer broke"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %s", out, want)
		}
	}
}

func TestPublish_NilBusIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(NewPipelineCompletedEvent("r1", nil, true, 0))
}

func TestPublish_ConcurrentWithSubscribe(t *testing.T) {
	bus := NewBus(nil)

	var (
		mu    sync.Mutex
		count int
	)
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			On(bus, func(PhaseCompletedEvent) {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
		go func() {
			defer wg.Done()
			bus.Publish(NewPhaseCompletedEvent("r1", "parsing", "/ws/out.json", time.Duration(i)))
		}()
	}
	wg.Wait()

	count = 0
	bus.Publish(NewPhaseCompletedEvent("r1", "parsing", "/ws/out.json", 0))
	if count != 10 {
		t.Errorf("after all subscriptions, one publish reached %d handlers, want 10", count)
	}
}
