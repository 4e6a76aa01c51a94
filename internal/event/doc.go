// Package event provides a pub-sub event bus for pipeline progress.
//
// The orchestrator publishes lifecycle events without knowing who renders
// them, and the CLI subscribes without depending on the orchestrator's
// internals.
//
// # Main Types
//
//   - [Event]: implemented by every pipeline event; carries the type name, the
//     publish time and the run id
//   - [Bus]: synchronous dispatcher, safe for concurrent use
//   - [On] and [OnRun]: typed subscription, optionally scoped to one run
//
// # Events
//
//   - [PhaseStartedEvent]: a phase's inputs validated and its processor is starting
//   - [PhaseCompletedEvent]: a phase's output was published
//   - [PhaseFailedEvent]: a phase stopped with an error
//   - [PipelineCompletedEvent]: an orchestrator invocation ended
//   - [UploadDecidedEvent]: the upload phase applied the guard decision
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//	event.OnRun(bus, rc.RunID, func(done event.PhaseCompletedEvent) {
//	    fmt.Printf("%s -> %s\n", done.Phase, done.Output)
//	})
//
// Handlers run synchronously on the publishing goroutine. A panicking
// handler is recovered and logged; the remaining handlers still run.
package event
