// Package pipeline runs the fixed sequence of vulntune phases.
//
// # Phases and the Runner
//
// A [Phase] names its input kinds, its output kind and a [Processor]. The
// [Runner] executes one phase: it validates every input before any work
// begins, lets the processor write into a hidden staging path, checks the
// result's shape and renames it into place. A failed phase leaves nothing
// behind that discovery could pick up.
//
// # Orchestration
//
// [Orchestrator.RunAll] executes a contiguous range of phases, handing each
// phase's output to the next by path. [Orchestrator.RunOnly] executes a
// single phase whose inputs are given explicitly or discovered. Both build
// the same [Inputs] value, so a phase produces identical bytes in either
// mode.
//
// Lifecycle events (phase.started, phase.completed, phase.failed,
// pipeline.completed) are published on the [event.Bus] in the [RunContext].
//
// # Usage
//
//	rc := pipeline.NewRunContext(resolved, store, guard, decision,
//	    pipeline.WithLogger(logger), pipeline.WithBus(bus))
//	o, _ := pipeline.NewOrchestrator(rc, phases.Default())
//	report, err := o.RunAll(ctx, pipeline.RunRange{})
package pipeline
