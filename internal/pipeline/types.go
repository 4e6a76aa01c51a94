package pipeline

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/Iron-Ham/vulntune/internal/artifact"
)

// Inputs maps each required kind to the artifact a phase reads. Full runs
// and isolated runs hand phases the same type, so a phase cannot tell them
// apart.
type Inputs map[artifact.Kind]artifact.Artifact

// Path returns the path of the kind's artifact, or "" if absent.
func (in Inputs) Path(kind artifact.Kind) string {
	return in[kind].Path
}

// Paths returns kind -> path for logs and events.
func (in Inputs) Paths() map[string]string {
	out := make(map[string]string, len(in))
	for kind, a := range in {
		out[string(kind)] = a.Path
	}
	return out
}

// Kinds returns the kinds present, sorted.
func (in Inputs) Kinds() []artifact.Kind {
	return slices.Sorted(maps.Keys(in))
}

// Processor is a phase's logic. It reads its inputs and writes its output
// at out, which is a hidden staging path: a directory already created for
// directory kinds, a file path to create for file kinds.
type Processor interface {
	Process(ctx context.Context, rc *RunContext, in Inputs, out string) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, rc *RunContext, in Inputs, out string) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, rc *RunContext, in Inputs, out string) error {
	return f(ctx, rc, in, out)
}

// Phase is one named step. Inputs[0] is the primary input, handed off from
// the previous phase in a full run. Phases hold no state between runs.
type Phase struct {
	ID        string
	Inputs    []artifact.Kind
	Output    artifact.Kind
	Processor Processor
}

// Primary returns the primary input kind.
func (p Phase) Primary() artifact.Kind {
	if len(p.Inputs) == 0 {
		return ""
	}
	return p.Inputs[0]
}

// PhaseResult records one executed phase.
type PhaseResult struct {
	Phase    string
	Inputs   map[string]string // kind -> path
	Output   string
	Duration time.Duration
}

// Mode says how the orchestrator was invoked.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeIsolated Mode = "isolated"
)

// Report lists every phase an invocation executed, in order. A failed
// invocation's report holds the phases that finished before the failure.
type Report struct {
	RunID    string
	Mode     Mode
	Phases   []PhaseResult
	Success  bool
	Duration time.Duration
}

// PhaseIDs returns the executed phase ids in order.
func (r *Report) PhaseIDs() []string {
	ids := make([]string, len(r.Phases))
	for i, p := range r.Phases {
		ids[i] = p.Phase
	}
	return ids
}

// Output returns the output path of the last executed phase.
func (r *Report) Output() string {
	if len(r.Phases) == 0 {
		return ""
	}
	return r.Phases[len(r.Phases)-1].Output
}
