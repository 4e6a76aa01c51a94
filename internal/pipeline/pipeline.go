package pipeline

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/errors"
	"github.com/Iron-Ham/vulntune/internal/event"
)

// Orchestrator runs a fixed, ordered list of phases, either as a contiguous
// range (RunAll) or one phase in isolation (RunOnly). One Orchestrator
// serves one invocation.
type Orchestrator struct {
	mu     sync.Mutex
	rc     *RunContext
	phases []Phase
	runner *Runner
	ran    bool
}

// NewOrchestrator validates the phase list: ids are unique and non-empty,
// every phase has a primary input, and each primary input is the previous
// phase's output.
func NewOrchestrator(rc *RunContext, phases []Phase) (*Orchestrator, error) {
	if rc == nil {
		return nil, errors.New("pipeline: RunContext is required")
	}
	if rc.Store == nil {
		return nil, errors.New("pipeline: RunContext.Store is required")
	}
	if len(phases) == 0 {
		return nil, errors.New("pipeline: at least one phase is required")
	}
	seen := make(map[string]bool, len(phases))
	for i, p := range phases {
		if p.ID == "" {
			return nil, fmt.Errorf("pipeline: phase %d has no id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("pipeline: duplicate phase id %q", p.ID)
		}
		seen[p.ID] = true
		if len(p.Inputs) == 0 {
			return nil, fmt.Errorf("pipeline: phase %q has no inputs", p.ID)
		}
		if i > 0 && p.Primary() != phases[i-1].Output {
			return nil, fmt.Errorf("pipeline: phase %q reads %s but %q produces %s",
				p.ID, p.Primary(), phases[i-1].ID, phases[i-1].Output)
		}
	}
	return &Orchestrator{
		rc:     rc,
		phases: slices.Clone(phases),
		runner: NewRunner(rc),
	}, nil
}

// Phases returns the ordered phase list.
func (o *Orchestrator) Phases() []Phase {
	return slices.Clone(o.phases)
}

// index returns the position of id, or an error naming the valid ids.
func (o *Orchestrator) index(id string) (int, error) {
	for i, p := range o.phases {
		if p.ID == id {
			return i, nil
		}
	}
	ids := make([]string, len(o.phases))
	for i, p := range o.phases {
		ids[i] = p.ID
	}
	return -1, errors.NewValidationError(fmt.Sprintf("unknown phase %q (valid: %s)", id, strings.Join(ids, ", "))).
		WithField("phase").
		WithValue(id)
}

// RunRange selects the phases RunAll executes. Empty From and To mean the
// first and last phase. Inputs are explicit paths by kind; they take
// precedence over discovery for any input not handed off in this run.
type RunRange struct {
	From   string
	To     string
	Inputs map[artifact.Kind]string
}

// RunAll executes phases From through To in order. Each phase's primary
// input is the previous phase's output; every other input comes from an
// explicit path, an artifact produced earlier in this run, or discovery, in
// that order. The first failure stops the run.
func (o *Orchestrator) RunAll(ctx context.Context, rr RunRange) (*Report, error) {
	start, end := 0, len(o.phases)-1
	if rr.From != "" {
		i, err := o.index(rr.From)
		if err != nil {
			return nil, err
		}
		start = i
	}
	if rr.To != "" {
		i, err := o.index(rr.To)
		if err != nil {
			return nil, err
		}
		end = i
	}
	if start > end {
		return nil, errors.NewValidationError(fmt.Sprintf("phase %q comes after %q", rr.From, rr.To)).
			WithField("from")
	}
	if err := o.claim(); err != nil {
		return nil, err
	}

	report := &Report{RunID: o.rc.RunID, Mode: ModeFull}
	began := time.Now()
	produced := make(map[artifact.Kind]artifact.Artifact)

	for i := start; i <= end; i++ {
		if err := ctx.Err(); err != nil {
			return o.finish(report, began, err)
		}
		phase := o.phases[i]

		in := make(Inputs, len(phase.Inputs))
		var pending []artifact.Kind
		for j, kind := range phase.Inputs {
			if j == 0 && i > start {
				in[kind] = produced[kind]
				continue
			}
			pending = append(pending, kind)
		}
		if err := o.resolveInputs(phase, in, pending, rr.Inputs, produced); err != nil {
			return o.finish(report, began, err)
		}

		stepStart := time.Now()
		out, err := o.runner.Run(ctx, phase, in)
		if err != nil {
			return o.finish(report, began, err)
		}
		produced[phase.Output] = out
		report.Phases = append(report.Phases, PhaseResult{
			Phase:    phase.ID,
			Inputs:   in.Paths(),
			Output:   out.Path,
			Duration: time.Since(stepStart),
		})
	}

	return o.finish(report, began, nil)
}

// RunOnly executes exactly one phase. Each input is the explicit path given
// for its kind or, failing that, discovered independently.
func (o *Orchestrator) RunOnly(ctx context.Context, phaseID string, explicit map[artifact.Kind]string) (*Report, error) {
	i, err := o.index(phaseID)
	if err != nil {
		return nil, err
	}
	if err := o.claim(); err != nil {
		return nil, err
	}
	phase := o.phases[i]
	report := &Report{RunID: o.rc.RunID, Mode: ModeIsolated}
	began := time.Now()

	in := make(Inputs, len(phase.Inputs))
	if err := o.resolveInputs(phase, in, phase.Inputs, explicit, nil); err != nil {
		return o.finish(report, began, err)
	}

	out, err := o.runner.Run(ctx, phase, in)
	if err != nil {
		return o.finish(report, began, err)
	}
	report.Phases = append(report.Phases, PhaseResult{
		Phase:    phase.ID,
		Inputs:   in.Paths(),
		Output:   out.Path,
		Duration: time.Since(began),
	})
	return o.finish(report, began, nil)
}

// claim marks the orchestrator used. Every artifact of an invocation shares
// one timestamp, so a second run would collide with the first.
func (o *Orchestrator) claim() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ran {
		return errors.New("pipeline: orchestrator has already run")
	}
	o.ran = true
	return nil
}

// resolveInputs fills in each pending kind. All kinds are attempted so the
// error can name every missing one. A lone missing primary input is
// reported as the ArtifactNotFoundError itself.
func (o *Orchestrator) resolveInputs(phase Phase, in Inputs, pending []artifact.Kind, explicit map[artifact.Kind]string, produced map[artifact.Kind]artifact.Artifact) error {
	var (
		missing  []string
		notFound []error
		primary  *errors.ArtifactNotFoundError
	)
	for _, kind := range pending {
		a, err := o.resolve(phase.ID, kind, explicit, produced)
		if err == nil {
			in[kind] = a
			continue
		}
		var nf *errors.ArtifactNotFoundError
		if !errors.As(err, &nf) {
			return errors.NewPhaseInputError("cannot locate input", err).
				WithPhase(phase.ID).
				WithArtifact(string(kind), "")
		}
		if kind == phase.Primary() {
			primary = nf
		}
		missing = append(missing, string(kind))
		notFound = append(notFound, nf)
	}

	switch {
	case len(missing) == 0:
		return nil
	case len(missing) == 1 && primary != nil:
		return primary.WithPhase(phase.ID)
	case len(missing) == 1:
		return errors.NewPhaseInputError("required input not found", notFound[0]).
			WithPhase(phase.ID).
			WithArtifact(missing[0], "")
	default:
		return errors.NewPhaseInputError(
			"required inputs not found: "+strings.Join(missing, ", "),
			errors.Join(notFound...),
		).WithPhase(phase.ID)
	}
}

func (o *Orchestrator) resolve(phaseID string, kind artifact.Kind, explicit map[artifact.Kind]string, produced map[artifact.Kind]artifact.Artifact) (artifact.Artifact, error) {
	if p, ok := explicit[kind]; ok && p != "" {
		if a, ok := produced[kind]; ok {
			o.rc.Logger.WithPhase(phaseID).Warn("explicit input shadows artifact produced in this run",
				"kind", string(kind), "explicit", p, "produced", a.Path)
		}
		return o.rc.Store.Explicit(kind, p)
	}
	if a, ok := produced[kind]; ok {
		return a, nil
	}
	return o.rc.Store.Current(kind)
}

func (o *Orchestrator) finish(report *Report, began time.Time, err error) (*Report, error) {
	report.Duration = time.Since(began)
	report.Success = err == nil
	o.rc.Bus.Publish(event.NewPipelineCompletedEvent(o.rc.RunID, report.PhaseIDs(), report.Success, report.Duration))

	logger := o.rc.Logger.With("mode", string(report.Mode), "phases", report.PhaseIDs(), "duration_ms", report.Duration.Milliseconds())
	if err != nil {
		logger.Error("pipeline stopped", "error", err.Error())
		return report, err
	}
	logger.Info("pipeline completed")
	return report, nil
}
