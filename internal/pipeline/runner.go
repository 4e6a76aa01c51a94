package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/errors"
	"github.com/Iron-Ham/vulntune/internal/event"
)

// Runner executes a single phase: validate inputs, process into a staging
// path, validate the output, publish it.
type Runner struct {
	rc *RunContext
}

// NewRunner creates a Runner bound to rc.
func NewRunner(rc *RunContext) *Runner {
	return &Runner{rc: rc}
}

// Run executes phase with in. Input problems are PhaseInputErrors raised
// before the processor is called; anything that goes wrong afterwards is a
// PhaseExecutionError and leaves no output behind. Every call writes exactly
// one log line.
func (r *Runner) Run(ctx context.Context, phase Phase, in Inputs) (out artifact.Artifact, err error) {
	start := time.Now()
	logger := r.rc.Logger.WithPhase(phase.ID)

	defer func() {
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("phase finished",
				"inputs", in.Paths(),
				"output", out.Path,
				"duration_ms", elapsed.Milliseconds(),
				"status", "failed",
				"error", err.Error(),
			)
			r.rc.Bus.Publish(event.NewPhaseFailedEvent(r.rc.RunID, phase.ID, err, elapsed))
			out = artifact.Artifact{}
			return
		}
		logger.Info("phase finished",
			"inputs", in.Paths(),
			"output", out.Path,
			"duration_ms", elapsed.Milliseconds(),
			"status", "ok",
		)
		r.rc.Bus.Publish(event.NewPhaseCompletedEvent(r.rc.RunID, phase.ID, out.Path, elapsed))
	}()

	if err := r.checkInputs(phase, in); err != nil {
		return artifact.Artifact{}, err
	}
	if phase.Processor == nil {
		return artifact.Artifact{}, errors.NewPhaseExecutionError(phase.ID, fmt.Errorf("no processor registered"))
	}
	loc, err := r.rc.Store.Location(phase.Output)
	if err != nil {
		return artifact.Artifact{}, errors.NewPhaseExecutionError(phase.ID, err)
	}

	final, err := r.rc.Store.NewPath(phase.Output, r.rc.Timestamp)
	if err != nil {
		return artifact.Artifact{}, errors.NewPhaseExecutionError(phase.ID, err)
	}
	staging, err := r.rc.Store.Stage(phase.Output, final, r.rc.RunID)
	if err != nil {
		return artifact.Artifact{}, errors.NewPhaseExecutionError(phase.ID, err)
	}

	r.rc.Bus.Publish(event.NewPhaseStartedEvent(r.rc.RunID, phase.ID, in.Paths()))

	if err := phase.Processor.Process(ctx, r.rc, in, staging); err != nil {
		r.discard(staging)
		return artifact.Artifact{}, errors.NewPhaseExecutionError(phase.ID, err)
	}

	staged := artifact.Artifact{Kind: phase.Output, Path: staging}
	if err := r.rc.Store.ValidateShape(staged, loc.Shape); err != nil {
		r.discard(staging)
		return artifact.Artifact{}, errors.NewPhaseExecutionError(phase.ID, fmt.Errorf("invalid output: %w", err))
	}
	if err := r.rc.Store.Publish(staging, final); err != nil {
		r.discard(staging)
		return artifact.Artifact{}, errors.NewPhaseExecutionError(phase.ID, err)
	}

	return artifact.Artifact{Kind: phase.Output, Path: final, Timestamp: r.rc.Timestamp}, nil
}

// checkInputs requires every declared kind to be present and valid.
func (r *Runner) checkInputs(phase Phase, in Inputs) error {
	for _, kind := range phase.Inputs {
		a, ok := in[kind]
		if !ok {
			return errors.NewPhaseInputError("required input not supplied", errors.ErrInputMissing).
				WithPhase(phase.ID).
				WithArtifact(string(kind), "")
		}
		if err := r.rc.Store.Validate(a); err != nil {
			var inputErr *errors.PhaseInputError
			if errors.As(err, &inputErr) {
				return inputErr.WithPhase(phase.ID)
			}
			return errors.NewPhaseInputError("cannot validate input", err).
				WithPhase(phase.ID).
				WithArtifact(string(kind), a.Path)
		}
	}
	return nil
}

func (r *Runner) discard(staging string) {
	if err := r.rc.Store.Discard(staging); err != nil {
		r.rc.Logger.Warn("failed to remove staging output", "path", staging, "error", err.Error())
	}
}
