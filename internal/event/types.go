package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "phase.started", "upload.decided")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	runID() string
}

// Event type identifiers.
const (
	TypePhaseStarted      = "phase.started"
	TypePhaseCompleted    = "phase.completed"
	TypePhaseFailed       = "phase.failed"
	TypePipelineCompleted = "pipeline.completed"
	TypeUploadDecided     = "upload.decided"
)

// baseEvent provides the fields shared by every event. Embedding it is the
// only way to satisfy Event.
type baseEvent struct {
	// RunID is the run that published the event.
	RunID string

	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }
func (e baseEvent) runID() string        { return e.RunID }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType, runID string) baseEvent {
	return baseEvent{
		RunID:     runID,
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Phase Lifecycle Events
// -----------------------------------------------------------------------------

// PhaseStartedEvent is emitted after a phase's inputs validate and before
// its processor runs.
type PhaseStartedEvent struct {
	baseEvent
	Phase  string
	Inputs map[string]string // kind -> path
}

// NewPhaseStartedEvent creates a PhaseStartedEvent.
func NewPhaseStartedEvent(runID, phase string, inputs map[string]string) PhaseStartedEvent {
	return PhaseStartedEvent{
		baseEvent: newBaseEvent(TypePhaseStarted, runID),
		Phase:     phase,
		Inputs:    inputs,
	}
}

// PhaseCompletedEvent is emitted once a phase's output has been published.
type PhaseCompletedEvent struct {
	baseEvent
	Phase    string
	Output   string // published artifact path
	Duration time.Duration
}

// NewPhaseCompletedEvent creates a PhaseCompletedEvent.
func NewPhaseCompletedEvent(runID, phase, output string, duration time.Duration) PhaseCompletedEvent {
	return PhaseCompletedEvent{
		baseEvent: newBaseEvent(TypePhaseCompleted, runID),
		Phase:     phase,
		Output:    output,
		Duration:  duration,
	}
}

// PhaseFailedEvent is emitted when a phase stops with an error. No output
// was published.
type PhaseFailedEvent struct {
	baseEvent
	Phase    string
	Err      error
	Duration time.Duration
}

// NewPhaseFailedEvent creates a PhaseFailedEvent.
func NewPhaseFailedEvent(runID, phase string, err error, duration time.Duration) PhaseFailedEvent {
	return PhaseFailedEvent{
		baseEvent: newBaseEvent(TypePhaseFailed, runID),
		Phase:     phase,
		Err:       err,
		Duration:  duration,
	}
}

// -----------------------------------------------------------------------------
// Pipeline Events
// -----------------------------------------------------------------------------

// PipelineCompletedEvent is emitted when an orchestrator invocation ends,
// whether every requested phase ran or one failed.
type PipelineCompletedEvent struct {
	baseEvent
	Phases   []string // phases that completed, in order
	Success  bool
	Duration time.Duration
}

// NewPipelineCompletedEvent creates a PipelineCompletedEvent.
func NewPipelineCompletedEvent(runID string, phases []string, success bool, duration time.Duration) PipelineCompletedEvent {
	return PipelineCompletedEvent{
		baseEvent: newBaseEvent(TypePipelineCompleted, runID),
		Phases:    phases,
		Success:   success,
		Duration:  duration,
	}
}

// UploadDecidedEvent is emitted when the upload phase reads the recorded
// guard decision.
type UploadDecidedEvent struct {
	baseEvent
	Mode   string // "REAL" or "BLOCKED"
	Reason string
	Source string // adapter directory selected for upload
}

// NewUploadDecidedEvent creates an UploadDecidedEvent.
func NewUploadDecidedEvent(runID, mode, reason, source string) UploadDecidedEvent {
	return UploadDecidedEvent{
		baseEvent: newBaseEvent(TypeUploadDecided, runID),
		Mode:      mode,
		Reason:    reason,
		Source:    source,
	}
}
