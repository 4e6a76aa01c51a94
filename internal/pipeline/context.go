package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/config"
	"github.com/Iron-Ham/vulntune/internal/event"
	"github.com/Iron-Ham/vulntune/internal/logging"
	"github.com/Iron-Ham/vulntune/internal/upload"
)

// RunContext is everything one orchestrator invocation shares with its
// phases. It is built once by the caller and passed explicitly; phases read
// it and never mutate it.
type RunContext struct {
	Config   *config.Resolved
	Settings config.Settings
	Store    *artifact.Store

	// Timestamp is the invocation time, UTC at second resolution. Every
	// artifact written during the invocation carries it in its name.
	Timestamp time.Time
	RunID     string

	// Guard and Upload hold the upload decision, made once per process.
	Guard  *upload.Guard
	Upload upload.Decision

	Logger *logging.Logger
	Bus    *event.Bus
}

// NewRunContext assembles a RunContext. The timestamp and run id are fixed
// here; options override them for tests.
func NewRunContext(cfg *config.Resolved, store *artifact.Store, guard *upload.Guard, decision upload.Decision, opts ...Option) *RunContext {
	rc := &RunContext{
		Config:    cfg,
		Store:     store,
		Timestamp: time.Now(),
		RunID:     uuid.NewString(),
		Guard:     guard,
		Upload:    decision,
	}
	if cfg != nil {
		rc.Settings = cfg.Settings()
	}
	for _, opt := range opts {
		opt(rc)
	}
	rc.Timestamp = rc.Timestamp.UTC().Truncate(time.Second)
	if rc.Logger == nil {
		rc.Logger = logging.NopLogger()
	}
	rc.Logger = rc.Logger.WithRun(rc.RunID)
	if rc.Bus == nil {
		rc.Bus = event.NewBus(rc.Logger)
	}
	return rc
}
