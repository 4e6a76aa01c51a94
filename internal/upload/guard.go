package upload

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
)

// Mode is the outcome of the guard decision.
type Mode string

const (
	ModeReal    Mode = "REAL"
	ModeBlocked Mode = "BLOCKED"
)

// Decision is what the guard concluded and why. It is made once per process
// and recorded in the run context.
type Decision struct {
	Mode   Mode
	Reason string
}

// Blocked reports whether the upload must not reach the network.
func (d Decision) Blocked() bool {
	return d.Mode != ModeReal
}

// Environment variables the guard recognizes.
const (
	EnvTestMode = "VULNTUNE_TEST_MODE"
)

// testRunnerMarkers are set by test runners while a test executes.
var testRunnerMarkers = []string{"PYTEST_CURRENT_TEST", "GO_TEST_RUNNER"}

// testPathFragments mark an invocation from inside a test tree.
var testPathFragments = []string{"/_test/", "/testdata/"}

// Signals is the snapshot of process state the guard inspects.
type Signals struct {
	Env        map[string]string
	Executable string
	Args       []string
}

// SnapshotProcess captures the environment, executable path, and arguments
// of the current process. Call it once; the guard never reads process state
// on its own.
func SnapshotProcess() Signals {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	exe, err := os.Executable()
	if err != nil && len(os.Args) > 0 {
		exe = os.Args[0]
	}
	var args []string
	if len(os.Args) > 1 {
		args = append(args, os.Args[1:]...)
	}
	return Signals{Env: env, Executable: exe, Args: args}
}

// Guard decides whether an upload may reach the real registry.
type Guard struct {
	signals Signals
}

// NewGuard creates a Guard over a signal snapshot.
func NewGuard(signals Signals) *Guard {
	return &Guard{signals: signals}
}

// Decide evaluates, in order: the skip override, the test-mode variable,
// test-runner markers, and the invocation path. The first match blocks the
// upload; no match allows it.
func (g *Guard) Decide(skip bool) Decision {
	if skip {
		return Decision{Mode: ModeBlocked, Reason: "skip-upload requested"}
	}
	if v, ok := g.signals.Env[EnvTestMode]; ok && truthy(v) {
		return Decision{Mode: ModeBlocked, Reason: EnvTestMode + " is set"}
	}
	for _, marker := range testRunnerMarkers {
		if g.signals.Env[marker] != "" {
			return Decision{Mode: ModeBlocked, Reason: "test runner marker " + marker + " is set"}
		}
	}
	if reason := g.invocationReason(); reason != "" {
		return Decision{Mode: ModeBlocked, Reason: reason}
	}
	return Decision{Mode: ModeReal, Reason: "no test signals detected"}
}

func (g *Guard) invocationReason() string {
	exe := filepath.ToSlash(g.signals.Executable)
	if strings.HasSuffix(filepath.Base(exe), ".test") {
		return "invoked as a test binary"
	}
	for _, arg := range g.signals.Args {
		if strings.HasPrefix(arg, "-test.") {
			return "invoked with test flag " + arg
		}
	}
	for _, candidate := range append([]string{exe}, g.signals.Args...) {
		candidate = filepath.ToSlash(candidate)
		for _, fragment := range testPathFragments {
			if strings.Contains(candidate, fragment) {
				return "invoked from a test path " + candidate
			}
		}
	}
	return ""
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "on", "y":
		return true
	}
	b, err := cast.ToBoolE(strings.TrimSpace(v))
	return err == nil && b
}
