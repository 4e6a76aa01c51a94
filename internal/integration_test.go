// Package internal contains integration tests that verify the packages work
// together: configuration, artifact discovery, the upload guard, the phase
// orchestrator and the event bus.
package internal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/config"
	"github.com/Iron-Ham/vulntune/internal/errors"
	"github.com/Iron-Ham/vulntune/internal/event"
	"github.com/Iron-Ham/vulntune/internal/logging"
	"github.com/Iron-Ham/vulntune/internal/phases"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
	"github.com/Iron-Ham/vulntune/internal/testutil"
	"github.com/Iron-Ham/vulntune/internal/upload"
)

const banditScan = `{"results":[{"test_id":"B608","filename":"tools/export.py","line_number":88,` +
	`"issue_severity":"MEDIUM","issue_text":"Possible SQL injection vector through string-based query construction."}]}`

const injectionNote = "# SQL injection\n\nUse bound parameters for every query.\n"

type adapterTrainer struct{}

func (adapterTrainer) Train(_ context.Context, req phases.TrainRequest) error {
	return os.WriteFile(filepath.Join(req.OutputDir, "adapter_model.safetensors"), []byte(req.Dataset), 0644)
}

// forbidRegistry fails the test if a real registry is ever built.
func forbidRegistry(t *testing.T) phases.RegistryFactory {
	return func(*pipeline.RunContext) (upload.Registry, error) {
		t.Error("real registry built; the upload guard should have blocked it")
		return nil, fmt.Errorf("network disabled in tests")
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var e map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

type harness struct {
	dirs     testutil.Dirs
	resolved *config.Resolved
	store    *artifact.Store
}

func newHarness(t *testing.T, extraEnv ...string) *harness {
	t.Helper()
	dirs := testutil.NewDirs(t)
	resolved := dirs.Resolve(t, extraEnv...)
	return &harness{dirs: dirs, resolved: resolved, store: dirs.Store(resolved)}
}

func (h *harness) orchestrator(t *testing.T, ts time.Time, decision upload.Decision, deps phases.Deps, opts ...pipeline.Option) *pipeline.Orchestrator {
	t.Helper()
	guard := upload.NewGuard(upload.SnapshotProcess())
	opts = append([]pipeline.Option{pipeline.WithTimestamp(ts)}, opts...)
	rc := pipeline.NewRunContext(h.resolved, h.store, guard, decision, opts...)
	o, err := pipeline.NewOrchestrator(rc, phases.Default(deps))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

// TestGuardBlocksUnderGoTest runs the whole pipeline with the decision taken
// from the real process. A go test binary must never reach the registry.
func TestGuardBlocksUnderGoTest(t *testing.T) {
	h := newHarness(t)
	testutil.WriteFile(t, filepath.Join(h.dirs.ScanResults, "scan-results_20250926_090000", "bandit.json"), banditScan)
	testutil.WriteFile(t, filepath.Join(h.dirs.KnowledgeBase, "injection.md"), injectionNote)
	testutil.Mkdir(t, h.dirs.BaseModel)

	decision := upload.NewGuard(upload.SnapshotProcess()).Decide(h.resolved.Settings().Upload.Skip)
	if !decision.Blocked() {
		t.Fatalf("decision = %+v inside go test, want BLOCKED", decision)
	}

	bus := event.NewBus(nil)
	var types []string
	event.On(bus, func(e event.Event) { types = append(types, e.EventType()) })

	o := h.orchestrator(t, time.Date(2025, 9, 26, 12, 0, 0, 0, time.UTC), decision,
		phases.Deps{Trainer: adapterTrainer{}, NewRegistry: forbidRegistry(t)},
		pipeline.WithBus(bus))
	report, err := o.RunAll(context.Background(), pipeline.RunRange{})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if !report.Success || len(report.Phases) != len(phases.IDs()) {
		t.Fatalf("report = %+v", report)
	}

	data, err := os.ReadFile(report.Output())
	if err != nil {
		t.Fatal(err)
	}
	var receipt phases.Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		t.Fatal(err)
	}
	if receipt.Mode != string(upload.ModeBlocked) || receipt.URL != upload.BlockedURL("local/"+config.DefaultModelName) {
		t.Errorf("receipt = %+v", receipt)
	}

	var want []string
	for range phases.IDs() {
		want = append(want, event.TypePhaseStarted, event.TypePhaseCompleted)
	}
	// upload.decided is published while the upload phase runs.
	want = append(want[:len(want)-1], event.TypeUploadDecided, event.TypePhaseCompleted, event.TypePipelineCompleted)
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
}

// TestResumeFromDiscoveredArtifacts stops a run part way and finishes it in a
// second process-like invocation that discovers the earlier outputs.
func TestResumeFromDiscoveredArtifacts(t *testing.T) {
	h := newHarness(t, "VULNTUNE_SKIP_UPLOAD=true")
	testutil.WriteFile(t, filepath.Join(h.dirs.ScanResults, "scan-results_20250926_090000", "bandit.json"), banditScan)
	testutil.Mkdir(t, h.dirs.BaseModel)
	decision := upload.NewGuard(upload.Signals{}).Decide(h.resolved.Settings().Upload.Skip)
	deps := phases.Deps{Trainer: adapterTrainer{}, NewRegistry: forbidRegistry(t)}

	first := h.orchestrator(t, time.Date(2025, 9, 26, 10, 0, 0, 0, time.UTC), decision, deps)
	if _, err := first.RunAll(context.Background(), pipeline.RunRange{To: phases.IDNarrativization}); err != nil {
		t.Fatalf("first RunAll: %v", err)
	}

	second := h.orchestrator(t, time.Date(2025, 9, 26, 11, 0, 0, 0, time.UTC), decision, deps)
	report, err := second.RunAll(context.Background(), pipeline.RunRange{From: phases.IDDatasetBuild})
	if err != nil {
		t.Fatalf("second RunAll: %v", err)
	}
	if diff := cmp.Diff([]string{phases.IDDatasetBuild, phases.IDTraining, phases.IDUpload}, report.PhaseIDs()); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}

	narratives, err := h.store.Current(artifact.KindNarratives)
	if err != nil {
		t.Fatal(err)
	}
	if got := report.Phases[0].Inputs[string(artifact.KindNarratives)]; got != narratives.Path {
		t.Errorf("dataset-build read %s, want the discovered %s", got, narratives.Path)
	}
}

// TestUploadScenarios covers adapter discovery for an isolated upload.
func TestUploadScenarios(t *testing.T) {
	t.Run("no adapters", func(t *testing.T) {
		h := newHarness(t)
		o := h.orchestrator(t, time.Now(), upload.Decision{Mode: upload.ModeBlocked, Reason: "test"},
			phases.Deps{NewRegistry: forbidRegistry(t)})

		_, err := o.RunOnly(context.Background(), phases.IDUpload, nil)
		var nf *errors.ArtifactNotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("error = %v, want ArtifactNotFoundError", err)
		}
		if nf.Dir != h.dirs.FineTuned {
			t.Errorf("Dir = %s, want %s", nf.Dir, h.dirs.FineTuned)
		}
		if nf.Phase != phases.IDUpload {
			t.Errorf("Phase = %q, want %q", nf.Phase, phases.IDUpload)
		}
	})

	t.Run("two adapters with skip", func(t *testing.T) {
		h := newHarness(t)
		testutil.SeedAdapter(t, h.dirs.FineTuned, config.DefaultModelName+"_20250925_101010")
		newest := testutil.SeedAdapter(t, h.dirs.FineTuned, config.DefaultModelName+"_20250926_101010")

		var logBuf bytes.Buffer
		logger := logging.NewLoggerWithWriter(&logBuf, logging.LevelInfo)
		decision := upload.NewGuard(upload.Signals{}).Decide(true)
		o := h.orchestrator(t, time.Now(), decision, phases.Deps{NewRegistry: forbidRegistry(t)},
			pipeline.WithLogger(logger))

		report, err := o.RunOnly(context.Background(), phases.IDUpload, nil)
		if err != nil {
			t.Fatalf("RunOnly: %v", err)
		}
		if got := report.Phases[0].Inputs[string(artifact.KindTrainedAdapter)]; got != newest {
			t.Errorf("selected %s, want %s", got, newest)
		}

		entries := decodeLines(t, &logBuf)
		var selected int
		for _, e := range entries {
			if e["msg"] == "selected adapter directory" {
				selected++
				if e["source"] != newest || e["mode"] != "BLOCKED" {
					t.Errorf("selection entry = %v", e)
				}
			}
		}
		if selected != 1 {
			t.Errorf("selected adapter directory logged %d times, want 1", selected)
		}
	})
}
