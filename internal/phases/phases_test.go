package phases

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/config"
	"github.com/Iron-Ham/vulntune/internal/errors"
	"github.com/Iron-Ham/vulntune/internal/event"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
	"github.com/Iron-Ham/vulntune/internal/testutil"
	"github.com/Iron-Ham/vulntune/internal/upload"
)

var (
	fullRunTime = time.Date(2025, 9, 26, 12, 0, 0, 0, time.UTC)
	isolatedAt  = time.Date(2025, 9, 26, 13, 0, 0, 0, time.UTC)
)

type env struct {
	testutil.Dirs
	resolved *config.Resolved
	settings config.Settings
	store    *artifact.Store
}

// newEnv resolves configuration with every directory under a temp root and
// extra VULNTUNE_* variables.
func newEnv(t *testing.T, extra ...string) *env {
	t.Helper()
	dirs := testutil.NewDirs(t)
	resolved := dirs.Resolve(t, extra...)
	return &env{
		Dirs:     dirs,
		resolved: resolved,
		settings: resolved.Settings(),
		store:    dirs.Store(resolved),
	}
}

func (e *env) runContext(ts time.Time, decision upload.Decision, opts ...pipeline.Option) *pipeline.RunContext {
	opts = append([]pipeline.Option{pipeline.WithTimestamp(ts), pipeline.WithRunID("run-" + ts.Format("150405"))}, opts...)
	return pipeline.NewRunContext(e.resolved, e.store, upload.NewGuard(upload.Signals{}), decision, opts...)
}

func blocked() upload.Decision {
	return upload.Decision{Mode: upload.ModeBlocked, Reason: "skip-upload requested"}
}

func (e *env) seedScans(t *testing.T) {
	t.Helper()
	testutil.CopyDir(t, filepath.Join("testdata", "scan-results_20250926_090000"),
		filepath.Join(e.ScanResults, "scan-results_20250926_090000"))
	testutil.CopyDir(t, filepath.Join("testdata", "knowledge-base"), e.KnowledgeBase)
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join("testdata", "artifacts", name))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func decode[T any](t *testing.T, path string) T {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("%s: %v", path, err)
	}
	return v
}

// fakeTrainer writes a small adapter and records what it was asked to do.
type fakeTrainer struct {
	got []TrainRequest
}

func (f *fakeTrainer) Train(_ context.Context, req TrainRequest) error {
	f.got = append(f.got, req)
	return os.WriteFile(filepath.Join(req.OutputDir, "adapter_model.safetensors"), []byte("weights"), 0o644)
}

// noNetwork fails the test if the real registry is ever constructed.
func noNetwork(t *testing.T) RegistryFactory {
	return func(*pipeline.RunContext) (upload.Registry, error) {
		t.Error("real registry constructed for a blocked upload")
		return nil, fmt.Errorf("no network in tests")
	}
}

func TestDefault(t *testing.T) {
	want := []string{
		"parsing", "vulnerability-analysis", "rag-enhancement", "analysis-summary",
		"narrativization", "dataset-build", "training", "upload",
	}
	if diff := cmp.Diff(want, IDs()); diff != "" {
		t.Errorf("IDs() mismatch (-want +got):\n%s", diff)
	}

	e := newEnv(t)
	if _, err := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked()), Default(Deps{})); err != nil {
		t.Errorf("default phases do not chain: %v", err)
	}
}

func TestPipeline_FullRunBlocked(t *testing.T) {
	e := newEnv(t, "VULNTUNE_MODEL_NAME=webauthn-lora")
	e.seedScans(t)
	testutil.Mkdir(t, e.BaseModel)

	bus := event.NewBus(nil)
	var decided []event.UploadDecidedEvent
	event.On(bus, func(ev event.UploadDecidedEvent) {
		decided = append(decided, ev)
	})

	trainer := &fakeTrainer{}
	o, err := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked(), pipeline.WithBus(bus)),
		Default(Deps{Trainer: trainer, NewRegistry: noNetwork(t)}))
	if err != nil {
		t.Fatal(err)
	}
	report, err := o.RunAll(context.Background(), pipeline.RunRange{})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if diff := cmp.Diff(IDs(), report.PhaseIDs()); diff != "" {
		t.Fatalf("phases mismatch (-want +got):\n%s", diff)
	}

	findings := decode[[]Finding](t, report.Phases[0].Output)
	if len(findings) != 4 {
		t.Errorf("parsed %d findings, want 4 after de-duplication", len(findings))
	}

	summary := decode[Summary](t, report.Phases[3].Output)
	if summary.TotalFindings != 4 || summary.WithKnowledge != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.TopFindings[0].Category != "authentication" || summary.TopFindings[0].Priority != 10 {
		t.Errorf("top finding = %+v", summary.TopFindings[0])
	}

	adapter := report.Phases[6].Output
	if want := filepath.Join(e.settings.Paths.FineTunedModelDir, "webauthn-lora_20250926_120000"); adapter != want {
		t.Errorf("adapter = %s, want %s", adapter, want)
	}
	if len(trainer.got) != 1 || trainer.got[0].Dataset != report.Phases[5].Output {
		t.Errorf("trainer requests = %+v", trainer.got)
	}

	receipt := decode[Receipt](t, report.Output())
	want := Receipt{
		RunID:     "run-120000",
		Mode:      "BLOCKED",
		Reason:    "skip-upload requested",
		RepoID:    "local/webauthn-lora",
		URL:       "blocked://registry/local/webauthn-lora",
		Source:    adapter,
		Files:     []string{},
		Timestamp: "2025-09-26T12:00:00Z",
	}
	if diff := cmp.Diff(want, receipt); diff != "" {
		t.Errorf("receipt mismatch (-want +got):\n%s", diff)
	}
	if len(decided) != 1 || decided[0].Source != adapter || decided[0].Mode != "BLOCKED" {
		t.Errorf("upload.decided events = %+v", decided)
	}
}

func TestPipeline_IsolatedMatchesFullRun(t *testing.T) {
	e := newEnv(t)
	e.seedScans(t)

	deterministic := Default(Deps{})[:6]
	o, err := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked()), deterministic)
	if err != nil {
		t.Fatal(err)
	}
	full, err := o.RunAll(context.Background(), pipeline.RunRange{})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	for i, phase := range deterministic {
		t.Run(phase.ID, func(t *testing.T) {
			explicit := make(map[artifact.Kind]string)
			for kind, path := range full.Phases[i].Inputs {
				explicit[artifact.Kind(kind)] = path
			}
			rc := e.runContext(isolatedAt.Add(time.Duration(i)*time.Second), blocked())
			o, err := pipeline.NewOrchestrator(rc, Default(Deps{}))
			if err != nil {
				t.Fatal(err)
			}
			isolated, err := o.RunOnly(context.Background(), phase.ID, explicit)
			if err != nil {
				t.Fatalf("RunOnly: %v", err)
			}

			want, _ := os.ReadFile(full.Phases[i].Output)
			got, _ := os.ReadFile(isolated.Output())
			if len(want) == 0 || !bytes.Equal(want, got) {
				t.Errorf("isolated %s output differs from the full run", phase.ID)
			}
		})
	}
}

func TestUpload_NoAdapters(t *testing.T) {
	e := newEnv(t)
	o, err := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked()), Default(Deps{NewRegistry: noNetwork(t)}))
	if err != nil {
		t.Fatal(err)
	}

	_, err = o.RunOnly(context.Background(), IDUpload, nil)
	var nf *errors.ArtifactNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want *ArtifactNotFoundError", err)
	}
	if nf.Dir != e.settings.Paths.FineTunedModelDir {
		t.Errorf("Dir = %s, want the fine-tuned model dir %s", nf.Dir, e.settings.Paths.FineTunedModelDir)
	}
	if nf.Kind != string(artifact.KindTrainedAdapter) {
		t.Errorf("Kind = %s", nf.Kind)
	}
}

func TestUpload_SelectsNewestAdapterAndBlocks(t *testing.T) {
	e := newEnv(t)
	dir := e.settings.Paths.FineTunedModelDir
	testutil.SeedAdapter(t, dir, config.DefaultModelName+"_20250925_080000")
	testutil.SeedAdapter(t, dir, config.DefaultModelName+"_20250926_080000")

	guard := upload.NewGuard(upload.Signals{Env: map[string]string{}})
	decision := guard.Decide(true)
	o, err := pipeline.NewOrchestrator(e.runContext(fullRunTime, decision), Default(Deps{NewRegistry: noNetwork(t)}))
	if err != nil {
		t.Fatal(err)
	}
	report, err := o.RunOnly(context.Background(), IDUpload, nil)
	if err != nil {
		t.Fatalf("RunOnly: %v", err)
	}

	receipt := decode[Receipt](t, report.Output())
	if want := filepath.Join(dir, config.DefaultModelName+"_20250926_080000"); receipt.Source != want {
		t.Errorf("Source = %s, want %s", receipt.Source, want)
	}
	if receipt.Mode != string(upload.ModeBlocked) {
		t.Errorf("Mode = %s, want BLOCKED", receipt.Mode)
	}
	if !strings.HasPrefix(receipt.URL, "blocked://registry/") {
		t.Errorf("URL = %s", receipt.URL)
	}
}

type recordingRegistry struct {
	got []upload.Request
}

func (r *recordingRegistry) Upload(_ context.Context, req upload.Request) (upload.Result, error) {
	r.got = append(r.got, req)
	return upload.Result{URL: "https://registry.example.com/models/" + req.RepoID, Files: []string{req.RepoID + "/adapter_model.safetensors"}}, nil
}

func TestUpload_Real(t *testing.T) {
	real := upload.Decision{Mode: upload.ModeReal, Reason: "no test signals detected"}
	adapterName := config.DefaultModelName + "_20250926_080000"

	seedAdapter := func(t *testing.T, e *env) string {
		t.Helper()
		return testutil.SeedAdapter(t, e.FineTuned, adapterName)
	}

	t.Run("requires repo id", func(t *testing.T) {
		e := newEnv(t, "VULNTUNE_REGISTRY_ENDPOINT=localhost:9000")
		seedAdapter(t, e)
		reg := &recordingRegistry{}
		o, _ := pipeline.NewOrchestrator(e.runContext(fullRunTime, real),
			Default(Deps{NewRegistry: func(*pipeline.RunContext) (upload.Registry, error) { return reg, nil }}))

		_, err := o.RunOnly(context.Background(), IDUpload, nil)
		var cfgErr *errors.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Option != config.KeyRegistryRepoID {
			t.Fatalf("error = %v, want ConfigError for %s", err, config.KeyRegistryRepoID)
		}
		var execErr *errors.PhaseExecutionError
		if !errors.As(err, &execErr) || execErr.Phase != IDUpload {
			t.Errorf("error = %v, want it wrapped in the upload phase", err)
		}
		if len(reg.got) != 0 {
			t.Error("registry called without a repo id")
		}
	})

	t.Run("uploads through the registry", func(t *testing.T) {
		e := newEnv(t, "VULNTUNE_REGISTRY_ENDPOINT=localhost:9000", "VULNTUNE_REGISTRY_REPO_ID=acme/webauthn-lora")
		source := seedAdapter(t, e)
		reg := &recordingRegistry{}
		o, _ := pipeline.NewOrchestrator(e.runContext(fullRunTime, real),
			Default(Deps{NewRegistry: func(*pipeline.RunContext) (upload.Registry, error) { return reg, nil }}))

		report, err := o.RunOnly(context.Background(), IDUpload, nil)
		if err != nil {
			t.Fatalf("RunOnly: %v", err)
		}
		want := []upload.Request{{RepoID: "acme/webauthn-lora", Source: source, RunID: "run-120000"}}
		if diff := cmp.Diff(want, reg.got); diff != "" {
			t.Errorf("requests mismatch (-want +got):\n%s", diff)
		}
		receipt := decode[Receipt](t, report.Output())
		if receipt.Mode != "REAL" || receipt.URL != "https://registry.example.com/models/acme/webauthn-lora" || len(receipt.Files) != 1 {
			t.Errorf("receipt = %+v", receipt)
		}
	})

	t.Run("registry failure", func(t *testing.T) {
		e := newEnv(t, "VULNTUNE_REGISTRY_ENDPOINT=localhost:9000", "VULNTUNE_REGISTRY_REPO_ID=acme/lora")
		seedAdapter(t, e)
		failing := func(*pipeline.RunContext) (upload.Registry, error) {
			return failingRegistry{}, nil
		}
		o, _ := pipeline.NewOrchestrator(e.runContext(fullRunTime, real), Default(Deps{NewRegistry: failing}))

		_, err := o.RunOnly(context.Background(), IDUpload, nil)
		var uploadErr *errors.UploadError
		if !errors.As(err, &uploadErr) {
			t.Fatalf("error = %v, want *UploadError", err)
		}
		matches, _ := filepath.Glob(filepath.Join(e.settings.Paths.WorkspaceDir, "upload-receipt_*"))
		if len(matches) != 0 {
			t.Errorf("receipt written for a failed upload: %v", matches)
		}
	})
}

type failingRegistry struct{}

func (failingRegistry) Upload(_ context.Context, req upload.Request) (upload.Result, error) {
	return upload.Result{}, errors.NewUploadError("connection refused", nil).WithRepoID(req.RepoID)
}

func TestTrain(t *testing.T) {
	dataset := fixture(t, "training-dataset_20250926_090000.jsonl")

	t.Run("writes training config", func(t *testing.T) {
		e := newEnv(t, "VULNTUNE_MAX_EPOCHS=5", "VULNTUNE_LEARNING_RATE=0.001")
		testutil.Mkdir(t, e.BaseModel)
		trainer := &fakeTrainer{}
		o, _ := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked()), Default(Deps{Trainer: trainer}))

		report, err := o.RunOnly(context.Background(), IDTraining, map[artifact.Kind]string{artifact.KindTrainingDataset: dataset})
		if err != nil {
			t.Fatalf("RunOnly: %v", err)
		}
		got := decode[Hyperparameters](t, filepath.Join(report.Output(), TrainingConfigFile))
		want := Hyperparameters{
			BaseModelDir: e.settings.Paths.BaseModelDir,
			Dataset:      dataset,
			ModelName:    config.DefaultModelName,
			MaxEpochs:    5,
			SaveSteps:    100,
			EvalSteps:    50,
			LearningRate: 0.001,
			BatchSize:    4,
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("training config mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing base model", func(t *testing.T) {
		e := newEnv(t)
		o, _ := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked()), Default(Deps{Trainer: &fakeTrainer{}}))
		_, err := o.RunOnly(context.Background(), IDTraining, map[artifact.Kind]string{artifact.KindTrainingDataset: dataset})
		var cfgErr *errors.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Option != config.KeyBaseModelDir {
			t.Errorf("error = %v, want ConfigError for %s", err, config.KeyBaseModelDir)
		}
	})

	t.Run("missing training command", func(t *testing.T) {
		e := newEnv(t)
		testutil.Mkdir(t, e.BaseModel)
		o, _ := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked()), Default(Deps{}))
		_, err := o.RunOnly(context.Background(), IDTraining, map[artifact.Kind]string{artifact.KindTrainingDataset: dataset})
		if !errors.Is(err, errors.ErrOptionRequired) {
			t.Errorf("error = %v, want ErrOptionRequired", err)
		}
		entries, _ := os.ReadDir(e.settings.Paths.FineTunedModelDir)
		if len(entries) != 0 {
			t.Errorf("fine-tuned dir has leftovers: %v", entries)
		}
	})

	t.Run("trainer produced nothing", func(t *testing.T) {
		e := newEnv(t)
		testutil.Mkdir(t, e.BaseModel)
		idle := trainerFunc(func(context.Context, TrainRequest) error { return nil })
		o, _ := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked()), Default(Deps{Trainer: idle}))
		_, err := o.RunOnly(context.Background(), IDTraining, map[artifact.Kind]string{artifact.KindTrainingDataset: dataset})
		if err == nil || !strings.Contains(err.Error(), "no adapter files") {
			t.Errorf("error = %v, want no adapter files", err)
		}
	})
}

type trainerFunc func(context.Context, TrainRequest) error

func (f trainerFunc) Train(ctx context.Context, req TrainRequest) error { return f(ctx, req) }

func TestCommandTrainer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script")
	}
	testutil.SkipIfNoShell(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "train.sh")
	body := "#!/bin/sh\n" +
		"test -f \"$" + EnvTrainConfig + "\" || { echo missing config >&2; exit 3; }\n" +
		"printf '%s' \"$" + EnvTrainDataset + "\" > \"$" + EnvTrainOutputDir + "/dataset.txt\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "adapter")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	req := TrainRequest{
		Hyperparameters: Hyperparameters{Dataset: "/data/train.jsonl"},
		OutputDir:       out,
		ConfigFile:      filepath.Join(out, TrainingConfigFile),
	}

	trainer, err := NewCommandTrainer(script)
	if err != nil {
		t.Fatal(err)
	}
	if err := trainer.Train(context.Background(), req); err == nil || !strings.Contains(err.Error(), "missing config") {
		t.Errorf("Train() without config = %v, want the script's stderr in the error", err)
	}

	if err := os.WriteFile(req.ConfigFile, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := trainer.Train(context.Background(), req); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(out, "dataset.txt"))
	if string(got) != "/data/train.jsonl" {
		t.Errorf("dataset passed = %q", got)
	}

	if _, err := NewCommandTrainer("   "); !errors.Is(err, errors.ErrOptionInvalid) {
		t.Errorf("NewCommandTrainer(blank) error = %v", err)
	}
}

func TestBuildDataset(t *testing.T) {
	parsed := fixture(t, "parsed-findings_20250926_090000.json")

	t.Run("joins narratives to findings", func(t *testing.T) {
		e := newEnv(t)
		o, _ := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked()), Default(Deps{}))
		report, err := o.RunOnly(context.Background(), IDDatasetBuild, map[artifact.Kind]string{
			artifact.KindNarratives:     fixture(t, "narratives_20250926_090000.json"),
			artifact.KindParsedFindings: parsed,
		})
		if err != nil {
			t.Fatalf("RunOnly: %v", err)
		}
		data, _ := os.ReadFile(report.Output())
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 2 {
			t.Fatalf("got %d records, want 2", len(lines))
		}
		var rec DatasetRecord
		if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
			t.Fatal(err)
		}
		if rec.Metadata.FindingID != "f-0002" || rec.Metadata.Tool != "bandit" {
			t.Errorf("metadata = %+v", rec.Metadata)
		}
		roles := []string{rec.Messages[0].Role, rec.Messages[1].Role, rec.Messages[2].Role}
		if diff := cmp.Diff([]string{"system", "user", "assistant"}, roles); diff != "" {
			t.Errorf("roles mismatch (-want +got):\n%s", diff)
		}
		if !strings.Contains(rec.Messages[1].Content, "tools/export.py:88") {
			t.Errorf("user prompt = %q", rec.Messages[1].Content)
		}
		if rec.Messages[2].Content != "The export query concatenates user input into SQL." {
			t.Errorf("assistant content = %q", rec.Messages[2].Content)
		}
	})

	t.Run("unknown finding", func(t *testing.T) {
		e := newEnv(t)
		o, _ := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked()), Default(Deps{}))
		_, err := o.RunOnly(context.Background(), IDDatasetBuild, map[artifact.Kind]string{
			artifact.KindNarratives:     fixture(t, "narratives_20250926_100000.json"),
			artifact.KindParsedFindings: parsed,
		})
		var execErr *errors.PhaseExecutionError
		if !errors.As(err, &execErr) || !strings.Contains(err.Error(), "f-9999") {
			t.Errorf("error = %v, want PhaseExecutionError naming f-9999", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		e := newEnv(t)
		o, _ := pipeline.NewOrchestrator(e.runContext(fullRunTime, blocked()), Default(Deps{}))
		_, err := o.RunOnly(context.Background(), IDDatasetBuild, map[artifact.Kind]string{
			artifact.KindNarratives:     fixture(t, "narratives_20250926_090000.json"),
			artifact.KindParsedFindings: fixture(t, "parsed-findings_20250926_100000.json"),
		})
		var inputErr *errors.PhaseInputError
		if !errors.As(err, &inputErr) || !errors.Is(err, errors.ErrInputEmpty) {
			t.Fatalf("error = %v, want PhaseInputError for an empty input", err)
		}
		if entries, _ := os.ReadDir(e.settings.Paths.WorkspaceDir); len(entries) != 0 {
			t.Errorf("workspace has output after an input error: %v", entries)
		}
	})
}
