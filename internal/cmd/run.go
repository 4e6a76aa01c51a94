package cmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/config"
	"github.com/Iron-Ham/vulntune/internal/errors"
	"github.com/Iron-Ham/vulntune/internal/event"
	"github.com/Iron-Ham/vulntune/internal/logging"
	"github.com/Iron-Ham/vulntune/internal/phases"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
	"github.com/Iron-Ham/vulntune/internal/upload"
)

type runOptions struct {
	from        string
	to          string
	inputs      []string
	only        map[string]*bool
	phaseInputs map[string]*string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{
		only:        make(map[string]*bool),
		phaseInputs: make(map[string]*string),
	}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline or a single phase",
		Long: `Run the pipeline from parsing through upload, a contiguous range of it,
or exactly one phase.

Each phase reads the newest artifact of its input kinds unless an explicit
path is given. Upload is real only when no test signal is present and
--skip-upload is not set.

Examples:
  # Full pipeline
  vulntune run

  # Stop after the dataset is built
  vulntune run --to dataset-build

  # Re-run training on a specific dataset
  vulntune run --run-only-training --training-input ./training-dataset_20250926_090000.jsonl

  # Upload the newest adapter without touching the network
  vulntune run --run-only-upload --skip-upload`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.from, "from", "", "First phase to run (default: parsing)")
	flags.StringVar(&opts.to, "to", "", "Last phase to run (default: upload)")
	flags.StringArrayVar(&opts.inputs, "input", nil, "Explicit input artifact as kind=path (repeatable)")

	var onlyFlags []string
	for _, p := range phases.Default(phases.Deps{}) {
		name := "run-only-" + p.ID
		opts.only[p.ID] = flags.Bool(name, false, fmt.Sprintf("Run only the %s phase", p.ID))
		opts.phaseInputs[p.ID] = flags.String(p.ID+"-input", "",
			fmt.Sprintf("Explicit %s input for the %s phase", p.Primary(), p.ID))
		onlyFlags = append(onlyFlags, name)
	}
	cmd.MarkFlagsMutuallyExclusive(onlyFlags...)
	return cmd
}

// onlyPhase returns the phase selected by a --run-only-<phase> flag, or "".
func (o *runOptions) onlyPhase() (string, error) {
	for _, id := range phases.IDs() {
		if !*o.only[id] {
			continue
		}
		if o.from != "" || o.to != "" {
			return "", errors.NewValidationError("--run-only-" + id + " cannot be combined with --from or --to").
				WithField("run-only-" + id)
		}
		return id, nil
	}
	return "", nil
}

// explicitInputs merges --<phase>-input and --input into one kind-to-path map.
func (o *runOptions) explicitInputs() (map[artifact.Kind]string, error) {
	explicit := make(map[artifact.Kind]string)
	for _, p := range phases.Default(phases.Deps{}) {
		path := strings.TrimSpace(*o.phaseInputs[p.ID])
		if path == "" {
			continue
		}
		if err := addExplicit(explicit, p.Primary(), path, p.ID+"-input"); err != nil {
			return nil, err
		}
	}
	for _, value := range o.inputs {
		kind, path, err := parseInputFlag(value)
		if err != nil {
			return nil, err
		}
		if err := addExplicit(explicit, kind, path, "input"); err != nil {
			return nil, err
		}
	}
	return explicit, nil
}

// runPipeline resolves configuration once, decides the upload mode once, and
// runs the requested phases in this process.
func runPipeline(cmd *cobra.Command, opts *runOptions) error {
	ctx := commandContext(cmd)
	out := newPrinter(cmd.ErrOrStderr())

	only, err := opts.onlyPhase()
	if err != nil {
		return err
	}
	explicit, err := opts.explicitInputs()
	if err != nil {
		return err
	}

	// Resolution is logged before the pipeline log exists; the entries are
	// replayed into it once it is open.
	var boot bytes.Buffer
	resolved, src, err := loadConfig(cmd, logging.NewLoggerWithWriter(&boot, logging.LevelDebug))
	if err != nil {
		return err
	}
	settings := resolved.Settings()

	logger, err := openPipelineLog(settings, boot.Bytes())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	guard := upload.NewGuard(snapshotProcess())
	decision := guard.Decide(settings.Upload.Skip)

	bus := event.NewBus(logger)
	store := artifact.NewStore(src.Fs, src.WorkDir, artifact.DefaultLayout(settings))
	rc := pipeline.NewRunContext(resolved, store, guard, decision,
		pipeline.WithLogger(logger),
		pipeline.WithBus(bus),
	)
	out.attach(bus, rc.RunID)
	rc.Logger.Info("upload decision recorded", "mode", string(decision.Mode), "reason", decision.Reason)

	orch, err := pipeline.NewOrchestrator(rc, phases.Default(phaseDeps))
	if err != nil {
		return err
	}

	var report *pipeline.Report
	if only != "" {
		report, err = orch.RunOnly(ctx, only, explicit)
	} else {
		report, err = orch.RunAll(ctx, pipeline.RunRange{From: opts.from, To: opts.to, Inputs: explicit})
	}
	if err != nil {
		return err
	}
	out.report(report)
	return nil
}

// openPipelineLog opens <workspace>/logs/pipeline.log with rotation and
// replays the entries buffered while configuration was resolved.
func openPipelineLog(s config.Settings, buffered []byte) (*logging.Logger, error) {
	rotation := logging.DefaultRotationConfig()
	rotation.MaxSizeMB = s.Logging.MaxSizeMB
	rotation.MaxBackups = s.Logging.MaxBackups
	logger, err := logging.NewLoggerWithRotation(s.LogDir(), s.Logging.Level, rotation)
	if err != nil {
		return nil, errors.NewConfigError("cannot open pipeline log", err).WithOption(config.KeyWorkspaceDir)
	}
	if err := logger.Replay(buffered); err != nil {
		_ = logger.Close()
		return nil, errors.NewConfigError("cannot write pipeline log", err).WithOption(config.KeyWorkspaceDir)
	}
	return logger, nil
}
