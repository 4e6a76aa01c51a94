package phases

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/vulntune/internal/artifact"
	"github.com/Iron-Ham/vulntune/internal/config"
	"github.com/Iron-Ham/vulntune/internal/errors"
	"github.com/Iron-Ham/vulntune/internal/pipeline"
)

// TrainingConfigFile is written into every adapter directory before the
// trainer runs.
const TrainingConfigFile = "training_config.json"

// Hyperparameters are handed to the trainer unchanged from configuration.
type Hyperparameters struct {
	BaseModelDir string  `json:"base_model_dir"`
	Dataset      string  `json:"dataset"`
	ModelName    string  `json:"model_name"`
	MaxEpochs    int     `json:"max_epochs"`
	SaveSteps    int     `json:"save_steps"`
	EvalSteps    int     `json:"eval_steps"`
	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
}

// TrainRequest is one training job.
type TrainRequest struct {
	Hyperparameters
	// OutputDir is where the trainer writes adapter files.
	OutputDir string
	// ConfigFile is the training_config.json inside OutputDir.
	ConfigFile string
}

// Trainer produces adapter files in req.OutputDir.
type Trainer interface {
	Train(ctx context.Context, req TrainRequest) error
}

// Environment passed to the training command.
const (
	EnvTrainDataset   = "VULNTUNE_DATASET"
	EnvTrainOutputDir = "VULNTUNE_OUTPUT_DIR"
	EnvTrainBaseModel = "VULNTUNE_BASE_MODEL_DIR"
	EnvTrainConfig    = "VULNTUNE_TRAINING_CONFIG"
)

// outputTail bounds how much trainer output is kept for error messages.
const outputTail = 2048

// CommandTrainer runs an external program. The command line is split on
// whitespace and executed directly, without a shell.
type CommandTrainer struct {
	Args []string
}

// NewCommandTrainer splits command into arguments.
func NewCommandTrainer(command string) (*CommandTrainer, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, errors.NewConfigError("training command is empty", errors.ErrOptionInvalid).
			WithOption(config.KeyTrainingCommand)
	}
	return &CommandTrainer{Args: args}, nil
}

// Train runs the command with the request described in its environment and
// fails with the tail of its output when it exits non-zero.
func (t *CommandTrainer) Train(ctx context.Context, req TrainRequest) error {
	cmd := exec.CommandContext(ctx, t.Args[0], t.Args[1:]...)
	cmd.Dir = req.OutputDir
	cmd.Env = append(os.Environ(),
		EnvTrainDataset+"="+req.Dataset,
		EnvTrainOutputDir+"="+req.OutputDir,
		EnvTrainBaseModel+"="+req.BaseModelDir,
		EnvTrainConfig+"="+req.ConfigFile,
	)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		tail := output.Bytes()
		if len(tail) > outputTail {
			tail = tail[len(tail)-outputTail:]
		}
		return fmt.Errorf("training command %s failed: %w: %s", t.Args[0], err, strings.TrimSpace(string(tail)))
	}
	return nil
}

// Train runs the trainer over the dataset and leaves the adapter in the
// staging directory.
type Train struct {
	// Trainer overrides the command trainer built from training.command.
	Trainer Trainer
}

// Process checks that the base model exists, writes training_config.json,
// and runs the trainer.
func (p Train) Process(ctx context.Context, rc *pipeline.RunContext, in pipeline.Inputs, out string) error {
	fs := rc.Store.Fs()
	s := rc.Settings

	trainer := p.Trainer
	if trainer == nil {
		if err := require(rc, config.KeyTrainingCommand); err != nil {
			return err
		}
		t, err := NewCommandTrainer(s.Training.Command)
		if err != nil {
			return err
		}
		trainer = t
	}

	if ok, err := afero.DirExists(fs, s.Paths.BaseModelDir); err != nil || !ok {
		return errors.NewConfigError(
			fmt.Sprintf("base model directory %s does not exist", s.Paths.BaseModelDir),
			errors.ErrOptionInvalid,
		).WithOption(config.KeyBaseModelDir)
	}

	req := TrainRequest{
		Hyperparameters: Hyperparameters{
			BaseModelDir: s.Paths.BaseModelDir,
			Dataset:      in.Path(artifact.KindTrainingDataset),
			ModelName:    s.Model.Name,
			MaxEpochs:    s.Training.MaxEpochs,
			SaveSteps:    s.Training.SaveSteps,
			EvalSteps:    s.Training.EvalSteps,
			LearningRate: s.Training.LearningRate,
			BatchSize:    s.Training.BatchSize,
		},
		OutputDir:  out,
		ConfigFile: filepath.Join(out, TrainingConfigFile),
	}
	if err := writeJSON(fs, req.ConfigFile, req.Hyperparameters); err != nil {
		return err
	}

	logger := rc.Logger.WithPhase(IDTraining)
	logger.Info("training started", "dataset", req.Dataset, "base_model_dir", req.BaseModelDir)
	if err := trainer.Train(ctx, req); err != nil {
		return err
	}

	entries, err := afero.ReadDir(fs, out)
	if err != nil {
		return err
	}
	if len(entries) < 2 {
		return fmt.Errorf("trainer produced no adapter files")
	}
	return nil
}
