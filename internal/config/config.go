package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Settings is the typed view of a resolved configuration. It is produced by
// Resolved.Decode and never read back into the resolver.
type Settings struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Model    ModelConfig    `mapstructure:"model"`
	Training TrainingConfig `mapstructure:"training"`
	Registry RegistryConfig `mapstructure:"registry"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PathsConfig holds the directories the pipeline reads and writes. Every
// value is absolute once resolved.
type PathsConfig struct {
	// BaseModelDir holds the base model training starts from.
	BaseModelDir string `mapstructure:"base_model_dir"`
	// FineTunedModelDir receives trained adapters and is where upload
	// discovers them.
	FineTunedModelDir string `mapstructure:"fine_tuned_model_dir"`
	// WorkspaceDir holds every intermediate artifact and the pipeline log.
	WorkspaceDir string `mapstructure:"workspace_dir"`
	// KnowledgeBaseDir holds markdown notes used by rag-enhancement.
	// A missing directory is treated as an empty knowledge base.
	KnowledgeBaseDir string `mapstructure:"knowledge_base_dir"`
	// ScanResultsDir holds timestamped scanner output directories.
	ScanResultsDir string `mapstructure:"scan_results_dir"`
}

// ModelConfig names the adapter being produced.
type ModelConfig struct {
	// Name is the prefix of trained adapter directories
	// (default: "webauthn-security-sequential").
	Name string `mapstructure:"name"`
}

// TrainingConfig holds hyperparameters handed to the training command.
type TrainingConfig struct {
	MaxEpochs    int     `mapstructure:"max_epochs"`
	SaveSteps    int     `mapstructure:"save_steps"`
	EvalSteps    int     `mapstructure:"eval_steps"`
	LearningRate float64 `mapstructure:"learning_rate"`
	BatchSize    int     `mapstructure:"batch_size"`
	// Command is the external training program. It has no default and is
	// required only when the training phase runs.
	Command string `mapstructure:"command"`
}

// RegistryConfig describes the S3-compatible model registry.
type RegistryConfig struct {
	// RepoID is required only for a REAL upload.
	RepoID string `mapstructure:"repo_id"`
	// Endpoint is host[:port] of the registry; required only for a REAL upload.
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// UploadConfig controls the upload phase.
type UploadConfig struct {
	// Skip forces a BLOCKED upload decision.
	Skip bool `mapstructure:"skip"`
	// Concurrency bounds parallel file uploads (default: 4).
	Concurrency int `mapstructure:"concurrency"`
}

// LoggingConfig controls the pipeline log.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// MaxSizeMB is the size at which pipeline.log rotates (0 disables rotation)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated logs kept
	MaxBackups int `mapstructure:"max_backups"`
}

// LogDir returns the directory holding pipeline.log.
func (s *Settings) LogDir() string {
	return filepath.Join(s.Paths.WorkspaceDir, "logs")
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vulntune")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vulntune"
	}
	return filepath.Join(home, ".config", "vulntune")
}

// ConfigFile returns the path to the default config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ExpandPath expands a leading ~ against home and resolves a relative path
// against workDir. The result is cleaned. Empty input stays empty.
func ExpandPath(path, home, workDir string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		path = home
	} else if strings.HasPrefix(path, "~/") {
		path = filepath.Join(home, path[2:])
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	return filepath.Clean(path)
}
