package config

import "slices"

// Type describes how an option's raw value is coerced.
type Type int

const (
	TypeString Type = iota
	// TypePath is a string normalized to an absolute path with ~ expanded.
	TypePath
	TypeInt
	TypeFloat
	TypeBool
)

// String returns the type name shown by `vulntune config show`.
func (t Type) String() string {
	switch t {
	case TypePath:
		return "path"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	default:
		return "string"
	}
}

// Option describes one configurable value. Each option has exactly one file
// key, one environment variable, and one CLI flag.
type Option struct {
	Key         string // dotted file key, e.g. "paths.workspace_dir"
	Env         string
	Flag        string
	Type        Type
	Default     any // nil means the option has no default
	Secret      bool
	Description string
}

// HasDefault reports whether the option carries a compiled-in default.
func (o Option) HasDefault() bool {
	return o.Default != nil
}

// Option keys referenced outside this package.
const (
	KeyBaseModelDir      = "paths.base_model_dir"
	KeyFineTunedModelDir = "paths.fine_tuned_model_dir"
	KeyWorkspaceDir      = "paths.workspace_dir"
	KeyKnowledgeBaseDir  = "paths.knowledge_base_dir"
	KeyScanResultsDir    = "paths.scan_results_dir"
	KeyModelName         = "model.name"
	KeyMaxEpochs         = "training.max_epochs"
	KeySaveSteps         = "training.save_steps"
	KeyEvalSteps         = "training.eval_steps"
	KeyLearningRate      = "training.learning_rate"
	KeyBatchSize         = "training.batch_size"
	KeyTrainingCommand   = "training.command"
	KeyRegistryRepoID    = "registry.repo_id"
	KeyRegistryEndpoint  = "registry.endpoint"
	KeyRegistryAccessKey = "registry.access_key"
	KeyRegistrySecretKey = "registry.secret_key"
	KeyRegistryBucket    = "registry.bucket"
	KeyRegistryUseSSL    = "registry.use_ssl"
	KeyUploadSkip        = "upload.skip"
	KeyUploadConcurrency = "upload.concurrency"
	KeyLogLevel          = "logging.level"
	KeyLogMaxSizeMB      = "logging.max_size_mb"
	KeyLogMaxBackups     = "logging.max_backups"
)

// DefaultModelName is the trained-adapter prefix when model.name is unset.
const DefaultModelName = "webauthn-security-sequential"

const (
	defaultDataRoot       = "~/.vulntune"
	defaultRegistryBucket = "models"
)

var options = []Option{
	{Key: KeyBaseModelDir, Env: "VULNTUNE_BASE_MODEL_DIR", Flag: "base-model-dir", Type: TypePath,
		Default: defaultDataRoot + "/models/base", Description: "Directory holding the base model the adapter is trained from"},
	{Key: KeyFineTunedModelDir, Env: "VULNTUNE_FINE_TUNED_MODEL_DIR", Flag: "fine-tuned-model-dir", Type: TypePath,
		Default: defaultDataRoot + "/models/fine-tuned", Description: "Directory where trained adapters are written"},
	{Key: KeyWorkspaceDir, Env: "VULNTUNE_WORKSPACE_DIR", Flag: "workspace-dir", Type: TypePath,
		Default: defaultDataRoot + "/workspace", Description: "Directory for intermediate artifacts and logs"},
	{Key: KeyKnowledgeBaseDir, Env: "VULNTUNE_KNOWLEDGE_BASE_DIR", Flag: "knowledge-base-dir", Type: TypePath,
		Default: defaultDataRoot + "/knowledge-base", Description: "Directory of markdown notes used by rag-enhancement"},
	{Key: KeyScanResultsDir, Env: "VULNTUNE_SCAN_RESULTS_DIR", Flag: "scan-results-dir", Type: TypePath,
		Default: defaultDataRoot + "/scan-results", Description: "Directory holding timestamped scanner output directories"},
	{Key: KeyModelName, Env: "VULNTUNE_MODEL_NAME", Flag: "model-name", Type: TypeString,
		Default: DefaultModelName, Description: "Name prefix of trained adapter directories"},
	{Key: KeyMaxEpochs, Env: "VULNTUNE_MAX_EPOCHS", Flag: "max-epochs", Type: TypeInt,
		Default: 3, Description: "Training epochs"},
	{Key: KeySaveSteps, Env: "VULNTUNE_SAVE_STEPS", Flag: "save-steps", Type: TypeInt,
		Default: 100, Description: "Checkpoint interval in steps"},
	{Key: KeyEvalSteps, Env: "VULNTUNE_EVAL_STEPS", Flag: "eval-steps", Type: TypeInt,
		Default: 50, Description: "Evaluation interval in steps"},
	{Key: KeyLearningRate, Env: "VULNTUNE_LEARNING_RATE", Flag: "learning-rate", Type: TypeFloat,
		Default: 2e-4, Description: "Optimizer learning rate"},
	{Key: KeyBatchSize, Env: "VULNTUNE_BATCH_SIZE", Flag: "batch-size", Type: TypeInt,
		Default: 4, Description: "Training batch size"},
	{Key: KeyTrainingCommand, Env: "VULNTUNE_TRAINING_COMMAND", Flag: "training-command", Type: TypeString,
		Description: "External command that performs training"},
	{Key: KeyRegistryRepoID, Env: "VULNTUNE_REGISTRY_REPO_ID", Flag: "registry-repo-id", Type: TypeString,
		Description: "Registry repository the adapter is published to"},
	{Key: KeyRegistryEndpoint, Env: "VULNTUNE_REGISTRY_ENDPOINT", Flag: "registry-endpoint", Type: TypeString,
		Description: "S3-compatible registry endpoint (host:port)"},
	{Key: KeyRegistryAccessKey, Env: "VULNTUNE_REGISTRY_ACCESS_KEY", Flag: "registry-access-key", Type: TypeString,
		Default: "", Secret: true, Description: "Registry access key"},
	{Key: KeyRegistrySecretKey, Env: "VULNTUNE_REGISTRY_SECRET_KEY", Flag: "registry-secret-key", Type: TypeString,
		Default: "", Secret: true, Description: "Registry secret key"},
	{Key: KeyRegistryBucket, Env: "VULNTUNE_REGISTRY_BUCKET", Flag: "registry-bucket", Type: TypeString,
		Default: defaultRegistryBucket, Description: "Registry bucket"},
	{Key: KeyRegistryUseSSL, Env: "VULNTUNE_REGISTRY_USE_SSL", Flag: "registry-use-ssl", Type: TypeBool,
		Default: true, Description: "Use TLS when talking to the registry"},
	{Key: KeyUploadSkip, Env: "VULNTUNE_SKIP_UPLOAD", Flag: "skip-upload", Type: TypeBool,
		Default: false, Description: "Never perform a real upload"},
	{Key: KeyUploadConcurrency, Env: "VULNTUNE_UPLOAD_CONCURRENCY", Flag: "upload-concurrency", Type: TypeInt,
		Default: 4, Description: "Parallel file uploads"},
	{Key: KeyLogLevel, Env: "VULNTUNE_LOG_LEVEL", Flag: "log-level", Type: TypeString,
		Default: "info", Description: "Log level (debug, info, warn, error)"},
	{Key: KeyLogMaxSizeMB, Env: "VULNTUNE_LOG_MAX_SIZE_MB", Flag: "log-max-size-mb", Type: TypeInt,
		Default: 10, Description: "Pipeline log size in MB before rotation"},
	{Key: KeyLogMaxBackups, Env: "VULNTUNE_LOG_MAX_BACKUPS", Flag: "log-max-backups", Type: TypeInt,
		Default: 3, Description: "Rotated pipeline logs to keep"},
}

// Options returns every recognized option in display order.
func Options() []Option {
	return slices.Clone(options)
}

// Lookup returns the option registered under key.
func Lookup(key string) (Option, bool) {
	for _, o := range options {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

// LookupFlag returns the option bound to a CLI flag name.
func LookupFlag(flag string) (Option, bool) {
	for _, o := range options {
		if o.Flag == flag {
			return o, true
		}
	}
	return Option{}, false
}
