package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Iron-Ham/vulntune/internal/errors"
	"github.com/Iron-Ham/vulntune/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The option key (e.g., "training.batch_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Is reports ValidationErrors as an invalid option value.
func (e ValidationErrors) Is(target error) bool {
	return target == errors.ErrOptionInvalid
}

// Fields returns the offending option keys in order, without duplicates.
func (e ValidationErrors) Fields() []string {
	var fields []string
	for _, v := range e {
		if !slices.Contains(fields, v.Field) {
			fields = append(fields, v.Field)
		}
	}
	return fields
}

// modelNameRegex keeps model.name usable as a directory name prefix.
var modelNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks the Settings for invalid values and returns all validation errors found
func (s *Settings) Validate() ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, s.validateModel()...)
	errs = append(errs, s.validateTraining()...)
	errs = append(errs, s.validateRegistry()...)
	errs = append(errs, s.validateUpload()...)
	errs = append(errs, s.validateLogging()...)

	return errs
}

func (s *Settings) validateModel() ValidationErrors {
	if !modelNameRegex.MatchString(s.Model.Name) {
		return ValidationErrors{{
			Field:   KeyModelName,
			Value:   s.Model.Name,
			Message: "must start with a letter or digit and contain only letters, digits, '.', '_' or '-'",
		}}
	}
	return nil
}

func (s *Settings) validateTraining() ValidationErrors {
	var errs ValidationErrors

	positive := []struct {
		key   string
		value int
	}{
		{KeyMaxEpochs, s.Training.MaxEpochs},
		{KeySaveSteps, s.Training.SaveSteps},
		{KeyEvalSteps, s.Training.EvalSteps},
		{KeyBatchSize, s.Training.BatchSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, ValidationError{Field: p.key, Value: p.value, Message: "must be positive"})
		}
	}

	if s.Training.LearningRate <= 0 {
		errs = append(errs, ValidationError{
			Field:   KeyLearningRate,
			Value:   s.Training.LearningRate,
			Message: "must be positive",
		})
	}

	return errs
}

func (s *Settings) validateRegistry() ValidationErrors {
	if strings.TrimSpace(s.Registry.Bucket) == "" {
		return ValidationErrors{{Field: KeyRegistryBucket, Value: s.Registry.Bucket, Message: "must not be empty"}}
	}
	return nil
}

func (s *Settings) validateUpload() ValidationErrors {
	const maxConcurrency = 64
	if s.Upload.Concurrency < 1 {
		return ValidationErrors{{Field: KeyUploadConcurrency, Value: s.Upload.Concurrency, Message: "must be at least 1"}}
	}
	if s.Upload.Concurrency > maxConcurrency {
		return ValidationErrors{{
			Field:   KeyUploadConcurrency,
			Value:   s.Upload.Concurrency,
			Message: fmt.Sprintf("exceeds maximum of %d", maxConcurrency),
		}}
	}
	return nil
}

func (s *Settings) validateLogging() ValidationErrors {
	var errs ValidationErrors

	if levels := logging.ValidLevels(); !slices.Contains(levels, strings.ToUpper(s.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   KeyLogLevel,
			Value:   s.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.ToLower(strings.Join(levels, ", "))),
		})
	}
	if s.Logging.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{Field: KeyLogMaxSizeMB, Value: s.Logging.MaxSizeMB, Message: "must be non-negative"})
	}
	if s.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: KeyLogMaxBackups, Value: s.Logging.MaxBackups, Message: "must be non-negative"})
	}

	return errs
}
