// Package errors provides centralized error definitions and error handling utilities
// for the vulntune pipeline. It defines the pipeline's error taxonomy, error
// constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Pipeline errors, one per failure class the orchestrator can surface:
//   - ConfigError: a configuration value is missing or invalid
//   - ArtifactNotFoundError: artifact discovery found zero candidates
//   - PhaseInputError: an input artifact is absent or fails shape validation
//   - PhaseExecutionError: a phase's processing logic failed
//   - UploadError: the registry rejected an upload or the network failed
//
// Semantic errors represent common error conditions:
//   - AlreadyExistsError: resource already exists
//   - ValidationError: invalid input or state
//
// All five pipeline errors end the current invocation.
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewArtifactNotFoundError("trained-adapter", "/models/fine-tuned")
//	err := errors.NewPhaseExecutionError("training", cause)
//
// Checking errors:
//
//	var notFound *errors.ArtifactNotFoundError
//	if errors.As(err, &notFound) { ... }
//
//	if errors.Is(err, errors.ErrArtifactNotFound) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Configuration sentinel errors
var (
	// ErrOptionRequired indicates that a required option has no value.
	ErrOptionRequired = New("option is required")
	// ErrOptionInvalid indicates that an option value could not be used.
	ErrOptionInvalid = New("option value is invalid")
	// ErrUnknownOption indicates a lookup of an option that is not registered.
	ErrUnknownOption = New("unknown option")
)

// Artifact sentinel errors
var (
	// ErrArtifactNotFound indicates that discovery found no candidates.
	ErrArtifactNotFound = New("artifact not found")
	// ErrInputMissing indicates that an input artifact does not exist.
	ErrInputMissing = New("input artifact missing")
	// ErrInputEmpty indicates that an input artifact exists but has no content.
	ErrInputEmpty = New("input artifact is empty")
	// ErrInputMalformed indicates that an input artifact could not be parsed.
	ErrInputMalformed = New("input artifact is malformed")
	// ErrWrongShape indicates a file where a directory was expected, or the reverse.
	ErrWrongShape = New("input artifact has the wrong shape")
)

// Upload sentinel errors
var (
	// ErrUploadIncomplete indicates the registry did not confirm every file.
	ErrUploadIncomplete = New("upload incomplete")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PipelineError is the base interface for all vulntune errors.
type PipelineError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func terminal(message string, cause error) baseError {
	return baseError{
		message:    message,
		cause:      cause,
		severity:   SeverityError,
		userFacing: true,
	}
}

// format renders "<kind> [k=v, ...]: message[: cause]".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Pipeline Errors
// -----------------------------------------------------------------------------

// ConfigError represents a missing or invalid configuration value.
//
// Example:
//
//	err := errors.NewConfigError("required for upload", errors.ErrOptionRequired).
//	    WithOption("registry.repo_id")
//	fmt.Println(err) // "config error [option=registry.repo_id]: required for upload: option is required"
type ConfigError struct {
	baseError
	Option string
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{baseError: terminal(message, cause)}
}

// WithOption adds the option name to the error context.
func (e *ConfigError) WithOption(name string) *ConfigError {
	e.Option = name
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.Option != "" {
		parts = append(parts, "option="+e.Option)
	}
	return e.format("config error", parts)
}

// Is checks if this error matches the target.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ArtifactNotFoundError is returned when discovery finds zero candidates for
// an artifact kind. Callers either abort the phase or fall back to an
// explicit path. Phase is set once the orchestrator knows which phase was
// looking.
type ArtifactNotFoundError struct {
	baseError
	Kind  string
	Dir   string
	Phase string
}

// NewArtifactNotFoundError creates a new ArtifactNotFoundError.
func NewArtifactNotFoundError(kind, dir string) *ArtifactNotFoundError {
	e := &ArtifactNotFoundError{
		baseError: terminal("no candidates found", nil),
		Kind:      kind,
		Dir:       dir,
	}
	e.severity = SeverityWarning
	return e
}

// WithPhase records the phase whose input could not be found.
func (e *ArtifactNotFoundError) WithPhase(phase string) *ArtifactNotFoundError {
	e.Phase = phase
	return e
}

// Error returns the formatted error message.
func (e *ArtifactNotFoundError) Error() string {
	return e.format("artifact not found", []string{"kind=" + e.Kind, "dir=" + e.Dir})
}

// Is checks if this error matches the target.
func (e *ArtifactNotFoundError) Is(target error) bool {
	if _, ok := target.(*ArtifactNotFoundError); ok {
		return true
	}
	if target == ErrArtifactNotFound {
		return true
	}
	return e.baseError.Is(target)
}

// PhaseInputError is returned when a phase's input artifact is absent or
// fails validation. It is always raised before any processing begins.
type PhaseInputError struct {
	baseError
	Phase string
	Kind  string
	Path  string
}

// NewPhaseInputError creates a new PhaseInputError.
func NewPhaseInputError(message string, cause error) *PhaseInputError {
	return &PhaseInputError{baseError: terminal(message, cause)}
}

// WithPhase adds the phase identifier to the error context.
func (e *PhaseInputError) WithPhase(phase string) *PhaseInputError {
	e.Phase = phase
	return e
}

// WithArtifact adds the artifact kind and path to the error context.
func (e *PhaseInputError) WithArtifact(kind, path string) *PhaseInputError {
	e.Kind = kind
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *PhaseInputError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, "phase="+e.Phase)
	}
	if e.Kind != "" {
		parts = append(parts, "kind="+e.Kind)
	}
	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}
	return e.format("phase input error", parts)
}

// Is checks if this error matches the target.
func (e *PhaseInputError) Is(target error) bool {
	if _, ok := target.(*PhaseInputError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PhaseExecutionError wraps a failure raised by a phase's processing logic.
//
// Example:
//
//	err := errors.NewPhaseExecutionError("training", cause)
//	fmt.Println(err) // "phase execution error [phase=training]: phase failed: <cause>"
type PhaseExecutionError struct {
	baseError
	Phase string
}

// NewPhaseExecutionError creates a new PhaseExecutionError.
func NewPhaseExecutionError(phase string, cause error) *PhaseExecutionError {
	return &PhaseExecutionError{
		baseError: terminal("phase failed", cause),
		Phase:     phase,
	}
}

// Error returns the formatted error message.
func (e *PhaseExecutionError) Error() string {
	return e.format("phase execution error", []string{"phase=" + e.Phase})
}

// Is checks if this error matches the target.
func (e *PhaseExecutionError) Is(target error) bool {
	if _, ok := target.(*PhaseExecutionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// UploadError is returned when a REAL-mode upload fails. There is no partial
// success: either every file is confirmed present or the upload failed.
type UploadError struct {
	baseError
	RepoID string
}

// NewUploadError creates a new UploadError.
func NewUploadError(message string, cause error) *UploadError {
	return &UploadError{baseError: terminal(message, cause)}
}

// WithRepoID adds the registry repository identifier to the error context.
func (e *UploadError) WithRepoID(id string) *UploadError {
	e.RepoID = id
	return e
}

// Error returns the formatted error message.
func (e *UploadError) Error() string {
	var parts []string
	if e.RepoID != "" {
		parts = append(parts, "repo="+e.RepoID)
	}
	return e.format("upload error", parts)
}

// Is checks if this error matches the target.
func (e *UploadError) Is(target error) bool {
	if _, ok := target.(*UploadError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// AlreadyExistsError represents a resource that already exists.
//
// Example:
//
//	err := errors.NewAlreadyExistsError("artifact", "/ws/parsed-findings_20250926_120000.json")
//	fmt.Println(err) // "artifact '/ws/parsed-findings_20250926_120000.json' already exists"
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' already exists: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("must be positive").WithField("training.batch_size").WithValue(0)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var pe PipelineError
	if As(err, &pe) {
		return pe.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement PipelineError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var pe PipelineError
	if As(err, &pe) {
		return pe.Severity()
	}
	return SeverityError
}

// PhaseOf returns the phase identifier carried by err, or "" when the error
// is not tied to a phase.
func PhaseOf(err error) string {
	var execErr *PhaseExecutionError
	if As(err, &execErr) {
		return execErr.Phase
	}
	var inputErr *PhaseInputError
	if As(err, &inputErr) {
		return inputErr.Phase
	}
	var notFound *ArtifactNotFoundError
	if As(err, &notFound) {
		return notFound.Phase
	}
	return ""
}
