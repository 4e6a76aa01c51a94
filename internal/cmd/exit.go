package cmd

import (
	"fmt"
	"io"

	"github.com/Iron-Ham/vulntune/internal/errors"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitConfig    = 2
	ExitInput     = 3
	ExitExecution = 4
	ExitUpload    = 5
)

// ExitCode maps an error to the process exit status. Configuration and
// upload errors keep their code when a phase wraps them.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		configErr *errors.ConfigError
		uploadErr *errors.UploadError
		execErr   *errors.PhaseExecutionError
		notFound  *errors.ArtifactNotFoundError
		inputErr  *errors.PhaseInputError
	)
	switch {
	case errors.As(err, &configErr):
		return ExitConfig
	case errors.As(err, &uploadErr):
		return ExitUpload
	case errors.As(err, &execErr):
		return ExitExecution
	case errors.As(err, &notFound), errors.As(err, &inputErr):
		return ExitInput
	default:
		return ExitFailure
	}
}

// FormatError renders the single error line printed before exit.
func FormatError(err error) string {
	if phase := errors.PhaseOf(err); phase != "" {
		return fmt.Sprintf("error [phase=%s]: %v", phase, err)
	}
	return fmt.Sprintf("error: %v", err)
}

// PrintError writes FormatError(err) to w, styled when w is a terminal.
// Warning-level errors such as a missing artifact render in the warning
// color. A follow-up hint points at the phase log, or at usage for errors
// raised outside the pipeline taxonomy.
func PrintError(w io.Writer, err error) {
	p := newPrinter(w)
	style := p.fail
	if errors.GetSeverity(err) <= errors.SeverityWarning {
		style = p.warn
	}
	_, _ = fmt.Fprintln(w, style.Render(FormatError(err)))

	if hint := errorHint(err); hint != "" {
		_, _ = fmt.Fprintln(w, p.muted.Render(hint))
	}
}

func errorHint(err error) string {
	if phase := errors.PhaseOf(err); phase != "" {
		return fmt.Sprintf("See 'vulntune logs --phase %s' for details.", phase)
	}
	if !errors.IsUserFacing(err) {
		return "Run 'vulntune --help' for usage."
	}
	return ""
}
