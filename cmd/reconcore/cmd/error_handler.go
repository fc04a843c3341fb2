package cmd

import (
	"fmt"
	"os"

	apperrors "recon-core/pkg/errors"
	"recon-core/pkg/logger"

	"github.com/spf13/viper"
)

// ExitError carries the process exit code chosen for a failed command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// CLIErrorHandler renders command failures for operators
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
	}
}

// Exit prints a user-friendly rendering of the error and wraps it with the
// exit code of its kind
func (h *CLIErrorHandler) Exit(err error) error {
	if err == nil {
		return nil
	}

	h.logger.WithError(err).Error("command failed")

	re := apperrors.AsRecon(err)
	fmt.Fprintf(os.Stderr, "Error: %s\n", re.Message)

	if len(re.Context) > 0 {
		fmt.Fprintf(os.Stderr, "\nContext:\n")
		for key, value := range re.Context {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
	}
	if re.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", re.Suggestion)
	}
	if h.verbose && re.Cause != nil {
		fmt.Fprintf(os.Stderr, "\nUnderlying error: %v\n", re.Cause)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n", kindHelp(re.Kind))

	return &ExitError{Code: re.ExitCode(), Err: err}
}

// kindHelp returns kind-specific help text
func kindHelp(kind apperrors.Kind) string {
	switch kind {
	case apperrors.KindValidation:
		return `Validation error help:
• Check the transaction ids, rule definitions and flag values you supplied
• Verify date formats use YYYY-MM-DD and amounts are plain decimal numbers
• Use 'reconcore --help' to see the expected inputs`

	case apperrors.KindPrecondition:
		return `Precondition error help:
• The operation is valid but the current state does not allow it
• Re-read the transaction or group and check its status before retrying
• N-way matching needs at least 3 candidates per group`

	case apperrors.KindConflict:
		return `Conflict error help:
• Another operation claimed one of the transactions first
• Re-read the pool and retry against fresh state`

	case apperrors.KindNotFound:
		return `Not-found error help:
• Check the id you supplied for typos
• The record may have been unmatched or deleted by another operator`

	case apperrors.KindConfiguration:
		return `Configuration error help:
• Review command-line flags and the config file if using --config
• Try running with default settings first`

	default:
		return `For more help:
• Use 'reconcore --help' for general help
• Run with --verbose for detailed error information`
	}
}
