package splitar

import (
	"errors"

	"github.com/warpfork/go-errcat"
)

/*
	Error categories for every failure splitar can report.

	All errors returned from the exported functions of this module carry one
	of these categories (see `errcat.RequireErrorHasCategory`); the CLI maps
	them onto process exit codes with `ExitCodeFor`.
*/
type ErrorCategory string

type ExitCode int

const (
	ExitSuccess      = ExitCode(0)
	ExitFailure      = ExitCode(1) // Everything that doesn't have a more specific code.
	ExitPanic        = ExitCode(2) // Placeholder.  '2' happens when golang exits due to panic.
	ExitFileTooLarge = ExitCode(3)
)

const (
	ErrUsage            = ErrorCategory("splitar-usage-error")       // Some piece of user input was invalid and unrunnable.
	ErrFileTooLarge     = ErrorCategory("splitar-file-too-large")    // An entry can't fit into a single volume and --fail-on-large-file is set.
	ErrIO               = ErrorCategory("splitar-io-error")          // Read, write, rename, chmod, spawn or wait failed.
	ErrCorruptInput     = ErrorCategory("splitar-corrupt-input")     // The input stream could not be parsed as a tar archive.
	ErrSubprocessFailed = ErrorCategory("splitar-subprocess-failed") // The compression command exited non-zero.
	ErrInterrupted      = ErrorCategory("splitar-interrupted")       // Cancellation was observed part-way through I/O.
)

// CategoryExitCode returns the process exit code for an error category.
func CategoryExitCode(category ErrorCategory) ExitCode {
	switch category {
	case "":
		return ExitSuccess
	case ErrFileTooLarge:
		return ExitFileTooLarge
	default:
		return ExitFailure
	}
}

// ExitCodeFor maps an error returned by splitar onto an exit code.
// Errors without a category are treated as generic failures.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	cat, ok := CategoryOf(err)
	if !ok {
		return ExitFailure
	}
	return CategoryExitCode(cat)
}

// CategoryOf extracts the splitar category of an error, if it has one.
func CategoryOf(err error) (ErrorCategory, bool) {
	var ce errcat.Error
	if !errors.As(err, &ce) {
		return "", false
	}
	cat, ok := ce.Category().(ErrorCategory)
	return cat, ok
}

/*
	Returns err unchanged if it already carries a splitar category;
	otherwise wraps it in the given category, prefixed by the operation name.

	This is how errors from the standard library and from the tar codec
	get their category at the boundary where we first see them.
*/
func Categorize(category ErrorCategory, op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := CategoryOf(err); ok {
		return err
	}
	return errcat.Errorf(category, "%s: %s", op, err)
}
