package volume

import (
	"errors"
	"os/exec"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/splitar"
)

// waitFor reaps the process and returns its exit code.
// A process killed by a signal reports -1.
func waitFor(cmd *exec.Cmd) (int, error) {
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, Errorf(splitar.ErrIO, "failed to wait for subprocess completion: %s", err)
	}
	return exitErr.ExitCode(), nil
}
