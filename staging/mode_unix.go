//go:build unix

package staging

import (
	"os"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sys/unix"

	"github.com/polydawn/splitar"
)

/*
	SetUmaskedMode chmods the file to mode with the process umask applied.

	Reading the umask means setting it and setting it back; that races with
	any other goroutine creating files at the same moment.
	The splitter is single-threaded, so that's fine here.
*/
func SetUmaskedMode(path string, mode os.FileMode) error {
	umask := unix.Umask(0)
	unix.Umask(umask)
	resultMode := mode &^ os.FileMode(umask)
	if err := os.Chmod(path, resultMode); err != nil {
		return Errorf(splitar.ErrIO, "failed to set permission %o to the output file %q: %s", resultMode, path, err)
	}
	return nil
}
