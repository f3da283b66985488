/*
	Staged file writes: bytes go to a temporary file next to the final path,
	and only appear under the final path once `Commit` renames them into place.

	The temp file is created in the same directory as the target so the rename
	stays on one filesystem and is atomic.  A reader of the final path will
	therefore see either nothing, or a completely written file; never a partial one.
*/
package staging

import (
	"os"
	"path/filepath"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/splitar"
	"github.com/polydawn/splitar/lib/guid"
)

// DefaultMode is applied to committed files, masked by the process umask.
const DefaultMode os.FileMode = 0666

/*
	A staged write.  Write to `File()`, then either `Commit` or `Close`.

	Calling `Close` before `Commit` cancels the write and removes the temp file.
	Calling `Close` after `Commit` is a no-op, so it's always safe to defer.
*/
type WriteController struct {
	file      *os.File
	stagePath string // Needed for the final move-into-place.
	finalPath string
	done      bool
}

/*
	Reserve a temp file alongside finalPath.

	May return errors of category:

	  - `splitar.ErrIO` -- if the temp file can't be created
*/
func OpenWriter(finalPath string) (*WriteController, error) {
	dir, base := filepath.Split(finalPath)
	if dir == "" {
		dir = "."
	}
	wc := &WriteController{
		stagePath: filepath.Join(dir, base+"."+guid.New()+".tmp"),
		finalPath: finalPath,
	}
	// Owner-only until commit; Commit widens it.
	file, err := os.OpenFile(wc.stagePath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return nil, Errorf(splitar.ErrIO, "failed to create output tempfile: %s", err)
	}
	wc.file = file
	return wc, nil
}

// File is the temp file itself; it may be handed to a subprocess as its stdout.
func (wc *WriteController) File() *os.File { return wc.file }

func (wc *WriteController) StagePath() string { return wc.stagePath }

func (wc *WriteController) FinalPath() string { return wc.finalPath }

func (wc *WriteController) Write(bs []byte) (int, error) {
	return wc.file.Write(bs)
}

/*
	Cancel the current write.  Close the stream, and remove the temp file.
	No-op if already committed or closed.
*/
func (wc *WriteController) Close() error {
	if wc.done {
		return nil
	}
	wc.done = true
	wc.file.Close()
	if err := os.Remove(wc.stagePath); err != nil && !os.IsNotExist(err) {
		return Errorf(splitar.ErrIO, "failed to remove tempfile %q: %s", wc.stagePath, err)
	}
	return nil
}

/*
	Close the temp file, move it to the final path, and reset its permissions
	to `DefaultMode` masked by the umask.
	Invalidates any future use.
*/
func (wc *WriteController) Commit() error {
	if wc.done {
		return Errorf(splitar.ErrIO, "commit of %q after close", wc.finalPath)
	}
	if err := wc.file.Close(); err != nil {
		wc.Close()
		return Errorf(splitar.ErrIO, "failed to close tempfile %q: %s", wc.stagePath, err)
	}
	if err := os.Rename(wc.stagePath, wc.finalPath); err != nil {
		wc.Close()
		return Errorf(splitar.ErrIO, "failed to rename temp file %q to output file %q: %s", wc.stagePath, wc.finalPath, err)
	}
	wc.done = true
	return SetUmaskedMode(wc.finalPath, DefaultMode)
}
