//go:build !unix

package staging

import (
	"os"
)

// SetUmaskedMode is a no-op where there's no umask; the temp file keeps its permissions.
func SetUmaskedMode(path string, mode os.FileMode) error {
	return nil
}
