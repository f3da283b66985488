/*
	Random identifiers for naming temporary files.
*/
package guid

import (
	"encoding/hex"

	"github.com/google/uuid"
)

const size = 32

// New returns a random 32-character lowercase hex string.
func New() string {
	id := uuid.New()
	var buf [size]byte
	hex.Encode(buf[:], id[:])
	return string(buf[:])
}
