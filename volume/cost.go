package volume

import (
	"archive/tar"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/splitar"
)

/*
	HeaderSize is the number of bytes the tar writer emits for hdr before its
	data: the header block plus any PAX or GNU extension blocks the name,
	link target, or other fields require.

	It's measured by actually encoding the header into a counter, so it can't
	drift from what `Volume.Write` will produce.
*/
func HeaderSize(hdr *tar.Header) (int64, error) {
	var cw countingWriter
	h := *hdr
	if err := tar.NewWriter(&cw).WriteHeader(&h); err != nil {
		return 0, Errorf(splitar.ErrCorruptInput, "cannot encode header for %q: %s", hdr.Name, err)
	}
	return cw.n, nil
}

// EntryCost is what writing hdr and its data adds to a volume: header blocks plus padded data.
func EntryCost(hdr *tar.Header) (int64, error) {
	n, err := HeaderSize(hdr)
	if err != nil {
		return 0, err
	}
	return n + padded(DataSize(hdr)), nil
}

// DataSize is the number of data bytes that follow hdr in the stream.
// Header-only types carry none, whatever their Size field says.
func DataSize(hdr *tar.Header) int64 {
	switch hdr.Typeflag {
	case tar.TypeLink, tar.TypeSymlink, tar.TypeChar, tar.TypeBlock, tar.TypeDir, tar.TypeFifo:
		return 0
	}
	return hdr.Size
}

func padded(n int64) int64 {
	return (n + splitar.BlockSize - 1) &^ (splitar.BlockSize - 1)
}

type countingWriter struct{ n int64 }

func (cw *countingWriter) Write(p []byte) (int, error) {
	cw.n += int64(len(p))
	return len(p), nil
}
