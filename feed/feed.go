/*
	The feed turns an input byte stream into an ordered sequence of tar
	entries.

	Compressed input (gzip, zstd, lz4, xz, bzip2) is detected by magic bytes
	and decompressed on the fly.  Reads observe the context given at open,
	so a cancelled run stops at the next read.
*/
package feed

import (
	"archive/tar"
	"bufio"
	"context"
	"io"
	"os"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/splitar"
	"github.com/polydawn/splitar/codec"
	"github.com/polydawn/splitar/lib/ctxio"
)

// Stdin is the input path which means "read standard input".
const Stdin = "-"

const readBufferSize = 1 << 16

type Feed struct {
	tr      *tar.Reader
	codec   codec.Name
	decoder io.Closer
	file    *os.File // nil when reading stdin or a caller-provided reader
	entries int
}

/*
	Open starts reading entries from the file at path, or from stdin when
	path is "-".

	May return errors of category:

	  - `splitar.ErrIO` -- if the file can't be opened or read
	  - `splitar.ErrCorruptInput` -- if the input has a compression magic the decoder rejects
*/
func Open(ctx context.Context, path string, stdin io.Reader) (_ *Feed, err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	if path == Stdin {
		return New(ctx, stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, Errorf(splitar.ErrIO, "failed to open input file: %s", err)
	}
	fd, err := New(ctx, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	fd.file = f
	return fd, nil
}

// New reads entries from r.  Closing the feed doesn't close r.
func New(ctx context.Context, r io.Reader) (_ *Feed, err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	raw := sourceReader{ctxio.NewReader(ctx, r)}
	name, dr, decoder, err := codec.Decompress(bufio.NewReaderSize(raw, readBufferSize))
	if err != nil {
		return nil, err
	}
	return &Feed{
		tr:      tar.NewReader(dr),
		codec:   name,
		decoder: decoder,
	}, nil
}

func (fd *Feed) Codec() codec.Name { return fd.codec }

// Entries counts the entries returned so far.
func (fd *Feed) Entries() int { return fd.entries }

/*
	Next advances to the next entry.  The returned reader yields the entry's
	data, and is only valid until the following call to Next.

	Returns io.EOF after the last entry.

	May return errors of category:

	  - `splitar.ErrCorruptInput` -- if the stream isn't a valid tar archive or ends mid-entry
	  - `splitar.ErrIO` -- if the input can't be read
	  - `splitar.ErrInterrupted` -- if the context is done
*/
func (fd *Feed) Next() (*tar.Header, io.Reader, error) {
	hdr, err := fd.tr.Next()
	switch {
	case err == io.EOF:
		return nil, nil, io.EOF
	case err != nil:
		return nil, nil, splitar.Categorize(splitar.ErrCorruptInput, "failed to read entry from input stream", err)
	}
	fd.entries++
	return hdr, fd.tr, nil
}

func (fd *Feed) Close() error {
	var err error
	if fd.decoder != nil {
		err = fd.decoder.Close()
		fd.decoder = nil
	}
	if fd.file != nil {
		if cerr := fd.file.Close(); err == nil {
			err = cerr
		}
		fd.file = nil
	}
	return err
}

// sourceReader tags failures of the raw input as I/O errors, so that
// anything the decoders or the tar reader report untagged is a format problem.
type sourceReader struct{ r io.Reader }

func (sr sourceReader) Read(p []byte) (int, error) {
	n, err := sr.r.Read(p)
	if err != nil && err != io.EOF {
		err = splitar.Categorize(splitar.ErrIO, "failed to read input", err)
	}
	return n, err
}
