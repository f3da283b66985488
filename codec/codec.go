/*
	Stream compression for the splitter's input and output.

	Input is sniffed by magic bytes and transparently decompressed, so a
	compressed archive can be split without an external decompressor.
	Output compression can be done in-process with one of the named codecs,
	as an alternative to piping each volume through an external command.
*/
package codec

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	. "github.com/warpfork/go-errcat"
	"github.com/xi2/xz"

	"github.com/polydawn/splitar"
)

type Name string

const (
	None Name = "none"
	Gzip Name = "gzip"
	Zstd Name = "zstd"
	Lz4  Name = "lz4"
	Xz   Name = "xz"    // decode only
	Bzip Name = "bzip2" // decode only
)

// Encoders lists the codecs usable for output.
var Encoders = []Name{None, Gzip, Zstd, Lz4}

var magics = []struct {
	name  Name
	magic []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{Lz4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{Xz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{Bzip, []byte{'B', 'Z', 'h'}},
}

// Detect sniffs the compression format of the stream from its first bytes.
// The returned reader yields the whole stream, including the sniffed bytes.
func Detect(r io.Reader) (Name, io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return None, br, err
	}
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.name, br, nil
		}
	}
	return None, br, nil
}

/*
	Wrap the input stream with decompression as necessary.
	Which kind of decompression to use is autodetected by magic bytes;
	plain tar passes through.

	Returns the detected codec along with the decoded stream.
	The returned closer releases decoder resources; it does not close r.

	May return errors of category:

	  - `splitar.ErrCorruptInput` -- if the stream has a known magic but the decoder rejects it
	  - `splitar.ErrIO` -- if the stream can't be read at all
*/
func Decompress(r io.Reader) (Name, io.Reader, io.Closer, error) {
	name, br, err := Detect(r)
	if err != nil {
		return name, nil, nil, splitar.Categorize(splitar.ErrIO, "failed to read input", err)
	}
	dr, closer, err := NewReader(name, br)
	return name, dr, closer, err
}

// NewReader wraps r with a decoder for the named codec.
func NewReader(name Name, r io.Reader) (io.Reader, io.Closer, error) {
	switch name {
	case None, "":
		return r, nopCloser{}, nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, splitar.Categorize(splitar.ErrCorruptInput, "corrupt gzip input", err)
		}
		return zr, zr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, splitar.Categorize(splitar.ErrCorruptInput, "corrupt zstd input", err)
		}
		return zr, closerFunc(zr.Close), nil
	case Lz4:
		return lz4.NewReader(r), nopCloser{}, nil
	case Xz:
		zr, err := xz.NewReader(r, 0)
		if err != nil {
			return nil, nil, splitar.Categorize(splitar.ErrCorruptInput, "corrupt xz input", err)
		}
		return zr, nopCloser{}, nil
	case Bzip:
		return bzip2.NewReader(r), nopCloser{}, nil
	default:
		return nil, nil, Errorf(splitar.ErrUsage, "unsupported input codec %q", name)
	}
}

/*
	Wrap w with an encoder for the named codec.

	Closing the returned writer flushes the encoder's final frame;
	it does not close w.
*/
func NewWriter(name Name, w io.Writer) (io.WriteCloser, error) {
	switch name {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, Errorf(splitar.ErrIO, "failed to start zstd encoder: %s", err)
		}
		return zw, nil
	case Lz4:
		return lz4.NewWriter(w), nil
	default:
		return nil, Errorf(splitar.ErrUsage, "unsupported output codec %q (valid options are %v)", name, Encoders)
	}
}

// Parse validates a codec name given by the user for output.
func Parse(s string) (Name, error) {
	for _, name := range Encoders {
		if string(name) == s {
			return name, nil
		}
	}
	if s == "" {
		return None, nil
	}
	return None, Errorf(splitar.ErrUsage, "unsupported output codec %q (valid options are %v)", s, Encoders)
}

func (n Name) String() string { return string(n) }

type closerFunc func()

func (f closerFunc) Close() error { f(); return nil }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
