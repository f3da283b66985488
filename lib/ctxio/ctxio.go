/*
	Reader and writer wrappers which observe a `context.Context` before every call.

	This is how cancellation reaches the blocking I/O of a split run: once the
	context is done, the next Read or Write fails with an `ErrInterrupted`
	category error, which unwinds through the normal error path.
	Calls already blocked in the kernel are not interrupted; the check happens
	on the way in.
*/
package ctxio

import (
	"context"
	"io"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/splitar"
)

type Reader struct {
	Ctx context.Context
	R   io.Reader
}

func NewReader(ctx context.Context, r io.Reader) *Reader {
	return &Reader{ctx, r}
}

func (r *Reader) Read(p []byte) (int, error) {
	if err := Check(r.Ctx); err != nil {
		return 0, err
	}
	return r.R.Read(p)
}

type Writer struct {
	Ctx context.Context
	W   io.Writer
}

func NewWriter(ctx context.Context, w io.Writer) *Writer {
	return &Writer{ctx, w}
}

func (w *Writer) Write(p []byte) (int, error) {
	if err := Check(w.Ctx); err != nil {
		return 0, err
	}
	return w.W.Write(p)
}

// Check returns an `ErrInterrupted` error if ctx is done, and nil otherwise.
func Check(ctx context.Context) error {
	if ctx.Err() != nil {
		return Errorf(splitar.ErrInterrupted, "interrupted")
	}
	return nil
}
