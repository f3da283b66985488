/*
	A volume is one physical output archive.

	It owns a staged temp file, optionally a compression subprocess (or an
	in-process encoder), a buffered tar writer, and the bookkeeping the
	splitter needs to decide what still fits and which directories this
	volume already contains.

	Lifecycle:

		Active --Finish--> Finishing --> Finished
		Active --Abort---> Aborted

	Write and Finish are only legal while Active.  Abort is legal at any time and
	is a no-op once the volume is Finished or Aborted, so it is always safe to defer.
	The target path is either absent or a complete, validly terminated archive.
*/
package volume

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/splitar"
	"github.com/polydawn/splitar/codec"
	"github.com/polydawn/splitar/dirindex"
	"github.com/polydawn/splitar/lib/ctxio"
	"github.com/polydawn/splitar/listing"
	"github.com/polydawn/splitar/staging"
)

// 16384 is the default pipe buffer size on Linux; on MacOS it can grow on
// demand up to that value.  We use half of it.
const PipeBufferSize = 1 << 13

const DefaultSuffixLength = 5

const DefaultShell = "/bin/sh"

type State int

const (
	StateActive State = iota
	StateFinishing
	StateFinished
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFinishing:
		return "finishing"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Config struct {
	OutputPrefix string     // Target path is OutputPrefix + zero-padded index.
	SuffixLength int        // Width of the zero-padded index.
	Compress     string     // Shell command each volume is piped through; blank for none.
	Shell        string     // Shell used to run Compress.
	Codec        codec.Name // In-process compression; exclusive with Compress.
	Listing      io.Writer  // If set, a listing line is written here per entry.
	Stderr       io.Writer  // Subprocess stderr; defaults to os.Stderr.
	Logger       *slog.Logger
}

// Name is the zero-padded index used as the volume's filename suffix.
func (cfg Config) Name(index int) string {
	width := cfg.SuffixLength
	if width <= 0 {
		width = DefaultSuffixLength
	}
	return fmt.Sprintf("%0*d", width, index)
}

func (cfg Config) TargetPath(index int) string {
	return cfg.OutputPrefix + cfg.Name(index)
}

type Volume struct {
	Index int
	Name  string

	state      State
	size       int64
	entries    int
	reinjected int

	wc   *staging.WriteController
	cmd  *exec.Cmd
	sink io.WriteCloser // subprocess stdin or encoder; nil when writing the file directly
	buf  *bufio.Writer
	tw   *tar.Writer

	prevDir    string
	hasPrevDir bool
	storedDirs map[string]struct{}

	listing io.Writer
	log     *slog.Logger
}

/*
	Open starts volume number index: reserves its temp file, starts the
	compression subprocess or encoder if configured, and sets the accumulated
	size to the trailer reservation.

	All writes through the volume observe ctx, failing with `ErrInterrupted` once it's done.

	May return errors of category:

	  - `splitar.ErrIO` -- if the temp file can't be created or the subprocess can't be started
	  - `splitar.ErrUsage` -- for an invalid codec
	  - `splitar.ErrInterrupted` -- if ctx is already done
*/
func Open(ctx context.Context, index int, cfg Config) (_ *Volume, err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	if err := ctxio.Check(ctx); err != nil {
		return nil, err
	}
	if cfg.Compress != "" && cfg.Codec != "" && cfg.Codec != codec.None {
		return nil, Errorf(splitar.ErrUsage, "a compression command and an output codec can't be used together")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	v := &Volume{
		Index:      index,
		Name:       cfg.Name(index),
		state:      StateActive,
		size:       splitar.TrailerSize,
		storedDirs: map[string]struct{}{},
		listing:    cfg.Listing,
	}
	target := cfg.TargetPath(index)
	v.log = logger.With("volume", v.Name)
	v.log.Info("starting new volume", "path", target)

	v.wc, err = staging.OpenWriter(target)
	if err != nil {
		return nil, err
	}
	v.log.Debug("output temp file", "tmp", v.wc.StagePath())

	var out io.Writer = v.wc
	switch {
	case cfg.Compress != "":
		shell := cfg.Shell
		if shell == "" {
			shell = DefaultShell
		}
		cmd := exec.Command(shell, "-c", cfg.Compress)
		cmd.Stdout = v.wc.File()
		cmd.Stderr = cfg.Stderr
		if cmd.Stderr == nil {
			cmd.Stderr = os.Stderr
		}
		stdin, err := cmd.StdinPipe()
		if err != nil {
			v.wc.Close()
			return nil, Errorf(splitar.ErrIO, "failed to open subprocess pipe: %s", err)
		}
		if err := cmd.Start(); err != nil {
			v.wc.Close()
			return nil, Errorf(splitar.ErrIO, "failed to start %q with shell %q: %s", cfg.Compress, shell, err)
		}
		v.log.Info("executing subprocess", "pid", cmd.Process.Pid)
		v.cmd, v.sink, out = cmd, stdin, stdin
	case cfg.Codec != "" && cfg.Codec != codec.None:
		enc, err := codec.NewWriter(cfg.Codec, v.wc)
		if err != nil {
			v.wc.Close()
			return nil, err
		}
		v.sink, out = enc, enc
	}
	v.buf = bufio.NewWriterSize(out, PipeBufferSize)
	v.tw = tar.NewWriter(ctxio.NewWriter(ctx, v.buf))
	return v, nil
}

func (v *Volume) State() State { return v.state }

// Size is the accumulated archive size, including the trailer reservation.
func (v *Volume) Size() int64 { return v.size }

// Entries counts original entries written, not reinjected directories.
func (v *Volume) Entries() int { return v.entries }

func (v *Volume) TargetPath() string { return v.wc.FinalPath() }

func (v *Volume) Info() splitar.VolumeInfo {
	return splitar.VolumeInfo{
		Index:      v.Index,
		Path:       v.TargetPath(),
		Size:       v.size,
		Entries:    v.entries,
		Reinjected: v.reinjected,
	}
}

// PrevDir is the parent directory of the last entry that went through reinjection.
func (v *Volume) PrevDir() (string, bool) { return v.prevDir, v.hasPrevDir }

func (v *Volume) SetPrevDir(dir string) {
	v.prevDir, v.hasPrevDir = dir, true
}

// HasDir reports whether the directory was already emitted into this volume.
func (v *Volume) HasDir(name string) bool {
	_, ok := v.storedDirs[dirindex.Key(name)]
	return ok
}

func (v *Volume) MarkDir(name string) {
	v.storedDirs[dirindex.Key(name)] = struct{}{}
}

/*
	Write appends an original input entry: its header and exactly DataSize(hdr)
	bytes read from data.

	May return errors of category:

	  - `splitar.ErrIO` -- if the output can't be written, or the volume isn't active
	  - `splitar.ErrCorruptInput` -- if data ends early or the header can't be encoded
	  - `splitar.ErrInterrupted` -- if cancelled part-way
*/
func (v *Volume) Write(hdr *tar.Header, data io.Reader) (err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	if err := v.write(hdr, data); err != nil {
		return err
	}
	v.entries++
	return nil
}

// WriteDir re-emits a directory header, with no data, and marks the directory stored.
func (v *Volume) WriteDir(hdr *tar.Header) (err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	h := *hdr
	h.Size = 0
	if err := v.write(&h, nil); err != nil {
		return err
	}
	v.MarkDir(hdr.Name)
	v.reinjected++
	return nil
}

func (v *Volume) write(hdr *tar.Header, data io.Reader) error {
	if v.state != StateActive {
		return Errorf(splitar.ErrIO, "volume %s is %s; writes are only legal while active", v.Name, v.state)
	}
	cost, err := EntryCost(hdr)
	if err != nil {
		return err
	}
	if v.listing != nil {
		if err := listing.Fprint(v.listing, v.Name, hdr); err != nil {
			return Errorf(splitar.ErrIO, "failed to output verbose file info: %s", err)
		}
	}
	if err := v.tw.WriteHeader(hdr); err != nil {
		return v.outputFailure("failed to write an entry to output file", err)
	}
	if n := DataSize(hdr); n > 0 {
		copied, err := io.CopyN(v.tw, inputReader{data}, n)
		switch {
		case err == io.EOF:
			return Errorf(splitar.ErrCorruptInput, "entry %q ended after %d of %d bytes", hdr.Name, copied, n)
		case err != nil:
			return v.outputFailure("failed to write an entry to output file", err)
		}
	}
	v.size += cost
	return nil
}

/*
	Finish completes the volume: writes the archive trailer, waits for the
	subprocess and checks its exit code, renames the temp file into place,
	and resets its permissions.

	If any step fails the volume is aborted, and the target path is left untouched.

	May return errors of category:

	  - `splitar.ErrIO` -- for any write, wait, rename or chmod failure
	  - `splitar.ErrSubprocessFailed` -- if the compression command exits non-zero
	  - `splitar.ErrInterrupted` -- if cancelled while flushing
*/
func (v *Volume) Finish() (err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	if v.state != StateActive {
		return Errorf(splitar.ErrIO, "volume %s is %s; only an active volume can be finished", v.Name, v.state)
	}
	v.state = StateFinishing
	defer func() {
		if err != nil {
			v.rollback()
		}
	}()

	// The tar writer has to be closed first; it emits the trailer.
	if err := v.tw.Close(); err != nil {
		return v.outputFailure("failed to write final data to output file", err)
	}
	if err := v.buf.Flush(); err != nil {
		return v.outputFailure("failed to write final data to output file", err)
	}
	if v.sink != nil {
		if err := v.sink.Close(); err != nil {
			return Errorf(splitar.ErrIO, "failed to close compression stream: %s", err)
		}
		v.sink = nil
	}
	if v.cmd != nil {
		cmd := v.cmd
		v.cmd = nil
		v.log.Info("waiting for subprocess to finish", "pid", cmd.Process.Pid)
		code, err := waitFor(cmd)
		if err != nil {
			return err
		}
		if code != 0 {
			return subprocessFailed(code)
		}
	}
	v.log.Debug("moving temp file into place", "tmp", v.wc.StagePath(), "path", v.wc.FinalPath())
	if err := v.wc.Commit(); err != nil {
		return err
	}
	v.state = StateFinished
	return nil
}

/*
	outputFailure categorizes a failed write into the volume's output.

	A broken pipe means the compression command stopped reading; it's reaped
	here, and if it exited non-zero that exit code is the error reported.
*/
func (v *Volume) outputFailure(op string, err error) error {
	if v.cmd == nil || !errors.Is(err, syscall.EPIPE) {
		return splitar.Categorize(splitar.ErrIO, op, err)
	}
	if v.sink != nil {
		v.sink.Close()
		v.sink = nil
	}
	cmd := v.cmd
	v.cmd = nil
	code, waitErr := waitFor(cmd)
	v.log.Info("subprocess stopped reading its input", "pid", cmd.Process.Pid, "code", code)
	if waitErr != nil || code == 0 {
		return splitar.Categorize(splitar.ErrIO, op, err)
	}
	return subprocessFailed(code)
}

func subprocessFailed(code int) error {
	return ErrorDetailed(
		splitar.ErrSubprocessFailed,
		fmt.Sprintf("subprocess exited with error: %d", code),
		map[string]string{"code": strconv.Itoa(code)},
	)
}

/*
	Abort discards the volume: releases the subprocess's input, kills the
	subprocess, and removes the temp file.  Nothing is ever renamed into place.

	No-op for a finished or already aborted volume.
*/
func (v *Volume) Abort() {
	switch v.state {
	case StateFinished, StateAborted:
		return
	}
	v.rollback()
}

func (v *Volume) rollback() {
	v.state = StateAborted
	// Don't close the tar writer: that would emit a trailer and make the partial data look valid.
	if v.sink != nil {
		v.sink.Close()
		v.sink = nil
	}
	if v.cmd != nil {
		cmd := v.cmd
		v.cmd = nil
		if err := cmd.Process.Kill(); err == nil {
			v.log.Warn("killing subprocess of an unfinished volume", "pid", cmd.Process.Pid)
		} else if !errors.Is(err, os.ErrProcessDone) {
			v.log.Warn("failed to kill subprocess", "pid", cmd.Process.Pid, "error", err)
		}
		cmd.Wait()
	}
	if err := v.wc.Close(); err != nil {
		v.log.Warn("failed to clean up temp file", "error", err)
	}
}

// inputReader tags read failures as input problems, so io.Copy's
// errors can be told apart from write failures on the way out.
type inputReader struct{ r io.Reader }

func (ir inputReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if err != nil && err != io.EOF {
		err = splitar.Categorize(splitar.ErrCorruptInput, "failed to read input entry", err)
	}
	return n, err
}
