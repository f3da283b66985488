package splitar

// Types in this file are all serializable.
// They describe the outcome of a split run, for `--format json`.

import (
	"github.com/polydawn/refmt/obj/atlas"
)

// TrailerSize is the two zero-filled 512-byte blocks terminating every tar archive.
// Each volume reserves it up front.
const TrailerSize int64 = 2 * BlockSize

// BlockSize is the tar record granularity; headers and padded data are multiples of it.
const BlockSize int64 = 512

/*
	A published volume.

	Size is the accumulated (uncompressed) archive size including the trailer;
	when no compression is configured it equals the file's length on disk.
*/
type VolumeInfo struct {
	Index      int    `refmt:"index"`
	Path       string `refmt:"path"`
	Size       int64  `refmt:"size"`
	Entries    int    `refmt:"entries"`
	Reinjected int    `refmt:"reinjected,omitempty"`
}

// The final message emitted by a run: every volume published, and the error if there was one.
type Result struct {
	Volumes []VolumeInfo `refmt:"volumes"`
	Error   *ResultError `refmt:"error,omitempty"`
}

type ResultError struct {
	Category string `refmt:"category"`
	Message  string `refmt:"message"`
}

func (r *Result) SetError(err error) {
	if err == nil {
		r.Error = nil
		return
	}
	cat, _ := CategoryOf(err)
	r.Error = &ResultError{Category: string(cat), Message: err.Error()}
}

var Atlas = atlas.MustBuild(
	atlas.BuildEntry(Result{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(ResultError{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(VolumeInfo{}).StructMap().Autogenerate().Complete(),
)
