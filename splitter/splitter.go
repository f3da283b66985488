/*
	The splitter consumes tar entries in order and distributes them over a
	sequence of volumes, rotating to a new volume whenever the next entry
	(plus any directories that have to be re-emitted ahead of it) would push
	the current one past the size limit.

	Rotation only ever happens between entries; an entry is never split.
	A volume that holds no original entry yet always accepts the next one,
	so a single oversized entry gets a volume to itself unless
	FailOnLargeFile is set.
*/
package splitter

import (
	"archive/tar"
	"context"
	"io"
	"log/slog"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/splitar"
	"github.com/polydawn/splitar/dirindex"
	"github.com/polydawn/splitar/fs"
	"github.com/polydawn/splitar/volume"
)

type Options struct {
	MaxSize         int64 // Upper bound on each volume's uncompressed archive size, trailer included.
	FailOnLargeFile bool  // Refuse entries that can't fit even into an empty volume.
	RecreateDirs    bool  // Re-emit ancestor directories at the start of each volume that needs them.
	Volume          volume.Config
	Logger          *slog.Logger
}

// EntryFeed yields input entries in order, and io.EOF after the last one.
type EntryFeed interface {
	Next() (*tar.Header, io.Reader, error)
}

type Splitter struct {
	ctx  context.Context
	opts Options
	log  *slog.Logger

	current   *volume.Volume
	next      int
	dirs      *dirindex.Index
	published []splitar.VolumeInfo
}

/*
	New validates the options and opens the first volume.

	Even an input with no entries at all produces that first volume, holding
	only the trailer.

	May return errors of category:

	  - `splitar.ErrUsage` -- if MaxSize can't even hold an empty archive
	  - any category `volume.Open` returns
*/
func New(ctx context.Context, opts Options) (_ *Splitter, err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	if opts.MaxSize < splitar.TrailerSize {
		return nil, Errorf(splitar.ErrUsage, "max size %d is smaller than an empty archive (%d bytes)", opts.MaxSize, splitar.TrailerSize)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Volume.Logger == nil {
		opts.Volume.Logger = opts.Logger
	}
	s := &Splitter{
		ctx:  ctx,
		opts: opts,
		log:  opts.Logger,
		dirs: dirindex.New(),
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Splitter) open() error {
	vol, err := volume.Open(s.ctx, s.next, s.opts.Volume)
	if err != nil {
		return err
	}
	s.current = vol
	s.next++
	return nil
}

func (s *Splitter) finishCurrent() error {
	vol := s.current
	s.current = nil
	if err := vol.Finish(); err != nil {
		return err
	}
	info := vol.Info()
	s.log.Info("volume complete", "volume", vol.Name, "path", info.Path, "size", info.Size, "entries", info.Entries)
	s.published = append(s.published, info)
	return nil
}

/*
	Process routes one input entry into a volume.

	In order: the large-file check (which, when directories are recreated,
	counts every known ancestor an empty volume would need), the rotation decision (which accounts
	for the directories that would have to be re-emitted), the re-emission
	itself, and finally the entry.  Directory entries are remembered so they
	can be re-emitted into later volumes.

	On error the splitter should be aborted; the current volume is never
	published.

	May return errors of category:

	  - `splitar.ErrFileTooLarge` -- if FailOnLargeFile is set and the entry can't fit an empty volume
	  - `splitar.ErrCorruptInput` -- if the entry's data ends early
	  - any category `volume.Open`, `Volume.Write`, or `Volume.Finish` returns
*/
func (s *Splitter) Process(hdr *tar.Header, data io.Reader) (err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	if s.current == nil {
		return Errorf(splitar.ErrIO, "splitter is closed")
	}
	cost, err := volume.EntryCost(hdr)
	if err != nil {
		return err
	}
	parent, hasParent := fs.Dirname(hdr.Name)
	if s.opts.FailOnLargeFile {
		// What an empty volume would have to hold: the entry and every directory recreated ahead of it.
		need := splitar.TrailerSize + cost
		if s.opts.RecreateDirs && hasParent {
			dirsCost, err := headersCost(s.dirs.Ancestors(parent))
			if err != nil {
				return err
			}
			need += dirsCost
		}
		if need > s.opts.MaxSize {
			return ErrorDetailed(
				splitar.ErrFileTooLarge,
				"file too large: "+hdr.Name,
				map[string]string{"path": hdr.Name},
			)
		}
	}

	pending, pendingCost, err := s.pendingDirs(parent, hasParent)
	if err != nil {
		return err
	}
	if s.current.Entries() > 0 && s.current.Size()+pendingCost+cost > s.opts.MaxSize {
		s.log.Debug("entry does not fit, rotating",
			"volume", s.current.Name,
			"path", hdr.Name,
			"size", s.current.Size(),
			"cost", cost,
			"reinjection", pendingCost,
		)
		if err := s.finishCurrent(); err != nil {
			return err
		}
		if err := s.open(); err != nil {
			return err
		}
		if pending, _, err = s.pendingDirs(parent, hasParent); err != nil {
			return err
		}
	}

	if s.opts.RecreateDirs && hasParent {
		for _, dir := range pending {
			s.log.Debug("recreating directory", "volume", s.current.Name, "dir", dir.Name)
			if err := s.current.WriteDir(dir); err != nil {
				return err
			}
		}
		s.current.SetPrevDir(parent)
	}

	if err := s.current.Write(hdr, data); err != nil {
		return err
	}
	if hdr.Typeflag == tar.TypeDir {
		if _, seen := s.dirs.Get(hdr.Name); seen {
			s.log.Debug("directory revisited; later volumes recreate it with the new header", "dir", hdr.Name)
		}
		s.dirs.Put(hdr)
		s.current.MarkDir(hdr.Name)
	}
	return nil
}

func headersCost(hdrs []*tar.Header) (int64, error) {
	var total int64
	for _, hdr := range hdrs {
		cost, err := volume.EntryCost(hdr)
		if err != nil {
			return 0, err
		}
		total += cost
	}
	return total, nil
}

// pendingDirs lists the known ancestors of parent (itself included) that the
// current volume doesn't hold yet, and what writing them would cost.
func (s *Splitter) pendingDirs(parent string, hasParent bool) ([]*tar.Header, int64, error) {
	if !s.opts.RecreateDirs || !hasParent {
		return nil, 0, nil
	}
	if prev, ok := s.current.PrevDir(); ok && prev == parent {
		return nil, 0, nil
	}
	var (
		pending []*tar.Header
		total   int64
	)
	for _, dir := range s.dirs.Ancestors(parent) {
		if s.current.HasDir(dir.Name) {
			continue
		}
		cost, err := volume.EntryCost(dir)
		if err != nil {
			return nil, 0, err
		}
		pending = append(pending, dir)
		total += cost
	}
	return pending, total, nil
}

/*
	Finish completes the last volume and returns every published volume, in order.
	The splitter is closed afterwards.
*/
func (s *Splitter) Finish() (_ []splitar.VolumeInfo, err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	if s.current == nil {
		return nil, Errorf(splitar.ErrIO, "splitter is closed")
	}
	if err := s.finishCurrent(); err != nil {
		return nil, err
	}
	s.log.Debug("input complete", "volumes", len(s.published), "directories", s.dirs.Len())
	return s.Volumes(), nil
}

// Abort discards the in-progress volume, if any.  Already published volumes stay.
// Safe to defer; a no-op after Finish.
func (s *Splitter) Abort() {
	if s.current != nil {
		s.log.Debug("aborting unfinished volume", "volume", s.current.Name, "state", s.current.State())
		s.current.Abort()
		s.current = nil
	}
}

// Volumes returns the volumes published so far.
func (s *Splitter) Volumes() []splitar.VolumeInfo {
	return append([]splitar.VolumeInfo(nil), s.published...)
}

/*
	Run feeds every entry of feed through a new splitter, and finishes it.

	The volumes published before a failure are returned along with the error;
	the volume in progress at that point is removed.
*/
func Run(ctx context.Context, feed EntryFeed, opts Options) (_ []splitar.VolumeInfo, err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	s, err := New(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer s.Abort()
	for {
		hdr, data, err := feed.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s.Volumes(), splitar.Categorize(splitar.ErrCorruptInput, "failed to read entry from input stream", err)
		}
		s.log.Debug("entry", "path", hdr.Name, "size", hdr.Size)
		if err := s.Process(hdr, data); err != nil {
			return s.Volumes(), err
		}
	}
	return s.Finish()
}
