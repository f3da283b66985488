/*
	The directory index remembers the most recent header seen for every
	directory in the input stream, so that a directory can be re-emitted
	into later volumes.

	Keys are tar paths without trailing separators; "a/" and "a" are the same
	directory.  The only query is "which stored directories are ancestors of
	this path", answered root-to-leaf.
*/
package dirindex

import (
	"archive/tar"

	"github.com/polydawn/splitar/fs"
)

type Index struct {
	headers map[string]*tar.Header
}

func New() *Index {
	return &Index{headers: map[string]*tar.Header{}}
}

// Key normalizes a tar path into the form the index stores.
func Key(name string) string {
	return fs.TrimSlash(name)
}

// Put records (or refreshes) a directory header.  The header is copied.
func (idx *Index) Put(hdr *tar.Header) {
	key := Key(hdr.Name)
	if key == "" {
		return
	}
	stored := *hdr
	stored.Size = 0
	idx.headers[key] = &stored
}

func (idx *Index) Get(dir string) (*tar.Header, bool) {
	hdr, ok := idx.headers[Key(dir)]
	return hdr, ok
}

func (idx *Index) Len() int { return len(idx.headers) }

/*
	Ancestors returns the stored headers for dir and each of its parents,
	ordered root-to-leaf.  Paths that were never seen as directory entries are skipped.
*/
func (idx *Index) Ancestors(dir string) []*tar.Header {
	var result []*tar.Header
	for _, p := range fs.Ancestors(dir) {
		if hdr, ok := idx.headers[p]; ok {
			result = append(result, hdr)
		}
	}
	return result
}
