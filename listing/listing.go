/*
	Human-readable, `tar tv`-style listing lines for entries as they're written.

	Format:

		<volume> <type><rwxrwxrwx> <user> <group> <size or major:minor> <YYYY-MM-DD HH:MM:SS> <path>[ -> target | link to target]
*/
package listing

import (
	"archive/tar"
	"fmt"
	"io"
	"strings"
	"time"
)

const timeFormat = "2006-01-02 15:04:05"

// Line formats the listing line for hdr, without a trailing newline.
// Timestamps are rendered in loc (use time.Local for the user's zone).
func Line(volume string, hdr *tar.Header, loc *time.Location) string {
	var sb strings.Builder
	var size string
	switch hdr.Typeflag {
	case tar.TypeChar, tar.TypeBlock:
		size = fmt.Sprintf("%d:%d", hdr.Devmajor, hdr.Devminor)
	default:
		size = fmt.Sprintf("%d", hdr.Size)
	}
	fmt.Fprintf(&sb, "%s %c%s %s %s %12s %s %s",
		volume,
		TypeChar(hdr),
		Perms(hdr.Mode),
		hdr.Uname,
		hdr.Gname,
		size,
		hdr.ModTime.In(loc).Format(timeFormat),
		hdr.Name,
	)
	switch hdr.Typeflag {
	case tar.TypeLink:
		sb.WriteString(" link to ")
		sb.WriteString(hdr.Linkname)
	case tar.TypeSymlink:
		sb.WriteString(" -> ")
		sb.WriteString(hdr.Linkname)
	}
	return sb.String()
}

// Fprint writes the listing line for hdr to w, in local time.
func Fprint(w io.Writer, volume string, hdr *tar.Header) error {
	_, err := fmt.Fprintln(w, Line(volume, hdr, time.Local))
	return err
}

// TypeChar is the `ls`-style type letter for a tar entry.
func TypeChar(hdr *tar.Header) byte {
	switch hdr.Typeflag {
	case tar.TypeReg, tar.TypeRegA, tar.TypeCont, tar.TypeGNUSparse:
		// Old tars mark directories as regular files with a trailing slash.
		if strings.HasSuffix(hdr.Name, "/") {
			return 'd'
		}
		return '-'
	case tar.TypeLink:
		return 'h'
	case tar.TypeSymlink:
		return 'l'
	case tar.TypeChar:
		return 'c'
	case tar.TypeBlock:
		return 'b'
	case tar.TypeDir:
		return 'd'
	case tar.TypeFifo:
		return 'p'
	case tar.TypeGNULongName, tar.TypeGNULongLink:
		return 'L'
	default:
		return '?'
	}
}

// Perms renders the low nine permission bits as "rwxr-xr-x".
func Perms(mode int64) string {
	const letters = "rwxrwxrwx"
	var b [9]byte
	for i := 0; i < 9; i++ {
		if mode&(1<<uint(8-i)) != 0 {
			b[i] = letters[i]
		} else {
			b[i] = '-'
		}
	}
	return string(b[:])
}
