package testutil

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/smartystreets/goconvey/convey"
)

// FixtureMtime is stamped on every fixture entry so archives are reproducible.
var FixtureMtime = time.Date(2015, 05, 30, 19, 53, 35, 0, time.UTC)

// A tar entry as the tests care about it.
type Entry struct {
	Name     string
	Type     byte
	Body     string
	Linkname string
}

func Dir(name string) Entry { return Entry{Name: name, Type: tar.TypeDir} }

// File makes a regular file entry with a body of size '0' bytes.
func File(name string, size int) Entry {
	return Entry{Name: name, Type: tar.TypeReg, Body: strings.Repeat("0", size)}
}

func Symlink(name, target string) Entry {
	return Entry{Name: name, Type: tar.TypeSymlink, Linkname: target}
}

// BuildTar serializes entries as a tar archive, in order.
func BuildTar(entries ...Entry) []byte {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, ent := range entries {
		hdr := &tar.Header{
			Name:     ent.Name,
			Typeflag: ent.Type,
			Mode:     0644,
			Size:     int64(len(ent.Body)),
			Linkname: ent.Linkname,
			Uname:    "user",
			Gname:    "group",
			ModTime:  FixtureMtime,
			Format:   tar.FormatGNU,
		}
		if ent.Type == tar.TypeDir {
			hdr.Mode = 0755
		}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if _, err := io.WriteString(tw, ent.Body); err != nil {
			panic(err)
		}
	}
	if err := tw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// WriteTarFile builds a tar archive and writes it to path.
func WriteTarFile(path string, entries ...Entry) {
	if err := os.WriteFile(path, BuildTar(entries...), 0644); err != nil {
		panic(err)
	}
}

// ShouldReadTar parses a complete archive, asserting it's valid.
func ShouldReadTar(r io.Reader) []Entry {
	var result []Entry
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return result
		}
		convey.So(err, convey.ShouldBeNil)
		body, err := io.ReadAll(tr)
		convey.So(err, convey.ShouldBeNil)
		result = append(result, Entry{
			Name:     hdr.Name,
			Type:     hdr.Typeflag,
			Body:     string(body),
			Linkname: hdr.Linkname,
		})
	}
}

func ShouldReadTarFile(path string) []Entry {
	f, err := os.Open(path)
	convey.So(err, convey.ShouldBeNil)
	defer f.Close()
	return ShouldReadTar(f)
}

func Names(entries []Entry) []string {
	names := make([]string, len(entries))
	for i, ent := range entries {
		names[i] = ent.Name
	}
	return names
}
