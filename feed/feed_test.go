package feed

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/splitar"
	"github.com/polydawn/splitar/codec"
	"github.com/polydawn/splitar/testutil"
)

func category(err error) splitar.ErrorCategory {
	cat, _ := splitar.CategoryOf(err)
	return cat
}

func readAll(fd *Feed) []string {
	var names []string
	for {
		hdr, data, err := fd.Next()
		if err == io.EOF {
			return names
		}
		So(err, ShouldBeNil)
		_, err = io.Copy(io.Discard, data)
		So(err, ShouldBeNil)
		names = append(names, hdr.Name)
	}
}

func TestFeed(t *testing.T) {
	ctx := context.Background()
	fixture := testutil.BuildTar(
		testutil.Dir("a/"),
		testutil.File("a/f1", 300),
		testutil.Symlink("a/ln", "f1"),
	)
	Convey("Reading entries", t, func() {
		Convey("from a plain archive", func() {
			fd, err := New(ctx, bytes.NewReader(fixture))
			So(err, ShouldBeNil)
			defer fd.Close()
			So(fd.Codec(), ShouldEqual, codec.None)
			So(readAll(fd), ShouldResemble, []string{"a/", "a/f1", "a/ln"})
			So(fd.Entries(), ShouldEqual, 3)
		})
		Convey("data readers yield each entry's content", func() {
			fd, err := New(ctx, bytes.NewReader(fixture))
			So(err, ShouldBeNil)
			defer fd.Close()
			_, _, err = fd.Next()
			So(err, ShouldBeNil)
			hdr, data, err := fd.Next()
			So(err, ShouldBeNil)
			So(hdr.Size, ShouldEqual, 300)
			body, err := io.ReadAll(data)
			So(err, ShouldBeNil)
			So(len(body), ShouldEqual, 300)
		})
		Convey("from a gzipped archive", func() {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			zw.Write(fixture)
			So(zw.Close(), ShouldBeNil)

			fd, err := New(ctx, &buf)
			So(err, ShouldBeNil)
			defer fd.Close()
			So(fd.Codec(), ShouldEqual, codec.Gzip)
			So(readAll(fd), ShouldResemble, []string{"a/", "a/f1", "a/ln"})
		})
		Convey("from an empty archive", func() {
			fd, err := New(ctx, bytes.NewReader(make([]byte, 1024)))
			So(err, ShouldBeNil)
			So(readAll(fd), ShouldBeEmpty)
		})
		Convey("from zero bytes", func() {
			fd, err := New(ctx, bytes.NewReader(nil))
			So(err, ShouldBeNil)
			So(readAll(fd), ShouldBeEmpty)
		})
	})

	Convey("Bad input", t, func() {
		Convey("garbage is corrupt input", func() {
			fd, err := New(ctx, bytes.NewReader(bytes.Repeat([]byte("garbage!"), 128)))
			So(err, ShouldBeNil)
			_, _, err = fd.Next()
			So(category(err), ShouldEqual, splitar.ErrCorruptInput)
		})
		Convey("a truncated entry body ends with an unexpected EOF", func() {
			fd, err := New(ctx, bytes.NewReader(fixture[:1024+100]))
			So(err, ShouldBeNil)
			_, _, err = fd.Next()
			So(err, ShouldBeNil)
			hdr, data, err := fd.Next()
			So(err, ShouldBeNil)
			So(hdr.Name, ShouldEqual, "a/f1")
			_, err = io.ReadAll(data)
			So(err, ShouldEqual, io.ErrUnexpectedEOF)
		})
		Convey("a broken gzip header is corrupt input", func() {
			_, err := New(ctx, bytes.NewReader([]byte{0x1f, 0x8b, 0, 0}))
			So(category(err), ShouldEqual, splitar.ErrCorruptInput)
		})
	})

	Convey("Cancellation", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		fd, err := New(ctx, io.MultiReader(bytes.NewReader(fixture[:1024]), bytes.NewReader(fixture[1024:])))
		So(err, ShouldBeNil)
		cancel()
		// Whatever is already buffered may still come through; the next read of the source may not.
		for err == nil {
			_, _, err = fd.Next()
		}
		So(category(err), ShouldEqual, splitar.ErrInterrupted)
	})

	Convey("Opening paths", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			Convey("a file", func() {
				path := filepath.Join(tmpDir, "in.tar")
				testutil.WriteTarFile(path, testutil.File("x", 10))
				fd, err := Open(ctx, path, nil)
				So(err, ShouldBeNil)
				So(readAll(fd), ShouldResemble, []string{"x"})
				So(fd.Close(), ShouldBeNil)
			})
			Convey("dash means stdin", func() {
				fd, err := Open(ctx, Stdin, bytes.NewReader(fixture))
				So(err, ShouldBeNil)
				So(readAll(fd), ShouldResemble, []string{"a/", "a/f1", "a/ln"})
			})
			Convey("a missing file is an io error", func() {
				_, err := Open(ctx, filepath.Join(tmpDir, "nope.tar"), nil)
				So(category(err), ShouldEqual, splitar.ErrIO)
			})
		})
	})
}
