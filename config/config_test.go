package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/splitar"
	"github.com/polydawn/splitar/testutil"
)

func category(err error) splitar.ErrorCategory {
	cat, _ := splitar.CategoryOf(err)
	return cat
}

func TestParseSize(t *testing.T) {
	Convey("ParseSize suite:", t, func() {
		for _, tr := range []struct {
			in  string
			out int64
		}{
			{"512", 512},
			{"100K", 100 * 1024},
			{"100k", 100 * 1024},
			{"35M", 35 * 1024 * 1024},
			{"1G", 1 << 30},
			{"2KiB", 2048},
		} {
			Convey(tr.in, func() {
				n, err := ParseSize(tr.in)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, tr.out)
			})
		}
		for _, bad := range []string{"", "abc", "0", "-5K"} {
			Convey("rejects "+bad, func() {
				_, err := ParseSize(bad)
				So(category(err), ShouldEqual, splitar.ErrUsage)
			})
		}
	})
}

func TestLoad(t *testing.T) {
	Convey("Loading a config file", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			pth := filepath.Join(tmpDir, "config.yaml")
			write := func(body string) {
				So(os.WriteFile(pth, []byte(body), 0644), ShouldBeNil)
			}

			Convey("fills what it names and defaults the rest", func() {
				write("max_size: 35M\nrecreate_dirs: true\ncodec: zstd\n")
				d, err := Load(pth)
				So(err, ShouldBeNil)
				So(d.MaxSize, ShouldEqual, "35M")
				So(d.RecreateDirs, ShouldBeTrue)
				So(d.FailOnLargeFile, ShouldBeFalse)
				So(d.Codec, ShouldEqual, "zstd")
				So(d.SuffixLength, ShouldEqual, DefaultSuffixLength)
				So(d.Format, ShouldEqual, DefaultFormat)
				So(d.LogLevel, ShouldEqual, DefaultLogLevel)
				So(d.Shell, ShouldNotBeBlank)
			})
			Convey("an empty file is all defaults", func() {
				write("")
				d, err := Load(pth)
				So(err, ShouldBeNil)
				So(d.MaxSize, ShouldEqual, "")
				So(d.Codec, ShouldEqual, DefaultCodec)
			})
			Convey("rejects malformed yaml", func() {
				write("max_size: [1, 2\n")
				_, err := Load(pth)
				So(category(err), ShouldEqual, splitar.ErrUsage)
			})
			Convey("rejects a bad size", func() {
				write("max_size: lots\n")
				_, err := Load(pth)
				So(category(err), ShouldEqual, splitar.ErrUsage)
			})
			Convey("rejects an unknown codec", func() {
				write("codec: zip\n")
				_, err := Load(pth)
				So(category(err), ShouldEqual, splitar.ErrUsage)
			})
			Convey("rejects an unknown log level", func() {
				write("log_level: chatty\n")
				_, err := Load(pth)
				So(category(err), ShouldEqual, splitar.ErrUsage)
			})
			Convey("a missing file is a usage error", func() {
				_, err := Load(filepath.Join(tmpDir, "nope.yaml"))
				So(category(err), ShouldEqual, splitar.ErrUsage)
			})
		})
	})
}

func TestLoadDefaults(t *testing.T) {
	Convey("Locating the config file", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			Convey("with nothing configured, everything is built in", func() {
				t.Setenv("SPLITAR_CONFIG", "")
				t.Setenv("XDG_CONFIG_HOME", tmpDir)
				d, err := LoadDefaults()
				So(err, ShouldBeNil)
				So(d.SuffixLength, ShouldEqual, DefaultSuffixLength)
				So(d.MaxSize, ShouldEqual, "")
			})
			Convey("under XDG_CONFIG_HOME", func() {
				t.Setenv("SPLITAR_CONFIG", "")
				t.Setenv("XDG_CONFIG_HOME", tmpDir)
				So(os.MkdirAll(filepath.Join(tmpDir, "splitar"), 0755), ShouldBeNil)
				So(os.WriteFile(filepath.Join(tmpDir, "splitar", "config.yaml"), []byte("suffix_length: 3\n"), 0644), ShouldBeNil)
				d, err := LoadDefaults()
				So(err, ShouldBeNil)
				So(d.SuffixLength, ShouldEqual, 3)
			})
			Convey("named explicitly, it has to exist", func() {
				t.Setenv("SPLITAR_CONFIG", filepath.Join(tmpDir, "nope.yaml"))
				_, err := LoadDefaults()
				So(category(err), ShouldEqual, splitar.ErrUsage)
			})
		})
	})
	Convey("The shell", t, func() {
		Convey("comes from SHELL", func() {
			t.Setenv("SHELL", "/bin/zsh")
			So(GetShell(), ShouldEqual, "/bin/zsh")
		})
		Convey("defaults to sh", func() {
			t.Setenv("SHELL", "")
			So(GetShell(), ShouldEqual, DefaultShell)
		})
	})
}
