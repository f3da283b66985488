package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/polydawn/splitar"
	"github.com/polydawn/splitar/codec"
	"github.com/polydawn/splitar/testutil"
)

// isolate keeps the operator's own config and environment out of the test.
func isolate(t *testing.T, tmpDir string) {
	t.Setenv("SPLITAR_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("SPLITAR_MAX_SIZE", "")
	t.Setenv("SPLITAR_LOG", "")
}

func run(args ...string) (splitar.ExitCode, string, string) {
	return runWithStdin(&bytes.Buffer{}, args...)
}

func runWithStdin(stdin *bytes.Buffer, args ...string) (splitar.ExitCode, string, string) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	exitCode := Main(context.Background(), append([]string{"splitar"}, args...), stdin, stdout, stderr)
	return exitCode, stdout.String(), stderr.String()
}

func parseResult(stdout string) splitar.Result {
	var result splitar.Result
	err := refmt.UnmarshalAtlased(json.DecodeOptions{}, []byte(stdout), &result, splitar.Atlas)
	So(err, ShouldBeNil)
	return result
}

var smallTree = []testutil.Entry{
	testutil.Dir("a/"),
	testutil.File("a/f1", 300),
	testutil.File("a/f2", 300),
}

func TestWithoutArgs(t *testing.T) {
	Convey("splitar: usage errors go to stderr", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			isolate(t, tmpDir)
			exitCode, stdout, stderr := run()
			So(stdout, ShouldBeBlank)
			So(stderr, ShouldContainSubstring, "error: required argument")
			So(exitCode, ShouldEqual, splitar.ExitFailure)
		})
	})
	Convey("splitar: help goes to stderr", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			isolate(t, tmpDir)
			exitCode, stdout, stderr := run("--help")
			So(stdout, ShouldBeBlank)
			So(stderr, ShouldContainSubstring, "usage: splitar")
			So(stderr, ShouldContainSubstring, "--recreate-dirs")
			So(exitCode, ShouldEqual, splitar.ExitSuccess)
		})
	})
}

func TestSplit(t *testing.T) {
	Convey("splitar: splitting an archive", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			isolate(t, tmpDir)
			input := filepath.Join(tmpDir, "input.tar")
			testutil.WriteTarFile(input, smallTree...)
			outDir := filepath.Join(tmpDir, "out")
			So(os.Mkdir(outDir, 0755), ShouldBeNil)
			prefix := filepath.Join(outDir, "output.tar.")

			Convey("reports each volume as json", func() {
				exitCode, stdout, stderr := run("-S", "3000", "-d", "--format", "json", input, prefix)
				So(stderr, ShouldBeBlank)
				So(exitCode, ShouldEqual, splitar.ExitSuccess)
				result := parseResult(stdout)
				So(result.Error, ShouldBeNil)
				So(result.Volumes, ShouldResemble, []splitar.VolumeInfo{
					{Index: 0, Path: prefix + "00000", Size: 2560, Entries: 2},
					{Index: 1, Path: prefix + "00001", Size: 2560, Entries: 1, Reinjected: 1},
				})
				So(testutil.Names(testutil.ShouldReadTarFile(prefix+"00001")), ShouldResemble, []string{"a/", "a/f2"})
			})
			Convey("prints nothing to stdout by default", func() {
				exitCode, stdout, _ := run("--max-size", "100K", input, prefix)
				So(exitCode, ShouldEqual, splitar.ExitSuccess)
				So(stdout, ShouldBeBlank)
				So(testutil.ShouldListDir(outDir), ShouldResemble, []string{"output.tar.00000"})
			})
			Convey("reads stdin for '-'", func() {
				stdin := bytes.NewBuffer(testutil.BuildTar(smallTree...))
				exitCode, _, stderr := runWithStdin(stdin, "-S", "3000", "-", prefix)
				So(stderr, ShouldBeBlank)
				So(exitCode, ShouldEqual, splitar.ExitSuccess)
				So(testutil.ShouldListDir(outDir), ShouldResemble, []string{"output.tar.00000", "output.tar.00001"})
			})
			Convey("reads stdin for '-' after flags are ended", func() {
				stdin := bytes.NewBuffer(testutil.BuildTar(smallTree...))
				exitCode, _, stderr := runWithStdin(stdin, "-d", "-S", "3000", "--", "-", prefix)
				So(stderr, ShouldBeBlank)
				So(exitCode, ShouldEqual, splitar.ExitSuccess)
				So(testutil.Names(testutil.ShouldReadTarFile(prefix+"00001")), ShouldResemble, []string{"a/", "a/f2"})
			})
			Convey("lists entries to stderr when verbose", func() {
				exitCode, stdout, stderr := run("-v", "-S", "100K", input, prefix)
				So(exitCode, ShouldEqual, splitar.ExitSuccess)
				So(stdout, ShouldBeBlank)
				So(stderr, ShouldContainSubstring, "00000 drwxr-xr-x user group            0 ")
				So(stderr, ShouldContainSubstring, "00000 -rw-r--r-- user group          300 ")
				So(stderr, ShouldContainSubstring, " a/f2\n")
			})
			Convey("honours the suffix length", func() {
				exitCode, _, _ := run("-S", "100K", "-a", "2", input, prefix)
				So(exitCode, ShouldEqual, splitar.ExitSuccess)
				So(testutil.ShouldListDir(outDir), ShouldResemble, []string{"output.tar.00"})
			})
			Convey("compresses in-process with a codec", func() {
				exitCode, _, _ := run("-S", "3000", "--codec", "zstd", input, prefix)
				So(exitCode, ShouldEqual, splitar.ExitSuccess)
				f, err := os.Open(prefix + "00000")
				So(err, ShouldBeNil)
				defer f.Close()
				name, _, err := codec.Detect(f)
				So(err, ShouldBeNil)
				So(name, ShouldEqual, codec.Zstd)
			})
			Convey("takes the size from the environment", func() {
				t.Setenv("SPLITAR_MAX_SIZE", "3000")
				exitCode, _, _ := run(input, prefix)
				So(exitCode, ShouldEqual, splitar.ExitSuccess)
				So(testutil.ShouldListDir(outDir), ShouldHaveLength, 2)
			})
			Convey("takes defaults from the config file", func() {
				cfg := filepath.Join(tmpDir, "splitar.yaml")
				So(os.WriteFile(cfg, []byte("max_size: \"3000\"\nrecreate_dirs: true\n"), 0644), ShouldBeNil)
				t.Setenv("SPLITAR_CONFIG", cfg)
				exitCode, _, _ := run(input, prefix)
				So(exitCode, ShouldEqual, splitar.ExitSuccess)
				So(testutil.Names(testutil.ShouldReadTarFile(prefix+"00001")), ShouldResemble, []string{"a/", "a/f2"})

				Convey("but flags still win", func() {
					So(os.RemoveAll(outDir), ShouldBeNil)
					So(os.Mkdir(outDir, 0755), ShouldBeNil)
					exitCode, _, _ := run("-S", "100K", input, prefix)
					So(exitCode, ShouldEqual, splitar.ExitSuccess)
					So(testutil.ShouldListDir(outDir), ShouldHaveLength, 1)
				})
			})

			Convey("fails without a size", func() {
				exitCode, _, stderr := run(input, prefix)
				So(exitCode, ShouldEqual, splitar.ExitFailure)
				So(stderr, ShouldContainSubstring, "error: required flag --max-size")
			})
			Convey("fails with a bad size", func() {
				exitCode, _, stderr := run("-S", "huge", input, prefix)
				So(exitCode, ShouldEqual, splitar.ExitFailure)
				So(stderr, ShouldContainSubstring, "invalid size")
			})
			Convey("fails on a missing input", func() {
				exitCode, _, stderr := run("-S", "100K", filepath.Join(tmpDir, "nope.tar"), prefix)
				So(exitCode, ShouldEqual, splitar.ExitFailure)
				So(stderr, ShouldContainSubstring, "error: failed to open input file")
				So(testutil.ShouldListDir(outDir), ShouldBeEmpty)
			})
			Convey("exits 3 for an entry too large for any volume", func() {
				big := filepath.Join(tmpDir, "big.tar")
				testutil.WriteTarFile(big, testutil.File("small", 10), testutil.File("big", 2000))
				exitCode, stdout, stderr := run("-S", "2K", "--fail-on-large-file", "--format", "json", big, prefix)
				So(exitCode, ShouldEqual, splitar.ExitFileTooLarge)
				So(stderr, ShouldContainSubstring, "error: file too large: big")
				result := parseResult(stdout)
				So(result.Error, ShouldNotBeNil)
				So(result.Error.Category, ShouldEqual, string(splitar.ErrFileTooLarge))
				So(result.Volumes, ShouldBeEmpty)
				So(testutil.ShouldListDir(outDir), ShouldBeEmpty)
			})
		})
	})

	Convey("splitar: piping volumes through a command", t,
		testutil.Requires(testutil.RequiresShell, testutil.RequiresCommand("gzip"), func() {
			testutil.WithTmpdir(func(tmpDir string) {
				isolate(t, tmpDir)
				input := filepath.Join(tmpDir, "input.tar")
				testutil.WriteTarFile(input, smallTree...)
				prefix := filepath.Join(tmpDir, "output.tar.gz.")

				exitCode, _, stderr := run("-S", "3000", "-d", "--shell", "sh", "--compress", "gzip -c", input, prefix)
				So(stderr, ShouldBeBlank)
				So(exitCode, ShouldEqual, splitar.ExitSuccess)
				for _, name := range []string{"00000", "00001"} {
					f, err := os.Open(prefix + name)
					So(err, ShouldBeNil)
					_, r, closer, err := codec.Decompress(f)
					So(err, ShouldBeNil)
					So(testutil.ShouldReadTar(r), ShouldHaveLength, 2)
					closer.Close()
					f.Close()
				}

				Convey("and fails when the command does", func() {
					exitCode, _, stderr := run("-S", "3000", "--shell", "sh", "--compress", "cat >/dev/null; exit 7", input, prefix+"bad.")
					So(exitCode, ShouldEqual, splitar.ExitFailure)
					So(stderr, ShouldContainSubstring, "error: subprocess exited with error: 7")
				})
			})
		}),
	)
}
