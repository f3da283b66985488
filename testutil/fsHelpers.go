package testutil

import (
	"os"
	"sort"

	"github.com/smartystreets/goconvey/convey"
)

/*
	Runs fn with a fresh temp dir, and removes it afterwards.
*/
func WithTmpdir(fn func(tmpDir string)) {
	tmpDir, err := os.MkdirTemp("", "splitar-test-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)
	fn(tmpDir)
}

// ShouldListDir returns the sorted names in dir, asserting the read succeeds.
func ShouldListDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	convey.So(err, convey.ShouldBeNil)
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		names = append(names, ent.Name())
	}
	sort.Strings(names)
	return names
}
