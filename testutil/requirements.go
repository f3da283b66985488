package testutil

import (
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

type ConveyRequirement struct {
	Name      string
	Predicate func() bool
}

/*
	Require that the tests are not running with the "short" flag enabled.
*/
var RequiresLongRun = ConveyRequirement{"run long tests", func() bool { return !testing.Short() }}

/*
	Require a POSIX shell, for tests that spawn compression commands.
*/
var RequiresShell = RequiresCommand("sh")

/*
	Require that an executable can be found on $PATH.
*/
func RequiresCommand(name string) ConveyRequirement {
	return ConveyRequirement{
		fmt.Sprintf("command %q on $PATH", name),
		func() bool { _, err := exec.LookPath(name); return err == nil },
	}
}

/*
	Wraps a GoConvey test body so that it only runs when every requirement holds.
	Otherwise a skipped placeholder is reported, listing which requirements failed.

	Arguments are the `ConveyRequirement`s followed by the body, which is
	either a `func()` or a `func(convey.C)`, in the same order as `Convey` takes them.
*/
func Requires(items ...interface{}) func(c convey.C) {
	body := items[len(items)-1]
	var unmet []string
	var names []string
	for _, it := range items[:len(items)-1] {
		req := it.(ConveyRequirement)
		names = append(names, req.Name)
		if !req.Predicate() {
			unmet = append(unmet, req.Name)
		}
	}
	if len(unmet) > 0 {
		return func(c convey.C) {
			convey.Convey("Prereqs: "+strings.Join(names, ", "), nil)
			c.Printf("\nunmet requirements: %s\n", strings.Join(unmet, ", "))
		}
	}
	return func(c convey.C) {
		switch body := body.(type) {
		case func():
			body()
		case func(c convey.C):
			body(c)
		default:
			panic(fmt.Sprintf("testutil.Requires: unsupported test body %T", body))
		}
	}
}
