package main

import (
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	"golang.org/x/term"

	"github.com/polydawn/splitar"
)

func SerializeResult(format string, volumes []splitar.VolumeInfo, resultErr error, stdout io.Writer, stderr io.Writer) {
	if volumes == nil {
		volumes = []splitar.VolumeInfo{}
	}
	result := &splitar.Result{
		Volumes: volumes,
	}
	result.SetError(resultErr)
	switch format {
	case FmtJson:
		marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, stdout, splitar.Atlas)
		err := marshaller.Marshal(result)
		if err != nil {
			panic(err)
		}
		fmt.Fprintln(stdout)
	case FmtNone:
	default:
		panic(fmt.Errorf("splitar: invalid format %s", format))
	}
	if resultErr != nil {
		PrintError(stderr, resultErr)
	}
}

/*
	PrintError writes a single "error: ..." line.
	The prefix is bold red when w is a terminal.
*/
func PrintError(w io.Writer, err error) {
	profile := termenv.Ascii
	if isTerminal(w) {
		profile = termenv.ANSI
	}
	out := termenv.NewOutput(w, termenv.WithProfile(profile))
	prefix := out.String("error:").Foreground(out.Color("1")).Bold()
	fmt.Fprintf(w, "%s %s\n", prefix, err)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
