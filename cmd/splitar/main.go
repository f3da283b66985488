package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/polydawn/splitar"
	"github.com/polydawn/splitar/codec"
	"github.com/polydawn/splitar/config"
	"github.com/polydawn/splitar/feed"
	"github.com/polydawn/splitar/splitter"
	"github.com/polydawn/splitar/volume"
)

/*
	Output serialization formats
*/
const (
	FmtJson = "json"
	FmtNone = "none"
)

type baseCLI struct {
	Input           string // Input archive path, or "-" for stdin
	OutputPrefix    string // Volumes are written to OutputPrefix + zero-padded index
	MaxSize         string // Volume size limit, eg. "100K"
	FailOnLargeFile bool   // Abort on entries that can't fit an empty volume
	Verbose         bool   // List every entry written to stderr
	RecreateDirs    bool   // Re-emit parent directories in later volumes
	Compress        string // Shell command to pipe each volume through
	Codec           string // In-process compression for each volume
	SuffixLength    int    // Width of the volume index suffix
	Shell           string // Shell used for Compress
	Format          string // Result output format
	LogLevel        string // Log verbosity
}

func configure(cli *baseCLI, app *kingpin.Application, d *config.Defaults) {
	app.Arg("input", "Input tar archive; '-' reads stdin").
		Required().
		StringVar(&cli.Input)
	app.Arg("output-prefix", "Prefix of output volume paths; the volume index is appended").
		Required().
		StringVar(&cli.OutputPrefix)

	maxSize := app.Flag("max-size", "Maximum volume size, with binary units (eg. 100K, 35M, 1G)").
		Short('S').
		Envar("SPLITAR_MAX_SIZE")
	if d.MaxSize != "" {
		maxSize.Default(d.MaxSize)
	}
	maxSize.StringVar(&cli.MaxSize)
	app.Flag("fail-on-large-file", "Fail when an entry can't fit into a volume on its own").
		Envar("SPLITAR_FAIL_ON_LARGE_FILE").
		Default(strconv.FormatBool(d.FailOnLargeFile)).
		BoolVar(&cli.FailOnLargeFile)
	app.Flag("verbose", "List each entry to stderr as it's written").
		Short('v').
		Envar("SPLITAR_VERBOSE").
		Default(strconv.FormatBool(d.Verbose)).
		BoolVar(&cli.Verbose)
	app.Flag("recreate-dirs", "Recreate parent directories at the start of each volume that needs them").
		Short('d').
		Envar("SPLITAR_RECREATE_DIRS").
		Default(strconv.FormatBool(d.RecreateDirs)).
		BoolVar(&cli.RecreateDirs)
	app.Flag("compress", "Shell command each volume is piped through, eg. 'gzip -c'").
		Envar("SPLITAR_COMPRESS").
		Default(d.Compress).
		StringVar(&cli.Compress)
	app.Flag("codec", "In-process compression for each volume [none, gzip, zstd, lz4]").
		Envar("SPLITAR_CODEC").
		Default(d.Codec).
		EnumVar(&cli.Codec,
			string(codec.None), string(codec.Gzip), string(codec.Zstd), string(codec.Lz4))
	app.Flag("suffix-length", "Number of digits in the volume index suffix").
		Short('a').
		Envar("SPLITAR_SUFFIX_LENGTH").
		Default(strconv.Itoa(d.SuffixLength)).
		IntVar(&cli.SuffixLength)
	app.Flag("shell", "Shell used to run the compression command").
		Envar("SPLITAR_SHELL").
		Default(d.Shell).
		StringVar(&cli.Shell)
	app.Flag("format", "Result output format [none, json]").
		Envar("SPLITAR_FORMAT").
		Default(d.Format).
		EnumVar(&cli.Format, FmtNone, FmtJson)
	app.Flag("log-level", "Log verbosity [debug, info, warn, error]").
		Envar("SPLITAR_LOG").
		Default(d.LogLevel).
		EnumVar(&cli.LogLevel, config.LogLevels...)
}

// kingpin lexes a lone "-" as an empty short flag, so it's swapped for this
// placeholder while parsing and swapped back after.
const dashPlaceholder = "\x00-"

func shieldDashes(args []string) []string {
	shielded := make([]string, len(args))
	for i, arg := range args {
		if arg == feed.Stdin {
			arg = dashPlaceholder
		}
		shielded[i] = arg
	}
	return shielded
}

func (cli *baseCLI) unshieldDashes() {
	for _, s := range []*string{&cli.Input, &cli.OutputPrefix, &cli.MaxSize, &cli.Compress, &cli.Shell} {
		if *s == dashPlaceholder {
			*s = feed.Stdin
		}
	}
}

/*
	Blocks until a sigint is received or ctx is done, then calls cancel.
*/
func CancelOnInterrupt(ctx context.Context, cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	defer signal.Stop(signalChan)
	select {
	case <-signalChan:
		cancel()
	case <-ctx.Done():
	}
}

func main() {
	ctx := context.Background()
	exitCode := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(int(exitCode))
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) splitar.ExitCode {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go CancelOnInterrupt(ctx, cancel)

	defaults, err := config.LoadDefaults()
	if err != nil {
		PrintError(stderr, err)
		return splitar.ExitCodeFor(err)
	}

	cli := baseCLI{}

	app := kingpin.New("splitar", "Split a tar archive into a series of size-bounded volumes")
	app.HelpFlag.Short('h')

	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	configure(&cli, app, defaults)

	var (
		terminated bool
		termStatus int
	)
	app.Terminate(func(status int) {
		terminated, termStatus = true, status
	})
	_, err = app.Parse(shieldDashes(args[1:]))
	cli.unshieldDashes()
	if terminated {
		return splitar.ExitCode(termStatus)
	}
	if err != nil {
		PrintError(stderr, usageError(err.Error()))
		fmt.Fprintln(stderr, "try 'splitar --help' for usage")
		return splitar.CategoryExitCode(splitar.ErrUsage)
	}

	volumes, err := execute(ctx, cli, stdin, stderr)
	SerializeResult(cli.Format, volumes, err, stdout, stderr)
	return splitar.ExitCodeFor(err)
}

func execute(ctx context.Context, cli baseCLI, stdin io.Reader, stderr io.Writer) ([]splitar.VolumeInfo, error) {
	logger, err := newLogger(stderr, cli.LogLevel)
	if err != nil {
		return nil, err
	}
	if cli.MaxSize == "" {
		return nil, usageError("required flag --max-size not provided")
	}
	maxSize, err := config.ParseSize(cli.MaxSize)
	if err != nil {
		return nil, err
	}
	codecName, err := codec.Parse(cli.Codec)
	if err != nil {
		return nil, err
	}
	if cli.SuffixLength <= 0 {
		return nil, usageError("suffix length must be positive")
	}

	opts := splitter.Options{
		MaxSize:         maxSize,
		FailOnLargeFile: cli.FailOnLargeFile,
		RecreateDirs:    cli.RecreateDirs,
		Volume: volume.Config{
			OutputPrefix: cli.OutputPrefix,
			SuffixLength: cli.SuffixLength,
			Compress:     cli.Compress,
			Shell:        cli.Shell,
			Codec:        codecName,
			Stderr:       stderr,
			Logger:       logger,
		},
		Logger: logger,
	}
	if cli.Verbose {
		opts.Volume.Listing = stderr
	}
	logger.Debug("options",
		"input", cli.Input,
		"output_prefix", cli.OutputPrefix,
		"max_size", maxSize,
		"recreate_dirs", cli.RecreateDirs,
		"fail_on_large_file", cli.FailOnLargeFile,
		"compress", cli.Compress,
		"codec", codecName,
	)

	fd, err := feed.Open(ctx, cli.Input, stdin)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	if fd.Codec() != codec.None {
		logger.Info("decompressing input", "codec", fd.Codec())
	}
	return splitter.Run(ctx, fd, opts)
}
