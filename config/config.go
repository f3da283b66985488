/*
	Helpers for loading contextual config.

	Config for splitar means "the operator's standing preferences": a default
	volume size, a favourite compression command, and so on.  These live in an
	optional YAML file and are only ever used as defaults for command line flags;
	an explicit flag (or its environment variable) always wins.
*/
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/docker/go-units"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/yaml.v3"

	"github.com/polydawn/splitar"
	"github.com/polydawn/splitar/codec"
)

const (
	DefaultSuffixLength = 5
	DefaultShell        = "/bin/sh"
	DefaultCodec        = "none"
	DefaultFormat       = "none"
	DefaultLogLevel     = "warn"
)

var (
	Formats   = []string{"none", "json"}
	LogLevels = []string{"debug", "info", "warn", "error"}
)

// Defaults holds the values the config file may supply for command line flags.
type Defaults struct {
	MaxSize         string `yaml:"max_size"`
	FailOnLargeFile bool   `yaml:"fail_on_large_file"`
	RecreateDirs    bool   `yaml:"recreate_dirs"`
	Verbose         bool   `yaml:"verbose"`
	Compress        string `yaml:"compress"`
	Codec           string `yaml:"codec"`
	SuffixLength    int    `yaml:"suffix_length"`
	Shell           string `yaml:"shell"`
	Format          string `yaml:"format"`
	LogLevel        string `yaml:"log_level"`
}

/*
	Return the path of the config file.

	The default value is `"$XDG_CONFIG_HOME/splitar/config.yaml"`,
	falling back to `"$HOME/.config/splitar/config.yaml"`;
	this can be overriden by the `SPLITAR_CONFIG` environment variable.

	The second return is true when the path was chosen explicitly,
	in which case it's an error for the file to be missing.
*/
func GetConfigPath() (string, bool) {
	if pth := os.Getenv("SPLITAR_CONFIG"); pth != "" {
		return pth, true
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "splitar", "config.yaml"), false
}

/*
	Return the shell used to run compression commands.

	The default value is `"/bin/sh"`;
	this can be overriden by the `SHELL` environment variable.
*/
func GetShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return DefaultShell
}

/*
	Load the defaults from the config file, if there is one.

	May return errors of category:

	  - `splitar.ErrUsage` -- if the file can't be parsed, has invalid values,
	    or was named by `SPLITAR_CONFIG` and doesn't exist
	  - `splitar.ErrIO` -- if the file exists but can't be read
*/
func LoadDefaults() (*Defaults, error) {
	pth, explicit := GetConfigPath()
	if pth == "" {
		d := &Defaults{}
		d.Normalize()
		return d, nil
	}
	if _, err := os.Stat(pth); errors.Is(err, fs.ErrNotExist) && !explicit {
		d := &Defaults{}
		d.Normalize()
		return d, nil
	}
	return Load(pth)
}

// Load reads defaults from the YAML file at pth, and normalizes them.
func Load(pth string) (_ *Defaults, err error) {
	defer RequireErrorHasCategory(&err, splitar.ErrorCategory(""))
	body, err := os.ReadFile(pth)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Errorf(splitar.ErrUsage, "config file %q does not exist", pth)
		}
		return nil, Errorf(splitar.ErrIO, "failed to read config file %q: %s", pth, err)
	}
	d := &Defaults{}
	if err := yaml.Unmarshal(body, d); err != nil {
		return nil, Errorf(splitar.ErrUsage, "invalid config file %q: %s", pth, err)
	}
	d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, Errorf(splitar.ErrUsage, "invalid config file %q: %s", pth, err)
	}
	return d, nil
}

// Normalize fills blank fields with built-in defaults.
func (d *Defaults) Normalize() {
	d.MaxSize = strings.TrimSpace(d.MaxSize)
	if d.SuffixLength <= 0 {
		d.SuffixLength = DefaultSuffixLength
	}
	if strings.TrimSpace(d.Shell) == "" {
		d.Shell = GetShell()
	}
	if d.Codec == "" {
		d.Codec = DefaultCodec
	}
	if d.Format == "" {
		d.Format = DefaultFormat
	}
	if d.LogLevel == "" {
		d.LogLevel = DefaultLogLevel
	}
}

// Validate checks the values that can be checked without the rest of the command line.
func (d *Defaults) Validate() error {
	if d.MaxSize != "" {
		if _, err := ParseSize(d.MaxSize); err != nil {
			return err
		}
	}
	if _, err := codec.Parse(d.Codec); err != nil {
		return err
	}
	if !slices.Contains(Formats, d.Format) {
		return Errorf(splitar.ErrUsage, "unsupported format %q (valid options are %v)", d.Format, Formats)
	}
	if !slices.Contains(LogLevels, d.LogLevel) {
		return Errorf(splitar.ErrUsage, "unsupported log level %q (valid options are %v)", d.LogLevel, LogLevels)
	}
	return nil
}

/*
	ParseSize parses a human readable size with binary units:
	"100K" is 102400 bytes, "35M" is 36700160, and a bare number is bytes.

	May return errors of category:

	  - `splitar.ErrUsage` -- if the string isn't a size, or isn't positive
*/
func ParseSize(s string) (int64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, Errorf(splitar.ErrUsage, "invalid size %q: %s", s, err)
	}
	if n <= 0 {
		return 0, Errorf(splitar.ErrUsage, "invalid size %q: must be positive", s)
	}
	return n, nil
}
