package main

import (
	"log/slog"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/splitar"
	"github.com/polydawn/splitar/config"
)

func demuxLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, Errorf(splitar.ErrUsage, "unsupported log level %q (valid options are %v)", level, config.LogLevels)
	}
}

func usageError(msg string) error {
	return Errorf(splitar.ErrUsage, "%s", msg)
}
