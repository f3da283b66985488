package main

import (
	"io"
	"log/slog"
)

// newLogger logs to w: human readable text on a terminal, JSON lines otherwise.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := demuxLogLevel(level)
	if err != nil {
		return nil, err
	}
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: lvl}
	if isTerminal(w) {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler), nil
}
