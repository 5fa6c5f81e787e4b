// Package logging installs the process slog handler with a level that can
// be changed while running.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var level slog.LevelVar

// Setup makes a text handler writing to w the default slog logger.
func Setup(w io.Writer, lvl string) (*slog.Logger, error) {
	if err := SetLevel(lvl); err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)
	return logger, nil
}

// SetLevel changes the level of loggers built by Setup.
func SetLevel(lvl string) error {
	l, err := ParseLevel(lvl)
	if err != nil {
		return err
	}
	level.Set(l)
	return nil
}

// Level returns the current level.
func Level() slog.Level { return level.Level() }

// ParseLevel accepts debug, info, warn/warning and error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log level %q must be one of debug, info, warn, error", s)
}
