// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLevel accepts debug, info, warn or error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// New returns a tint-backed logger writing to w. An unknown level falls back
// to info and is reported through the new logger.
func New(w io.Writer, level string, noColor bool) *slog.Logger {
	lvl, err := ParseLevel(level)
	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		AddSource:  lvl <= slog.LevelDebug,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	}))
	if err != nil {
		logger.Warn("Falling back to info level", "err", err)
	}
	return logger
}
