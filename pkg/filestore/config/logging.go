package config

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// NewLogger returns a slog logger backed by a charmbracelet handler.
// Unknown levels fall back to info. Production environments get JSON output.
func NewLogger(w io.Writer, level, environment string) *slog.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}

	opts := log.Options{
		Level:           lvl,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    lvl == log.DebugLevel,
	}
	if environment == "production" {
		opts.Formatter = log.JSONFormatter
	}

	return slog.New(log.NewWithOptions(w, opts))
}

// SetupLogger installs the configured logger as the slog default and returns it
func (c *ServerConfig) SetupLogger() *slog.Logger {
	logger := NewLogger(os.Stdout, c.LogLevel, c.Environment)
	slog.SetDefault(logger)
	return logger
}
