// Package logger builds the daemon's zerolog logger from its logging config.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/abilityd/internal/config"
)

// Logger is the process logger. It owns the log file when one is configured.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New builds a logger from cfg, tags every line with service and installs
// the result as the global zerolog logger. Console output goes to stderr so
// that command output on stdout stays machine readable.
func New(cfg config.LoggingConfig, service string) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	l := &Logger{}

	sinks := make([]io.Writer, 0, 2)
	if cfg.Console {
		sinks = append(sinks, consoleSink(cfg.Pretty))
	}
	if cfg.File != "" {
		if l.file, err = openLogFile(cfg.File); err != nil {
			return nil, err
		}
		sinks = append(sinks, l.file)
	}

	var out io.Writer = io.Discard
	if len(sinks) > 0 {
		out = zerolog.MultiLevelWriter(sinks...)
	}
	if cfg.Redaction {
		out = NewRedactor().Wrap(out)
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	l.Logger = ctx.Logger()

	log.Logger = l.Logger
	return l, nil
}

func consoleSink(pretty bool) io.Writer {
	if !pretty {
		return os.Stderr
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
