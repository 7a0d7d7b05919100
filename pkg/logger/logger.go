// Package logger wraps zerolog with the level/format/output knobs exposed in config.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is a leveled zerolog logger shared by every component of the server.
type Logger struct {
	logger zerolog.Logger
}

// New builds the process logger. An unknown level falls back to info and an
// unusable output falls back to stderr, so a bad logging section never stops
// the server from starting.
func New(level, format, output string) *Logger {
	lvl, levelErr := ParseLevel(level)

	writer, outputErr := openOutput(output)
	if format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	}

	l := &Logger{
		logger: zerolog.New(writer).Level(lvl).With().Timestamp().Caller().Logger(),
	}
	if levelErr != nil {
		l.Warn().Err(levelErr).Msg("Falling back to info level")
	}
	if outputErr != nil {
		l.Warn().Err(outputErr).Msg("Falling back to stderr")
	}
	return l
}

// NewNop returns a logger that discards everything. Handy in tests.
func NewNop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// ParseLevel maps a config level name to a zerolog level. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch name := strings.ToLower(strings.TrimSpace(level)); name {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	default:
		lvl, err := zerolog.ParseLevel(name)
		if err != nil || lvl == zerolog.NoLevel {
			return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
		}
		return lvl, nil
	}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return os.Stderr, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

// Level reports the minimum level this logger writes.
func (l *Logger) Level() zerolog.Level {
	return l.logger.GetLevel()
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", name).Logger()}
}

// Debug starts a debug event.
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info starts an info event.
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn starts a warning event.
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error starts an error event.
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// Fatal starts an event that exits the process once sent.
func (l *Logger) Fatal() *zerolog.Event {
	return l.logger.Fatal()
}
