// Package logging builds the zerolog logger shared by every GoHub component:
// a console writer, plus a size-rotated log file when one is configured.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures the logger.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// File enables rotation into this path when non-empty.
	File string
	// Console is the human-readable sink. Nil means stdout.
	Console io.Writer
	// NoColor disables ANSI colors on the console sink.
	NoColor bool
}

// Logger is the process logger together with the file sink it writes to,
// if any. Close flushes and closes that sink.
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
}

// New builds a Logger and installs it as the zerolog global logger.
func New(opts Options) (*Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339, NoColor: opts.NoColor}}

	var file *lumberjack.Logger
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, err
		}
		file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		writers = append(writers, file)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("app", "gohub").
		Logger()

	log.Logger = logger
	return &Logger{Logger: logger, file: file}, nil
}

// Close closes the rotated log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
