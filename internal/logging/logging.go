// Package logging wires the fleet supervisor's zerolog setup: a console
// writer for operators at the terminal and a rotating JSON sink under
// out/logs/ for later inspection.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process-wide logger.
type Options struct {
	// Dir is the directory rotating JSON logs are written under (out/logs/).
	Dir string

	// Level is the minimum level emitted, e.g. "info", "debug".
	Level string

	// RunID is attached to every log line so separate supervisor runs
	// against the same out/ directory can be told apart after the fact.
	RunID string

	// MaxSizeMB, MaxBackups, MaxAgeDays configure lumberjack rotation.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a zerolog.Logger that writes human-readable output to stdout
// and structured JSON to a rotating file under opts.Dir.
func New(opts Options) (zerolog.Logger, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return zerolog.Logger{}, err
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, "fleetd.log"),
		MaxSize:    maxOrDefault(opts.MaxSizeMB, 100),
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	var w io.Writer = zerolog.MultiLevelWriter(console, fileSink)

	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("run_id", opts.RunID).
		Logger()

	return logger, nil
}

func maxOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
