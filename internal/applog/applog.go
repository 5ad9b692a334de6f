// Package applog builds the operator's zerolog logger: colorized
// console output on an interactive terminal, plain JSON otherwise, with
// an optional rotating file sink via lumberjack — the same combination
// the blockless AVS tooling wires up for its own CLI.
package applog

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	Level      string // zerolog level name: "debug", "info", "warn", "error"
	File       string // optional rotating log file path; empty disables file logging
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a zerolog.Logger per cfg.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	writers := []io.Writer{consoleWriter()}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		})
	}

	return zerolog.New(io.MultiWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func consoleWriter() io.Writer {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return zerolog.ConsoleWriter{Out: colorable.NewColorableStdout()}
	}
	return os.Stdout
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
