// Package logging builds the slog loggers used by poolctl.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel parses debug, info, warn (or warning) and error, ignoring case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}

// Rotation configures a size-rotated log file.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Builder assembles a logger step by step. The first invalid setting is
// reported by Build.
type Builder struct {
	output io.Writer
	closer io.Closer
	level  *slog.LevelVar
	format string
	err    error
}

// New returns a Builder for an info-level text logger on stderr.
func New() *Builder {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	return &Builder{
		output: os.Stderr,
		level:  level,
		format: "text",
	}
}

// SetOutput replaces the destination writer.
func (b *Builder) SetOutput(w io.Writer) *Builder {
	b.output = w
	b.closer = nil
	return b
}

// SetLevel parses and sets the minimum level.
func (b *Builder) SetLevel(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.level.Set(level)
	return b
}

// SetFormat selects "text" or "json". Empty means text.
func (b *Builder) SetFormat(format string) *Builder {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = f
	default:
		b.setErr(fmt.Errorf("logging: unknown format %q", format))
	}
	return b
}

// SetRotation writes to filename through lumberjack instead of the current
// output. An empty filename leaves the output unchanged.
func (b *Builder) SetRotation(filename string, r Rotation) *Builder {
	if filename == "" {
		return b
	}
	if r.MaxSizeMB <= 0 {
		b.setErr(fmt.Errorf("logging: rotation max size must be positive, got %d", r.MaxSizeMB))
		return b
	}
	lj := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    r.MaxSizeMB,
		MaxBackups: r.MaxBackups,
		MaxAge:     r.MaxAgeDays,
		Compress:   r.Compress,
	}
	b.output = lj
	b.closer = lj
	return b
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build returns the logger, its level for runtime adjustment, and a close
// function that flushes and closes a rotated file.
func (b *Builder) Build() (*slog.Logger, *slog.LevelVar, func() error, error) {
	if b.err != nil {
		return nil, nil, nil, b.err
	}

	opts := &slog.HandlerOptions{Level: b.level}
	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, opts)
	} else {
		handler = slog.NewTextHandler(b.output, opts)
	}

	closeFn := func() error { return nil }
	if b.closer != nil {
		closeFn = b.closer.Close
	}
	return slog.New(handler), b.level, closeFn, nil
}
