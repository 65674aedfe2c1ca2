// Package logging builds the application logger and the leveled logger the
// demuxer core writes to.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
)

// Options describes logger construction parameters.
type Options struct {
	// Level is one of trace, debug, info, warn, error. Empty means info.
	Level string

	// Format is "text" or "json". Empty means text.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// New constructs the slog logger used by the command and the server.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out := output(opts)
	handlerOpts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		return slog.New(slog.NewTextHandler(out, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// ParseLevel maps a level name to a slog level. Trace maps below debug.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return slog.LevelDebug - 4, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log level: unsupported value %q", level)
	}
}

// NewDemuxLogger creates the hclog.Logger handed to the ogg package.
func NewDemuxLogger(opts Options) (hclog.Logger, error) {
	return NewNamed("ogg", opts)
}

// NewNamed creates a leveled hclog.Logger for a library that logs through
// hclog. Colour is only enabled when the output is a terminal.
func NewNamed(name string, opts Options) (hclog.Logger, error) {
	if _, err := ParseLevel(opts.Level); err != nil {
		return nil, err
	}
	level := hclog.LevelFromString(strings.TrimSpace(opts.Level))
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	out := output(opts)
	color := hclog.ColorOff
	if IsTerminal(out) {
		color = hclog.AutoColor
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     out,
		JSONFormat: strings.EqualFold(strings.TrimSpace(opts.Format), "json"),
		Color:      color,
	}), nil
}

// Discard returns a logger that drops everything.
func Discard() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "ogg",
		Level:  hclog.Off,
		Output: io.Discard,
	})
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func output(opts Options) io.Writer {
	if opts.Output == nil {
		return os.Stderr
	}
	return opts.Output
}
