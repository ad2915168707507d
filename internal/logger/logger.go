package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Output formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatColor = "color"
)

// Config describes where and how the daemon logs.
// When File is empty logs go to stdout; otherwise the file is rotated
// following lumberjack semantics.
type Config struct {
	Level      string // debug|info|warn|error (default info)
	Format     string // text|json|color (default color on stdout, text on files)
	File       string
	MaxSizeMB  int  // megabytes before rotation (default 10)
	MaxBackups int  // number of backups to keep (default 3)
	MaxAgeDays int  // days to keep (default 7)
	Compress   bool // Gzip rotated files
	// Stdout overrides the console destination; used by tests.
	Stdout io.Writer
}

// ParseLevel maps a level name to slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// ValidFormat reports whether f names a supported output format.
func ValidFormat(f string) bool {
	switch strings.ToLower(f) {
	case "", FormatText, FormatJSON, FormatColor:
		return true
	}
	return false
}

// Writer returns the destination writer. The returned closer is nil for stdout.
func (c Config) Writer() (io.Writer, io.Closer) {
	if c.File == "" {
		if c.Stdout != nil {
			return c.Stdout, nil
		}
		return os.Stdout, nil
	}
	l := &lj.Logger{
		Filename:   c.File,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
	return l, l
}

// New builds a logger from c. Close the returned closer (if non-nil) on shutdown
// to flush the rotated file.
func New(c Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	if !ValidFormat(c.Format) {
		return nil, nil, fmt.Errorf("unknown log format %q", c.Format)
	}
	w, closer := c.Writer()
	opts := &slog.HandlerOptions{Level: level}

	format := strings.ToLower(c.Format)
	if format == "" {
		format = FormatColor
		if c.File != "" {
			format = FormatText
		}
	}
	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case FormatColor:
		h = NewColorTextHandler(w, opts, true)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer, nil
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
