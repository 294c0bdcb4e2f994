// Package logging sets up the application logger. The full-screen UI owns
// the terminal, so logs go to a file; the plain REPL can log to stderr.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
)

// Options controls logger construction.
type Options struct {
	// Path is the log file location. Empty means stderr.
	Path string
	// MaxMB truncates the file on open once it exceeds this size. Zero
	// disables the check.
	MaxMB int
	Debug bool
}

// New builds a slog logger. The returned closer owns the log file, if any.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	var closer io.Closer
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		if opts.MaxMB > 0 {
			if info, err := os.Stat(opts.Path); err == nil && info.Size() > int64(opts.MaxMB)<<20 {
				_ = os.Remove(opts.Path)
			}
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    opts.Path != "",
	})
	return slog.New(handler), closer, nil
}
