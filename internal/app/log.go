package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"fsv-go/internal/config"
)

// fsvHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
type fsvHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	opID  string
	attrs []slog.Attr
}

func newFSVHandler(w io.Writer, opID string) *fsvHandler {
	return &fsvHandler{mu: &sync.Mutex{}, w: w, opID: opID}
}

func (h *fsvHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *fsvHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	level := r.Level.String()

	// The scheduler, watcher and HTTP server log from their own goroutines.
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, level, h.opID, r.Message)
	if err != nil {
		return err
	}

	// Write pre-set attrs.
	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}

	// Write per-record attrs.
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err = fmt.Fprintln(h.w)
	return err
}

func (h *fsvHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fsvHandler{
		mu:    h.mu,
		w:     h.w,
		opID:  h.opID,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *fsvHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes to both the rotating
// logDir/fsv.log and console. The returned Closer closes the log file.
func newLogger(logDir string, rotation config.LogConfig, opID string, console io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "fsv.log"),
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
	}

	w := io.Writer(file)
	if console != nil {
		w = io.MultiWriter(file, console)
	}
	return slog.New(newFSVHandler(w, opID)), file, nil
}

// slogAdapter wraps *slog.Logger to satisfy the fsv.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
