// Package log builds the bridge's slog logger: stdout plus an optional file
// that rotates across three ten-day buckets.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Options struct {
	// Level is debug, info, warn or error
	Level string
	// Format is text or json
	Format string
	// Dir enables the rotating log file when set
	Dir string
	// Name prefixes the log file, "printbridge" when empty
	Name string
}

// New returns the logger described by opts. The returned closer releases the
// log file and must be called on shutdown.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		name := opts.Name
		if name == "" {
			name = "printbridge"
		}
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("log dir: %w", err)
		}
		rf := &RotatingFile{Dir: opts.Dir, Name: name}
		w = io.MultiWriter(os.Stdout, rf)
		closer = rf
	}

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, hopts)
	case "json":
		h = slog.NewJSONHandler(w, hopts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(h), closer, nil
}

// ParseLevel accepts the slog level names in any case; empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger { return slog.New(nopHandler{}) }

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// RotatingFile appends to <Dir>/<Name>-<bucket>.log, where the bucket is 0 for
// days 1-9 of the month, 1 for days 10-19 and 2 from day 20. Entering a
// bucket removes the file of the bucket that follows it, which is the oldest.
type RotatingFile struct {
	Dir  string
	Name string

	// Now is the clock, time.Now when nil
	Now func() time.Time

	mu     sync.Mutex
	f      *os.File
	bucket int
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := dayBucket(r.now())
	if r.f == nil || bucket != r.bucket {
		if err := r.open(bucket); err != nil {
			return 0, err
		}
	}
	return r.f.Write(p)
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

func (r *RotatingFile) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *RotatingFile) open(bucket int) error {
	if r.f != nil {
		_ = r.f.Close()
		r.f = nil
	}

	stale := r.path((bucket + 1) % 3)
	if err := os.Remove(stale); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate %s: %w", stale, err)
	}

	f, err := os.OpenFile(r.path(bucket), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	r.f = f
	r.bucket = bucket
	return nil
}

func (r *RotatingFile) path(bucket int) string {
	return filepath.Join(r.Dir, fmt.Sprintf("%s-%d.log", r.Name, bucket))
}

func dayBucket(t time.Time) int {
	switch day := t.Day(); {
	case day <= 9:
		return 0
	case day <= 19:
		return 1
	default:
		return 2
	}
}
