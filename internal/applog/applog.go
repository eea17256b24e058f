// Package applog sets up slog for the tubewatch commands.
package applog

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const filePrefix = "tubewatch-"

// DailyRotator is an io.Writer that writes to a date-stamped log file and
// rotates to a new file each calendar day. Old files beyond maxDays are pruned.
type DailyRotator struct {
	mu      sync.Mutex
	dir     string
	date    string
	file    *os.File
	maxDays int
	now     func() time.Time
}

func NewDailyRotator(dir string, maxDays int) *DailyRotator {
	return &DailyRotator{
		dir:     dir,
		maxDays: maxDays,
		now:     time.Now,
	}
}

// SetNow replaces the time source. Used in tests only.
func (r *DailyRotator) SetNow(fn func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = fn
}

func (r *DailyRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := r.now().Format("2006-01-02")
	if today != r.date {
		if err := r.rotate(today); err != nil {
			return 0, err
		}
	}
	return r.file.Write(p)
}

// Path returns the file written to today.
func (r *DailyRotator) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return filepath.Join(r.dir, filePrefix+r.now().Format("2006-01-02")+".log")
}

func (r *DailyRotator) rotate(date string) error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	name := filepath.Join(r.dir, filePrefix+date+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.date = date
	r.prune()
	return nil
}

func (r *DailyRotator) prune() {
	matches, err := filepath.Glob(filepath.Join(r.dir, filePrefix+"*.log"))
	if err != nil || len(matches) <= r.maxDays {
		return
	}
	sort.Strings(matches)
	for _, f := range matches[:len(matches)-r.maxDays] {
		os.Remove(f)
	}
}

func (r *DailyRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

type InitConfig struct {
	// LogDir holds the rotating files. Empty logs to Fallback instead.
	LogDir    string
	LogLevel  string
	// LogFormat is "text" (default) or "json".
	LogFormat string
	Fallback  io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init builds the process logger and installs it as slog.Default. The
// stdlib log package is redirected to the same writer. The returned
// io.Closer must be deferred by the caller.
func Init(cfg InitConfig) (*slog.Logger, io.Closer, error) {
	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	if cfg.LogDir == "" {
		w = cfg.Fallback
		if w == nil {
			w = os.Stderr
		}
	} else {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator := NewDailyRotator(cfg.LogDir, 7)
		w, closer = rotator, rotator
	}

	logger := slog.New(NewHandler(w, cfg.LogFormat, ParseLevel(cfg.LogLevel)))
	slog.SetDefault(logger)
	log.SetOutput(w)
	log.SetFlags(0)
	return logger, closer, nil
}

func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel converts a level string to slog.Level. Defaults to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
