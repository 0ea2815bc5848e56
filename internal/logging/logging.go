// Package logging provides the leveled line logger shared by the store,
// dispatcher, executor and runner.
//
// Lines look like:
//
//	2026-10-17T09:00:00Z INFO executor: task_done task_id=task_... artifacts=2
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes leveled lines tagged with a component name.
type Logger struct {
	out       *log.Logger
	level     Level
	component string
}

func New(w io.Writer, level Level, component string) *Logger {
	return &Logger{out: log.New(w, "", 0), level: level, component: component}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, LevelError+1, "")
}

// With returns a logger for another component sharing the same output.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return Discard()
	}
	return &Logger{out: l.out, level: l.level, component: component}
}

func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.level
}

func (l *Logger) Logf(level Level, format string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.out.Printf("%s %s %s: %s", time.Now().Format(time.RFC3339), level, l.component, msg)
}

func (l *Logger) Debugf(format string, args ...any) { l.Logf(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.Logf(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.Logf(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.Logf(LevelError, format, args...) }

// OpenFile returns a size-rotated writer for path.
func OpenFile(path string, cfg model.LoggingConfig) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    atLeast(cfg.MaxSizeMB, 10),
		MaxBackups: atLeast(cfg.MaxBackups, 1),
		MaxAge:     atLeast(cfg.MaxAgeDays, 7),
		Compress:   cfg.Compress,
	}, nil
}

func atLeast(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}
