package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// LevelOff silences every record.
const LevelOff = slog.Level(12)

const warnOnceWindow = 1000

func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "off":
		return LevelOff, nil
	}
	return slog.LevelInfo, errors.Errorf("unknown log level %q, expected one of debug, info, warn, error, off", level)
}

// Logger is the warning sink of a run. Identical warnings reported at
// warn level are printed once, the dedup window keeps the most recent
// warnOnceWindow entries.
type Logger struct {
	slog     *slog.Logger
	seen     *lru.Cache[string, struct{}]
	mu       sync.Mutex
	warnings []Warning
}

func NewLogger(level slog.Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	seen, _ := lru.New[string, struct{}](warnOnceWindow)
	return &Logger{
		slog: slog.New(&cliHandler{out: out, level: level, mu: &sync.Mutex{}}),
		seen: seen,
	}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// Warn reports w at warn level unless the same warning was already reported.
func (l *Logger) Warn(w Warning) {
	key, err := json.Marshal(w)
	if err == nil {
		if found, _ := l.seen.ContainsOrAdd(string(key), struct{}{}); found {
			return
		}
	}
	l.mu.Lock()
	l.warnings = append(l.warnings, w)
	l.mu.Unlock()
	l.slog.Warn(w.String(), "code", string(w.Code))
}

func (l *Logger) DebugWarning(w Warning) {
	l.slog.Debug(w.String(), "code", string(w.Code))
}

func (l *Logger) Report(w Warning, severity Severity) {
	if severity == SeverityWarn {
		l.Warn(w)
		return
	}
	l.DebugWarning(w)
}

// Warnings returns the warnings printed at warn level so far.
func (l *Logger) Warnings() []Warning {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Warning(nil), l.warnings...)
}

func (l *Logger) HasWarning(code WarningCode) bool {
	for _, w := range l.Warnings() {
		if w.Code == code {
			return true
		}
	}
	return false
}

// cliHandler prints records the way a terminal user expects them: a colored
// level label, the message, then attributes as key=value.
type cliHandler struct {
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
	mu    *sync.Mutex
}

var (
	debugLabel = color.New(color.FgHiBlack).Sprint("debug")
	infoLabel  = color.New(color.FgCyan).Sprint("info")
	warnLabel  = color.New(color.FgYellow).Sprint("warning")
	errorLabel = color.New(color.FgRed).Sprint("error")
)

func (h *cliHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *cliHandler) Handle(_ context.Context, r slog.Record) error {
	label := infoLabel
	switch {
	case r.Level >= slog.LevelError:
		label = errorLabel
	case r.Level >= slog.LevelWarn:
		label = warnLabel
	case r.Level < slog.LevelInfo:
		label = debugLabel
	}

	var sb strings.Builder
	sb.WriteString(label)
	sb.WriteString(": ")
	sb.WriteString(r.Message)
	writeAttr := func(a slog.Attr) bool {
		if a.Key == "code" {
			return true
		}
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Any())
		return true
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(writeAttr)
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *cliHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *cliHandler) WithGroup(_ string) slog.Handler {
	return h
}
