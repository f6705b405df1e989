/*
Package record – logging interface.

Callers may plug any Logger into a Table; the defaults are backed by zerolog.
*/
package record

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the interface callers may supply to Table.
// Each method receives a structured context map (may be nil).
type Logger interface {
	Trace(message string, ctx map[string]any)
	Info(message string, ctx map[string]any)
	Error(message string, ctx map[string]any)
	Data(message string, ctx map[string]any)
}

// ZeroLogger adapts a zerolog.Logger. Data lines are written at debug level.
type ZeroLogger struct {
	L zerolog.Logger
}

func (z ZeroLogger) Trace(msg string, ctx map[string]any) { z.L.Trace().Fields(ctx).Msg(msg) }
func (z ZeroLogger) Data(msg string, ctx map[string]any)  { z.L.Debug().Fields(ctx).Msg(msg) }
func (z ZeroLogger) Info(msg string, ctx map[string]any)  { z.L.Info().Fields(ctx).Msg(msg) }
func (z ZeroLogger) Error(msg string, ctx map[string]any) { z.L.Error().Fields(ctx).Msg(msg) }

// NewLogger builds a zerolog-backed Logger. Format is "json" or "console";
// an unknown level falls back to info. A nil writer means stderr.
func NewLogger(level, format string, w io.Writer) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if w == nil {
		w = os.Stderr
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return ZeroLogger{L: zerolog.New(w).Level(lvl).With().Timestamp().Str("component", "record").Logger()}
}

// defaultLogger writes info and above; verboseLogger adds trace and data.
func defaultLogger() Logger { return NewLogger("info", "json", nil) }
func verboseLogger() Logger { return NewLogger("trace", "json", nil) }

// FuncLogger wraps a plain function: func(level, message string, ctx map[string]any).
type FuncLogger struct {
	Fn func(level, message string, ctx map[string]any)
}

func (f FuncLogger) Trace(msg string, ctx map[string]any) { f.Fn("trace", msg, ctx) }
func (f FuncLogger) Data(msg string, ctx map[string]any)  { f.Fn("data", msg, ctx) }
func (f FuncLogger) Info(msg string, ctx map[string]any)  { f.Fn("info", msg, ctx) }
func (f FuncLogger) Error(msg string, ctx map[string]any) { f.Fn("error", msg, ctx) }

// NopLogger silently discards everything.
type NopLogger struct{}

func (NopLogger) Trace(string, map[string]any) {}
func (NopLogger) Data(string, map[string]any)  {}
func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}
