// Package obslog provides the process-wide structured logger, built on
// zerolog and exposed through the narrow Logger interface the rest of
// chronicle depends on (mirroring the teacher's service.Logger seam, but
// backed by zerolog rather than a dropped-on-the-floor default).
package obslog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the structured logging seam every component accepts through
// its constructor. Nothing in chronicle reaches for a package-level
// global logger.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
}

// ZeroLogger adapts a zerolog.Logger to the Logger interface.
type ZeroLogger struct {
	z zerolog.Logger
}

// New builds a ZeroLogger writing JSON lines to w at the given level
// ("debug", "info", "warn", "error"; unrecognized values default to info).
func New(w io.Writer, level string) *ZeroLogger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &ZeroLogger{z: z}
}

// NewStderr builds a ZeroLogger writing to stderr, matching the hook
// executables' contract that log output never reaches stdout.
func NewStderr(level string) *ZeroLogger {
	return New(os.Stderr, level)
}

func (l *ZeroLogger) event(e *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (l *ZeroLogger) Info(msg string, fields map[string]any)  { l.event(l.z.Info(), msg, fields) }
func (l *ZeroLogger) Error(msg string, fields map[string]any) { l.event(l.z.Error(), msg, fields) }
func (l *ZeroLogger) Debug(msg string, fields map[string]any) { l.event(l.z.Debug(), msg, fields) }
func (l *ZeroLogger) Warn(msg string, fields map[string]any)  { l.event(l.z.Warn(), msg, fields) }

// Noop discards every log call. Used in tests where log output is
// irrelevant.
type Noop struct{}

func (Noop) Info(string, map[string]any)  {}
func (Noop) Error(string, map[string]any) {}
func (Noop) Debug(string, map[string]any) {}
func (Noop) Warn(string, map[string]any)  {}
