// Package logging provides a per-call-site named logger on top of
// zerolog, mirroring the call-site-scoped logger pattern BoxLite's
// teacher uses from projecteru2/core/log.
package logging

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	writer io.Writer = os.Stderr
	level            = zerolog.InfoLevel
)

// Configure sets the process-wide log sink and level. Call once during
// startup; safe to call again in tests.
func Configure(w io.Writer, lvl zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	writer = w
	level = lvl
}

// Logger scopes a zerolog.Logger to a function/component name, the way
// log.WithFunc(name) does in the teacher's logging library.
type Logger struct {
	z zerolog.Logger
}

// WithFunc returns a Logger tagged with the given call-site name.
func WithFunc(name string) Logger {
	mu.RLock()
	w, lvl := writer, level
	mu.RUnlock()
	z := zerolog.New(w).Level(lvl).With().Timestamp().Str("func", name).Logger()
	return Logger{z: z}
}

func (l Logger) Infof(_ context.Context, format string, args ...any) {
	l.z.Info().Msgf(format, args...)
}

func (l Logger) Warnf(_ context.Context, format string, args ...any) {
	l.z.Warn().Msgf(format, args...)
}

func (l Logger) Errorf(_ context.Context, format string, args ...any) {
	l.z.Error().Msgf(format, args...)
}

func (l Logger) Debugf(_ context.Context, format string, args ...any) {
	l.z.Debug().Msgf(format, args...)
}
