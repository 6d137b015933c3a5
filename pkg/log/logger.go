// Package log provides structured logging for sparsesc, backed by zerolog.
//
// The package keeps a single process-wide logger that the fitting pipeline
// uses for progress and diagnostic messages. It also bridges the warning
// channel in pkg/errors onto zerolog so that ConvergenceWarning and friends
// are emitted as structured events rather than plain text.
//
// Example:
//
//	log.SetLevel(zerolog.DebugLevel)
//	l := log.Logger()
//	l.Info().Int("grid_points", 20).Msg("scoring penalty grid")
package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	scerr "github.com/YuminosukeSato/sparsesc/pkg/errors"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stderr).With().Timestamp().Str("lib", "sparsesc").Logger().Level(zerolog.WarnLevel)
)

// Logger returns the current package logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the package logger. Intended for callers that already
// run a configured zerolog instance and want sparsesc to log through it.
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// SetLevel sets the minimum level on the package logger.
func SetLevel(level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(level)
}

// SetOutput redirects the package logger. io.Discard silences it entirely.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Output(w)
}

// InstallWarningSink routes pkg/errors warnings through zerolog. Warning
// types implementing zerolog.LogObjectMarshaler are logged with their
// structured fields.
func InstallWarningSink() {
	scerr.SetZerologWarnFunc(func(warning error) {
		l := Logger()
		ev := l.Warn()
		if obj, ok := warning.(zerolog.LogObjectMarshaler); ok {
			ev.EmbedObject(obj).Msg(warning.Error())
			return
		}
		ev.Msg(warning.Error())
	})
}
