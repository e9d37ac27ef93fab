package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr, false)
)

func newLogger(w io.Writer, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Configure replaces the global logger. pretty switches to the human-readable
// console writer used during development.
func Configure(level string, pretty bool) {
	mu.Lock()
	logger = newLogger(os.Stderr, pretty).Level(parseLevel(level))
	mu.Unlock()
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	lvl := logger.GetLevel()
	logger = newLogger(w, false).Level(lvl)
	mu.Unlock()
}

func SetLevel(l Level) {
	mu.Lock()
	logger = logger.Level(parseLevel(string(l)))
	mu.Unlock()
}

// Logger exposes the underlying zerolog logger for middleware that wants
// typed fields.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, kv ...any) {
	l := Logger()
	withKVs(l.Debug(), kv).Msg(msg)
}

func Info(msg string, kv ...any) {
	l := Logger()
	withKVs(l.Info(), kv).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	l := Logger()
	withKVs(l.Error().Err(err), kv).Msg(msg)
}

// withKVs attaches key/value pairs. Non-string keys are skipped and a trailing
// odd value is ignored.
func withKVs(evt *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		evt = evt.Interface(key, kv[i+1])
	}
	return evt
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(LevelDebug):
		return zerolog.DebugLevel
	case string(LevelError):
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
