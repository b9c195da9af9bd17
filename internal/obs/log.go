// Package obs holds the observability plumbing shared across the service:
// logger setup, Prometheus metrics and build info.
package obs

import (
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var (
	auditOnce   sync.Once
	auditLogger *log.Logger
)

// AuditLogger returns the shared line-oriented logger backing the audit
// stream. Audit entries are pre-marshalled JSON, so this stays a plain
// log.Logger with no prefix or flags.
func AuditLogger() *log.Logger {
	auditOnce.Do(func() {
		auditLogger = log.New(os.Stdout, "", 0)
	})
	return auditLogger
}

// SetupLogging installs the default slog logger. Interactive terminals get
// colored output via tint; everything else gets JSON lines. Level comes from
// LOG_LEVEL (debug, info, warn, error).
func SetupLogging() {
	level := levelFromEnv()
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
