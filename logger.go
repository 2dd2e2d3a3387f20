package anatomy

import (
	"log/slog"

	"github.com/gogpu/anatomy/internal/logging"
)

// SetLogger configures the logger for anatomy and all its sub-packages.
// By default, anatomy produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by anatomy:
//   - [slog.LevelDebug]: phase timings, buffer sizes, pick results
//   - [slog.LevelInfo]: layer lifecycle (loaded, session done), GPU device
//   - [slog.LevelWarn]: failed layers, GPU fallbacks
//
// Example:
//
//	// Enable debug-level logging for full diagnostics:
//	anatomy.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by anatomy.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.L()
}
