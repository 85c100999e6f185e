package log

import "log/slog"

// SetDefaultLogger routes slog's package-level functions, and libraries
// that use them, through logger.
func SetDefaultLogger(logger *Logger) {
	slog.SetDefault(logger.slog)
}
