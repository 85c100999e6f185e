package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// ParseFormat maps "text" and "console" to FormatText and anything else to
// FormatJSON, the format CI log collectors expect.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "console":
		return FormatText
	default:
		return FormatJSON
	}
}

// ParseLevel accepts the slog level names, "warning", and offsets such as
// "debug-4". Anything it cannot read is info.
func ParseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Config holds configuration for the logger
type Config struct {
	Level  slog.Level
	Format Format

	// Output defaults to stderr; stdout carries command results.
	Output io.Writer

	AddSource bool

	// Service and Version are attached to every record as service.name and
	// service.version.
	Service string
	Version string

	// Secrets are masked wherever they appear in a string attribute.
	Secrets []string
}

// DefaultConfig logs at INFO level in JSON format to stderr.
func DefaultConfig() Config {
	return Config{
		Level:   slog.LevelInfo,
		Format:  FormatJSON,
		Output:  os.Stderr,
		Service: "deckhand",
		Version: "dev",
	}
}

// ConfigFrom builds a Config from the string settings accepted on the
// command line and in the environment.
func ConfigFrom(level, format, version string) Config {
	cfg := DefaultConfig()
	cfg.Level = ParseLevel(level)
	cfg.Format = ParseFormat(format)
	if version != "" {
		cfg.Version = version
	}
	return cfg
}
