// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Component names used in the "component" field.
const (
	ComponentUsable     = "usable"
	ComponentTransport  = "transport"
	ComponentQueryCache = "querycache"
	ComponentListener   = "listener"
	ComponentProxy      = "usable-proxy"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// ConfigFromEnv reads LOG_LEVEL and LOG_PRETTY through getenv, falling back
// to DefaultConfig for unset values.
func ConfigFromEnv(getenv func(string) string) Config {
	cfg := DefaultConfig()
	if level := getenv("LOG_LEVEL"); level != "" {
		cfg.Level = LogLevel(level)
	}
	if pretty, err := strconv.ParseBool(getenv("LOG_PRETTY")); err == nil {
		cfg.Pretty = pretty
	}
	return cfg
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Scoped derives a component logger from parent, or from the global logger
// when parent is nil.
func Scoped(parent *zerolog.Logger, component string) zerolog.Logger {
	if parent == nil {
		return NewLogger(component)
	}
	return parent.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache flow (hit, miss, stale, shared in-flight fetch, invalidation)
//   - Outgoing requests (method, url)
//   - Endpoint compilation
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Store selection in the proxy
//
// Warn: Warning conditions that don't prevent operation
//   - Listener actions that failed or panicked
//   - Cache write failures (the fetched value is still returned)
//   - Upstream 4xx/5xx responses
//
// Error: Error conditions requiring attention
//   - Network failures
//   - Configuration errors
//
// Context Fields:
//   - component: usable, transport, querycache, listener, usable-proxy
//   - endpoint: endpoint name
//   - key: cache key or listener event key
//   - type, state: listener event type and lifecycle state
//   - status, error_class: upstream HTTP status and error classification
