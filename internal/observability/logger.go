package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig selects level (trace..panic, "warning" is accepted), format
// (json, console or pretty) and output (stdout, stderr or discard).
type LoggingConfig struct {
	Level      string
	Format     string
	Output     string
	AddSource  bool
	TimeFormat string
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "json", Output: "stdout", TimeFormat: time.RFC3339}
}

var levels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"panic":   zerolog.PanicLevel,
}

// ValidLevel reports whether level names a known log level, ignoring case.
func ValidLevel(level string) bool {
	_, ok := levels[strings.ToLower(level)]
	return ok
}

// parseLevel falls back to info for unknown names.
func parseLevel(level string) zerolog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return zerolog.InfoLevel
}

func writerFor(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	case "discard":
		return io.Discard
	}
	return os.Stdout
}

// NewLogger builds the process logger and sets the zerolog global level and
// timestamp format to match.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = cfg.TimeFormat
	if zerolog.TimeFieldFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	out := writerFor(cfg.Output)
	if f := strings.ToLower(cfg.Format); f == "console" || f == "pretty" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
	}

	lc := zerolog.New(out).With().Timestamp()
	if cfg.AddSource {
		lc = lc.Caller()
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return lc.Logger().Level(level)
}

// WithComponent tags a logger with the emitting component.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithFetchContext adds the fields every fetch log line carries.
func WithFetchContext(logger zerolog.Logger, fetcher, query string, page int) zerolog.Logger {
	return logger.With().
		Str("fetcher", fetcher).
		Str("query", query).
		Int("page", page).
		Logger()
}

// WithImporterContext adds importer descriptor fields to a logger.
func WithImporterContext(logger zerolog.Logger, name, pluginID string) zerolog.Logger {
	return logger.With().
		Str("importer", name).
		Str("plugin_id", pluginID).
		Logger()
}
