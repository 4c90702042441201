// Package obslog provides structured logging for the object store.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with sos-specific helpers.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger.
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "sos").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger.
func (l *Logger) GetZerolog() *zerolog.Logger { return &l.zlog }

func (l *Logger) Info(msg string) *zerolog.Event  { return l.zlog.Info().Str("msg", msg) }
func (l *Logger) Debug(msg string) *zerolog.Event { return l.zlog.Debug().Str("msg", msg) }
func (l *Logger) Warn(msg string) *zerolog.Event  { return l.zlog.Warn().Str("msg", msg) }
func (l *Logger) Error(msg string) *zerolog.Event { return l.zlog.Error().Str("msg", msg) }
func (l *Logger) Fatal(msg string) *zerolog.Event { return l.zlog.Fatal().Str("msg", msg) }

// WithFields returns a logger with additional fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// ODSLogger returns a logger scoped to the ODS heap/mmap component.
func (l *Logger) ODSLogger(path string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "ods").Str("path", path).Logger()}
}

// SchemaLogger returns a logger scoped to the schema registry.
func (l *Logger) SchemaLogger(operation string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "schema").Str("operation", operation).Logger()}
}

// ContainerLogger returns a logger scoped to the container.
func (l *Logger) ContainerLogger(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "container").Str("container", name).Logger()}
}

// LogCommit logs a commit, noting its mode and latency.
func (l *Logger) LogCommit(sync bool, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("component", "ods").
		Bool("sync", sync).
		Dur("duration_ms", duration)
	if err != nil {
		event = l.zlog.Error().
			Str("component", "ods").
			Bool("sync", sync).
			Dur("duration_ms", duration).
			Err(err)
	}
	event.Msg("commit completed")
}

// LogSchemaAdd logs a schema registration attempt.
func (l *Logger) LogSchemaAdd(name string, duration time.Duration, err error) {
	event := l.zlog.Info().
		Str("component", "schema").
		Str("schema", name).
		Dur("duration_ms", duration)
	if err != nil {
		event = l.zlog.Error().
			Str("component", "schema").
			Str("schema", name).
			Dur("duration_ms", duration).
			Err(err)
	}
	event.Msg("schema add completed")
}

// LogContainerOpen logs a container open/create event.
func (l *Logger) LogContainerOpen(name string, created bool) {
	l.zlog.Info().
		Str("event", "container_open").
		Str("container", name).
		Bool("created", created).
		Msg("container opened")
}

var globalLogger *Logger

// InitGlobalLogger initializes the package-global logger.
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger, lazily initializing it
// with sane defaults on first use.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{Level: "info", Pretty: true})
	}
	return globalLogger
}
