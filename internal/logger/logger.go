// Package logger wraps zerolog with the process-wide logger used by the CLI.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var globalLogger zerolog.Logger

// Config selects the level, destination and encoding of log lines.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Debug  bool   `json:"debug" yaml:"debug"`
	Output string `json:"output" yaml:"output"`
	// Format is "console" for human-readable lines or "json".
	Format     string `json:"format" yaml:"format"`
	TimeFormat string `json:"time_format" yaml:"time_format"`

	// Writer overrides Output when set.
	Writer io.Writer `json:"-" yaml:"-"`
}

func init() {
	globalLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.WarnLevel).
		With().
		Timestamp().
		Logger()
}

// DefaultConfig reads the SPOOR_LOG_* and SPOOR_DEBUG environment variables.
func DefaultConfig() Config {
	return Config{
		Level:      getEnvOrDefault("SPOOR_LOG_LEVEL", "warn"),
		Debug:      getEnvBoolOrDefault("SPOOR_DEBUG", false),
		Output:     getEnvOrDefault("SPOOR_LOG_OUTPUT", "stderr"),
		Format:     getEnvOrDefault("SPOOR_LOG_FORMAT", "console"),
		TimeFormat: getEnvOrDefault("SPOOR_LOG_TIME_FORMAT", time.Kitchen),
	}
}

// Init replaces the global logger. Trace output goes to stdout, so logs
// default to stderr.
func Init(config Config) error {
	output := config.Writer
	if output == nil {
		switch config.Output {
		case "", "stderr":
			output = os.Stderr
		case "stdout":
			output = os.Stdout
		default:
			return fmt.Errorf("unknown log output %q", config.Output)
		}
	}

	level := zerolog.WarnLevel
	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(config.Level))
		if err != nil {
			return err
		}
	}

	switch config.Format {
	case "", "console":
		cw := zerolog.ConsoleWriter{Out: output, TimeFormat: config.TimeFormat}
		if cw.TimeFormat == "" {
			cw.TimeFormat = time.Kitchen
		}
		if config.Writer != nil {
			cw.NoColor = true
		}
		output = cw
	case "json":
	default:
		return fmt.Errorf("unknown log format %q", config.Format)
	}

	globalLogger = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
	log.Logger = globalLogger

	return nil
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

// Debug starts a debug-level event on the global logger.
func Debug() *zerolog.Event {
	return globalLogger.Debug()
}

func Info() *zerolog.Event {
	return globalLogger.Info()
}

func Warn() *zerolog.Event {
	return globalLogger.Warn()
}

// Error starts an error-level event on the global logger.
func Error() *zerolog.Event {
	return globalLogger.Error()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	value = strings.ToLower(value)
	return value == "true" || value == "1" || value == "yes" || value == "on"
}
