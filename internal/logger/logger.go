package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// Initialize sets up the global logger with configuration
func Initialize(level string, pretty bool) {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	if pretty {
		// Pretty console output for development
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	// Set global logger
	Log = log.With().
		Str("service", "gap-intel-api").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("Logger initialized")
}

// GetLogger returns the global logger instance
func GetLogger() *zerolog.Logger {
	return &Log
}

// Security creates a logger for security events (auth, session, CSRF, rate limiting)
func Security() *zerolog.Logger {
	l := Log.With().Str("component", "security").Logger()
	return &l
}

// Gap creates a logger for gap lifecycle events
func Gap() *zerolog.Logger {
	l := Log.With().Str("component", "gap").Logger()
	return &l
}

// AIEnricher creates a logger for the AI enrichment worker pool
func AIEnricher() *zerolog.Logger {
	l := Log.With().Str("component", "ai_enricher").Logger()
	return &l
}

// Notifier creates a logger for the event-bus notification subscriber
func Notifier() *zerolog.Logger {
	l := Log.With().Str("component", "notifier").Logger()
	return &l
}

// Realtime creates a logger for WebSocket hub events
func Realtime() *zerolog.Logger {
	l := Log.With().Str("component", "realtime").Logger()
	return &l
}

// Scheduler creates a logger for the TAT deadline sweeper
func Scheduler() *zerolog.Logger {
	l := Log.With().Str("component", "scheduler").Logger()
	return &l
}

// Database creates a logger for database events
func Database() *zerolog.Logger {
	l := Log.With().Str("component", "database").Logger()
	return &l
}

// HTTP creates a logger for HTTP request events
func HTTP() *zerolog.Logger {
	l := Log.With().Str("component", "http").Logger()
	return &l
}
