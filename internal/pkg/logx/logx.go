// Package logx wraps zerolog for the relay. Call InitGlobalLogger once at
// startup, then log through the level helpers or through a Component logger.
package logx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger installs the process-wide logger. Development builds get
// coloured console output on stderr at debug level; anything else writes JSON
// lines to stdout at info level. Every entry carries a unix timestamp and the
// calling file and line.
func InitGlobalLogger(isDevelopment bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	base := zerolog.New(os.Stdout)
	if isDevelopment {
		level = zerolog.DebugLevel
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	log.Logger = base.Level(level).With().Timestamp().Caller().Logger()
}

// Logger exposes the process-wide logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component derives a logger whose entries are tagged with component=name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// pairs drops a field list that is not made of key/value pairs, since zerolog
// would panic on it, and reports the mistake instead.
func pairs(level string, fields []any) []any {
	if len(fields)%2 == 0 {
		return fields
	}
	Logger().Warn().
		Str("log_level", level).
		Int("fields_count", len(fields)).
		Msgf("logx.%s called with unpaired fields %v; dropping them", level, fields)
	return nil
}

// emit writes e with the given fields. The caller frame skips emit and the
// exported helper so the location points at application code.
func emit(e *zerolog.Event, level string, err error, msg string, fields []any) {
	if err != nil {
		e = e.Err(err)
	}
	e.Fields(pairs(level, fields)).CallerSkipFrame(2).Msg(msg)
}

// Debug logs msg with optional key/value fields at debug level.
func Debug(msg string, fields ...any) {
	emit(Logger().Debug(), "Debug", nil, msg, fields)
}

// Info logs msg with optional key/value fields at info level.
func Info(msg string, fields ...any) {
	emit(Logger().Info(), "Info", nil, msg, fields)
}

// Warn logs msg with optional key/value fields at warn level.
func Warn(msg string, fields ...any) {
	emit(Logger().Warn(), "Warn", nil, msg, fields)
}

// Error logs err and msg at error level.
func Error(err error, msg string, fields ...any) {
	emit(Logger().Error(), "Error", err, msg, fields)
}

// Fatal logs err and msg, then exits the process with status 1.
func Fatal(err error, msg string, fields ...any) {
	emit(Logger().Fatal(), "Fatal", err, msg, fields)
}
