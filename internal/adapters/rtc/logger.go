package rtc

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LoggerFactory routes pion's internal logs into zerolog. Scopes become the
// "scope" field; pion's trace level maps to zerolog trace.
type LoggerFactory struct {
	Logger zerolog.Logger
}

func NewLoggerFactory() LoggerFactory {
	return LoggerFactory{Logger: log.With().Str("module", "adapters.rtc").Logger()}
}

func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return scopedLogger{l: f.Logger.With().Str("scope", scope).Logger()}
}

type scopedLogger struct {
	l zerolog.Logger
}

var _ logging.LeveledLogger = scopedLogger{}

func (s scopedLogger) Trace(msg string) { s.l.Trace().Msg(msg) }
func (s scopedLogger) Tracef(format string, args ...any) { s.l.Trace().Msgf(format, args...) }
func (s scopedLogger) Debug(msg string) { s.l.Debug().Msg(msg) }
func (s scopedLogger) Debugf(format string, args ...any) { s.l.Debug().Msgf(format, args...) }
func (s scopedLogger) Info(msg string) { s.l.Info().Msg(msg) }
func (s scopedLogger) Infof(format string, args ...any) { s.l.Info().Msgf(format, args...) }
func (s scopedLogger) Warn(msg string) { s.l.Warn().Msg(msg) }
func (s scopedLogger) Warnf(format string, args ...any) { s.l.Warn().Msgf(format, args...) }
func (s scopedLogger) Error(msg string) { s.l.Error().Msg(msg) }
func (s scopedLogger) Errorf(format string, args ...any) { s.l.Error().Msgf(format, args...) }
