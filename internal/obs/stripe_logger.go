package obs

import "github.com/rs/zerolog"

// StripeLogger adapts zerolog to stripe-go's LeveledLoggerInterface so the
// SDK's request logs land in the same structured stream.
type StripeLogger struct {
	Logger zerolog.Logger
}

// Debugf logs an SDK debug message.
func (l StripeLogger) Debugf(format string, v ...interface{}) {
	l.Logger.Debug().Str("component", "stripe").Msgf(format, v...)
}

// Infof logs an SDK info message.
func (l StripeLogger) Infof(format string, v ...interface{}) {
	l.Logger.Info().Str("component", "stripe").Msgf(format, v...)
}

// Warnf logs an SDK warning.
func (l StripeLogger) Warnf(format string, v ...interface{}) {
	l.Logger.Warn().Str("component", "stripe").Msgf(format, v...)
}

// Errorf logs an SDK error.
func (l StripeLogger) Errorf(format string, v ...interface{}) {
	l.Logger.Error().Str("component", "stripe").Msgf(format, v...)
}
