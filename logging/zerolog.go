package logging

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// ZerologLogger is a real alternative Logger implementation, wired behind
// the same interface as StructuredLogger to demonstrate that Logger is
// genuinely pluggable. Selected by bootstrap.NewLogger when the LOG_FORMAT
// environment variable is "zerolog".
type ZerologLogger struct {
	logger    zerolog.Logger
	component string
}

// NewZerologLogger builds a console-friendly zerolog.Logger writing to stderr.
func NewZerologLogger(level string) *ZerologLogger {
	zerolog.SetGlobalLevel(parseLevel(level))
	return &ZerologLogger{logger: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *ZerologLogger) WithComponent(component string) Logger {
	return &ZerologLogger{logger: l.logger, component: component}
}

func (l *ZerologLogger) event(e *zerolog.Event, msg string, fields map[string]interface{}) {
	if l.component != "" {
		e = e.Str("component", l.component)
	}
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (l *ZerologLogger) Info(msg string, fields map[string]interface{})  { l.event(l.logger.Info(), msg, fields) }
func (l *ZerologLogger) Error(msg string, fields map[string]interface{}) { l.event(l.logger.Error(), msg, fields) }
func (l *ZerologLogger) Warn(msg string, fields map[string]interface{})  { l.event(l.logger.Warn(), msg, fields) }
func (l *ZerologLogger) Debug(msg string, fields map[string]interface{}) { l.event(l.logger.Debug(), msg, fields) }

func (l *ZerologLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, fields)
}
func (l *ZerologLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, fields)
}
func (l *ZerologLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, fields)
}
func (l *ZerologLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, fields)
}
