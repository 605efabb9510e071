// Package logging defines the minimal structured-logging contract used
// across the pipeline, router, cache, and HTTP substrate, plus two
// implementations: a dependency-free default and a zerolog-backed one.
package logging

import "context"

// Logger is the minimal logging interface every component depends on.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger lets a component stamp its own identifier onto every
// log line it emits, e.g. "pipeline/orchestrator" or "router/bandit".
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. Useful as a safe default for tests and
// for components constructed without an explicit logger.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})                                     {}
func (NoOpLogger) Error(string, map[string]interface{})                                    {}
func (NoOpLogger) Warn(string, map[string]interface{})                                     {}
func (NoOpLogger) Debug(string, map[string]interface{})                                    {}
func (NoOpLogger) InfoWithContext(context.Context, string, map[string]interface{})         {}
func (NoOpLogger) ErrorWithContext(context.Context, string, map[string]interface{})        {}
func (NoOpLogger) WarnWithContext(context.Context, string, map[string]interface{})          {}
func (NoOpLogger) DebugWithContext(context.Context, string, map[string]interface{})        {}
func (NoOpLogger) WithComponent(string) Logger                                             { return NoOpLogger{} }
