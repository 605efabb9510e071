package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StructuredLogger writes one JSON object per line to stdout (info/debug)
// or stderr (warn/error), tagged with a component identifier.
//
// Naming convention for component, mirrored from the teacher framework:
//   - "pipeline/orchestrator", "pipeline/quality"
//   - "router/bandit", "router/cache"
//   - "httpx/retry", "httpx/circuit"
//   - "tenancy"
type StructuredLogger struct {
	component string
}

// NewStructuredLogger creates a root logger with no component tag.
func NewStructuredLogger() *StructuredLogger {
	return &StructuredLogger{}
}

func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{component: component}
}

func (l *StructuredLogger) logEvent(w *os.File, level, msg string, fields map[string]interface{}, ctx context.Context) {
	entry := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"message":   msg,
	}
	if l.component != "" {
		entry["component"] = l.component
	}
	for k, v := range fields {
		entry[k] = v
	}
	if ctx != nil {
		if rid := ctx.Value(requestIDKey{}); rid != nil {
			entry["request_id"] = rid
		}
	}
	b, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(w, `{"level":"error","message":"log marshal failed: %v"}`+"\n", err)
		return
	}
	w.Write(append(b, '\n'))
}

// requestIDKey is a package-private context key; the *WithContext methods
// add a request_id field only when the context carries a value under it.
// Nothing outside this package can set it (tenancy stores its
// TenantContext under its own key), so that field is currently never set.
type requestIDKey struct{}

func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	l.logEvent(os.Stdout, "info", msg, fields, nil)
}
func (l *StructuredLogger) Error(msg string, fields map[string]interface{}) {
	l.logEvent(os.Stderr, "error", msg, fields, nil)
}
func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	l.logEvent(os.Stderr, "warn", msg, fields, nil)
}
func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	l.logEvent(os.Stdout, "debug", msg, fields, nil)
}
func (l *StructuredLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logEvent(os.Stdout, "info", msg, fields, ctx)
}
func (l *StructuredLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logEvent(os.Stderr, "error", msg, fields, ctx)
}
func (l *StructuredLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logEvent(os.Stderr, "warn", msg, fields, ctx)
}
func (l *StructuredLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logEvent(os.Stdout, "debug", msg, fields, ctx)
}
