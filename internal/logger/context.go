package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for one RDMnet operation:
// a connection attempt, an LLRP probe cycle, or a session message pump tick.
type LogContext struct {
	TraceID      string    // OpenTelemetry trace ID
	SpanID       string    // OpenTelemetry span ID
	CID          string    // Component identifier (32 lowercase hex) of the local or remote component
	Scope        string    // RDMnet scope string
	ConnectionID string    // Opaque id of the broker TCP connection
	StartTime    time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext stamped with the current time.
func NewLogContext(cid string) *LogContext {
	return &LogContext{
		CID:       cid,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:      lc.TraceID,
		SpanID:       lc.SpanID,
		CID:          lc.CID,
		Scope:        lc.Scope,
		ConnectionID: lc.ConnectionID,
		StartTime:    lc.StartTime,
	}
}

// WithScope returns a copy with the scope set
func (lc *LogContext) WithScope(scope string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Scope = scope
	}
	return clone
}

// WithConnectionID returns a copy with the connection id set
func (lc *LogContext) WithConnectionID(connID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ConnectionID = connID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
