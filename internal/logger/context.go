package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for one wire request
// flowing through the client or server protocol engine.
type LogContext struct {
	ConnectionID string    // Channel/session identifier
	Procedure    string    // Packet-type name (OPEN, READ, WRITE, etc.)
	ClientIP     string    // Client IP address (without port)
	UID          uint32    // Effective user ID
	GID          uint32    // Effective group ID
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

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		ConnectionID: lc.ConnectionID,
		Procedure:    lc.Procedure,
		ClientIP:     lc.ClientIP,
		UID:          lc.UID,
		GID:          lc.GID,
		StartTime:    lc.StartTime,
	}
}

// WithProcedure returns a copy with the procedure set
func (lc *LogContext) WithProcedure(procedure string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Procedure = procedure
	}
	return clone
}

// WithConnectionID returns a copy with the connection/channel ID set
func (lc *LogContext) WithConnectionID(id string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ConnectionID = id
	}
	return clone
}

// WithAuth returns a copy with the reported UID/GID set
func (lc *LogContext) WithAuth(uid, gid uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.UID = uid
		clone.GID = gid
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
