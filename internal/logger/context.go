package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var opContextKey = contextKey{}

// OpContext carries the fields every log line of one CLI invocation or
// engine operation should repeat.
type OpContext struct {
	Command   string // CLI subcommand or engine operation
	Dir       string // problem directory being worked on
	PID       int    // pid written into .lock
	UID       int    // requesting uid, -1 when not relevant
	StartTime time.Time
}

// NewOpContext creates an OpContext for command with no uid bound.
func NewOpContext(command string) *OpContext {
	return &OpContext{
		Command:   command,
		UID:       -1,
		StartTime: time.Now(),
	}
}

// WithContext returns a new context carrying oc.
func WithContext(ctx context.Context, oc *OpContext) context.Context {
	return context.WithValue(ctx, opContextKey, oc)
}

// FromContext retrieves the OpContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *OpContext {
	if ctx == nil {
		return nil
	}
	oc, _ := ctx.Value(opContextKey).(*OpContext)
	return oc
}

// Clone creates a copy of the OpContext
func (oc *OpContext) Clone() *OpContext {
	if oc == nil {
		return nil
	}
	c := *oc
	return &c
}

// WithDir returns a copy bound to dir.
func (oc *OpContext) WithDir(dir string) *OpContext {
	c := oc.Clone()
	if c != nil {
		c.Dir = dir
	}
	return c
}

// WithUID returns a copy bound to uid.
func (oc *OpContext) WithUID(uid int) *OpContext {
	c := oc.Clone()
	if c != nil {
		c.UID = uid
	}
	return c
}

// DurationMs returns the time since StartTime in milliseconds.
func (oc *OpContext) DurationMs() float64 {
	if oc == nil || oc.StartTime.IsZero() {
		return 0
	}
	return Duration(oc.StartTime)
}
