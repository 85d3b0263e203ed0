package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys.
const (
	AttrDir         = "probdir.dir"
	AttrType        = "probdir.type"
	AttrUID         = "user.uid"
	AttrLockPolicy  = "probdir.lock.policy"
	AttrLockOutcome = "probdir.lock.outcome"
	AttrLockHolder  = "probdir.lock.holder"
	AttrAttempts    = "probdir.lock.attempts"
	AttrArchive     = "probdir.archive.path"
	AttrCodec       = "probdir.archive.codec"
	AttrBytes       = "probdir.archive.bytes"
	AttrWatchEvent  = "probdir.watch.event"
)

// Span names.
const (
	SpanLock       = "dumpdir.lock"
	SpanCreate     = "dumpdir.create"
	SpanDelete     = "dumpdir.delete"
	SpanExport     = "archive.export"
	SpanWatchEvent = "watch.event"
)

// Event names.
const (
	EventLockBusy       = "lock.busy"
	EventLockStale      = "lock.stale"
	EventLockNotDumpDir = "lock.not_dump_dir"
)

func Dir(path string) attribute.KeyValue { return attribute.String(AttrDir, path) }

func Type(typ string) attribute.KeyValue { return attribute.String(AttrType, typ) }

func UID(uid int) attribute.KeyValue { return attribute.Int(AttrUID, uid) }

func LockPolicy(name string) attribute.KeyValue { return attribute.String(AttrLockPolicy, name) }

func LockOutcome(outcome string) attribute.KeyValue {
	return attribute.String(AttrLockOutcome, outcome)
}

// LockHolder is the raw target of the lock symlink.
func LockHolder(target string) attribute.KeyValue {
	return attribute.String(AttrLockHolder, target)
}

func Attempts(n int) attribute.KeyValue { return attribute.Int(AttrAttempts, n) }

func Archive(path string) attribute.KeyValue { return attribute.String(AttrArchive, path) }

func Codec(name string) attribute.KeyValue { return attribute.String(AttrCodec, name) }

func Bytes(n int64) attribute.KeyValue { return attribute.Int64(AttrBytes, n) }

func WatchEvent(kind string) attribute.KeyValue { return attribute.String(AttrWatchEvent, kind) }

// StartDirSpan starts a span for an operation on the problem directory at
// path.
func StartDirSpan(ctx context.Context, name, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Dir(path)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
