package logger

import (
	"fmt"
	"log/slog"
	"time"
)

// Standard field keys. Use these consistently so log lines emitted by
// different processes touching the same problem directory can be joined.
const (
	// Operation
	KeyCommand    = "command"
	KeyOperation  = "operation"
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAttempt    = "attempt"

	// Problem directory
	KeyDir     = "dir"
	KeyElement = "element"
	KeyOldPath = "old_path"
	KeyNewPath = "new_path"
	KeySize    = "size"
	KeyMode    = "mode"
	KeyKind    = "kind"

	// Identity
	KeyPID     = "pid"
	KeyUID     = "uid"
	KeyGID     = "gid"
	KeyOwner   = "owner"
	KeyLockPID = "lock_pid"

	// Archive
	KeyArchive = "archive"
	KeyCodec   = "codec"
	KeyExit    = "exit_status"

	// Watch and metrics
	KeyEvent   = "event"
	KeyAddress = "address"
)

// Dir returns a slog.Attr for a problem directory path
func Dir(p string) slog.Attr {
	return slog.String(KeyDir, p)
}

// Element returns a slog.Attr for an element name
func Element(name string) slog.Attr {
	return slog.String(KeyElement, name)
}

// OldPath returns a slog.Attr for the source path of a rename
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for the destination path of a rename
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// Size returns a slog.Attr for a size in bytes
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// Mode returns a slog.Attr for permission bits, printed in octal.
func Mode(m uint32) slog.Attr {
	return slog.String(KeyMode, fmt.Sprintf("%04o", m))
}

func PID(pid int) slog.Attr {
	return slog.Int(KeyPID, pid)
}

func LockPID(pid string) slog.Attr {
	return slog.String(KeyLockPID, pid)
}

func UID(uid int) slog.Attr {
	return slog.Int(KeyUID, uid)
}

func GID(gid int) slog.Attr {
	return slog.Int(KeyGID, gid)
}

func Owner(uid int) slog.Attr {
	return slog.Int(KeyOwner, uid)
}

// Attempt returns a slog.Attr for a retry counter
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Operation returns a slog.Attr for the operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Err returns a slog.Attr for an error. A nil error yields an empty Attr,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for elapsed time since start.
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}

func Archive(name string) slog.Attr {
	return slog.String(KeyArchive, name)
}

func Codec(name string) slog.Attr {
	return slog.String(KeyCodec, name)
}

// Event returns a slog.Attr for a watch event kind
func Event(kind string) slog.Attr {
	return slog.String(KeyEvent, kind)
}

// Address returns a slog.Attr for a listen address
func Address(addr string) slog.Attr {
	return slog.String(KeyAddress, addr)
}
