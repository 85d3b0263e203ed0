// Package errors provides the error type and error codes returned by the
// problem directory engine. It is a leaf package so that the engine, the
// archive exporter and the CLI can all branch on codes without import cycles.
package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"

	"golang.org/x/sys/unix"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrNotFound indicates a missing element or problem directory.
	ErrNotFound ErrorCode = iota + 1

	// ErrPermissionDenied indicates EACCES or EPERM from the filesystem.
	ErrPermissionDenied

	// ErrBusy indicates the lock is held by another live process.
	// Retryable.
	ErrBusy

	// ErrNotDirectory indicates the path is not a directory at all.
	ErrNotDirectory

	// ErrNotDumpDirectory indicates an ordinary directory: it could be locked
	// but the mandatory elements never showed up.
	ErrNotDumpDirectory

	// ErrCorrupt indicates an element that exists but cannot be parsed or is
	// not a plain regular file.
	ErrCorrupt

	// ErrNoSpace indicates ENOSPC or EDQUOT.
	ErrNoSpace

	// ErrIOError indicates any other OS level failure.
	ErrIOError

	// ErrAlreadyLocked indicates the calling process already holds the lock.
	// Not a failure; reported by handles that do not own the lock.
	ErrAlreadyLocked

	// ErrInvalidName indicates an element or directory name that fails
	// validation.
	ErrInvalidName

	// ErrNotLocked indicates a mutation attempted without holding the lock.
	ErrNotLocked

	// ErrAlreadyExists indicates the target of a create or rename exists.
	ErrAlreadyExists

	// ErrNotSupported indicates an unsupported archive format or open mode.
	ErrNotSupported

	// ErrInvalidArgument indicates a bad argument that is not a name.
	ErrInvalidArgument

	// ErrSignaled indicates an archive filter process killed by a signal.
	ErrSignaled

	// ErrNonZeroExit indicates an archive filter process that exited with a
	// failure status.
	ErrNonZeroExit
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrNotFound:
		return "NotFound"
	case ErrPermissionDenied:
		return "PermissionDenied"
	case ErrBusy:
		return "Busy"
	case ErrNotDirectory:
		return "NotADirectory"
	case ErrNotDumpDirectory:
		return "NotADumpDirectory"
	case ErrCorrupt:
		return "Corrupt"
	case ErrNoSpace:
		return "NoSpace"
	case ErrIOError:
		return "IOError"
	case ErrAlreadyLocked:
		return "AlreadyLocked"
	case ErrInvalidName:
		return "InvalidName"
	case ErrNotLocked:
		return "NotLocked"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrNotSupported:
		return "NotSupported"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrSignaled:
		return "Signaled"
	case ErrNonZeroExit:
		return "NonZeroExit"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// StoreError is the error type returned by the engine. Op names the engine
// operation, Path the directory or element involved and Err the underlying
// OS error, if any.
type StoreError struct {
	Code    ErrorCode
	Op      string
	Message string
	Path    string
	Err     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	s := fmt.Sprintf("%s: %s", e.Code, msg)
	if e.Path != "" {
		s += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is reports a match when target is a *StoreError carrying the same code,
// so errors.Is(err, &StoreError{Code: ErrBusy}) works.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Path == ""
}

// New creates a StoreError with no underlying cause.
func New(code ErrorCode, op, path, message string) *StoreError {
	return &StoreError{Code: code, Op: op, Path: path, Message: message}
}

// Wrap creates a StoreError around err.
func Wrap(code ErrorCode, op, path string, err error) *StoreError {
	msg := "failed"
	if err == nil {
		msg = code.String()
	}
	return &StoreError{Code: code, Op: op, Path: path, Message: msg, Err: err}
}

// FromOS maps an OS error to a StoreError. A *StoreError is returned
// unchanged and nil maps to nil.
func FromOS(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if stderrors.As(err, &se) {
		return err
	}
	return Wrap(codeFor(err), op, path, err)
}

func codeFor(err error) ErrorCode {
	var errno unix.Errno
	if stderrors.As(err, &errno) {
		switch errno {
		case unix.ENOENT:
			return ErrNotFound
		case unix.EACCES, unix.EPERM:
			return ErrPermissionDenied
		case unix.ENOTDIR:
			return ErrNotDirectory
		case unix.ENOSPC, unix.EDQUOT:
			return ErrNoSpace
		case unix.EEXIST, unix.ENOTEMPTY:
			return ErrAlreadyExists
		case unix.ELOOP, unix.EMEDIUMTYPE:
			return ErrCorrupt
		case unix.EINVAL, unix.ENAMETOOLONG:
			return ErrInvalidArgument
		case unix.EAGAIN:
			return ErrBusy
		}
		return ErrIOError
	}
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case stderrors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	case stderrors.Is(err, fs.ErrExist):
		return ErrAlreadyExists
	}
	return ErrIOError
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(path, resourceType string) *StoreError {
	return &StoreError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resourceType),
		Path:    path,
	}
}

// NewBusyError creates a Busy error naming the pid that holds the lock.
func NewBusyError(path, holder string) *StoreError {
	return &StoreError{
		Code:    ErrBusy,
		Message: fmt.Sprintf("locked by process %s", holder),
		Path:    path,
	}
}

// NewNotDumpDirectoryError creates a NotADumpDirectory error.
func NewNotDumpDirectoryError(path, missing string) *StoreError {
	return &StoreError{
		Code:    ErrNotDumpDirectory,
		Message: fmt.Sprintf("not a problem directory (missing or corrupted '%s')", missing),
		Path:    path,
	}
}

// NewNotDirectoryError creates a NotADirectory error.
func NewNotDirectoryError(path string) *StoreError {
	return &StoreError{
		Code:    ErrNotDirectory,
		Message: "not a directory",
		Path:    path,
	}
}

// NewCorruptError creates a Corrupt error.
func NewCorruptError(path, reason string) *StoreError {
	return &StoreError{
		Code:    ErrCorrupt,
		Message: reason,
		Path:    path,
	}
}

// NewInvalidNameError creates an InvalidName error.
func NewInvalidNameError(name string) *StoreError {
	return &StoreError{
		Code:    ErrInvalidName,
		Message: fmt.Sprintf("'%s' is not a valid file name", name),
	}
}

// NewNotLockedError creates a NotLocked error for op on path.
func NewNotLockedError(op, path string) *StoreError {
	return &StoreError{
		Code:    ErrNotLocked,
		Op:      op,
		Message: "problem directory is not locked",
		Path:    path,
	}
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(path string) *StoreError {
	return &StoreError{
		Code:    ErrAlreadyExists,
		Message: "already exists",
		Path:    path,
	}
}

// NewNotSupportedError creates a NotSupported error.
func NewNotSupportedError(message string) *StoreError {
	return &StoreError{
		Code:    ErrNotSupported,
		Message: message,
	}
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(message string) *StoreError {
	return &StoreError{
		Code:    ErrInvalidArgument,
		Message: message,
	}
}

// ============================================================================
// Error Type Checking Helpers
// ============================================================================

// CodeOf returns the code of the first StoreError in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsNotFoundError returns true if the error is a NotFound error.
func IsNotFoundError(err error) bool { return CodeOf(err) == ErrNotFound }

// IsBusyError returns true if the lock is held by another live process.
func IsBusyError(err error) bool { return CodeOf(err) == ErrBusy }

// IsPermissionDeniedError returns true for EACCES/EPERM failures.
func IsPermissionDeniedError(err error) bool { return CodeOf(err) == ErrPermissionDenied }

// IsNotDirectoryError returns true if the path is not a directory.
func IsNotDirectoryError(err error) bool { return CodeOf(err) == ErrNotDirectory }

// IsNotDumpDirectoryError returns true if the directory lacks mandatory elements.
func IsNotDumpDirectoryError(err error) bool { return CodeOf(err) == ErrNotDumpDirectory }

// IsCorruptError returns true for unparseable or irregular elements.
func IsCorruptError(err error) bool { return CodeOf(err) == ErrCorrupt }

// IsInvalidNameError returns true for names rejected by validation.
func IsInvalidNameError(err error) bool { return CodeOf(err) == ErrInvalidName }

// IsNotLockedError returns true for mutations attempted without the lock.
func IsNotLockedError(err error) bool { return CodeOf(err) == ErrNotLocked }

// IsAlreadyExistsError returns true if the target already exists.
func IsAlreadyExistsError(err error) bool { return CodeOf(err) == ErrAlreadyExists }

// IsNoSpaceError returns true for ENOSPC/EDQUOT.
func IsNoSpaceError(err error) bool { return CodeOf(err) == ErrNoSpace }

// IsInvalidArgumentError returns true for rejected arguments other than names.
func IsInvalidArgumentError(err error) bool { return CodeOf(err) == ErrInvalidArgument }

// IsSignaledError returns true when an archive filter was killed.
func IsSignaledError(err error) bool { return CodeOf(err) == ErrSignaled }

// IsNonZeroExitError returns true when an archive filter failed.
func IsNonZeroExitError(err error) bool { return CodeOf(err) == ErrNonZeroExit }

// IsNotSupportedError returns true for unsupported formats and modes.
func IsNotSupportedError(err error) bool { return CodeOf(err) == ErrNotSupported }
