package dumpdir

import (
	"strings"

	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
)

// Reserved directory entries.
const (
	LockName        = ".lock"
	MetaDataDirName = ".libreport"
	OwnerFile       = "owner"

	// NewSuffix marks a directory still under construction.
	NewSuffix = ".new"
)

// MaxNameLength is the longest accepted element or directory name.
const MaxNameLength = 63

// Well known element names.
const (
	ElementTime               = "time"
	ElementLastOccurrence     = "last_occurrence"
	ElementType               = "type"
	ElementAnalyzer           = "analyzer"
	ElementUID                = "uid"
	ElementReason             = "reason"
	ElementExecutable         = "executable"
	ElementCmdline            = "cmdline"
	ElementBacktrace          = "backtrace"
	ElementArchitecture       = "architecture"
	ElementKernel             = "kernel"
	ElementHostname           = "hostname"
	ElementOSInfo             = "os_info"
	ElementOSInfoInRootdir    = "os_info_in_rootdir"
	ElementOSRelease          = "os_release"
	ElementOSReleaseInRootdir = "os_release_in_rootdir"
	ElementUUID               = "uuid"
	ElementDuphash            = "duphash"
	ElementCount              = "count"
	ElementPackage            = "package"
	ElementComponent          = "component"
	ElementComment            = "comment"
	ElementReportedTo         = "reported_to"
	ElementEventLog           = "event_log"
	ElementNotReportable      = "not-reportable"
)

// IsCorrectFilename reports whether name is usable as a single path
// component: non-empty, not "." or "..", printable ASCII or UTF-8 without
// control bytes, no '/', and at most MaxNameLength bytes.
func IsCorrectFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if len(name) > MaxNameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c == 0x7f || c == '/' {
			return false
		}
	}
	return true
}

// IsValidElementName reports whether name may be used for an element:
// a correct filename that is not the lock and does not start with the
// metadata directory name.
func IsValidElementName(name string) bool {
	return IsCorrectFilename(name) && !strings.HasPrefix(name, MetaDataDirName) && name != LockName
}

// ValidateElementName returns an InvalidName error for unusable names.
func ValidateElementName(name string) error {
	if !IsValidElementName(name) {
		return dderrors.NewInvalidNameError(name)
	}
	return nil
}

// ValidateDirName checks the last component of a directory path. Names
// starting with a dot are refused so that "dir/." and "dir/.." never reach
// mkdir.
func ValidateDirName(path string) error {
	last := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		last = path[i+1:]
	}
	if strings.HasPrefix(last, ".") || !IsCorrectFilename(last) {
		return dderrors.NewInvalidNameError(last)
	}
	return nil
}
