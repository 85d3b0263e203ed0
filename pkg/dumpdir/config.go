package dumpdir

import (
	"os"
	"os/user"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// Default timings of the locking protocol. Other processes on the same host
// use the same values, so changing them only makes sense in tests.
const (
	// DefaultSymlinkRetry is the pause after symlink failed with EEXIST and
	// readlink with ENOENT: someone just unlocked the directory.
	DefaultSymlinkRetry = 10 * time.Millisecond

	// DefaultOpenContention is the pause between attempts when Open sees the
	// lock held by a live process.
	DefaultOpenContention = 500 * time.Millisecond

	// DefaultCreateContention is the pause between attempts when Create sees
	// its own brand-new directory locked. Must differ from
	// DefaultOpenContention.
	DefaultCreateContention = 10 * time.Millisecond

	// DefaultNoTimeFileRetry and DefaultNoTimeFileCount bound the "locked it
	// but there is no time file" loop before giving up with
	// NotADumpDirectory.
	DefaultNoTimeFileRetry = 50 * time.Millisecond
	DefaultNoTimeFileCount = 10

	// DefaultRmdirRetry and DefaultRmdirCount bound the final rmdir of Delete.
	DefaultRmdirRetry = 10 * time.Millisecond
	DefaultRmdirCount = 50

	// DefaultMaxTextSize is the largest element loaded inline as text.
	DefaultMaxTextSize = 8 * 1024 * 1024

	// DefaultElementMode is the mode of elements in new problem directories.
	DefaultElementMode = 0o640
)

// Timing groups the sleep intervals and retry counts of the lock protocol.
type Timing struct {
	SymlinkRetry     time.Duration
	OpenContention   time.Duration
	CreateContention time.Duration
	NoTimeFileRetry  time.Duration
	NoTimeFileCount  int
	RmdirRetry       time.Duration
	RmdirCount       int
}

// DefaultTiming returns the timings every cooperating process uses.
func DefaultTiming() Timing {
	return Timing{
		SymlinkRetry:     DefaultSymlinkRetry,
		OpenContention:   DefaultOpenContention,
		CreateContention: DefaultCreateContention,
		NoTimeFileRetry:  DefaultNoTimeFileRetry,
		NoTimeFileCount:  DefaultNoTimeFileCount,
		RmdirRetry:       DefaultRmdirRetry,
		RmdirCount:       DefaultRmdirCount,
	}
}

// Credentials are the effective ids of the calling process.
type Credentials struct {
	UID int
	GID int
}

// Accounts resolves users and groups. The engine never reads the user
// database directly so tests can run unprivileged.
type Accounts interface {
	// PrimaryGroup returns the primary gid of uid. An error means the user
	// does not exist.
	PrimaryGroup(uid int) (int, error)
	// LookupUser returns the uid of the named user.
	LookupUser(name string) (int, error)
	// LookupGroup returns the gid of the named group.
	LookupGroup(name string) (int, error)
	// InGroup reports whether uid's primary or supplementary groups include gid.
	InGroup(uid, gid int) bool
}

// Config carries every process-wide setting of the engine.
// Build it with DefaultConfig and override fields as needed.
type Config struct {
	// SuperUserUID is the uid that can access every problem directory.
	SuperUserUID int

	// ServiceGroupGID is the group of new problem directories. When negative
	// the gid of ServiceGroupName is looked up.
	ServiceGroupGID  int
	ServiceGroupName string

	// NobodyUID is the "accessible to everyone, owned by no one" sentinel.
	// When negative the uid of the "nobody" user is looked up.
	NobodyUID int

	// OwnedByUser selects the ownership scheme of new directories: the
	// crashed user owns the directory and the service group can write it.
	// When false the service user owns it and the user's group can read it.
	OwnedByUser     bool
	ServiceUserName string

	// ElementMode is the default mode of elements in new directories.
	ElementMode os.FileMode

	// MaxTextSize is the largest element Load returns inline.
	MaxTextSize int64

	Timing      Timing
	Credentials Credentials

	// PID is written into the lock symlink.
	PID          int
	Now          func() time.Time
	ProcessAlive func(pid int) bool
	Accounts     Accounts
	Metrics      Metrics

	// CreateParentDirs makes Create build missing parents of the new
	// directory.
	CreateParentDirs bool
}

// DefaultConfig returns the configuration of an ordinary process: its own
// pid and credentials, the system user database and the default timings.
func DefaultConfig() Config {
	return Config{
		SuperUserUID:     0,
		ServiceGroupGID:  -1,
		ServiceGroupName: "abrt",
		ServiceUserName:  "abrt",
		NobodyUID:        -1,
		OwnedByUser:      true,
		ElementMode:      DefaultElementMode,
		MaxTextSize:      DefaultMaxTextSize,
		Timing:           DefaultTiming(),
		Credentials:      Credentials{UID: os.Geteuid(), GID: os.Getegid()},
		PID:              os.Getpid(),
		Now:              time.Now,
		ProcessAlive:     ProcAlive,
		Accounts:         OSAccounts{},
		CreateParentDirs: true,
	}
}

// normalize fills zero values left by callers that built Config by hand.
func (c Config) normalize() Config {
	if c.PID == 0 {
		c.PID = os.Getpid()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.ProcessAlive == nil {
		c.ProcessAlive = ProcAlive
	}
	if c.Accounts == nil {
		c.Accounts = OSAccounts{}
	}
	if c.Timing == (Timing{}) {
		c.Timing = DefaultTiming()
	}
	if c.ElementMode == 0 {
		c.ElementMode = DefaultElementMode
	}
	if c.MaxTextSize == 0 {
		c.MaxTextSize = DefaultMaxTextSize
	}
	return c
}

// ProcAlive reports whether pid exists by probing /proc/<pid>.
func ProcAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Access("/proc/"+strconv.Itoa(pid), unix.F_OK) == nil
}

// OSAccounts resolves users and groups through os/user.
type OSAccounts struct{}

func (OSAccounts) PrimaryGroup(uid int) (int, error) {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(u.Gid)
}

func (OSAccounts) LookupUser(name string) (int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(u.Uid)
}

func (OSAccounts) LookupGroup(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(g.Gid)
}

func (OSAccounts) InGroup(uid, gid int) bool {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return false
	}
	if u.Gid == strconv.Itoa(gid) {
		return true
	}
	groups, err := u.GroupIds()
	if err != nil {
		return false
	}
	return slices.Contains(groups, strconv.Itoa(gid))
}
