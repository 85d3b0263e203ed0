package dumpdir

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/marmos91/probdir/internal/logger"
	"github.com/marmos91/probdir/internal/telemetry"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"golang.org/x/sys/unix"
)

// Store opens and creates problem directories sharing one Config.
// A Store has no mutable state and is safe for concurrent use; the Dir
// handles it returns are not.
type Store struct {
	cfg Config
}

// New returns a Store. Zero fields of cfg are filled with defaults.
func New(cfg Config) *Store {
	return &Store{cfg: cfg.normalize()}
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// OpenOptions controls Open.
type OpenOptions struct {
	// DontWaitForLock fails with Busy instead of waiting for a live holder,
	// and with NotADumpDirectory on the first failed element check.
	DontWaitForLock bool

	// ReadOnly accepts an unlocked handle when the lock cannot be created,
	// typically because the caller may read but not write the directory.
	ReadOnly bool

	// FDOnly opens the directory without locking it. Only metadata queries
	// (Owner, StatForUID) are meaningful on such a handle.
	FDOnly bool

	// Follow accepts a path whose last component is a symlink.
	Follow bool
}

// Dir is an open problem directory.
type Dir struct {
	store *Store
	path  string
	fd    int
	mdfd  int

	locked   bool
	ownsLock bool
	readOnly bool
	closed   bool
	deleted  bool

	uid  int
	gid  int
	mode os.FileMode
	time int64
	typ  string
}

func newDir(s *Store, path string) *Dir {
	return &Dir{store: s, path: cleanDirPath(path), fd: -1, mdfd: -1, uid: -1, gid: -1}
}

func cleanDirPath(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" && path != "" {
		return "/"
	}
	return trimmed
}

// Open opens and, unless opts.FDOnly is set, locks an existing problem
// directory. Without DontWaitForLock it blocks until the lock is free or
// ctx is done.
func (s *Store) Open(ctx context.Context, path string, opts OpenOptions) (*Dir, error) {
	d := newDir(s, path)

	flags := unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC
	if !opts.Follow {
		flags |= unix.O_NOFOLLOW
	}
	fd, err := unix.Open(d.path, flags, 0)
	if err != nil {
		if errors.Is(err, unix.ENOTDIR) || errors.Is(err, unix.ELOOP) {
			return nil, dderrors.NewNotDirectoryError(d.path)
		}
		if errors.Is(err, unix.ENOENT) {
			return nil, dderrors.NewNotFoundError(d.path, "problem directory")
		}
		return nil, dderrors.FromOS("open", d.path, err)
	}
	d.fd = fd

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		d.release()
		return nil, dderrors.FromOS("open", d.path, err)
	}
	d.mode = os.FileMode(st.Mode & 0o666)
	d.uid = int(st.Uid)
	// Elements written by root keep the directory group; everybody else
	// can only hand out their own.
	d.gid = s.cfg.Credentials.GID
	if s.cfg.Credentials.UID == 0 {
		d.gid = int(st.Gid)
	}

	if opts.FDOnly {
		return d, nil
	}

	err = d.lock(ctx, s.openPolicy(), opts.DontWaitForLock)
	if err == nil {
		return d, nil
	}

	if !opts.ReadOnly || ctx.Err() != nil ||
		dderrors.IsBusyError(err) || dderrors.IsNotDumpDirectoryError(err) {
		d.release()
		return nil, err
	}

	// Could not lock. Fall back to read-only access when we may read it.
	if aerr := unix.Faccessat(fd, ".", unix.R_OK, 0); aerr != nil {
		d.release()
		return nil, dderrors.FromOS("open", d.path, aerr)
	}
	if missing := d.check(); missing != "" {
		d.release()
		return nil, dderrors.NewNotDumpDirectoryError(d.path, missing)
	}
	logger.Debug("opened problem directory read-only", logger.Dir(d.path), logger.Err(err))
	d.readOnly = true
	return d, nil
}

// Close unlocks the directory and releases its descriptors. Close is
// idempotent.
func (d *Dir) Close() error {
	if d.closed {
		return nil
	}
	err := d.Unlock()
	d.release()
	return err
}

func (d *Dir) release() {
	if d.mdfd >= 0 {
		_ = unix.Close(d.mdfd)
		d.mdfd = -1
	}
	if d.fd >= 0 {
		_ = unix.Close(d.fd)
		d.fd = -1
	}
	d.closed = true
}

// Store returns the Store the handle was opened with.
func (d *Dir) Store() *Store { return d.store }

// Path returns the current path of the directory.
func (d *Dir) Path() string { return d.path }

// Type returns the problem type read while locking or set by Create.
func (d *Dir) Type() string { return d.typ }

// Time returns the creation time read while locking or set by Create.
func (d *Dir) Time() time.Time { return time.Unix(d.time, 0) }

// UID returns the owner given to new elements, -1 for unchanged.
func (d *Dir) UID() int { return d.uid }

// GID returns the group given to new elements.
func (d *Dir) GID() int { return d.gid }

// Mode returns the permission bits of new elements.
func (d *Dir) Mode() os.FileMode { return d.mode }

// Locked reports whether the handle holds the lock.
func (d *Dir) Locked() bool { return d.locked }

// OwnsLock reports whether the handle created the .lock entry itself.
func (d *Dir) OwnsLock() bool { return d.ownsLock }

// AlreadyLocked reports a handle that found the lock held by this very
// process. Its Unlock leaves the lock in place.
func (d *Dir) AlreadyLocked() bool { return d.locked && !d.ownsLock }

// ReadOnly reports whether the handle was opened without a lock.
func (d *Dir) ReadOnly() bool { return d.readOnly }

func (d *Dir) requireLock(op string) error {
	if d.deleted {
		return dderrors.NewNotFoundError(d.path, "problem directory")
	}
	if !d.locked {
		return dderrors.NewNotLockedError(op, d.path)
	}
	return nil
}

// Rename moves the directory to newPath. Open descriptors stay valid.
func (d *Dir) Rename(newPath string) error {
	if err := d.requireLock("rename"); err != nil {
		return err
	}
	newPath = cleanDirPath(newPath)
	if err := ValidateDirName(newPath); err != nil {
		return err
	}
	if err := os.Rename(d.path, newPath); err != nil {
		return dderrors.FromOS("rename", d.path, err)
	}
	logger.Debug("renamed problem directory", logger.OldPath(d.path), logger.NewPath(newPath))
	d.path = newPath
	return nil
}

// Delete removes the directory with all its contents and releases the
// handle. The lock entry is removed last so concurrent openers keep backing
// off until the directory is gone.
func (d *Dir) Delete() (err error) {
	if err := d.requireLock("delete"); err != nil {
		return err
	}
	defer func() {
		if m := d.metrics(); m != nil {
			m.RecordDelete(outcomeOf(err))
		}
	}()

	if err := d.deleteMetaData(); err != nil {
		return dderrors.FromOS("delete", d.path, err)
	}
	if err := deleteFileDir(d.fd, true); err != nil {
		return dderrors.FromOS("delete", d.path, err)
	}

	timing := d.store.cfg.Timing
	for cnt := timing.RmdirCount; ; cnt-- {
		rerr := unix.Rmdir(d.path)
		if rerr == nil || errors.Is(rerr, unix.ENOENT) {
			break
		}
		// Someone locked the directory while we were deleting it; they
		// will notice the missing time file and unlock shortly.
		if cnt <= 1 {
			return dderrors.FromOS("delete", d.path, rerr)
		}
		time.Sleep(timing.RmdirRetry)
	}

	logger.Debug("deleted problem directory", logger.Dir(d.path))
	d.locked = false
	d.ownsLock = false
	d.deleted = true
	d.release()
	return nil
}

// DeletePath opens path and deletes it.
func (s *Store) DeletePath(ctx context.Context, path string) (err error) {
	ctx, span := telemetry.StartDirSpan(ctx, telemetry.SpanDelete, path)
	defer func() { telemetry.End(span, err) }()

	d, err := s.Open(ctx, path, OpenOptions{})
	if err != nil {
		return err
	}
	if err := d.Delete(); err != nil {
		_ = d.Close()
		return err
	}
	return nil
}

// readDirNames lists dirfd in directory order without moving dirfd's own
// offset for later users.
func readDirNames(dirfd int) ([]string, error) {
	nfd, err := unix.Dup(dirfd)
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(nfd)
	f := os.NewFile(uintptr(nfd), "")
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f.Readdirnames(-1)
}

// deleteFileDir empties dirfd recursively. With skipLock the .lock entry is
// unlinked after everything else.
func deleteFileDir(dirfd int, skipLock bool) error {
	names, err := readDirNames(dirfd)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENOTDIR) {
			return nil
		}
		return err
	}

	unlinkLock := false
	for _, name := range names {
		if skipLock && name == LockName {
			unlinkLock = true
			continue
		}
		err := unix.Unlinkat(dirfd, name, 0)
		if err == nil || errors.Is(err, unix.ENOENT) {
			continue
		}
		if !errors.Is(err, unix.EISDIR) {
			logger.Error("can't remove", logger.Element(name), logger.Err(err))
			return err
		}

		sub, err := unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
		if err != nil {
			return err
		}
		err = deleteFileDir(sub, false)
		_ = unix.Close(sub)
		if err != nil {
			return err
		}
		if err := unix.Unlinkat(dirfd, name, unix.AT_REMOVEDIR); err != nil && !errors.Is(err, unix.ENOENT) {
			return err
		}
	}

	if unlinkLock {
		if err := unix.Unlinkat(dirfd, LockName, 0); err != nil && !errors.Is(err, unix.ENOENT) {
			return err
		}
	}
	return nil
}
