package dumpdir

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/marmos91/probdir/internal/logger"
	"github.com/marmos91/probdir/internal/telemetry"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"golang.org/x/sys/unix"
)

// Locking
//
// A problem directory is locked by creating a symlink named .lock inside it
// whose target is the pid of the locking process. symlink(2) either creates
// the entry or fails with EEXIST, and the target tells everyone who holds
// it, so no other coordination state is needed.
//
// After taking the lock Open checks that the "time" and "type" elements
// exist. If they don't, we either locked a directory another process just
// created and has not populated yet, or one that is being deleted and is
// momentarily empty. Either way we drop the lock and back off; the creator
// retries its lock much faster than we do and the deleter retries rmdir. A
// directory that never grows a time file is an ordinary directory.

type lockOutcome int

const (
	lockAcquired lockOutcome = iota
	lockReentered
	lockBusy
)

func (o lockOutcome) String() string {
	switch o {
	case lockAcquired:
		return "acquired"
	case lockReentered:
		return "reentered"
	default:
		return "busy"
	}
}

// lockPolicy selects the contention back-off and whether the mandatory
// elements are verified after locking.
type lockPolicy struct {
	name       string
	contention time.Duration
	check      bool
}

func (s *Store) openPolicy() lockPolicy {
	return lockPolicy{name: "open", contention: s.cfg.Timing.OpenContention, check: true}
}

func (s *Store) createPolicy() lockPolicy {
	return lockPolicy{name: "create", contention: s.cfg.Timing.CreateContention}
}

// tryLock makes one attempt at creating the lock symlink. A stale lock is
// removed and the attempt repeated; a lock disappearing between symlink and
// readlink is retried after a short pause.
func (d *Dir) tryLock(ctx context.Context) (lockOutcome, string, error) {
	pid := strconv.Itoa(d.store.cfg.PID)

	for {
		err := unix.Symlinkat(pid, d.fd, LockName)
		if err == nil {
			return lockAcquired, pid, nil
		}
		if !errors.Is(err, unix.EEXIST) {
			return lockBusy, "", err
		}

		holder, err := readlinkAt(d.fd, LockName)
		if err != nil {
			if errors.Is(err, unix.ENOENT) {
				// unlocked between our symlink and readlink
				if err := sleepCtx(ctx, d.store.cfg.Timing.SymlinkRetry); err != nil {
					return lockBusy, "", err
				}
				continue
			}
			return lockBusy, "", err
		}

		if holder == pid {
			logger.Warn("lock file is already locked by us", logger.Dir(d.path))
			return lockReentered, holder, nil
		}
		if hp, ok := parsePID(holder); ok {
			if d.store.cfg.ProcessAlive(hp) {
				return lockBusy, holder, nil
			}
			logger.Warn("lock holder no longer exists, removing stale lock",
				logger.Dir(d.path), logger.LockPID(holder))
		} else {
			logger.Warn("removing malformed lock", logger.Dir(d.path), logger.LockPID(holder))
		}

		telemetry.AddEvent(ctx, telemetry.EventLockStale, telemetry.LockHolder(holder))
		if m := d.metrics(); m != nil {
			m.RecordStaleLock()
		}
		if err := unix.Unlinkat(d.fd, LockName, 0); err != nil && !errors.Is(err, unix.ENOENT) {
			return lockBusy, holder, err
		}
	}
}

// lock acquires the directory lock according to policy. With nowait a lock
// held by a live process fails with Busy instead of waiting.
func (d *Dir) lock(ctx context.Context, policy lockPolicy, nowait bool) (err error) {
	if d.locked {
		return dderrors.New(dderrors.ErrAlreadyLocked, "lock", d.path, "handle is already locked")
	}

	start := time.Now()
	outcome := "error"
	attempts := 0
	ctx, span := telemetry.StartDirSpan(ctx, telemetry.SpanLock, d.path, telemetry.LockPolicy(policy.name))
	defer func() {
		span.SetAttributes(telemetry.LockOutcome(outcome), telemetry.Attempts(attempts))
		telemetry.End(span, err)
		if m := d.metrics(); m != nil {
			m.ObserveLock(policy.name, outcome, time.Since(start))
		}
	}()

	remaining := d.store.cfg.Timing.NoTimeFileCount
	for attempt := 1; ; attempt++ {
		attempts = attempt
		res, holder, err := d.tryLock(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return dderrors.FromOS("lock", d.path, err)
		}

		if res == lockBusy {
			if nowait {
				outcome = "busy"
				return dderrors.NewBusyError(d.path, holder)
			}
			logger.Debug("problem directory is locked by another process",
				logger.Dir(d.path), logger.LockPID(holder), logger.Attempt(attempt))
			telemetry.AddEvent(ctx, telemetry.EventLockBusy, telemetry.LockHolder(holder))
			if err := sleepCtx(ctx, policy.contention); err != nil {
				return err
			}
			continue
		}
		d.ownsLock = res == lockAcquired

		if policy.check {
			if missing := d.check(); missing != "" {
				if d.ownsLock {
					if err := unix.Unlinkat(d.fd, LockName, 0); err != nil && !errors.Is(err, unix.ENOENT) {
						return dderrors.FromOS("unlock", d.path, err)
					}
				}
				d.ownsLock = false
				logger.Info("unlocked problem directory, element missing or corrupted",
					logger.Dir(d.path), logger.Element(missing))
				telemetry.AddEvent(ctx, telemetry.EventLockNotDumpDir)

				remaining--
				if remaining <= 0 || nowait {
					outcome = "not_dump_dir"
					return dderrors.NewNotDumpDirectoryError(d.path, missing)
				}
				if err := sleepCtx(ctx, d.store.cfg.Timing.NoTimeFileRetry); err != nil {
					return err
				}
				continue
			}
		}

		d.locked = true
		outcome = res.String()
		logger.Debug("locked problem directory", logger.Dir(d.path), logger.PID(d.store.cfg.PID))
		return nil
	}
}

// Lock re-acquires the lock of a handle previously released with Unlock.
func (d *Dir) Lock(ctx context.Context, nowait bool) error {
	if d.closed {
		return dderrors.New(dderrors.ErrInvalidArgument, "lock", d.path, "handle is closed")
	}
	if err := d.lock(ctx, d.store.openPolicy(), nowait); err != nil {
		return err
	}
	d.readOnly = false
	return nil
}

// Unlock releases the lock. The .lock entry is only removed when this
// handle created it; a re-entrant handle just forgets it was locked.
func (d *Dir) Unlock() error {
	if !d.locked {
		return nil
	}
	if d.ownsLock {
		if err := unix.Unlinkat(d.fd, LockName, 0); err != nil && !errors.Is(err, unix.ENOENT) {
			return dderrors.FromOS("unlock", d.path, err)
		}
		logger.Debug("unlocked problem directory", logger.Dir(d.path))
	}
	d.locked = false
	d.ownsLock = false
	return nil
}

// check verifies the mandatory elements and caches their values. It
// returns the name of the first missing or unparseable one.
func (d *Dir) check() string {
	t, err := readNumberAt(d.fd, ElementTime)
	if err != nil {
		logger.Debug("missing or corrupted element", logger.Dir(d.path), logger.Element(ElementTime), logger.Err(err))
		return ElementTime
	}
	d.time = t

	data, _, err := readElementAt(d.fd, ElementType, false, d.store.cfg.MaxTextSize)
	typ := ""
	if err == nil {
		typ = NormalizeText(data)
	}
	if typ == "" {
		logger.Debug("missing or empty element", logger.Dir(d.path), logger.Element(ElementType))
		return ElementType
	}
	d.typ = typ
	return ""
}

func readlinkAt(dirfd int, name string) (string, error) {
	buf := make([]byte, 64)
	for {
		n, err := unix.Readlinkat(dirfd, name, buf)
		if err != nil {
			return "", err
		}
		if n < len(buf) {
			return string(buf[:n]), nil
		}
		buf = make([]byte, 2*len(buf))
	}
}

func parsePID(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	pid, err := strconv.Atoi(s)
	return pid, err == nil
}

// sleepCtx pauses for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
