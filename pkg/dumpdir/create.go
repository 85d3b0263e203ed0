package dumpdir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/probdir/internal/logger"
	"github.com/marmos91/probdir/internal/telemetry"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"golang.org/x/sys/unix"
)

// Host files read by CreateBasicFiles. Variables so tests can point them
// at fixtures.
var (
	osInfoPath   = "/etc/os-release"
	releasePaths = []string{"/etc/system-release", "/etc/redhat-release", "/etc/SuSE-release"}
)

// CreateRequest describes a new problem directory.
type CreateRequest struct {
	// Type is stored in the type element and starts the directory name.
	Type string

	// UID is the uid of the user the problem belongs to, -1 if unknown.
	UID int

	// PID goes into the directory name. Zero means Config.PID.
	PID int

	// Mode is the element mode. Zero means Config.ElementMode.
	Mode os.FileMode

	// ChrootDir, when set, is the root of the crashed process. Its release
	// files are copied next to the host ones.
	ChrootDir string

	// Populate writes the problem specific elements.
	Populate func(*Dir) error
}

// DirName returns the conventional name of a problem directory:
// <type>-<local time>.<microseconds>-<pid>.
func DirName(typ string, t time.Time, pid int) string {
	return fmt.Sprintf("%s-%s.%06d-%d", typ, t.Format("2006-01-02-15:04:05"), t.Nanosecond()/1000, pid)
}

// Create builds a complete problem directory under base. The directory is
// populated under a ".new" name and renamed into place once all elements
// are written, so scanners never see a half-built problem. On failure
// everything created so far is removed.
func (s *Store) Create(ctx context.Context, base string, req CreateRequest) (*Dir, error) {
	ctx, span := telemetry.StartDirSpan(ctx, telemetry.SpanCreate, base,
		telemetry.Type(req.Type), telemetry.UID(req.UID))
	d, err := s.create(ctx, base, req)
	if err == nil {
		span.SetAttributes(telemetry.Dir(d.Path()))
	}
	telemetry.End(span, err)
	return d, err
}

func (s *Store) create(ctx context.Context, base string, req CreateRequest) (*Dir, error) {
	if req.Type == "" || strings.HasPrefix(req.Type, ".") || !IsCorrectFilename(req.Type) {
		return nil, dderrors.NewInvalidNameError(req.Type)
	}
	pid := req.PID
	if pid == 0 {
		pid = s.cfg.PID
	}
	mode := req.Mode
	if mode == 0 {
		mode = s.cfg.ElementMode
	}

	name := DirName(req.Type, s.cfg.Now(), pid)
	if err := ValidateDirName(name); err != nil {
		return nil, err
	}
	final := filepath.Join(base, name)

	d, err := s.createSkeleton(ctx, final+NewSuffix, req.UID, mode)
	if err != nil {
		return nil, err
	}

	populate := func() error {
		if err := d.SaveText(ElementType, req.Type); err != nil {
			return err
		}
		d.typ = req.Type
		if req.Populate != nil {
			if err := req.Populate(d); err != nil {
				return err
			}
		}
		return d.CreateBasicFiles(req.UID, req.ChrootDir)
	}
	if err := populate(); err != nil {
		d.abort(err)
		return nil, err
	}

	if err := d.ResetOwnership(); err != nil {
		logger.Warn("can't reset ownership", logger.Dir(d.path), logger.Err(err))
	}
	if err := d.Rename(final); err != nil {
		d.abort(err)
		return nil, err
	}

	logger.Info("created problem directory", logger.Dir(d.path), logger.UID(req.UID))
	return d, nil
}

// CreateAt creates a bare, locked problem directory at path, the way
// lower level producers build one element by element. The caller must save
// the time and type elements (CreateBasicFiles writes time).
func (s *Store) CreateAt(ctx context.Context, path string, uid int, mode os.FileMode) (*Dir, error) {
	if mode == 0 {
		mode = s.cfg.ElementMode
	}
	if err := ValidateDirName(cleanDirPath(path)); err != nil {
		return nil, err
	}
	d, err := s.createSkeleton(ctx, path, uid, mode)
	if err != nil {
		return nil, err
	}
	if err := d.ResetOwnership(); err != nil {
		logger.Warn("can't reset ownership", logger.Dir(d.path), logger.Err(err))
	}
	return d, nil
}

func (d *Dir) abort(cause error) {
	logger.Warn("removing incomplete problem directory", logger.Dir(d.path), logger.Err(cause))
	if err := d.Delete(); err != nil {
		logger.Error("can't remove incomplete problem directory", logger.Dir(d.path), logger.Err(err))
		_ = d.Close()
	}
}

// createSkeleton makes the directory, locks it and decides the owner and
// group of every element written later.
//
// With OwnedByUser the crashed user owns the elements and the service group
// may write them. Otherwise the service user owns them and the crashed
// user's group may read them.
//
// The caller validates the final directory name; path may carry the
// temporary suffix on top of it.
func (s *Store) createSkeleton(ctx context.Context, path string, uid int, mode os.FileMode) (*Dir, error) {
	d := newDir(s, path)
	d.mode = mode.Perm()
	dirMode := dirModeFor(d.mode)

	if s.cfg.CreateParentDirs {
		if err := os.MkdirAll(filepath.Dir(d.path), dirMode); err != nil {
			return nil, dderrors.FromOS("create", d.path, err)
		}
	}
	if err := unix.Mkdir(d.path, uint32(dirMode)); err != nil {
		if errors.Is(err, unix.EEXIST) {
			return nil, dderrors.NewAlreadyExistsError(d.path)
		}
		return nil, dderrors.FromOS("create", d.path, err)
	}

	fd, err := unix.Open(d.path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = unix.Rmdir(d.path)
		return nil, dderrors.FromOS("create", d.path, err)
	}
	d.fd = fd

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		d.release()
		_ = unix.Rmdir(d.path)
		return nil, dderrors.FromOS("create", d.path, err)
	}

	if err := d.lock(ctx, s.createPolicy(), false); err != nil {
		d.release()
		_ = unix.Rmdir(d.path)
		return nil, err
	}

	// mkdir's mode is subject to umask
	if err := unix.Fchmod(fd, uint32(dirMode)); err != nil {
		d.abort(err)
		return nil, dderrors.FromOS("create", d.path, err)
	}

	d.uid, d.gid = int(st.Uid), int(st.Gid)
	d.mdfd, err = createSubdirAt(fd, MetaDataDirName, d.uid, d.gid, dirMode)
	if err != nil {
		d.abort(err)
		return nil, dderrors.FromOS("create", d.path, err)
	}
	if err := d.SetOwner(d.uid); err != nil {
		d.abort(err)
		return nil, err
	}

	if uid != -1 {
		d.uid, d.gid = 0, 0
		if s.cfg.OwnedByUser {
			if _, err := s.cfg.Accounts.PrimaryGroup(uid); err == nil {
				d.uid = uid
			} else {
				logger.Error("user does not exist, problem directory will be owned by root",
					logger.Dir(d.path), logger.UID(uid), logger.Err(err))
			}
			if gid, err := s.serviceGroupGID(); err == nil {
				d.gid = gid
			} else {
				logger.Error("service group does not exist, using group 0",
					logger.Dir(d.path), logger.Err(err))
			}
		} else {
			if suid, err := s.cfg.Accounts.LookupUser(s.cfg.ServiceUserName); err == nil {
				d.uid = suid
			} else {
				logger.Error("service user does not exist, using uid 0",
					logger.Dir(d.path), logger.Err(err))
			}
			if gid, err := s.cfg.Accounts.PrimaryGroup(uid); err == nil {
				d.gid = gid
			} else {
				logger.Error("user does not exist, using group 0",
					logger.Dir(d.path), logger.UID(uid), logger.Err(err))
			}
		}
	}

	d.time = s.cfg.Now().Unix()
	logger.Debug("created problem directory skeleton", logger.Dir(d.path),
		logger.UID(d.uid), logger.GID(d.gid), logger.Mode(uint32(d.mode)))
	return d, nil
}

// CreateBasicFiles saves the elements every problem carries: time and
// last_occurrence when time is missing, uid, and host information.
// Elements that already exist are kept; producers may know better.
func (d *Dir) CreateBasicFiles(uid int, chrootDir string) error {
	if err := d.requireLock("create basic files"); err != nil {
		return err
	}

	if t, err := readNumberAt(d.fd, ElementTime); err == nil {
		d.time = t
	} else {
		now := strconv.FormatInt(d.store.cfg.Now().Unix(), 10)
		if err := d.SaveText(ElementTime, now); err != nil {
			return err
		}
		if err := d.SaveText(ElementLastOccurrence, now); err != nil {
			return err
		}
	}

	if uid != -1 {
		if err := d.SetOwner(uid); err != nil {
			logger.Warn("can't record owner", logger.Dir(d.path), logger.Err(err))
		}
		if err := d.SaveText(ElementUID, strconv.Itoa(uid)); err != nil {
			return err
		}
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return dderrors.FromOS("uname", d.path, err)
	}
	host := []struct{ name, value string }{
		{ElementKernel, unix.ByteSliceToString(uts.Release[:])},
		{ElementArchitecture, unix.ByteSliceToString(uts.Machine[:])},
		{ElementHostname, unix.ByteSliceToString(uts.Nodename[:])},
	}
	for _, h := range host {
		if ok, _ := d.Exist(h.name); ok {
			continue
		}
		if err := d.SaveText(h.name, h.value); err != nil {
			return err
		}
	}

	if info, err := loadTextFile(osInfoPath); err == nil {
		if err := d.SaveText(ElementOSInfo, info); err != nil {
			return err
		}
	}
	if chrootDir != "" {
		d.copyFromChroot(ElementOSInfoInRootdir, chrootDir, osInfoPath)
	}

	if ok, _ := d.Exist(ElementOSRelease); !ok {
		for _, p := range releasePaths {
			release, err := loadTextFile(p)
			if err != nil {
				continue
			}
			release, _, _ = strings.Cut(release, "\n")
			if err := d.SaveText(ElementOSRelease, release); err != nil {
				return err
			}
			break
		}
		if chrootDir != "" {
			d.copyFromChroot(ElementOSReleaseInRootdir, chrootDir, releasePaths[0])
		}
	}
	return nil
}

func (d *Dir) copyFromChroot(name, chrootDir, path string) {
	data, err := loadTextFile(filepath.Join(chrootDir, path))
	if err != nil {
		logger.Debug("can't read file in root directory", logger.Dir(d.path), logger.Element(name), logger.Err(err))
		return
	}
	if err := d.SaveText(name, data); err != nil {
		logger.Warn("can't save element", logger.Dir(d.path), logger.Element(name), logger.Err(err))
	}
}
