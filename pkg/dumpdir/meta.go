package dumpdir

import (
	"errors"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/marmos91/probdir/internal/logger"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"golang.org/x/sys/unix"
)

// The metadata directory .libreport holds engine-private files such as the
// logical owner. It is trusted only when it matches the problem directory:
// same owner and group as new elements and the directory flavour of the
// element mode. Anything else is treated as if it did not exist.

// errInconsistentMeta reports a metadata directory that does not match.
var errInconsistentMeta = errors.New("metadata directory attributes do not match")

// dirModeFor derives a directory mode from an element mode: every read bit
// also grants search.
func dirModeFor(mode os.FileMode) os.FileMode {
	m := mode.Perm()
	return m | ((m & 0o444) >> 2)
}

// createSubdirAt makes name in dirfd with the given owner and mode and
// returns an open descriptor. A half-initialized directory is removed.
func createSubdirAt(dirfd int, name string, uid, gid int, mode os.FileMode) (int, error) {
	if err := unix.Mkdirat(dirfd, name, uint32(mode.Perm())); err != nil {
		return -1, err
	}

	fd, err := unix.Openat(dirfd, name, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err == nil && uid != -1 {
		err = unix.Fchown(fd, uid, gid)
	}
	if err == nil {
		err = unix.Fchmod(fd, uint32(mode.Perm()))
	}
	if err != nil {
		if fd >= 0 {
			_ = unix.Close(fd)
		}
		_ = unix.Unlinkat(dirfd, name, unix.AT_REMOVEDIR)
		return -1, err
	}
	return fd, nil
}

func (d *Dir) openMetaDataDir() (int, error) {
	fd, err := unix.Openat(d.fd, MetaDataDirName, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if int(st.Uid) != d.uid || int(st.Gid) != d.gid || os.FileMode(st.Mode&0o777) != dirModeFor(d.mode) {
		_ = unix.Close(fd)
		logger.Debug("ignoring metadata directory with unexpected attributes",
			logger.Dir(d.path), logger.UID(int(st.Uid)), logger.GID(int(st.Gid)), logger.Mode(st.Mode&0o777))
		return -1, errInconsistentMeta
	}
	return fd, nil
}

// metaDataDirFD returns the cached metadata directory descriptor, opening
// it (and with create, making it) on first use.
func (d *Dir) metaDataDirFD(create bool) (int, error) {
	if d.mdfd >= 0 {
		return d.mdfd, nil
	}
	fd, err := d.openMetaDataDir()
	if errors.Is(err, unix.ENOENT) && create {
		fd, err = createSubdirAt(d.fd, MetaDataDirName, d.uid, d.gid, dirModeFor(d.mode))
	}
	if err != nil {
		return -1, err
	}
	d.mdfd = fd
	return fd, nil
}

// metaDataSaveText atomically replaces a metadata file.
func (d *Dir) metaDataSaveText(name, data string) error {
	if err := d.requireLock("save metadata"); err != nil {
		return err
	}
	if !IsCorrectFilename(name) {
		return dderrors.NewInvalidNameError(name)
	}

	mdfd, err := d.metaDataDirFD(true)
	if err != nil {
		return dderrors.FromOS("save metadata", d.path, err)
	}

	if err := replaceFileAt(mdfd, name, "~"+name+".tmp", []byte(data), d.uid, d.gid, d.mode); err != nil {
		return dderrors.FromOS("save metadata", d.path, err)
	}
	if m := d.metrics(); m != nil {
		m.RecordSave("meta", len(data))
	}
	return nil
}

func (d *Dir) deleteMetaData() error {
	mdfd, err := d.metaDataDirFD(false)
	if err != nil {
		// missing or foreign: removed with the rest of the tree
		return nil
	}
	if err := deleteFileDir(mdfd, false); err != nil {
		return err
	}
	_ = unix.Close(mdfd)
	d.mdfd = -1
	if err := unix.Unlinkat(d.fd, MetaDataDirName, unix.AT_REMOVEDIR); err != nil && !errors.Is(err, unix.ENOENT) {
		return err
	}
	return nil
}

// chownMetaData gives the metadata directory and its files a new owner.
func (d *Dir) chownMetaData(uid, gid int) error {
	mdfd, err := d.metaDataDirFD(false)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return err
	}

	var result *multierror.Error
	if err := unix.Fchown(mdfd, uid, gid); err != nil {
		result = multierror.Append(result, err)
	}
	names, err := readDirNames(mdfd)
	if err != nil {
		return multierror.Append(result, err).ErrorOrNil()
	}
	for _, name := range names {
		if err := unix.Fchownat(mdfd, name, uid, gid, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (d *Dir) sanitizeMetaData() error {
	mdfd, err := d.metaDataDirFD(false)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return err
	}

	var result *multierror.Error
	if err := unix.Fchmod(mdfd, uint32(dirModeFor(d.mode))); err != nil {
		result = multierror.Append(result, err)
	}
	names, err := readDirNames(mdfd)
	if err != nil {
		return multierror.Append(result, err).ErrorOrNil()
	}
	for _, name := range names {
		f, err := secureOpenReadAt(mdfd, name)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if err := f.Chmod(d.mode.Perm()); err != nil {
			result = multierror.Append(result, err)
		}
		_ = f.Close()
	}
	return result.ErrorOrNil()
}

// Owner returns the logical owner of the directory. It falls back to the
// filesystem owner when the metadata is missing, foreign or unreadable.
func (d *Dir) Owner() (int, error) {
	if mdfd, err := d.metaDataDirFD(false); err == nil {
		v, err := readNumberAt(mdfd, OwnerFile)
		if err == nil {
			return int(v), nil
		}
		logger.Debug("no usable owner file, using directory owner", logger.Dir(d.path), logger.Err(err))
	}

	var st unix.Stat_t
	if err := unix.Fstat(d.fd, &st); err != nil {
		return -1, dderrors.FromOS("owner", d.path, err)
	}
	return int(st.Uid), nil
}

// SetOwner records uid as the logical owner. -1 means the uid new elements
// are written with.
func (d *Dir) SetOwner(uid int) error {
	if uid == -1 {
		uid = d.uid
	}
	if err := d.metaDataSaveText(OwnerFile, strconv.Itoa(uid)); err != nil {
		return err
	}
	logger.Debug("set problem directory owner", logger.Dir(d.path), logger.Owner(uid))
	return nil
}

// SetNoOwner makes the directory accessible to everybody and owned by
// nobody.
func (d *Dir) SetNoOwner() error {
	nobody, err := d.store.nobodyUID()
	if err != nil {
		return err
	}
	return d.SetOwner(nobody)
}

func (s *Store) nobodyUID() (int, error) {
	if s.cfg.NobodyUID >= 0 {
		return s.cfg.NobodyUID, nil
	}
	uid, err := s.cfg.Accounts.LookupUser("nobody")
	if err != nil {
		return -1, dderrors.Wrap(dderrors.ErrNotFound, "lookup", "nobody", err)
	}
	return uid, nil
}

func (s *Store) serviceGroupGID() (int, error) {
	if s.cfg.ServiceGroupGID >= 0 {
		return s.cfg.ServiceGroupGID, nil
	}
	return s.cfg.Accounts.LookupGroup(s.cfg.ServiceGroupName)
}
