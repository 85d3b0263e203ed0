package dumpdir

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/marmos91/probdir/internal/logger"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"golang.org/x/sys/unix"
)

// AccessFlags describes what a user may do with a problem directory.
type AccessFlags struct {
	// Accessible: the user may read the directory.
	Accessible bool
	// Owned: the user is the logical owner.
	Owned bool
	// NoOwner: the directory was handed to nobody and is public.
	NoOwner bool
}

// ResetOwnership applies the owner and group chosen at creation to the
// directory itself and to its metadata. Metadata failures are logged only.
func (d *Dir) ResetOwnership() error {
	if err := d.requireLock("reset ownership"); err != nil {
		return err
	}
	if err := unix.Fchown(d.fd, d.uid, d.gid); err != nil {
		logger.Error("can't change ownership of problem directory",
			logger.Dir(d.path), logger.UID(d.uid), logger.GID(d.gid), logger.Err(err))
		return dderrors.FromOS("reset ownership", d.path, err)
	}
	if err := d.chownMetaData(d.uid, d.gid); err != nil {
		logger.Warn("can't change ownership of metadata", logger.Dir(d.path), logger.Err(err))
	}
	if err := d.SetOwner(d.uid); err != nil {
		logger.Warn("can't record owner", logger.Dir(d.path), logger.Err(err))
	}
	return nil
}

// Chown hands the directory to newUID. With OwnedByUser the user becomes
// the owner and the group is kept; otherwise the owner is kept and the
// user's primary group is given access.
func (d *Dir) Chown(newUID int) error {
	if err := d.requireLock("chown"); err != nil {
		return err
	}

	var st unix.Stat_t
	if err := unix.Fstat(d.fd, &st); err != nil {
		return dderrors.FromOS("chown", d.path, err)
	}

	userGID, err := d.store.cfg.Accounts.PrimaryGroup(newUID)
	if err != nil {
		return dderrors.New(dderrors.ErrInvalidArgument, "chown", d.path,
			fmt.Sprintf("uid %d not found in user database", newUID))
	}

	owner, group := int(st.Uid), userGID
	if d.store.cfg.OwnedByUser {
		owner, group = newUID, int(st.Gid)
	}

	if err := unix.Fchown(d.fd, owner, group); err != nil {
		return dderrors.FromOS("chown", d.path, err)
	}

	names, err := d.Elements()
	if err != nil {
		return err
	}
	for _, name := range names {
		f, err := secureOpenReadAt(d.fd, name)
		if err != nil {
			return dderrors.FromOS("chown", d.path, err)
		}
		err = f.Chown(owner, group)
		_ = f.Close()
		if err != nil {
			logger.Error("can't change ownership of element", logger.Dir(d.path), logger.Element(name), logger.Err(err))
			return dderrors.FromOS("chown", d.path, err)
		}
	}

	if err := d.chownMetaData(owner, group); err != nil {
		logger.Warn("can't change ownership of metadata", logger.Dir(d.path), logger.Err(err))
	}
	d.uid, d.gid = owner, group
	if err := d.SetOwner(newUID); err != nil {
		logger.Warn("can't record owner", logger.Dir(d.path), logger.Err(err))
	}

	logger.Info("changed problem directory owner", logger.Dir(d.path), logger.Owner(newUID), logger.GID(group))
	return nil
}

// SanitizeModeAndOwner reapplies the element mode and ownership to every
// element and to the metadata. Failures are collected and logged; the
// walk does not stop at the first one.
func (d *Dir) SanitizeModeAndOwner() error {
	if d.uid == -1 {
		return nil
	}
	if err := d.requireLock("sanitize"); err != nil {
		return err
	}

	names, err := d.Elements()
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, name := range names {
		f, err := secureOpenReadAt(d.fd, name)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if err := f.Chmod(d.mode.Perm()); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: chmod: %w", name, err))
		}
		if err := f.Chown(d.uid, d.gid); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: chown: %w", name, err))
		}
		_ = f.Close()
	}

	if err := d.sanitizeMetaData(); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", MetaDataDirName, err))
	}
	if err := d.chownMetaData(d.uid, d.gid); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: chown: %w", MetaDataDirName, err))
	}

	if err := result.ErrorOrNil(); err != nil {
		logger.Warn("problem directory not fully sanitized", logger.Dir(d.path), logger.Err(err))
		return err
	}
	return nil
}

// StatForUID reports how uid may access the directory at path. The
// directory is opened without locking it.
func (s *Store) StatForUID(path string, uid int) (AccessFlags, error) {
	d, err := s.Open(context.Background(), path, OpenOptions{FDOnly: true})
	if err != nil {
		return AccessFlags{}, err
	}
	defer func() { _ = d.Close() }()
	return d.StatForUID(uid)
}

// StatForUID reports how uid may access the directory.
func (d *Dir) StatForUID(uid int) (AccessFlags, error) {
	var st unix.Stat_t
	if err := unix.Fstat(d.fd, &st); err != nil {
		return AccessFlags{}, dderrors.FromOS("stat", d.path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return AccessFlags{}, dderrors.NewNotDirectoryError(d.path)
	}

	var flags AccessFlags
	if uid == d.store.cfg.SuperUserUID || st.Mode&unix.S_IROTH != 0 {
		flags.Accessible = true
	}

	owner, err := d.Owner()
	if err == nil {
		if owner == uid {
			flags.Accessible = true
			flags.Owned = true
		}
		nobody, nerr := d.store.nobodyUID()
		if nerr == nil && owner == nobody {
			flags.Accessible = true
			flags.NoOwner = true
		}
	} else if !errors.Is(err, unix.ENOENT) {
		logger.Debug("can't determine owner", logger.Dir(d.path), logger.Err(err))
	}

	if !flags.Accessible && d.store.cfg.Accounts.InGroup(uid, int(st.Gid)) {
		flags.Accessible = true
	}
	return flags, nil
}
