package dumpdir

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/probdir/internal/logger"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"golang.org/x/sys/unix"
)

// ElementKind tells inline text from content left on disk.
type ElementKind int

const (
	KindText ElementKind = iota
	KindBinary
)

func (k ElementKind) String() string {
	if k == KindBinary {
		return "binary"
	}
	return "text"
}

// Element is a loaded element. Text elements carry their normalized
// content; binary ones only their path.
type Element struct {
	Name string
	Kind ElementKind
	Text string
	Path string
	Size int64
}

// LoadOptions controls Load.
type LoadOptions struct {
	// FollowSymlinks opens elements that are symlinks.
	FollowSymlinks bool
	// MaxTextSize overrides Config.MaxTextSize when positive.
	MaxTextSize int64
}

// ItemMode selects how OpenItem opens an element.
type ItemMode int

const (
	ItemReadOnly ItemMode = iota
	ItemReadWrite
)

func (d *Dir) requireWritable(op, name string) error {
	if err := d.requireLock(op); err != nil {
		return err
	}
	return ValidateElementName(name)
}

// SaveText replaces the element name with text.
func (d *Dir) SaveText(name, text string) error {
	return d.save(name, []byte(text), "text")
}

// SaveBinary replaces the element name with data.
func (d *Dir) SaveBinary(name string, data []byte) error {
	return d.save(name, data, "binary")
}

func (d *Dir) save(name string, data []byte, kind string) error {
	if err := d.requireWritable("save", name); err != nil {
		return err
	}
	if err := replaceFileAt(d.fd, name, elementTempName(name), data, d.uid, d.gid, d.mode); err != nil {
		logger.Error("can't save element", logger.Dir(d.path), logger.Element(name), logger.Err(err))
		return dderrors.FromOS("save", filepath.Join(d.path, name), err)
	}
	if m := d.metrics(); m != nil {
		m.RecordSave(kind, len(data))
	}
	return nil
}

// Load reads an element. Elements over the text size limit are returned as
// KindBinary with only Path and Size set.
func (d *Dir) Load(name string, opts LoadOptions) (Element, error) {
	if err := ValidateElementName(name); err != nil {
		return Element{}, err
	}
	limit := opts.MaxTextSize
	if limit <= 0 {
		limit = d.store.cfg.MaxTextSize
	}

	path := filepath.Join(d.path, name)
	data, size, err := readElementAt(d.fd, name, opts.FollowSymlinks, limit)
	switch {
	case errors.Is(err, errTooBig):
		return Element{Name: name, Kind: KindBinary, Path: path, Size: size}, nil
	case err != nil:
		return Element{}, d.loadError(path, err)
	}
	return Element{Name: name, Kind: KindText, Text: NormalizeText(data), Path: path, Size: size}, nil
}

// LoadText reads an element as normalized text regardless of size.
func (d *Dir) LoadText(name string) (string, error) {
	if err := ValidateElementName(name); err != nil {
		return "", err
	}
	data, _, err := readElementAt(d.fd, name, false, 0)
	if err != nil {
		return "", d.loadError(filepath.Join(d.path, name), err)
	}
	return NormalizeText(data), nil
}

// LoadBinary reads an element verbatim.
func (d *Dir) LoadBinary(name string) ([]byte, error) {
	if err := ValidateElementName(name); err != nil {
		return nil, err
	}
	data, _, err := readElementAt(d.fd, name, false, 0)
	if err != nil {
		return nil, d.loadError(filepath.Join(d.path, name), err)
	}
	return data, nil
}

func (d *Dir) loadError(path string, err error) error {
	if errors.Is(err, unix.ENOENT) {
		return dderrors.NewNotFoundError(path, "element")
	}
	if errors.Is(err, unix.ELOOP) || errors.Is(err, unix.EMEDIUMTYPE) {
		return dderrors.NewCorruptError(path, "element is not a regular file")
	}
	return dderrors.FromOS("load", path, err)
}

// Exist reports whether name is a regular file or a directory.
func (d *Dir) Exist(name string) (bool, error) {
	if err := ValidateElementName(name); err != nil {
		return false, err
	}
	var st unix.Stat_t
	if err := unix.Fstatat(d.fd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, dderrors.FromOS("exist", filepath.Join(d.path, name), err)
	}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFREG, unix.S_IFDIR:
		return true, nil
	}
	return false, nil
}

// DeleteItem removes an element. A missing element or a sub-directory is
// not an error.
func (d *Dir) DeleteItem(name string) error {
	if err := d.requireWritable("delete item", name); err != nil {
		return err
	}
	err := unix.Unlinkat(d.fd, name, 0)
	if err == nil || errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EISDIR) {
		return nil
	}
	return dderrors.FromOS("delete item", filepath.Join(d.path, name), err)
}

// ItemSize returns the size of an element, 0 when it does not exist.
func (d *Dir) ItemSize(name string) (int64, error) {
	if err := ValidateElementName(name); err != nil {
		return 0, err
	}
	var st unix.Stat_t
	if err := unix.Fstatat(d.fd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return 0, nil
		}
		return 0, dderrors.FromOS("item size", filepath.Join(d.path, name), err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return 0, dderrors.NewCorruptError(filepath.Join(d.path, name), "element is not a regular file")
	}
	return st.Size, nil
}

// ItemFile is an element opened with OpenItem. A read-write item is
// written to a temporary sibling; Close renames it over the element and
// Abort throws it away. It must be closed before its Dir.
type ItemFile struct {
	*os.File
	dirfd int
	name  string
	path  string
	tmp   string
}

// Close closes the file and, for a read-write item, replaces the element
// with what was written.
func (f *ItemFile) Close() error {
	err := f.File.Close()
	if f.tmp == "" {
		return err
	}
	tmp := f.tmp
	f.tmp = ""
	if err == nil {
		err = unix.Renameat(f.dirfd, tmp, f.dirfd, f.name)
	}
	if err != nil {
		_ = unix.Unlinkat(f.dirfd, tmp, 0)
		return dderrors.FromOS("save", f.path, err)
	}
	return nil
}

// Abort closes the file and leaves the element as it was.
func (f *ItemFile) Abort() error {
	err := f.File.Close()
	if f.tmp != "" {
		_ = unix.Unlinkat(f.dirfd, f.tmp, 0)
		f.tmp = ""
	}
	return err
}

// OpenItem opens an element. ItemReadWrite starts a new, empty version of
// the element that replaces the current one on Close, and requires the
// lock.
func (d *Dir) OpenItem(name string, mode ItemMode) (*ItemFile, error) {
	path := filepath.Join(d.path, name)
	if mode == ItemReadWrite {
		if err := d.requireWritable("open item", name); err != nil {
			return nil, err
		}
		tmp := elementTempName(name)
		f, err := createNewFileAt(d.fd, tmp, unix.O_RDWR, d.uid, d.gid, d.mode)
		if err != nil {
			return nil, dderrors.FromOS("open item", path, err)
		}
		return &ItemFile{File: f, dirfd: d.fd, name: name, path: path, tmp: tmp}, nil
	}

	if err := ValidateElementName(name); err != nil {
		return nil, err
	}
	f, _, err := openElementAt(d.fd, name, false)
	if err != nil {
		return nil, d.loadError(path, err)
	}
	return &ItemFile{File: f, dirfd: d.fd, name: name, path: path}, nil
}

func isElementTemp(name string) bool {
	return strings.HasPrefix(name, MetaDataDirName+"~")
}

// Elements lists the regular files of the directory in directory order.
// Element versions still being written are left out.
func (d *Dir) Elements() ([]string, error) {
	names, err := readDirNames(d.fd)
	if err != nil {
		return nil, dderrors.FromOS("list", d.path, err)
	}
	out := names[:0]
	for _, name := range names {
		if isElementTemp(name) {
			continue
		}
		var st unix.Stat_t
		if err := unix.Fstatat(d.fd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			continue
		}
		if st.Mode&unix.S_IFMT == unix.S_IFREG {
			out = append(out, name)
		}
	}
	return out, nil
}

// ComputeSize sums the sizes of all elements.
func (d *Dir) ComputeSize() (int64, error) {
	names, err := readDirNames(d.fd)
	if err != nil {
		return 0, dderrors.FromOS("size", d.path, err)
	}
	var total int64
	for _, name := range names {
		var st unix.Stat_t
		if err := unix.Fstatat(d.fd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			continue
		}
		if st.Mode&unix.S_IFMT == unix.S_IFREG {
			total += st.Size
		}
	}
	return total, nil
}

// MarkNotReportable stores reason in the not-reportable element.
func (d *Dir) MarkNotReportable(reason string) error {
	return d.SaveText(ElementNotReportable, reason)
}
