package dumpdir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// errTooBig is returned by readElementAt when the element exceeds the
// requested limit. Callers turn it into a binary-by-reference element.
var errTooBig = errors.New("element too big")

// maxNumberLen is the longest number file accepted. Reading one byte more
// tells a long number apart from arbitrary text.
const maxNumberLen = 32

// secureOpenReadAt opens name in dirfd for reading. Symlinks, non-regular
// files and files with more than one hard link are refused: the inode is
// first pinned with O_PATH, checked with fstat and then reopened through
// /proc/self/fd so the check and the open see the same file.
func secureOpenReadAt(dirfd int, name string) (*os.File, error) {
	if strings.ContainsRune(name, '/') {
		return nil, unix.EINVAL
	}

	pfd, err := unix.Openat(dirfd, name, unix.O_PATH|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(pfd)

	var st unix.Stat_t
	if err := unix.Fstat(pfd, &st); err != nil {
		return nil, err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG || st.Nlink > 1 {
		return nil, unix.EMEDIUMTYPE
	}

	fd, err := unix.Open("/proc/self/fd/"+strconv.Itoa(pfd), unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), name), nil
}

// readNumberAt parses a file holding a single non-negative decimal number,
// optionally followed by one newline.
func readNumberAt(dirfd int, name string) (int64, error) {
	f, err := secureOpenReadAt(dirfd, name)
	if err != nil {
		return -1, err
	}
	defer f.Close()

	buf := make([]byte, maxNumberLen+1)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return -1, err
	}
	switch {
	case n == 0:
		return -1, fmt.Errorf("'%s' is empty", name)
	case n > maxNumberLen:
		return -1, fmt.Errorf("'%s' is too long to be a valid number", name)
	}

	s := strings.TrimSuffix(string(buf[:n]), "\n")
	if s == "" {
		return -1, fmt.Errorf("'%s' doesn't contain a valid number", name)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return -1, fmt.Errorf("'%s' doesn't contain a valid number ('%s')", name, s)
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

// createNewFileAt replaces name in dirfd with a fresh, exclusively created
// file. uid of -1 leaves ownership alone; the mode is applied with fchmod so
// the umask does not matter.
func createNewFileAt(dirfd int, name string, flags int, uid, gid int, mode os.FileMode) (*os.File, error) {
	if err := unix.Unlinkat(dirfd, name, 0); err != nil && !errors.Is(err, unix.ENOENT) {
		return nil, err
	}

	fd, err := unix.Openat(dirfd, name, flags|unix.O_EXCL|unix.O_CREAT|unix.O_NOFOLLOW|unix.O_CLOEXEC, uint32(mode.Perm()))
	if err != nil {
		return nil, err
	}

	if uid != -1 {
		if err := unix.Fchown(fd, uid, gid); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	if err := unix.Fchmod(fd, uint32(mode.Perm())); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), name), nil
}

// saveBinaryAt writes data to a new file name in dirfd. A short write is an
// error.
func saveBinaryAt(dirfd int, name string, data []byte, uid, gid int, mode os.FileMode) error {
	f, err := createNewFileAt(dirfd, name, unix.O_WRONLY, uid, gid, mode)
	if err != nil {
		return err
	}

	n, werr := f.Write(data)
	cerr := f.Close()
	switch {
	case werr != nil:
		return werr
	case n != len(data):
		return io.ErrShortWrite
	}
	return cerr
}

// replaceFileAt writes data to tmp in dirfd and renames it over name, so
// readers see either the previous content or all of data. A failed write
// leaves name untouched and removes tmp.
func replaceFileAt(dirfd int, name, tmp string, data []byte, uid, gid int, mode os.FileMode) error {
	if err := saveBinaryAt(dirfd, tmp, data, uid, gid, mode); err != nil {
		_ = unix.Unlinkat(dirfd, tmp, 0)
		return err
	}
	if err := unix.Renameat(dirfd, tmp, dirfd, name); err != nil {
		_ = unix.Unlinkat(dirfd, tmp, 0)
		return err
	}
	return nil
}

// elementTempName is the sibling an element is written to before it is
// renamed into place. The metadata prefix makes it an invalid element name,
// so it can never collide with an element and listings skip it.
func elementTempName(name string) string {
	return MetaDataDirName + "~" + name + ".tmp"
}

// openElementAt opens name for reading and requires a regular file.
// O_NONBLOCK keeps a FIFO planted in the directory from blocking the open.
func openElementAt(dirfd int, name string, follow bool) (*os.File, int64, error) {
	flags := unix.O_RDONLY | unix.O_CLOEXEC | unix.O_NONBLOCK
	if !follow {
		flags |= unix.O_NOFOLLOW
	}
	fd, err := unix.Openat(dirfd, name, flags, 0)
	if err != nil {
		return nil, 0, err
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, 0, err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		unix.Close(fd)
		return nil, 0, unix.EMEDIUMTYPE
	}
	return os.NewFile(uintptr(fd), name), st.Size, nil
}

// readElementAt reads a whole element. When limit is positive and the element
// is larger, errTooBig is returned together with the size.
func readElementAt(dirfd int, name string, follow bool, limit int64) ([]byte, int64, error) {
	f, size, err := openElementAt(dirfd, name, follow)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	if limit > 0 && size > limit {
		return nil, size, errTooBig
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, err
	}
	return data, int64(len(data)), nil
}

// loadTextFile reads and normalizes a file outside any problem directory,
// following symlinks (used for /etc/os-release and friends).
func loadTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return NormalizeText(data), nil
}
