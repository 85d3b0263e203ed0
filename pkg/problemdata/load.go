package problemdata

import (
	"errors"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/marmos91/probdir/internal/logger"
	"github.com/marmos91/probdir/pkg/dumpdir"
)

// probeSize is how much of an element is inspected to tell text from
// binary.
const probeSize = 4 * 1024

// badRatio: text is allowed one suspicious byte per this many.
const badRatio = 10

var (
	alwaysText = []string{
		dumpdir.ElementCmdline,
		dumpdir.ElementBacktrace,
		dumpdir.ElementOSRelease,
	}

	editable = []string{
		dumpdir.ElementComment,
		dumpdir.ElementBacktrace,
		dumpdir.ElementReason,
		"open_fds",
		"mountinfo",
		dumpdir.ElementCmdline,
		"container_cmdline",
		"maps",
		"smaps",
		"environ",
		dumpdir.ElementHostname,
		"remote",
		"ks.cfg",
		"anaconda-tb",
		"cpuinfo",
	}

	listed = []string{
		dumpdir.ElementUID,
		dumpdir.ElementPackage,
		dumpdir.ElementCmdline,
		dumpdir.ElementTime,
		dumpdir.ElementCount,
		dumpdir.ElementReason,
	}
)

// IsEditable reports whether users may edit the element called name.
func IsEditable(name string) bool { return slices.Contains(editable, name) }

// LooksLikeText classifies the first bytes of an element. Control bytes
// other than whitespace mean binary. DEL and broken UTF-8 sequences are
// tolerated up to one in badRatio bytes, so a stray non-ASCII byte does not
// turn a log into a binary blob.
func LooksLikeText(name string, probe []byte) bool {
	if slices.Contains(alwaysText, name) {
		return true
	}

	bad := 1
	prevMultibyte := false
	for _, c := range probe {
		switch {
		case c < ' ' && !isSpace(c):
			return false
		case c == 0x7f:
			bad++
		case c > 0x7f:
			// a lead byte inside a sequence, or a continuation byte
			// outside one
			if prevMultibyte == (c&0x40 == 0x40) {
				bad++
			}
		}
		prevMultibyte = c > 0x7f
	}
	return (len(probe)+badRatio)/bad >= badRatio
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// sanitizeText replaces broken UTF-8 and drops control characters other
// than tab and newline.
func sanitizeText(s string) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' {
			return r
		}
		if r < ' ' || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// LoadElement reads one element of d and classifies it.
func LoadElement(d *dumpdir.Dir, name string, maxText int64) (Item, error) {
	f, err := d.OpenItem(name, dumpdir.ItemReadOnly)
	if err != nil {
		return Item{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Item{}, err
	}
	size := st.Size()

	probe := make([]byte, probeSize)
	n, err := io.ReadFull(f, probe)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Item{}, err
	}
	probe = probe[:n]

	path := filepath.Join(d.Path(), name)
	if !LooksLikeText(name, probe) {
		return Item{Content: path, Kind: KindBinary}, nil
	}
	if maxText > 0 && size > maxText {
		return Item{Content: path, Kind: KindBinary, BigText: true}, nil
	}

	text := probe
	if n == probeSize {
		rest, err := io.ReadAll(f)
		if err != nil {
			return Item{}, err
		}
		text = append(text, rest...)
	}

	s := string(text)
	// strip the newline of one-line elements
	if i := strings.IndexByte(s, '\n'); i >= 0 && i == len(s)-1 {
		s = s[:i]
	}

	return Item{
		Content:  sanitizeText(s),
		Kind:     KindText,
		Editable: IsEditable(name),
		List:     slices.Contains(listed, name),
		UnixTime: name == dumpdir.ElementTime,
	}, nil
}

// isEditorBackup matches "#name#" autosaves and "name~" backups.
func isEditorBackup(name string) bool {
	return strings.HasPrefix(name, "#") || strings.HasSuffix(name, "~")
}

// LoadFromDumpDir adds every element of d to c, except the names in
// exclude and editor backups. Elements that cannot be read are logged and
// skipped.
func (c *Container) LoadFromDumpDir(d *dumpdir.Dir, exclude []string) error {
	names, err := d.Elements()
	if err != nil {
		return err
	}
	maxText := d.Store().Config().MaxTextSize

	for _, name := range names {
		if slices.Contains(exclude, name) || isEditorBackup(name) {
			continue
		}
		it, err := LoadElement(d, name, maxText)
		if err != nil {
			logger.Error("failed to load element", logger.Dir(d.Path()), logger.Element(name), logger.Err(err))
			continue
		}
		c.Add(name, it)
	}
	return nil
}

// FromDumpDir returns a Container with all elements of d.
func FromDumpDir(d *dumpdir.Dir) (*Container, error) {
	c := New()
	if err := c.LoadFromDumpDir(d, nil); err != nil {
		return nil, err
	}
	return c, nil
}
