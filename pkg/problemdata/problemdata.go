// Package problemdata holds the contents of a problem directory in memory.
//
// A Container maps element names to Items. Text items carry their content;
// binary items carry the path of the file that holds it, so large core
// dumps are never read into memory. Containers never lock anything: load
// them from a locked dumpdir.Dir and write them back with CreateDumpDir.
package problemdata

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/marmos91/probdir/pkg/dumpdir"
)

// Kind tells inline text from binary-by-reference items.
type Kind int

const (
	KindText Kind = iota
	KindBinary
)

func (k Kind) String() string {
	if k == KindBinary {
		return "binary"
	}
	return "text"
}

// Item is one element of a problem.
type Item struct {
	// Content is the text of a text item or the path of a binary one.
	Content string
	Kind    Kind

	// Editable items may be changed by the user before reporting.
	Editable bool
	// List items are shown in problem listings.
	List bool
	// UnixTime items hold seconds since the epoch.
	UnixTime bool
	// BigText is set on text files too large to load; they are kept as
	// binary-by-reference.
	BigText bool
}

// Size returns the content length of a text item or the file size of a
// binary one.
func (it Item) Size() (int64, error) {
	if it.Kind == KindText {
		return int64(len(it.Content)), nil
	}
	st, err := os.Stat(it.Content)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Format renders UnixTime items as local time. ok is false when the item
// has no special rendering.
func (it Item) Format() (s string, ok bool) {
	if !it.UnixTime || it.Kind != KindText {
		return "", false
	}
	secs, err := strconv.ParseInt(it.Content, 10, 64)
	if err != nil {
		return "", false
	}
	return time.Unix(secs, 0).Local().Format(time.ANSIC), true
}

// Container is an in-memory problem.
type Container struct {
	items map[string]Item
}

// New returns an empty Container.
func New() *Container {
	return &Container{items: make(map[string]Item)}
}

// Add stores item under name, replacing any previous one.
func (c *Container) Add(name string, item Item) {
	c.items[name] = item
}

// AddText stores a text item.
func (c *Container) AddText(name, content string, editable bool) {
	c.Add(name, Item{Content: content, Kind: KindText, Editable: editable})
}

// AddFile stores a binary item backed by the file at path.
func (c *Container) AddFile(name, path string) {
	c.Add(name, Item{Content: path, Kind: KindBinary})
}

// Get returns the item called name.
func (c *Container) Get(name string) (Item, bool) {
	it, ok := c.items[name]
	return it, ok
}

// Text returns the content of a text item, or "" when there is none.
func (c *Container) Text(name string) string {
	it, ok := c.items[name]
	if !ok || it.Kind != KindText {
		return ""
	}
	return it.Content
}

// Remove deletes the item called name.
func (c *Container) Remove(name string) {
	delete(c.items, name)
}

// Len returns the number of items.
func (c *Container) Len() int { return len(c.items) }

// Names returns the item names in lexical order.
func (c *Container) Names() []string {
	names := make([]string, 0, len(c.items))
	for name := range c.items {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// AddBasics fills analyzer, type and uuid when the producer did not.
// analyzer and type default to each other, then to "libreport". uuid is the
// duphash if there is one, otherwise a SHA-1 over the text items in name
// order; binary items are skipped because their content is a path.
func (c *Container) AddBasics() {
	analyzer, hasAnalyzer := c.items[dumpdir.ElementAnalyzer]
	typ, hasType := c.items[dumpdir.ElementType]

	if !hasAnalyzer {
		value := "libreport"
		if hasType {
			value = typ.Content
		}
		c.AddText(dumpdir.ElementAnalyzer, value, false)
		analyzer = c.items[dumpdir.ElementAnalyzer]
	}
	if !hasType {
		c.AddText(dumpdir.ElementType, analyzer.Content, false)
	}

	if _, ok := c.items[dumpdir.ElementUUID]; ok {
		return
	}
	if dup, ok := c.items[dumpdir.ElementDuphash]; ok {
		c.AddText(dumpdir.ElementUUID, dup.Content, false)
		return
	}

	h := sha1.New()
	for _, name := range c.Names() {
		it := c.items[name]
		if it.Kind == KindBinary {
			continue
		}
		h.Write([]byte(it.Content))
	}
	c.AddText(dumpdir.ElementUUID, hex.EncodeToString(h.Sum(nil)), false)
}
