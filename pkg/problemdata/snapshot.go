package problemdata

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// snapshotVersion is bumped on incompatible changes to snapshotItem.
const snapshotVersion = 1

// Snapshots use Core Deterministic Encoding so the same container always
// produces the same bytes.
var (
	snapEncMode cbor.EncMode
	snapDecMode cbor.DecMode
)

func init() {
	var err error
	snapEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("problemdata: CBOR encoder initialization failed: " + err.Error())
	}
	snapDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("problemdata: CBOR decoder initialization failed: " + err.Error())
	}
}

type snapshot struct {
	Version int                     `cbor:"version"`
	Items   map[string]snapshotItem `cbor:"items"`
}

type snapshotItem struct {
	Content  string `cbor:"content"`
	Binary   bool   `cbor:"binary,omitempty"`
	Editable bool   `cbor:"editable,omitempty"`
	List     bool   `cbor:"list,omitempty"`
	UnixTime bool   `cbor:"unixtime,omitempty"`
	BigText  bool   `cbor:"bigtext,omitempty"`
}

// EncodeSnapshot writes c to w as one CBOR item. Binary items are encoded
// by path, so a snapshot is only meaningful on the host that wrote it.
func (c *Container) EncodeSnapshot(w io.Writer) error {
	snap := snapshot{Version: snapshotVersion, Items: make(map[string]snapshotItem, len(c.items))}
	for name, it := range c.items {
		snap.Items[name] = snapshotItem{
			Content:  it.Content,
			Binary:   it.Kind == KindBinary,
			Editable: it.Editable,
			List:     it.List,
			UnixTime: it.UnixTime,
			BigText:  it.BigText,
		}
	}
	return snapEncMode.NewEncoder(w).Encode(snap)
}

// DecodeSnapshot reads a container written by EncodeSnapshot.
func DecodeSnapshot(r io.Reader) (*Container, error) {
	var snap snapshot
	if err := snapDecMode.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	c := New()
	for name, si := range snap.Items {
		it := Item{
			Content:  si.Content,
			Editable: si.Editable,
			List:     si.List,
			UnixTime: si.UnixTime,
			BigText:  si.BigText,
		}
		if si.Binary {
			it.Kind = KindBinary
		}
		c.Add(name, it)
	}
	return c, nil
}
