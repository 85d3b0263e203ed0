package dumpdir

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"github.com/marmos91/probdir/pkg/reportedto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_SaveLoadText(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	require.NoError(t, d.SaveText(ElementComment, "it crashed\n"))
	text, err := d.LoadText(ElementComment)
	require.NoError(t, err)
	assert.Equal(t, "it crashed", text, "a single trailing newline is dropped")

	require.NoError(t, d.SaveText(ElementBacktrace, "#0 main\n#1 start"))
	text, err = d.LoadText(ElementBacktrace)
	require.NoError(t, err)
	assert.Equal(t, "#0 main\n#1 start\n", text)

	info, err := os.Stat(filepath.Join(d.Path(), ElementComment))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestDir_SaveBinary(t *testing.T) {
	metrics := newRecordingMetrics()
	s := newTestStore(t, func(c *Config) { c.Metrics = metrics })
	d := openLocked(t, s, createProblem(t, s))

	data := []byte{0x7f, 'E', 'L', 'F', 0, 1, 2}
	require.NoError(t, d.SaveBinary("coredump", data))

	got, err := d.LoadBinary("coredump")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 1, metrics.saves["binary"])
}

func TestDir_LoadLargeElementIsBinary(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	big := strings.Repeat("x", 4096)
	require.NoError(t, d.SaveText("big", big))

	el, err := d.Load("big", LoadOptions{MaxTextSize: 1024})
	require.NoError(t, err)
	assert.Equal(t, KindBinary, el.Kind)
	assert.Equal(t, int64(4096), el.Size)
	assert.Equal(t, filepath.Join(d.Path(), "big"), el.Path)
	assert.Empty(t, el.Text)

	el, err = d.Load("big", LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, KindText, el.Kind)
	assert.Equal(t, big, el.Text)
}

func TestDir_LoadSymlinkElement(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	target := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(target, []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(d.Path(), "link")))

	_, err := d.LoadText("link")
	assert.True(t, dderrors.IsCorruptError(err), "got %v", err)

	el, err := d.Load("link", LoadOptions{FollowSymlinks: true})
	require.NoError(t, err)
	assert.Equal(t, "secret", el.Text)
}

func TestDir_LoadMissing(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	_, err := d.LoadText("nothing")
	assert.True(t, dderrors.IsNotFoundError(err), "got %v", err)
}

func TestDir_InvalidElementNames(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	for _, name := range []string{"", ".", "..", "../escape", "a/b", LockName, MetaDataDirName, strings.Repeat("n", 64)} {
		err := d.SaveText(name, "x")
		assert.True(t, dderrors.IsInvalidNameError(err), "save %q: got %v", name, err)

		_, err = d.LoadText(name)
		assert.True(t, dderrors.IsInvalidNameError(err), "load %q: got %v", name, err)
	}
}

func TestDir_SaveRequiresLock(t *testing.T) {
	s := newTestStore(t)
	path := createProblem(t, s)

	d, err := s.Open(context.Background(), path, OpenOptions{FDOnly: true})
	require.NoError(t, err)
	defer d.Close()

	assert.True(t, dderrors.IsNotLockedError(d.SaveText(ElementComment, "x")))
	assert.True(t, dderrors.IsNotLockedError(d.DeleteItem(ElementReason)))
	_, err = d.OpenItem(ElementComment, ItemReadWrite)
	assert.True(t, dderrors.IsNotLockedError(err))
}

func TestDir_ExistAndDeleteItem(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	ok, err := d.Exist(ElementReason)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, os.Mkdir(filepath.Join(d.Path(), "subdir"), 0o750))
	ok, err = d.Exist("subdir")
	require.NoError(t, err)
	assert.True(t, ok, "directories count as existing")

	require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(d.Path(), "link")))
	ok, err = d.Exist("link")
	require.NoError(t, err)
	assert.False(t, ok, "symlinks do not")

	require.NoError(t, d.DeleteItem(ElementReason))
	ok, err = d.Exist(ElementReason)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, d.DeleteItem(ElementReason), "deleting a missing element is fine")
	assert.NoError(t, d.DeleteItem("subdir"), "sub-directories are left alone")
}

func TestDir_Sizes(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	before, err := d.ComputeSize()
	require.NoError(t, err)

	require.NoError(t, d.SaveText("extra", "0123456789"))
	size, err := d.ItemSize("extra")
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)

	size, err = d.ItemSize("missing")
	require.NoError(t, err)
	assert.Zero(t, size)

	after, err := d.ComputeSize()
	require.NoError(t, err)
	assert.Equal(t, before+10, after)
}

func TestDir_Elements(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	names, err := d.Elements()
	require.NoError(t, err)

	assert.Contains(t, names, ElementTime)
	assert.Contains(t, names, ElementType)
	assert.Contains(t, names, ElementReason)
	assert.Contains(t, names, ElementKernel)
	assert.NotContains(t, names, LockName)
	assert.NotContains(t, names, MetaDataDirName)
}

func TestDir_SaveIsAtomic(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	small := strings.Repeat("a", 1<<20)
	large := strings.Repeat("b", 4<<20)
	require.NoError(t, d.SaveText(ElementBacktrace, small))
	path := filepath.Join(d.Path(), ElementBacktrace)

	var (
		done    atomic.Bool
		wg      sync.WaitGroup
		reads   atomic.Int64
		torn    atomic.Int64
		missing atomic.Int64
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				data, err := os.ReadFile(path)
				reads.Add(1)
				switch {
				case os.IsNotExist(err):
					missing.Add(1)
				case err != nil:
					return
				case string(data) != small && string(data) != large:
					torn.Add(1)
				}
			}
		}()
	}

	for i := 0; i < 40; i++ {
		content := small
		if i%2 == 0 {
			content = large
		}
		require.NoError(t, d.SaveText(ElementBacktrace, content))
	}
	done.Store(true)
	wg.Wait()

	assert.NotZero(t, reads.Load())
	assert.Zero(t, missing.Load(), "readers saw the element missing")
	assert.Zero(t, torn.Load(), "readers saw a partially written element")
}

func TestDir_SaveLeavesNoTemporaryFiles(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	require.NoError(t, d.SaveText(ElementComment, "one"))
	require.NoError(t, d.SaveText(ElementComment, "two"))

	entries, err := os.ReadDir(d.Path())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, isElementTemp(e.Name()), "left behind %s", e.Name())
	}
}

func TestDir_OpenItem(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	f, err := d.OpenItem("log", ItemReadWrite)
	require.NoError(t, err)
	_, err = f.WriteString("line one\n")
	require.NoError(t, err)

	exists, err := d.Exist("log")
	require.NoError(t, err)
	assert.False(t, exists, "the element appears only once the item is closed")
	names, err := d.Elements()
	require.NoError(t, err)
	assert.NotContains(t, names, elementTempName("log"))

	require.NoError(t, f.Close())

	f, err = d.OpenItem("log", ItemReadOnly)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "line one\n", string(data))
}

func TestDir_OpenItem_AbortKeepsPreviousContent(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))
	require.NoError(t, d.SaveText("log", "old"))

	f, err := d.OpenItem("log", ItemReadWrite)
	require.NoError(t, err)
	_, err = f.WriteString("half written")
	require.NoError(t, err)

	text, err := d.LoadText("log")
	require.NoError(t, err)
	assert.Equal(t, "old", text)

	require.NoError(t, f.Abort())
	text, err = d.LoadText("log")
	require.NoError(t, err)
	assert.Equal(t, "old", text)

	_, err = os.Lstat(filepath.Join(d.Path(), elementTempName("log")))
	assert.True(t, os.IsNotExist(err))
}

func TestDir_MarkNotReportable(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	require.NoError(t, d.MarkNotReportable("contains secrets"))
	text, err := d.LoadText(ElementNotReportable)
	require.NoError(t, err)
	assert.Equal(t, "contains secrets", text)
}

func TestDir_ReportedTo(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, createProblem(t, s))

	_, ok, err := d.FindReportedTo("Bugzilla")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.AddReportedTo("Bugzilla: URL=https://bz/1"))
	require.NoError(t, d.AddReportedTo("Bugzilla: URL=https://bz/1"))
	require.NoError(t, d.AddReportedToResult(reportedto.Result{Label: "Bugzilla", URL: "https://bz/2"}))

	text, err := d.LoadText(ElementReportedTo)
	require.NoError(t, err)
	assert.Equal(t, "Bugzilla: URL=https://bz/1\nBugzilla: URL=https://bz/2\n", text)

	r, ok, err := d.FindReportedTo("Bugzilla")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://bz/2", r.URL)

	all, err := d.ReadReportedTo()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	err = d.AddReportedToResult(reportedto.Result{Label: "bad:label"})
	assert.Equal(t, dderrors.ErrInvalidArgument, dderrors.CodeOf(err))
}
