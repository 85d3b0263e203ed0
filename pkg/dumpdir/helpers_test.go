package dumpdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testNobodyUID = 65534

// fakeAccounts is an in-memory user database.
type fakeAccounts struct {
	primary map[int]int
	users   map[string]int
	groups  map[string]int
	members map[[2]int]bool
}

var errNoSuchAccount = errors.New("no such account")

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		primary: map[int]int{os.Geteuid(): os.Getegid(), testNobodyUID: testNobodyUID},
		users:   map[string]int{"nobody": testNobodyUID, "abrt": os.Geteuid()},
		groups:  map[string]int{"abrt": os.Getegid()},
		members: map[[2]int]bool{},
	}
}

func (a *fakeAccounts) PrimaryGroup(uid int) (int, error) {
	if gid, ok := a.primary[uid]; ok {
		return gid, nil
	}
	return -1, errNoSuchAccount
}

func (a *fakeAccounts) LookupUser(name string) (int, error) {
	if uid, ok := a.users[name]; ok {
		return uid, nil
	}
	return -1, errNoSuchAccount
}

func (a *fakeAccounts) LookupGroup(name string) (int, error) {
	if gid, ok := a.groups[name]; ok {
		return gid, nil
	}
	return -1, errNoSuchAccount
}

func (a *fakeAccounts) InGroup(uid, gid int) bool {
	if primary, ok := a.primary[uid]; ok && primary == gid {
		return true
	}
	return a.members[[2]int{uid, gid}]
}

// testConfig returns a configuration usable without privileges and with
// lock timings short enough for tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ServiceGroupGID = os.Getegid()
	cfg.NobodyUID = testNobodyUID
	cfg.Accounts = newFakeAccounts()
	cfg.Timing = Timing{
		SymlinkRetry:     time.Millisecond,
		OpenContention:   5 * time.Millisecond,
		CreateContention: time.Millisecond,
		NoTimeFileRetry:  2 * time.Millisecond,
		NoTimeFileCount:  3,
		RmdirRetry:       time.Millisecond,
		RmdirCount:       5,
	}
	return cfg
}

func newTestStore(t *testing.T, mutate ...func(*Config)) *Store {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg)
}

// withHostFiles points CreateBasicFiles at fixture release files.
func withHostFiles(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	info := filepath.Join(dir, "os-release")
	release := filepath.Join(dir, "system-release")
	require.NoError(t, os.WriteFile(info, []byte("NAME=Fedora\nVERSION_ID=40\n"), 0o644))
	require.NoError(t, os.WriteFile(release, []byte("Fedora release 40 (Forty)\n"), 0o644))

	oldInfo, oldRelease := osInfoPath, releasePaths
	osInfoPath = info
	releasePaths = []string{filepath.Join(dir, "missing-release"), release}
	t.Cleanup(func() {
		osInfoPath, releasePaths = oldInfo, oldRelease
	})
}

// createProblem makes a complete, unlocked problem directory and returns
// its path.
func createProblem(t *testing.T, s *Store) string {
	t.Helper()
	withHostFiles(t)

	d, err := s.Create(context.Background(), t.TempDir(), CreateRequest{
		Type: "CCpp",
		UID:  -1,
		Populate: func(d *Dir) error {
			return d.SaveText(ElementReason, "segfault in main")
		},
	})
	require.NoError(t, err)
	path := d.Path()
	require.NoError(t, d.Close())
	return path
}

// makeBareProblem writes time and type by hand, without metadata.
func makeBareProblem(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "bare")
	require.NoError(t, os.Mkdir(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ElementTime), []byte("1700000000"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ElementType), []byte("Python\n"), 0o640))
	return dir
}

func openLocked(t *testing.T, s *Store, path string) *Dir {
	t.Helper()
	d, err := s.Open(context.Background(), path, OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func statGID(t *testing.T, info os.FileInfo) uint32 {
	t.Helper()
	st, ok := info.Sys().(*syscall.Stat_t)
	require.True(t, ok)
	return st.Gid
}
