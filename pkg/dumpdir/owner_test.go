package dumpdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strangerUID = 54321

func TestDir_Owner_FallsBackToFilesystem(t *testing.T) {
	s := newTestStore(t)
	path := makeBareProblem(t)

	d := openLocked(t, s, path)
	owner, err := d.Owner()
	require.NoError(t, err)
	assert.Equal(t, os.Geteuid(), owner)
}

func TestDir_SetOwner(t *testing.T) {
	metrics := newRecordingMetrics()
	s := newTestStore(t, func(c *Config) { c.Metrics = metrics })
	path := makeBareProblem(t)

	d := openLocked(t, s, path)
	require.NoError(t, d.SetOwner(42))

	owner, err := d.Owner()
	require.NoError(t, err)
	assert.Equal(t, 42, owner, "logical owner wins over the filesystem owner")
	assert.Equal(t, 1, metrics.saves["meta"])

	info, err := os.Stat(filepath.Join(path, MetaDataDirName))
	require.NoError(t, err)
	assert.Equal(t, dirModeFor(d.Mode()), info.Mode().Perm())

	_, err = os.Stat(filepath.Join(path, MetaDataDirName, "~"+OwnerFile+".tmp"))
	assert.True(t, os.IsNotExist(err), "temporary file must be renamed away")

	// a fresh handle sees the same owner
	other, err := s.Open(context.Background(), path, OpenOptions{FDOnly: true})
	require.NoError(t, err)
	defer other.Close()
	owner, err = other.Owner()
	require.NoError(t, err)
	assert.Equal(t, 42, owner)
}

func TestDir_SetOwner_MinusOneMeansElementOwner(t *testing.T) {
	s := newTestStore(t)
	d := openLocked(t, s, makeBareProblem(t))

	require.NoError(t, d.SetOwner(-1))
	owner, err := d.Owner()
	require.NoError(t, err)
	assert.Equal(t, d.UID(), owner)
}

func TestDir_Owner_IgnoresForeignMetadata(t *testing.T) {
	s := newTestStore(t)
	path := makeBareProblem(t)

	md := filepath.Join(path, MetaDataDirName)
	require.NoError(t, os.Mkdir(md, 0o777))
	require.NoError(t, os.Chmod(md, 0o777))
	require.NoError(t, os.WriteFile(filepath.Join(md, OwnerFile), []byte("42"), 0o640))

	d := openLocked(t, s, path)
	owner, err := d.Owner()
	require.NoError(t, err)
	assert.Equal(t, os.Geteuid(), owner, "metadata with the wrong mode is not trusted")
}

func TestDirModeFor(t *testing.T) {
	assert.Equal(t, os.FileMode(0o750), dirModeFor(0o640))
	assert.Equal(t, os.FileMode(0o700), dirModeFor(0o600))
	assert.Equal(t, os.FileMode(0o755), dirModeFor(0o644))
	assert.Equal(t, os.FileMode(0o220), dirModeFor(0o220))
}

// ============================================================================
// Access checks
// ============================================================================

func TestStore_StatForUID(t *testing.T) {
	s := newTestStore(t)
	path := createProblem(t, s)

	flags, err := s.StatForUID(path, os.Geteuid())
	require.NoError(t, err)
	assert.Equal(t, AccessFlags{Accessible: true, Owned: true}, flags)

	flags, err = s.StatForUID(path, strangerUID)
	require.NoError(t, err)
	assert.Equal(t, AccessFlags{}, flags)

	flags, err = s.StatForUID(path, 0)
	require.NoError(t, err)
	assert.True(t, flags.Accessible, "the super user sees everything")
}

func TestStore_StatForUID_GroupMember(t *testing.T) {
	accounts := newFakeAccounts()
	s := newTestStore(t, func(c *Config) { c.Accounts = accounts })
	path := createProblem(t, s)

	info, err := os.Stat(path)
	require.NoError(t, err)
	gid := int(statGID(t, info))
	accounts.members[[2]int{strangerUID, gid}] = true

	flags, err := s.StatForUID(path, strangerUID)
	require.NoError(t, err)
	assert.Equal(t, AccessFlags{Accessible: true}, flags)
}

func TestStore_StatForUID_WorldReadable(t *testing.T) {
	s := newTestStore(t)
	path := createProblem(t, s)
	require.NoError(t, os.Chmod(path, 0o755))

	flags, err := s.StatForUID(path, strangerUID)
	require.NoError(t, err)
	assert.True(t, flags.Accessible)
	assert.False(t, flags.Owned)
}

func TestStore_StatForUID_NoOwner(t *testing.T) {
	s := newTestStore(t)
	path := createProblem(t, s)

	d := openLocked(t, s, path)
	require.NoError(t, d.SetNoOwner())
	require.NoError(t, d.Close())

	flags, err := s.StatForUID(path, strangerUID)
	require.NoError(t, err)
	assert.Equal(t, AccessFlags{Accessible: true, NoOwner: true}, flags)
}

func TestStore_StatForUID_Errors(t *testing.T) {
	s := newTestStore(t)
	base := t.TempDir()

	file := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err := s.StatForUID(file, 0)
	assert.True(t, dderrors.IsNotDirectoryError(err), "got %v", err)

	_, err = s.StatForUID(filepath.Join(base, "missing"), 0)
	assert.True(t, dderrors.IsNotFoundError(err), "got %v", err)
}

// ============================================================================
// Ownership changes
// ============================================================================

func TestDir_Chown(t *testing.T) {
	s := newTestStore(t)
	path := createProblem(t, s)
	d := openLocked(t, s, path)

	require.NoError(t, d.Chown(os.Geteuid()))
	owner, err := d.Owner()
	require.NoError(t, err)
	assert.Equal(t, os.Geteuid(), owner)
	assert.Equal(t, os.Geteuid(), d.UID())

	err = d.Chown(strangerUID)
	assert.Equal(t, dderrors.ErrInvalidArgument, dderrors.CodeOf(err), "got %v", err)
}

func TestDir_Chown_ServiceOwned(t *testing.T) {
	s := newTestStore(t, func(c *Config) { c.OwnedByUser = false })
	path := createProblem(t, s)
	d := openLocked(t, s, path)

	require.NoError(t, d.Chown(os.Geteuid()))
	assert.Equal(t, os.Getegid(), d.GID(), "the user's primary group gets access")
}

func TestDir_Chown_RequiresLock(t *testing.T) {
	s := newTestStore(t)
	path := createProblem(t, s)

	d, err := s.Open(context.Background(), path, OpenOptions{FDOnly: true})
	require.NoError(t, err)
	defer d.Close()
	assert.True(t, dderrors.IsNotLockedError(d.Chown(os.Geteuid())))
}

func TestDir_SanitizeModeAndOwner(t *testing.T) {
	s := newTestStore(t)
	path := createProblem(t, s)
	d := openLocked(t, s, path)

	reason := filepath.Join(path, ElementReason)
	require.NoError(t, os.Chmod(reason, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(path, "hostile"), []byte("x"), 0o666))
	require.NoError(t, os.Chmod(filepath.Join(path, "hostile"), 0o666))

	require.NoError(t, d.SanitizeModeAndOwner())

	for _, name := range []string{ElementReason, "hostile"} {
		info, err := os.Stat(filepath.Join(path, name))
		require.NoError(t, err)
		assert.Equal(t, d.Mode().Perm(), info.Mode().Perm(), name)
	}
}

func TestDir_SanitizeModeAndOwner_ReportsFailures(t *testing.T) {
	s := newTestStore(t)
	path := createProblem(t, s)
	d := openLocked(t, s, path)

	// hard links are refused by the secure open
	require.NoError(t, os.Link(filepath.Join(path, ElementReason), filepath.Join(path, "linked")))

	err := d.SanitizeModeAndOwner()
	require.Error(t, err)
	assert.Contains(t, err.Error(), ElementReason)
}
