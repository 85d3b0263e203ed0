package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command once. Flag values persist between runs,
// so callers always pass the flags they depend on.
func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, Execute(context.Background()), "probdir %s\n%s", strings.Join(args, " "), out.String())
	return out.String()
}

// The configuration is loaded once per process, so the whole lifecycle
// shares one environment.
func TestCommands_Lifecycle(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PROBDIR_STORE_BASE_DIR", base)
	t.Setenv("PROBDIR_STORE_NOBODY_UID", "65534")
	t.Setenv("PROBDIR_LOGGING_LEVEL", "ERROR")
	uid := strconv.Itoa(os.Getuid())

	var path string
	t.Run("create", func(t *testing.T) {
		out := run(t, "create", "-o", "table", "--type", "Python", "--uid", uid,
			"--reason", "TypeError in foo.py", "--item", "executable=/usr/bin/foo")
		path = strings.TrimSpace(out)
		assert.Equal(t, base, filepath.Dir(path))
		assert.True(t, strings.HasPrefix(filepath.Base(path), "Python-"))
		assert.DirExists(t, path)
	})
	require.NotEmpty(t, path)
	name := filepath.Base(path)

	t.Run("info", func(t *testing.T) {
		var pi problemInfo
		require.NoError(t, json.Unmarshal([]byte(run(t, "info", "-o", "json", name)), &pi))
		assert.Equal(t, path, pi.Path)
		assert.Equal(t, "Python", pi.Type)
		assert.Equal(t, "TypeError in foo.py", pi.Reason)
		assert.Positive(t, pi.Elements)
		assert.Zero(t, pi.ReportedTo)
	})

	t.Run("save and cat", func(t *testing.T) {
		run(t, "save", "-o", "table", name, "comment", "--value", "crashed while printing")
		assert.Equal(t, "crashed while printing\n", run(t, "cat", "-o", "table", name, "comment"))
	})

	t.Run("cat missing element", func(t *testing.T) {
		rootCmd.SetArgs([]string{"cat", "-o", "table", name, "missing-element"})
		rootCmd.SetOut(&bytes.Buffer{})
		assert.Error(t, Execute(context.Background()))
	})

	t.Run("reported-to", func(t *testing.T) {
		run(t, "reported-to", "add", "-o", "table", name, "Bugzilla", "--url", "https://bz.example.com/1")
		var rec reportRecord
		require.NoError(t, json.Unmarshal([]byte(run(t, "reported-to", "find", "-o", "json", name, "Bugzilla")), &rec))
		assert.Equal(t, "Bugzilla", rec.Label)
		assert.Equal(t, "https://bz.example.com/1", rec.URL)
	})

	t.Run("not-reportable", func(t *testing.T) {
		run(t, "not-reportable", "-o", "table", name, "contains secrets")
		var pi problemInfo
		require.NoError(t, json.Unmarshal([]byte(run(t, "info", "-o", "json", name)), &pi))
		assert.Equal(t, "contains secrets", pi.NotReportable)
		assert.Equal(t, 1, pi.ReportedTo)
	})

	t.Run("ls", func(t *testing.T) {
		var list []problemEntry
		require.NoError(t, json.Unmarshal([]byte(run(t, "ls", "-o", "json")), &list))
		require.Len(t, list, 1)
		assert.Equal(t, name, list[0].Name)

		var elements []elementEntry
		require.NoError(t, json.Unmarshal([]byte(run(t, "ls", "-o", "json", name)), &elements))
		kinds := map[string]string{}
		for _, e := range elements {
			kinds[e.Name] = e.Kind
		}
		assert.Equal(t, "text", kinds["reason"])
		assert.Contains(t, kinds, "comment")
	})

	t.Run("stat", func(t *testing.T) {
		var report accessReport
		require.NoError(t, json.Unmarshal([]byte(run(t, "stat", "-o", "json", name)), &report))
		assert.True(t, report.Accessible)
	})

	t.Run("archive", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "problem")
		run(t, "archive", "-o", "table", name, out, "--codec", "zstd")
		assert.FileExists(t, out+".tar.zst")
	})

	t.Run("snapshot", func(t *testing.T) {
		snap := filepath.Join(t.TempDir(), "problem.cbor")
		run(t, "cat", "-o", "table", name, "--snapshot", snap)
		assert.FileExists(t, snap)

		copyPath := strings.TrimSpace(run(t, "save", "-o", "table", "--from-snapshot", snap))
		require.DirExists(t, copyPath)
		assert.NotEqual(t, path, copyPath)

		data, err := os.ReadFile(filepath.Join(copyPath, "comment"))
		require.NoError(t, err)
		assert.Equal(t, "crashed while printing", strings.TrimSpace(string(data)))

		run(t, "delete", "-o", "table", "--force", copyPath)
		assert.NoDirExists(t, copyPath)
	})

	t.Run("rm-item", func(t *testing.T) {
		run(t, "rm-item", "-o", "table", "--force", name, "comment")
		assert.NoFileExists(t, filepath.Join(path, "comment"))
	})

	t.Run("rename", func(t *testing.T) {
		run(t, "rename", "-o", "table", name, name+"-renamed")
		assert.DirExists(t, path+"-renamed")
		path, name = path+"-renamed", name+"-renamed"
	})

	t.Run("delete", func(t *testing.T) {
		run(t, "delete", "-o", "table", "--force", name)
		assert.NoDirExists(t, path)
	})

	t.Run("config show", func(t *testing.T) {
		out := run(t, "config", "show", "-o", "yaml")
		assert.Contains(t, out, "base_dir: "+base)
	})
}
