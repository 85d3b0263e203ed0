package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sys/unix"

	"github.com/marmos91/probdir/internal/telemetry"
	"github.com/marmos91/probdir/pkg/dumpdir"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
)

type archiveRecorder struct {
	codec, outcome string
	calls          int
}

func (r *archiveRecorder) ObserveLock(string, string, time.Duration) {}
func (r *archiveRecorder) RecordStaleLock()                          {}
func (r *archiveRecorder) RecordSave(string, int)                    {}
func (r *archiveRecorder) RecordDelete(string)                       {}
func (r *archiveRecorder) ObserveArchive(codec, outcome string, _ time.Duration) {
	r.codec, r.outcome = codec, outcome
	r.calls++
}

// newProblem creates a locked problem directory holding a few elements.
func newProblem(t *testing.T, m dumpdir.Metrics) *dumpdir.Dir {
	t.Helper()
	cfg := dumpdir.DefaultConfig()
	cfg.ServiceGroupGID = os.Getegid()
	cfg.NobodyUID = 65534
	cfg.Metrics = m

	d, err := dumpdir.New(cfg).Create(context.Background(), t.TempDir(), dumpdir.CreateRequest{
		Type: "CCpp",
		UID:  -1,
		Populate: func(d *dumpdir.Dir) error {
			if err := d.SaveText(dumpdir.ElementReason, "segfault in main"); err != nil {
				return err
			}
			return d.SaveBinary("coredump", []byte{0x7f, 'E', 'L', 'F', 0, 1, 2, 3})
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// readTar lists the entries of an archive and returns their contents.
func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	out := map[string]string{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(data)
	}
}

func decompressor(t *testing.T, codec Codec, r io.Reader) io.Reader {
	t.Helper()
	switch codec {
	case CodecGzip:
		zr, err := gzip.NewReader(r)
		require.NoError(t, err)
		return zr
	case CodecZstd:
		zr, err := zstd.NewReader(r)
		require.NoError(t, err)
		t.Cleanup(zr.Close)
		return zr
	case CodecLZ4:
		return lz4.NewReader(r)
	}
	return r
}

// writeFilter installs a shell script standing in for an external
// compressor.
func writeFilter(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filter")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// ============================================================================
// Codec Tests
// ============================================================================

func TestCodecForName(t *testing.T) {
	tests := []struct {
		name string
		want Codec
	}{
		{"problem.tar", CodecNone},
		{"problem.tar.gz", CodecGzip},
		{"problem.tgz", CodecGzip},
		{"problem.tar.zst", CodecZstd},
		{"problem.tar.lz4", CodecLZ4},
		{"problem.tar.xz", CodecXZ},
		{"problem.tar.bz2", CodecBzip2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CodecForName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, string(got)))
		})
	}

	_, err := CodecForName("problem.zip")
	assert.True(t, dderrors.IsNotSupportedError(err))
}

func mustParse(t *testing.T, name string) Codec {
	t.Helper()
	c, err := ParseCodec(name)
	require.NoError(t, err)
	return c
}

// ============================================================================
// Export Tests
// ============================================================================

func TestExport_InProcessCodecs(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecGzip, CodecZstd, CodecLZ4} {
		t.Run(string(codec), func(t *testing.T) {
			rec := &archiveRecorder{}
			d := newProblem(t, rec)
			name := filepath.Join(t.TempDir(), "problem"+codec.Suffix())

			size, err := Export(context.Background(), d, name, Options{})
			require.NoError(t, err)
			assert.Positive(t, size)

			f, err := os.Open(name)
			require.NoError(t, err)
			defer f.Close()
			entries := readTar(t, decompressor(t, codec, f))

			assert.Equal(t, "segfault in main", entries[dumpdir.ElementReason])
			assert.Equal(t, "\x7fELF\x00\x01\x02\x03", entries["coredump"])
			assert.Equal(t, "CCpp", entries[dumpdir.ElementType])
			assert.NotContains(t, entries, dumpdir.LockName)

			assert.Equal(t, 1, rec.calls)
			assert.Equal(t, string(codec), rec.codec)
			assert.Equal(t, "ok", rec.outcome)
		})
	}
}

func TestExport_Exclusions(t *testing.T) {
	d := newProblem(t, nil)
	name := filepath.Join(t.TempDir(), "problem.tar")

	_, err := Export(context.Background(), d, name, Options{Exclude: []string{"coredump", dumpdir.ElementHostname}})
	require.NoError(t, err)

	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	entries := readTar(t, f)

	assert.NotContains(t, entries, "coredump")
	assert.NotContains(t, entries, dumpdir.ElementHostname)
	assert.Contains(t, entries, dumpdir.ElementReason)
}

func TestExport_DirectoryOrder(t *testing.T) {
	d := newProblem(t, nil)
	name := filepath.Join(t.TempDir(), "problem.tar")
	_, err := Export(context.Background(), d, name, Options{})
	require.NoError(t, err)

	want, err := d.Elements()
	require.NoError(t, err)

	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	var got []string
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, hdr.Name)
	}
	assert.Equal(t, want, got)
}

func TestExport_AlreadyExists(t *testing.T) {
	rec := &archiveRecorder{}
	d := newProblem(t, rec)
	name := filepath.Join(t.TempDir(), "problem.tar.gz")
	require.NoError(t, os.WriteFile(name, []byte("keep me"), 0o600))

	_, err := Export(context.Background(), d, name, Options{})
	require.Error(t, err)
	assert.True(t, dderrors.IsAlreadyExistsError(err))

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
	assert.Equal(t, "error", rec.outcome)
}

func TestExport_UnknownSuffix(t *testing.T) {
	d := newProblem(t, nil)
	_, err := Export(context.Background(), d, filepath.Join(t.TempDir(), "problem.rar"), Options{})
	assert.True(t, dderrors.IsNotSupportedError(err))
}

// ============================================================================
// External Filter Tests
// ============================================================================

func TestExport_ExternalFilter(t *testing.T) {
	d := newProblem(t, nil)
	name := filepath.Join(t.TempDir(), "problem.tar.xz")
	filter := writeFilter(t, "exec cat")

	_, err := Export(context.Background(), d, name, Options{Filters: map[Codec]string{CodecXZ: filter}})
	require.NoError(t, err)

	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()
	entries := readTar(t, f)
	assert.Equal(t, "segfault in main", entries[dumpdir.ElementReason])
}

func TestExport_FilterNonZeroExit(t *testing.T) {
	d := newProblem(t, nil)
	name := filepath.Join(t.TempDir(), "problem.tar.bz2")
	filter := writeFilter(t, "exit 3")

	_, err := Export(context.Background(), d, name, Options{Filters: map[Codec]string{CodecBzip2: filter}})
	require.Error(t, err)
	assert.True(t, dderrors.IsNonZeroExitError(err), "got %v", err)

	_, statErr := os.Stat(name)
	assert.True(t, os.IsNotExist(statErr))
}

func TestExport_FilterSignaled(t *testing.T) {
	d := newProblem(t, nil)
	name := filepath.Join(t.TempDir(), "problem.tar.xz")
	filter := writeFilter(t, "kill -KILL $$")

	_, err := Export(context.Background(), d, name, Options{Filters: map[Codec]string{CodecXZ: filter}})
	require.Error(t, err)
	assert.True(t, dderrors.IsSignaledError(err), "got %v", err)
}

func TestExport_FilterExistStatus(t *testing.T) {
	d := newProblem(t, nil)
	name := filepath.Join(t.TempDir(), "problem.tar.xz")
	filter := writeFilter(t, "exit 17")

	_, err := Export(context.Background(), d, name, Options{Filters: map[Codec]string{CodecXZ: filter}})
	assert.True(t, dderrors.IsAlreadyExistsError(err), "got %v", err)
}

func TestExport_MissingFilter(t *testing.T) {
	d := newProblem(t, nil)
	name := filepath.Join(t.TempDir(), "problem.tar.xz")

	_, err := Export(context.Background(), d, name, Options{Filters: map[Codec]string{CodecXZ: "/nonexistent/xz"}})
	assert.True(t, dderrors.IsNotSupportedError(err), "got %v", err)
}

func TestExport_RestoresSIGPIPE(t *testing.T) {
	before := signal.Ignored(unix.SIGPIPE)

	d := newProblem(t, nil)
	filter := writeFilter(t, "exit 1")
	_, _ = Export(context.Background(), d, filepath.Join(t.TempDir(), "p.tar.xz"), Options{Filters: map[Codec]string{CodecXZ: filter}})

	assert.Equal(t, before, signal.Ignored(unix.SIGPIPE))
}

func TestExport_Span(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	telemetry.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { telemetry.SetTracerProvider(noop.NewTracerProvider()) })

	d := newProblem(t, nil)
	name := filepath.Join(t.TempDir(), "problem.tar.zst")
	size, err := Export(context.Background(), d, name, Options{})
	require.NoError(t, err)

	var found bool
	for _, s := range rec.Ended() {
		if s.Name() != telemetry.SpanExport {
			continue
		}
		attrs := map[string]attribute.Value{}
		for _, kv := range s.Attributes() {
			attrs[string(kv.Key)] = kv.Value
		}
		if attrs[telemetry.AttrDir].AsString() != d.Path() {
			continue
		}
		found = true
		assert.Equal(t, name, attrs[telemetry.AttrArchive].AsString())
		assert.Equal(t, string(CodecZstd), attrs[telemetry.AttrCodec].AsString())
		assert.Equal(t, size, attrs[telemetry.AttrBytes].AsInt64())
		assert.Equal(t, codes.Unset, s.Status().Code)
	}
	assert.True(t, found, "no export span for %s", d.Path())
}
