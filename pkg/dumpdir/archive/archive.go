// Package archive exports problem directories as compressed tarballs.
//
// Export runs two tasks joined by a pipe: a producer writing the tar
// stream and a consumer compressing it into the archive file. gzip, zstd
// and lz4 are compressed in-process; xz and bzip2 go through the external
// filter program of the same name.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/marmos91/probdir/internal/logger"
	"github.com/marmos91/probdir/internal/telemetry"
	"github.com/marmos91/probdir/pkg/bufpool"
	"github.com/marmos91/probdir/pkg/dumpdir"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
)

// Options controls Export.
type Options struct {
	// Codec overrides the codec guessed from the archive name.
	Codec Codec

	// Exclude names elements left out of the archive.
	Exclude []string

	// Filters maps external codecs to the program run for them. Missing
	// entries run the codec name from $PATH.
	Filters map[Codec]string
}

// Export writes the elements of d, in directory order, to a new archive
// file called name and returns its size. name must not exist. A partial
// archive is removed on failure.
func Export(ctx context.Context, d *dumpdir.Dir, name string, opts Options) (size int64, err error) {
	codec := opts.Codec
	if codec == "" {
		if codec, err = CodecForName(name); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	ctx, span := telemetry.StartDirSpan(ctx, telemetry.SpanExport, d.Path(),
		telemetry.Archive(name), telemetry.Codec(string(codec)))
	defer func() {
		span.SetAttributes(telemetry.Bytes(size))
		telemetry.End(span, err)
		if m := d.Store().Config().Metrics; m != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.ObserveArchive(string(codec), outcome, time.Since(start))
		}
	}()

	out, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, dderrors.FromOS("archive", name, err)
	}

	restore := ignoreSIGPIPE()
	defer restore()

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := writeTar(gctx, pw, d, opts.Exclude)
		_ = pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		var err error
		if codec.External() {
			err = runFilter(gctx, codec, opts.Filters[codec], pr, out)
		} else {
			err = compress(codec, pr, out)
		}
		_ = pr.CloseWithError(err)
		return err
	})

	err = g.Wait()
	if err == nil {
		var st os.FileInfo
		if st, err = out.Stat(); err == nil {
			size = st.Size()
		}
	}
	if cerr := out.Close(); err == nil && cerr != nil {
		err = dderrors.FromOS("archive", name, cerr)
	}
	if err != nil {
		_ = os.Remove(name)
		logger.Error("archive export failed", logger.Dir(d.Path()), logger.Archive(name), logger.Codec(string(codec)), logger.Err(err))
		return 0, err
	}

	logger.Debug("archive exported", logger.Dir(d.Path()), logger.Archive(name),
		logger.Codec(string(codec)), logger.Size(size), logger.DurationMs(start))
	return size, nil
}

func writeTar(ctx context.Context, w io.Writer, d *dumpdir.Dir, exclude []string) error {
	names, err := d.Elements()
	if err != nil {
		return err
	}

	tw := tar.NewWriter(w)
	for _, name := range names {
		if slices.Contains(exclude, name) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addElement(tw, d, name); err != nil {
			return err
		}
	}
	return tw.Close()
}

func addElement(tw *tar.Writer, d *dumpdir.Dir, name string) error {
	f, err := d.OpenItem(name, dumpdir.ItemReadOnly)
	if err != nil {
		// vanished or replaced by something that is not a plain file
		if dderrors.IsNotFoundError(err) || dderrors.IsCorruptError(err) {
			logger.Warn("skipping element", logger.Dir(d.Path()), logger.Element(name), logger.Err(err))
			return nil
		}
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(st, "")
	if err != nil {
		return err
	}
	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	// the element may grow while we copy it; the header already fixed its size
	n, err := bufpool.Copy(tw, io.LimitReader(f, hdr.Size), hdr.Size)
	if err == nil && n < hdr.Size {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return fmt.Errorf("element %s: %w", name, err)
	}
	return nil
}

func compress(codec Codec, r io.Reader, out io.Writer) error {
	w, err := newWriter(codec, out)
	if err != nil {
		return err
	}
	if _, err := bufpool.Copy(w, r, -1); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// runFilter pipes r through an external compressor writing to out.
func runFilter(ctx context.Context, codec Codec, program string, r io.Reader, out *os.File) error {
	if program == "" {
		program = string(codec)
	}
	path, err := exec.LookPath(program)
	if err != nil {
		return dderrors.NewNotSupportedError(fmt.Sprintf("%s filter not available: %v", codec, err))
	}

	cmd := exec.CommandContext(ctx, path, "-z", "-c")
	cmd.Stdin = r
	cmd.Stdout = out
	cmd.Stderr = os.Stderr

	logger.Debug("running archive filter", logger.Codec(string(codec)), logger.Operation(path))
	return filterError(out.Name(), cmd.Run())
}

// filterError maps the exit status of a filter process. Filters that
// refuse to overwrite their output exit with EEXIST.
func filterError(name string, err error) error {
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return dderrors.FromOS("archive", name, err)
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return &dderrors.StoreError{
			Code:    dderrors.ErrSignaled,
			Op:      "archive",
			Path:    name,
			Message: fmt.Sprintf("filter killed by signal %d (%s)", int(ws.Signal()), ws.Signal()),
			Err:     err,
		}
	}
	if ee.ExitCode() == int(unix.EEXIST) {
		return dderrors.NewAlreadyExistsError(name)
	}
	return &dderrors.StoreError{
		Code:    dderrors.ErrNonZeroExit,
		Op:      "archive",
		Path:    name,
		Message: fmt.Sprintf("filter exited with status %d", ee.ExitCode()),
		Err:     err,
	}
}
