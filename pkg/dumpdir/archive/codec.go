package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
)

// Codec identifies the compression applied to the tar stream.
type Codec string

const (
	CodecNone  Codec = "none"
	CodecGzip  Codec = "gzip"
	CodecZstd  Codec = "zstd"
	CodecLZ4   Codec = "lz4"
	CodecXZ    Codec = "xz"
	CodecBzip2 Codec = "bzip2"
)

// Codecs lists every supported codec.
var Codecs = []Codec{CodecNone, CodecGzip, CodecZstd, CodecLZ4, CodecXZ, CodecBzip2}

var suffixes = []struct {
	suffix string
	codec  Codec
}{
	{".tar.gz", CodecGzip},
	{".tgz", CodecGzip},
	{".tar.zst", CodecZstd},
	{".tar.lz4", CodecLZ4},
	{".tar.xz", CodecXZ},
	{".tar.bz2", CodecBzip2},
	{".tar", CodecNone},
}

// ParseCodec parses a codec name.
func ParseCodec(name string) (Codec, error) {
	for _, c := range Codecs {
		if string(c) == name {
			return c, nil
		}
	}
	return "", dderrors.NewNotSupportedError(fmt.Sprintf("unknown archive codec %q", name))
}

// CodecForName picks the codec matching the archive file name suffix.
func CodecForName(name string) (Codec, error) {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s.suffix) {
			return s.codec, nil
		}
	}
	return "", dderrors.NewNotSupportedError(fmt.Sprintf("unsupported archive type %q", name))
}

// Suffix returns the conventional file name suffix of c.
func (c Codec) Suffix() string {
	for _, s := range suffixes {
		if s.codec == c {
			return s.suffix
		}
	}
	return ".tar"
}

// External reports whether c runs as a filter process.
func (c Codec) External() bool {
	return c == CodecXZ || c == CodecBzip2
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// newWriter wraps w with an in-process compressor.
func newWriter(c Codec, w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecNone:
		return nopWriteCloser{w}, nil
	case CodecGzip:
		return gzip.NewWriter(w), nil
	case CodecZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	case CodecLZ4:
		return lz4.NewWriter(w), nil
	}
	return nil, dderrors.NewNotSupportedError(fmt.Sprintf("codec %q has no in-process writer", c))
}
