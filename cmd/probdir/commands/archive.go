package commands

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/probdir/cmd/probdir/cmdutil"
	"github.com/marmos91/probdir/pkg/dumpdir/archive"
)

var (
	archiveCodec   string
	archiveExclude []string
)

var archiveCmd = &cobra.Command{
	Use:   "archive DIR [OUTPUT]",
	Short: "Export a problem directory as a compressed tarball",
	Long: `Export the elements of a problem directory into a new tarball.

The codec follows the OUTPUT suffix (.tar, .tar.gz/.tgz, .tar.zst,
.tar.lz4, .tar.xz, .tar.bz2). Without a recognised suffix, --codec or
archive.codec picks it and its suffix is appended. xz and bzip2 run the
external program of the same name. OUTPUT must not exist.

Examples:
  probdir archive CCpp-...                     # ./CCpp-....tar.gz
  probdir archive CCpp-... /tmp/crash.tar.zst
  probdir archive CCpp-... report --codec xz --exclude coredump`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().StringVar(&archiveCodec, "codec", "", "compression: none, gzip, zstd, lz4, xz, bzip2 (default: archive.codec)")
	archiveCmd.Flags().StringSliceVar(&archiveExclude, "exclude", nil, "elements left out of the archive")
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, s, err := cmdutil.Setup()
	if err != nil {
		return err
	}

	opts := cfg.ArchiveOptions()
	opts.Exclude = append(opts.Exclude, archiveExclude...)

	d, err := cmdutil.OpenDir(cmd.Context(), cfg, s, args[0], true)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	name := filepath.Base(d.Path())
	if len(args) == 2 {
		name = args[1]
	}
	if archiveCodec != "" {
		if opts.Codec, err = archive.ParseCodec(archiveCodec); err != nil {
			return err
		}
	}
	if _, err := archive.CodecForName(name); err != nil {
		codec := opts.Codec
		if codec == "" {
			if codec, err = archive.ParseCodec(cfg.Archive.Codec); err != nil {
				return err
			}
		}
		opts.Codec = codec
		name += codec.Suffix()
	}

	size, err := archive.Export(cmd.Context(), d, name, opts)
	if err != nil {
		return err
	}
	result := map[string]any{"archive": name, "size": size}
	return cmdutil.PrintResourceWithSuccess(cmd.OutOrStdout(), result,
		fmt.Sprintf("Wrote %s (%s)", name, humanize.IBytes(uint64(size))))
}
