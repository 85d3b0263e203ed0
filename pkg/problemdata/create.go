package problemdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/probdir/internal/logger"
	"github.com/marmos91/probdir/pkg/bufpool"
	"github.com/marmos91/probdir/pkg/dumpdir"
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
)

// FallbackBases are tried in order when CreateDumpDir gets no base
// directory. "~" stands for $HOME.
var FallbackBases = []string{"/var/run/abrt", "~/tmp", "/tmp"}

// CreateDumpDir writes c as a new problem directory under base. The
// analyzer item names the directory. Binary items are copied from the
// files they reference. Names that start with '.' or contain '/' are
// skipped. The returned directory is locked; the caller closes it.
//
// With an empty base the FallbackBases are tried until one works.
func (c *Container) CreateDumpDir(ctx context.Context, s *dumpdir.Store, base string, uid int) (*dumpdir.Dir, error) {
	analyzer := c.Text(dumpdir.ElementAnalyzer)
	if analyzer == "" {
		return nil, dderrors.NewInvalidArgumentError(fmt.Sprintf("missing required item '%s'", dumpdir.ElementAnalyzer))
	}

	req := dumpdir.CreateRequest{
		Type: analyzer,
		UID:  uid,
		Populate: func(d *dumpdir.Dir) error {
			return c.save(d)
		},
	}
	if base != "" {
		return s.Create(ctx, base, req)
	}

	var lastErr error
	for _, b := range FallbackBases {
		if strings.HasPrefix(b, "~/") {
			home := os.Getenv("HOME")
			if home == "" {
				continue
			}
			b = filepath.Join(home, b[2:])
		}
		d, err := s.Create(ctx, b, req)
		if err == nil {
			return d, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		logger.Debug("can't create problem directory", logger.Dir(b), logger.Err(err))
		lastErr = err
	}
	if lastErr == nil {
		lastErr = dderrors.NewInvalidArgumentError("no usable base directory")
	}
	return nil, lastErr
}

func (c *Container) save(d *dumpdir.Dir) error {
	for _, name := range c.Names() {
		it := c.items[name]
		if strings.HasPrefix(name, ".") || strings.Contains(name, "/") {
			logger.Warn("item name contains disallowed characters", logger.Element(name))
			continue
		}

		if it.Kind == KindBinary {
			if err := copyInto(d, name, it.Content); err != nil {
				logger.Error("can't copy binary item", logger.Element(name), logger.Err(err))
			}
			continue
		}
		if err := d.SaveText(name, it.Content); err != nil {
			return err
		}
	}
	return nil
}

func copyInto(d *dumpdir.Dir, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := d.OpenItem(name, dumpdir.ItemReadWrite)
	if err != nil {
		return err
	}
	n, err := bufpool.Copy(out, in, -1)
	if err != nil {
		_ = out.Abort()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	logger.Debug("copied binary item", logger.Element(name), logger.Size(n))
	return nil
}
