package dumpdir

import (
	dderrors "github.com/marmos91/probdir/pkg/dumpdir/errors"
	"github.com/marmos91/probdir/pkg/reportedto"
)

func (d *Dir) loadReportedTo() (string, error) {
	text, err := d.LoadText(ElementReportedTo)
	if dderrors.IsNotFoundError(err) {
		return "", nil
	}
	return text, err
}

// AddReportedTo appends line to reported_to unless it is already there.
func (d *Dir) AddReportedTo(line string) error {
	if err := d.requireLock("add reported_to"); err != nil {
		return err
	}
	content, err := d.loadReportedTo()
	if err != nil {
		return err
	}
	content, changed := reportedto.Append(content, line)
	if !changed {
		return nil
	}
	return d.SaveText(ElementReportedTo, content)
}

// AddReportedToResult formats r and appends it to reported_to.
func (d *Dir) AddReportedToResult(r reportedto.Result) error {
	if err := reportedto.ValidateLabel(r.Label); err != nil {
		return dderrors.Wrap(dderrors.ErrInvalidArgument, "add reported_to", d.path, err)
	}
	return d.AddReportedTo(r.String())
}

// FindReportedTo returns the most recent record with label, or false.
func (d *Dir) FindReportedTo(label string) (reportedto.Result, bool, error) {
	content, err := d.loadReportedTo()
	if err != nil {
		return reportedto.Result{}, false, err
	}
	r, ok := reportedto.Find(content, label)
	return r, ok, nil
}

// ReadReportedTo returns all well-formed records in order.
func (d *Dir) ReadReportedTo() ([]reportedto.Result, error) {
	content, err := d.loadReportedTo()
	if err != nil {
		return nil, err
	}
	return reportedto.Parse(content), nil
}
