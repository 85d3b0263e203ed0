// Package reportedto encodes and decodes the reported_to element, a log of
// the places a problem was reported to. Each line has the form
//
//	label: TIME=2006-01-02-15:04:05 URL=... BTHASH=... WORKFLOW=... MSG=free text
//
// Every key is optional. MSG runs to the end of the line and therefore
// comes last.
package reportedto

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the layout of TIME values, interpreted in local time.
const TimeLayout = "2006-01-02-15:04:05"

// ErrInvalidLabel is returned for empty labels and labels containing ':'
// or a newline.
var ErrInvalidLabel = errors.New("reported_to label must be non-empty and contain no ':' or newline")

// Result is one reported_to record.
type Result struct {
	Label    string
	Time     time.Time
	URL      string
	BTHash   string
	Workflow string
	Message  string
}

// New returns a Result for label. Invalid labels yield ErrInvalidLabel.
func New(label string) (Result, error) {
	if err := ValidateLabel(label); err != nil {
		return Result{}, err
	}
	return Result{Label: label}, nil
}

// ValidateLabel checks that label can start a record.
func ValidateLabel(label string) error {
	if label == "" || strings.ContainsAny(label, ":\n") {
		return ErrInvalidLabel
	}
	return nil
}

// String formats the record without a trailing newline.
func (r Result) String() string {
	var b strings.Builder
	b.WriteString(r.Label)
	b.WriteByte(':')
	if !r.Time.IsZero() {
		fmt.Fprintf(&b, " TIME=%s", r.Time.Local().Format(TimeLayout))
	}
	if r.URL != "" {
		fmt.Fprintf(&b, " URL=%s", r.URL)
	}
	if r.BTHash != "" {
		fmt.Fprintf(&b, " BTHASH=%s", r.BTHash)
	}
	if r.Workflow != "" {
		fmt.Fprintf(&b, " WORKFLOW=%s", r.Workflow)
	}
	if r.Message != "" {
		fmt.Fprintf(&b, " MSG=%s", strings.ReplaceAll(r.Message, "\n", " "))
	}
	return b.String()
}

// Append adds line to content unless an identical line is already present.
// It reports whether content changed.
func Append(content, line string) (string, bool) {
	for _, l := range strings.Split(content, "\n") {
		if l == line {
			return content, false
		}
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + line + "\n", true
}

// ParseLine parses one record. ok is false for lines without a label.
func ParseLine(line string) (r Result, ok bool) {
	line = strings.TrimSuffix(line, "\n")
	label, rest, found := strings.Cut(line, ":")
	if !found || label == "" {
		return Result{}, false
	}
	r.Label = label

	for {
		rest = strings.TrimLeft(rest, " \t\v\f\r")
		if rest == "" {
			return r, true
		}
		if v, ok := strings.CutPrefix(rest, "MSG="); ok {
			r.Message = v
			return r, true
		}

		token := rest
		if i := strings.IndexAny(rest, " \t\v\f\r"); i >= 0 {
			token, rest = rest[:i], rest[i:]
		} else {
			rest = ""
		}

		key, value, _ := strings.Cut(token, "=")
		switch key {
		case "URL":
			r.URL = value
		case "BTHASH":
			r.BTHash = value
		case "WORKFLOW":
			r.Workflow = value
		case "TIME":
			t, err := time.ParseInLocation(TimeLayout, value, time.Local)
			if err == nil {
				r.Time = t
			}
		}
	}
}

// Parse returns every well-formed record of content in order. Malformed
// lines are skipped.
func Parse(content string) []Result {
	var out []Result
	for _, line := range strings.Split(content, "\n") {
		if r, ok := ParseLine(line); ok {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the last record with label.
func Find(content, label string) (Result, bool) {
	var (
		found Result
		ok    bool
	)
	for _, r := range Parse(content) {
		if r.Label == label {
			found, ok = r, true
		}
	}
	return found, ok
}
