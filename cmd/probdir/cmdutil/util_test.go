package cmdutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/probdir/internal/cli/output"
	"github.com/marmos91/probdir/pkg/config"
)

func TestResolveDir(t *testing.T) {
	base := t.TempDir()
	cfg := config.GetDefaultConfig()
	cfg.Store.BaseDir = base

	wd := t.TempDir()
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(wd); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	defer func() { _ = os.Chdir(oldWd) }()

	if err := os.Mkdir("local-problem", 0o700); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	tests := []struct {
		name string
		arg  string
		want string
	}{
		{"absolute path", "/tmp/CCpp-1", "/tmp/CCpp-1"},
		{"relative path", "sub/CCpp-1", "sub/CCpp-1"},
		{"existing local name", "local-problem", "local-problem"},
		{"bare name", "CCpp-1", filepath.Join(base, "CCpp-1")},
		{"dot", ".", "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveDir(cfg, tt.arg); got != tt.want {
				t.Errorf("ResolveDir(%q) = %q, want %q", tt.arg, got, tt.want)
			}
		})
	}
}

func TestPrintOutput(t *testing.T) {
	defer func(old string) { Flags.Output = old }(Flags.Output)

	td := output.NewTableData("NAME")
	td.AddRow("reason")

	Flags.Output = "table"
	var buf bytes.Buffer
	if err := PrintOutput(&buf, []string{"reason"}, false, "none", td); err != nil {
		t.Fatalf("PrintOutput failed: %v", err)
	}
	if !strings.Contains(buf.String(), "reason") {
		t.Errorf("Expected table row, got %q", buf.String())
	}

	buf.Reset()
	if err := PrintOutput(&buf, []string{}, true, "none", td); err != nil {
		t.Fatalf("PrintOutput failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "none" {
		t.Errorf("Expected empty message, got %q", buf.String())
	}

	Flags.Output = "json"
	buf.Reset()
	if err := PrintOutput(&buf, []string{}, true, "none", td); err != nil {
		t.Fatalf("PrintOutput failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("Expected empty JSON list, got %q", buf.String())
	}

	Flags.Output = "xml"
	if err := PrintOutput(&buf, nil, true, "", td); err == nil {
		t.Error("Expected error for invalid output format")
	}
}

func TestBoolToYesNo(t *testing.T) {
	if BoolToYesNo(true) != "yes" || BoolToYesNo(false) != "no" {
		t.Error("BoolToYesNo returned unexpected values")
	}
}

func TestEmptyOr(t *testing.T) {
	if got := EmptyOr("", "-"); got != "-" {
		t.Errorf("EmptyOr(\"\", \"-\") = %q, want \"-\"", got)
	}
	if got := EmptyOr("value", "-"); got != "value" {
		t.Errorf("EmptyOr(\"value\", \"-\") = %q, want \"value\"", got)
	}
}
