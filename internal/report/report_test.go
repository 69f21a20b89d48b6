package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"example.com/nitfgate/internal/common"
	"example.com/nitfgate/internal/nitf"
	"example.com/nitfgate/internal/nitf/nitftest"
)

func sampleReport(t *testing.T) LayoutReport {
	t.Helper()
	b := &nitftest.Builder{Title: "report sample"}
	b.AddSized(nitf.Image, 50, 64).AddSized(nitf.DataExtension, 20, 10)
	raw := b.MustBuild()
	rep, err := Build("sample.ntf", common.Sha256OfBytes(raw), nitf.NewMemStore(raw))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return rep
}

func TestWriteLayoutPDF(t *testing.T) {
	rep := sampleReport(t)
	if len(rep.Problems) != 0 {
		t.Fatalf("unexpected problems: %v", rep.Problems)
	}
	pdf, err := WriteLayoutPDF(rep)
	if err != nil {
		t.Fatalf("WriteLayoutPDF: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}

	out := filepath.Join(t.TempDir(), "layout.pdf")
	if err := SaveLayoutPDF(rep, out); err != nil {
		t.Fatalf("SaveLayoutPDF: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		t.Fatalf("pdf not written: %v", err)
	}
}

func TestLayoutJSONRoundTrip(t *testing.T) {
	rep := sampleReport(t)
	out := filepath.Join(t.TempDir(), "layout.json")
	if err := SaveLayoutJSON(rep, out); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadLayoutJSON(out)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.SHA256 != rep.SHA256 || got.Layout.HeaderLength != rep.Layout.HeaderLength {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Layout.Kinds) != 5 || got.Layout.Kinds[0].Count != 1 {
		t.Fatalf("kinds not preserved: %+v", got.Layout.Kinds)
	}
}

func TestHashToQR(t *testing.T) {
	png, err := HashToQR(" ab-cd:12 ", 64)
	if err != nil {
		t.Fatalf("HashToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected PNG output")
	}
	if _, err := HashToQR("zz", 64); err == nil {
		t.Fatalf("expected error for hash without hex digits")
	}
	if got := sanitizeHash(" ab-cd:12 "); got != "ABCD12" {
		t.Fatalf("sanitizeHash = %q", got)
	}
}
