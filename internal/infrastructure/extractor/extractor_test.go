package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/portfolio-chatbot/internal/core/domain"
)

func TestExtractPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.md")
	if err := os.WriteFile(path, []byte("\n# Ada\nMathematician\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := New().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "# Ada\nMathematician" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractRejectsBinaryAndUnknownFormats(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "resume.txt")
	if err := os.WriteFile(bin, []byte{0xff, 0xfe, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New().Extract(context.Background(), bin); err == nil {
		t.Fatalf("expected binary plaintext error")
	}
	if _, err := New().Extract(context.Background(), filepath.Join(dir, "resume.docx")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for docx, got %v", err)
	}
}

func TestExtractPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.pdf")
	if err := os.WriteFile(path, minimalPDF("Hello Resume"), 0o644); err != nil {
		t.Fatal(err)
	}
	text, err := New().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(text, "Hello") {
		t.Fatalf("expected pdf text, got %q", text)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo world", 5); got != "héllo" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := Truncate("short", 0); got != "short" {
		t.Fatalf("limit 0 must keep text, got %q", got)
	}
}

// minimalPDF builds a one-page document with a correct xref table.
func minimalPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
