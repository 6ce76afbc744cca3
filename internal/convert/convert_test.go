package convert

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestForFile_Extensions(t *testing.T) {
	cases := []struct {
		name string
		want any
	}{
		{"a.txt", &TextFormat{}},
		{"a.MD", &TextFormat{}},
		{"a.markdown", &TextFormat{}},
		{"a.csv", &CSVFormat{}},
		{"a.pdf", &PDFFormat{}},
		{"a.docx", &DOCXFormat{}},
	}
	for _, tc := range cases {
		f, err := ForFile(tc.name, Options{})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got, want := typeName(f), typeName(tc.want); got != want {
			t.Errorf("%s: expected %s, got %s", tc.name, want, got)
		}
	}
	if _, ok := mustFormat(t, "page.htm").(*HTMLFormat); !ok {
		t.Error("expected HTMLFormat for .htm")
	}
	if _, err := ForFile("image.png", Options{}); err == nil {
		t.Error("expected error for .png")
	}
}

func mustFormat(t *testing.T, name string) Format {
	t.Helper()
	f, err := ForFile(name, Options{})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return f
}

func typeName(v any) string {
	switch v.(type) {
	case *TextFormat:
		return "text"
	case *CSVFormat:
		return "csv"
	case *PDFFormat:
		return "pdf"
	case *DOCXFormat:
		return "docx"
	case *HTMLFormat:
		return "html"
	}
	return "unknown"
}

func TestIsSupportedExtension(t *testing.T) {
	for _, name := range []string{"x.pdf", "x.DOCX", "x.html", "x.md", "x.txt", "x.csv"} {
		if !IsSupportedExtension(name) {
			t.Errorf("expected %s to be supported", name)
		}
	}
	for _, name := range []string{"x.png", "x", "x.doc"} {
		if IsSupportedExtension(name) {
			t.Errorf("expected %s to be unsupported", name)
		}
	}
}

func TestFileConverter_Markdown(t *testing.T) {
	path := writeFile(t, "notes.md", "# Title\r\n\r\nBody text.   \r\n\r\n\r\n\r\nMore.\r\n")
	got, err := NewFileConverter(Options{}).Convert(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "# Title\n\nBody text.\n\nMore."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFileConverter_Unsupported(t *testing.T) {
	path := writeFile(t, "image.png", "not really an image")
	_, err := NewFileConverter(Options{}).Convert(path)
	var cerr *ConversionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConversionError, got %v", err)
	}
	if cerr.Kind != UnsupportedFormat {
		t.Errorf("expected UnsupportedFormat, got %s", cerr.Kind)
	}
	if cerr.Path != path {
		t.Errorf("expected path %q, got %q", path, cerr.Path)
	}
}

func TestFileConverter_MissingFileIsCorrupt(t *testing.T) {
	_, err := NewFileConverter(Options{}).Convert(filepath.Join(t.TempDir(), "gone.txt"))
	var cerr *ConversionError
	if !errors.As(err, &cerr) || cerr.Kind != CorruptInput {
		t.Fatalf("expected CorruptInput, got %v", err)
	}
	if !IsConversionError(err) {
		t.Error("expected IsConversionError to report true")
	}
}

func TestFileConverter_CorruptBinaryFormats(t *testing.T) {
	for _, name := range []string{"broken.pdf", "broken.docx"} {
		path := writeFile(t, name, "this is not a valid container")
		_, err := NewFileConverter(Options{}).Convert(path)
		var cerr *ConversionError
		if !errors.As(err, &cerr) || cerr.Kind != CorruptInput {
			t.Errorf("%s: expected CorruptInput, got %v", name, err)
		}
	}
}

func TestCSVFormat_Table(t *testing.T) {
	input := "name,role\nAda,engineer\nGrace,admiral|captain\nLinus\n"
	got, err := (&CSVFormat{}).ToMarkdown(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := strings.Join([]string{
		"| name | role |",
		"| --- | --- |",
		"| Ada | engineer |",
		`| Grace | admiral\|captain |`,
		"| Linus |  |",
		"",
	}, "\n")
	if got != want {
		t.Errorf("expected\n%s\ngot\n%s", want, got)
	}
}

func TestCSVFormat_Empty(t *testing.T) {
	got, err := (&CSVFormat{}).ToMarkdown(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

func TestHTMLFormat_MainContent(t *testing.T) {
	input := `<html><head><title>Guide</title><style>p{}</style></head>
<body>
<nav>Navigation links</nav>
<main>
<h2>Install</h2>
<p>Main text about <strong>installing</strong>.</p>
<script>alert("x")</script>
<ul><li>first</li><li>second</li></ul>
</main>
<footer>Footer text</footer>
</body></html>`
	got, err := NewHTMLFormat().ToMarkdown(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"# Guide", "## Install", "Main text about **installing**.", "- first", "- second"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected output to contain %q, got %q", want, got)
		}
	}
	for _, unwanted := range []string{"Navigation", "Footer", "alert("} {
		if strings.Contains(got, unwanted) {
			t.Errorf("expected output without %q, got %q", unwanted, got)
		}
	}
}

func TestHTMLFormat_KeepsExistingTopHeading(t *testing.T) {
	input := `<html><head><title>Page</title></head><body><h1>Real Title</h1><p>Text.</p></body></html>`
	got, err := NewHTMLFormat().ToMarkdown(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "# Page") {
		t.Errorf("expected no synthetic title heading, got %q", got)
	}
	if !strings.Contains(got, "# Real Title") {
		t.Errorf("expected document heading, got %q", got)
	}
}

func TestDocxHeadingLevel_StyleNames(t *testing.T) {
	cases := map[string]int{
		"Heading1":  1,
		"heading 2": 2,
		"Heading6":  6,
		"Title":     1,
		"Normal":    0,
		"Heading10": 0,
	}
	for style, want := range cases {
		if got := headingLevelForStyle(style); got != want {
			t.Errorf("style %q: expected %d, got %d", style, want, got)
		}
	}
}
