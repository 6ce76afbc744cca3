package convert

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrorKind classifies why a document could not be converted.
type ErrorKind string

const (
	UnsupportedFormat ErrorKind = "unsupported_format"
	CorruptInput      ErrorKind = "corrupt_input"
)

// ConversionError is fatal for the document it names.
type ConversionError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// IsConversionError reports whether err is a *ConversionError.
func IsConversionError(err error) bool {
	var c *ConversionError
	return errors.As(err, &c)
}

// Converter turns a source document into Markdown text.
type Converter interface {
	Convert(path string) (string, error)
}

// Format converts one file format to Markdown.
type Format interface {
	ToMarkdown(r io.Reader) (string, error)
}

// SupportedExtensions lists file extensions this tool can convert.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tunes individual formats.
type Options struct {
	PDFFallbackPdftotext bool
}

// ForFile returns the format for a filename, chosen by extension.
func ForFile(filename string, opts Options) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md", ".markdown":
		return &TextFormat{}, nil
	case ".csv":
		return &CSVFormat{}, nil
	case ".html", ".htm":
		return NewHTMLFormat(), nil
	case ".pdf":
		return &PDFFormat{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXFormat{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// FileConverter converts files on disk, picking the format by extension and
// cleaning the result.
type FileConverter struct {
	opts Options
}

func NewFileConverter(opts Options) *FileConverter {
	return &FileConverter{opts: opts}
}

func (c *FileConverter) Convert(path string) (string, error) {
	format, err := ForFile(path, c.opts)
	if err != nil {
		return "", &ConversionError{Kind: UnsupportedFormat, Path: path, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", &ConversionError{Kind: CorruptInput, Path: path, Err: err}
	}
	defer f.Close()

	md, err := format.ToMarkdown(f)
	if err != nil {
		return "", &ConversionError{Kind: CorruptInput, Path: path, Err: err}
	}
	return Clean(md), nil
}
