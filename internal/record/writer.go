package record

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// OutputSuffix is appended to the source file stem to name its record.
const OutputSuffix = "_qa.json"

const partialSuffix = ".partial"

// WriteOutcome reports what Write did.
type WriteOutcome string

const (
	Written WriteOutcome = "written"
	Skipped WriteOutcome = "skipped"
)

// WriteError is returned when a record cannot be persisted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write record %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer persists document records under a single output directory.
//
// The exists-then-write check in Write is only safe because the pipeline
// runs a single writer at a time. A concurrent runner would need an atomic
// create-if-absent (os.Link or O_EXCL) instead.
type Writer struct {
	dir string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// PathFor returns the deterministic record path for a source file.
func (w *Writer) PathFor(sourcePath string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(w.dir, stem+OutputSuffix)
}

// Exists reports whether a final record is already present for the source.
func (w *Writer) Exists(sourcePath string) bool {
	_, err := os.Stat(w.PathFor(sourcePath))
	return err == nil
}

// Write persists doc. With overwrite false an existing record is left
// untouched and Skipped is returned.
func (w *Writer) Write(doc *Document, overwrite bool) (WriteOutcome, error) {
	path := w.PathFor(doc.SourceFilepath)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return Skipped, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", &WriteError{Path: path, Err: err}
		}
	}
	if err := writeAtomic(path, doc); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	return Written, nil
}

// Checkpoint atomically writes an in-progress record next to the final one.
func (w *Writer) Checkpoint(doc *Document) error {
	path := w.PathFor(doc.SourceFilepath) + partialSuffix
	if err := writeAtomic(path, doc); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// LoadPartial returns the checkpoint for a source, or nil if there is none.
func (w *Writer) LoadPartial(sourcePath string) (*Document, error) {
	f, err := os.Open(w.PathFor(sourcePath) + partialSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// RemovePartial deletes the checkpoint for a source, if any.
func (w *Writer) RemovePartial(sourcePath string) error {
	err := os.Remove(w.PathFor(sourcePath) + partialSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// writeAtomic writes doc to a temp file in the target directory and renames
// it into place, so readers never see a truncated record.
func writeAtomic(path string, doc *Document) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := doc.Encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return nil
}
