package record

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// QuoteDelimiter joins supporting quotes in the CSV cell.
const QuoteDelimiter = "|"

// CSVHeader is the column order of the aggregated CSV.
var CSVHeader = []string{"file_path", "chunk_number", "qa_number", "question", "answer", "supporting_quotes"}

// CollectStats summarises a collect run.
type CollectStats struct {
	Files int
	Rows  int
}

// Rows flattens a document into CSV rows. Chunk and QA numbers are 1-based.
func Rows(doc *Document) [][]string {
	var rows [][]string
	for ci, chunk := range doc.Chunks {
		for qi, qa := range chunk.QAPairs {
			rows = append(rows, []string{
				doc.SourceFilepath,
				strconv.Itoa(ci + 1),
				strconv.Itoa(qi + 1),
				qa.Question,
				qa.Answer,
				strings.Join(qa.SupportingQuotes, QuoteDelimiter),
			})
		}
	}
	return rows
}

// FindRecords returns the record files in dir, sorted by name.
func FindRecords(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input directory does not exist: %s", dir)
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "*"+OutputSuffix)
	if err != nil {
		return nil, fmt.Errorf("glob records: %w", err)
	}
	sort.Strings(matches)
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return paths, nil
}

// Collect writes every record in dir to out as one CSV with a header row.
func Collect(dir string, out io.Writer) (CollectStats, error) {
	var stats CollectStats
	paths, err := FindRecords(dir)
	if err != nil {
		return stats, err
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(CSVHeader); err != nil {
		return stats, fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range paths {
		doc, err := readRecord(p)
		if err != nil {
			return stats, err
		}
		rows := Rows(doc)
		if err := cw.WriteAll(rows); err != nil {
			return stats, fmt.Errorf("write csv rows for %s: %w", p, err)
		}
		stats.Files++
		stats.Rows += len(rows)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return stats, fmt.Errorf("flush csv: %w", err)
	}
	return stats, nil
}

func readRecord(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open record: %w", err)
	}
	defer f.Close()
	doc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
