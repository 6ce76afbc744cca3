package record

import (
	"encoding/json"
	"fmt"
	"io"
)

// Document is the persisted result for one source file.
type Document struct {
	SourceFilepath string  `json:"source_filepath"`
	MarkdownText   string  `json:"markdown_text"`
	Chunks         []Chunk `json:"chunks"`
}

// Chunk is one slice of the document text and the QA pairs extracted from it.
type Chunk struct {
	ChunkText string   `json:"chunk_text"`
	QAPairs   []QAPair `json:"qa_pairs"`
}

// QAPair is a validated question/answer with its supporting quotes.
type QAPair struct {
	Question         string   `json:"question"`
	Answer           string   `json:"answer"`
	SupportingQuotes []string `json:"supporting_quotes"`
}

// Normalize replaces nil slices with empty ones so the JSON shape never
// contains null arrays.
func (d *Document) Normalize() {
	if d.Chunks == nil {
		d.Chunks = []Chunk{}
	}
	for i := range d.Chunks {
		c := &d.Chunks[i]
		if c.QAPairs == nil {
			c.QAPairs = []QAPair{}
		}
		for j := range c.QAPairs {
			if c.QAPairs[j].SupportingQuotes == nil {
				c.QAPairs[j].SupportingQuotes = []string{}
			}
		}
	}
}

// QACount returns the total number of QA pairs across all chunks.
func (d *Document) QACount() int {
	n := 0
	for _, c := range d.Chunks {
		n += len(c.QAPairs)
	}
	return n
}

// Encode writes the document as indented JSON.
func (d *Document) Encode(w io.Writer) error {
	d.Normalize()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}

// Decode reads a document previously written by Encode.
func Decode(r io.Reader) (*Document, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	d.Normalize()
	return &d, nil
}
