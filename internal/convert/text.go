package convert

import (
	"io"
)

// TextFormat handles plain text and Markdown files, which pass through as-is.
type TextFormat struct{}

func (p *TextFormat) ToMarkdown(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
