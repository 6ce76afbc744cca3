package chunker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrBudgetTooSmall is returned when a single character does not fit the budget.
var ErrBudgetTooSmall = errors.New("token budget too small for a single character")

// Chunker splits Markdown into chunks that fit a token budget. Chunk
// boundaries follow top-level Markdown blocks where possible.
type Chunker struct {
	counter Counter
}

// New returns a Chunker measuring text with counter. A nil counter falls back
// to EstimateCounter.
func New(counter Counter) *Chunker {
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &Chunker{counter: counter}
}

// Chunk splits markdown into ordered chunks of at most budget tokens each.
// Chunks are trimmed, so joining them reproduces the input up to whitespace
// at the split points. Empty or blank input yields no chunks.
func (c *Chunker) Chunk(ctx context.Context, markdown string, budget int) ([]string, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("token budget must be positive, got %d", budget)
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, nil
	}
	r := &run{
		ctx:     ctx,
		counter: c.counter,
		budget:  budget,
		counts:  make(map[string]int),
	}
	return r.chunk(markdown, blocks(markdown))
}

type run struct {
	ctx     context.Context
	counter Counter
	budget  int
	counts  map[string]int
}

func (r *run) count(s string) (int, error) {
	if n, ok := r.counts[s]; ok {
		return n, nil
	}
	n, err := r.counter.CountTokens(r.ctx, s)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	r.counts[s] = n
	return n, nil
}

func (r *run) fits(s string) (bool, error) {
	n, err := r.count(s)
	return n <= r.budget, err
}

// unit is a top-level block as a byte range of the source.
type unit struct {
	start, end int
	heading    int
}

// chunk merges consecutive units greedily while the merged text fits.
// A level 1-2 heading starts a new chunk once the current one is half full.
func (r *run) chunk(src string, units []unit) ([]string, error) {
	var chunks []string
	curStart, curEnd := -1, -1

	flush := func() {
		if curStart >= 0 {
			if s := strings.TrimSpace(src[curStart:curEnd]); s != "" {
				chunks = append(chunks, s)
			}
		}
		curStart, curEnd = -1, -1
	}

	for _, u := range units {
		body := strings.TrimSpace(src[u.start:u.end])
		if body == "" {
			if curStart >= 0 {
				curEnd = u.end
			}
			continue
		}

		if curStart >= 0 {
			if u.heading > 0 && u.heading <= 2 {
				n, err := r.count(strings.TrimSpace(src[curStart:curEnd]))
				if err != nil {
					return nil, err
				}
				if n*2 >= r.budget {
					flush()
				}
			}
		}
		if curStart >= 0 {
			ok, err := r.fits(strings.TrimSpace(src[curStart:u.end]))
			if err != nil {
				return nil, err
			}
			if ok {
				curEnd = u.end
				continue
			}
			flush()
		}

		ok, err := r.fits(body)
		if err != nil {
			return nil, err
		}
		if ok {
			curStart, curEnd = u.start, u.end
			continue
		}
		parts, err := r.split(body, 0)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, parts...)
	}
	flush()
	return chunks, nil
}

// splitters break an oversized block at successively finer boundaries.
// Every splitter returns pieces that concatenate back to its input.
var splitters = []func(string) []string{
	splitLines,
	splitSentences,
	splitWords,
}

// split hard-splits a block that exceeds the budget on its own.
func (r *run) split(s string, level int) ([]string, error) {
	if level >= len(splitters) {
		return r.splitRunes(s)
	}
	pieces := splitters[level](s)
	if len(pieces) <= 1 {
		return r.split(s, level+1)
	}

	var out []string
	cur := ""
	for _, p := range pieces {
		cand := cur + p
		if strings.TrimSpace(cand) == "" {
			cur = cand
			continue
		}
		ok, err := r.fits(strings.TrimSpace(cand))
		if err != nil {
			return nil, err
		}
		if ok {
			cur = cand
			continue
		}
		if t := strings.TrimSpace(cur); t != "" {
			out = append(out, t)
		}
		cur = ""

		ok, err = r.fits(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		if ok {
			cur = p
			continue
		}
		sub, err := r.split(strings.TrimSpace(p), level+1)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	if t := strings.TrimSpace(cur); t != "" {
		out = append(out, t)
	}
	return out, nil
}

// splitRunes cuts s into the longest rune prefixes that fit, found by
// binary search over rune boundaries.
func (r *run) splitRunes(s string) ([]string, error) {
	var out []string
	for s != "" {
		bounds := runeBounds(s)
		lo, hi := 0, len(bounds)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			ok, err := r.fits(strings.TrimSpace(s[:bounds[mid]]))
			if err != nil {
				return nil, err
			}
			if ok {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		if lo == 0 {
			return nil, ErrBudgetTooSmall
		}
		if t := strings.TrimSpace(s[:bounds[lo]]); t != "" {
			out = append(out, t)
		}
		s = s[bounds[lo]:]
	}
	return out, nil
}

// runeBounds returns the byte offsets 0, end of rune 1, ..., len(s).
func runeBounds(s string) []int {
	bounds := make([]int, 0, utf8.RuneCountInString(s)+1)
	for i := range s {
		bounds = append(bounds, i)
	}
	return append(bounds, len(s))
}

func splitLines(s string) []string {
	return strings.SplitAfter(s, "\n")
}

// splitSentences splits after terminal punctuation followed by whitespace,
// keeping the whitespace on the preceding sentence.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if !isTerminal(s[i]) {
			continue
		}
		j := i + 1
		for j < len(s) && isTerminal(s[j]) {
			j++
		}
		k := j
		for k < len(s) && isSpace(s[k]) {
			k++
		}
		if k > j {
			out = append(out, s[start:k])
			start = k
		}
		i = k - 1
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

var wordRe = regexp.MustCompile(`\S+\s*|\s+`)

func splitWords(s string) []string {
	return wordRe.FindAllString(s, -1)
}

func isTerminal(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// blocks parses src with goldmark and returns the top-level blocks as
// contiguous byte ranges covering all of src.
func blocks(src string) []unit {
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var units []unit
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		pos, ok := blockStart(n, source)
		if !ok {
			continue
		}
		pos = lineStart(source, pos)
		if len(units) > 0 && pos <= units[len(units)-1].start {
			continue
		}
		level := 0
		if h, ok := n.(*ast.Heading); ok {
			level = h.Level
		}
		units = append(units, unit{start: pos, heading: level})
	}

	if len(units) == 0 {
		return []unit{{start: 0, end: len(src)}}
	}
	units[0].start = 0
	for i := range units {
		if i+1 < len(units) {
			units[i].end = units[i+1].start
		} else {
			units[i].end = len(src)
		}
	}
	return units
}

// blockStart finds the earliest source offset belonging to a block node.
func blockStart(n ast.Node, source []byte) (int, bool) {
	if fc, ok := n.(*ast.FencedCodeBlock); ok {
		if fc.Info != nil {
			return fc.Info.Segment.Start, true
		}
		if fc.Lines().Len() > 0 {
			return previousLineStart(source, fc.Lines().At(0).Start), true
		}
		return 0, false
	}

	best := -1
	if n.Lines().Len() > 0 {
		best = n.Lines().At(0).Start
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Type() != ast.TypeBlock {
			continue
		}
		if p, ok := blockStart(c, source); ok && (best < 0 || p < best) {
			best = p
		}
	}
	return best, best >= 0
}

func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

func previousLineStart(source []byte, pos int) int {
	p := lineStart(source, pos)
	if p == 0 {
		return 0
	}
	return lineStart(source, p-1)
}
