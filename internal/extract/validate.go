package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dgallion1/genqa/internal/record"
)

// ValidationKind classifies why model output was rejected.
type ValidationKind string

const (
	MalformedStructure ValidationKind = "malformed_structure"
	FieldMissing       ValidationKind = "field_missing"
)

// ValidationError describes rejected model output. Index and Field are set
// when the problem is tied to one entry.
type ValidationError struct {
	Kind  ValidationKind
	Index int
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: entry %d field %q: %v", e.Kind, e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsFieldMissing reports whether err is a FieldMissing validation error.
func IsFieldMissing(err error) bool {
	var v *ValidationError
	return errors.As(err, &v) && v.Kind == FieldMissing
}

// IsMalformed reports whether err is a MalformedStructure validation error.
func IsMalformed(err error) bool {
	var v *ValidationError
	return errors.As(err, &v) && v.Kind == MalformedStructure
}

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?[ \t]*\\n?(.*?)\\s*```")

// Validate parses raw model output into QA pairs. It succeeds only when every
// entry is well formed; an empty array is a valid "no questions" answer.
func Validate(raw string) ([]record.QAPair, error) {
	payload := extractPayload(raw)
	if payload == "" {
		return nil, malformed("empty output")
	}

	items, err := decodeItems(payload)
	if err != nil {
		return nil, err
	}

	pairs := make([]record.QAPair, 0, len(items))
	for i, item := range items {
		qa, err := decodeItem(i, item)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, qa)
	}
	return pairs, nil
}

// extractPayload pulls the JSON value out of fenced or chatty output. Trailing
// commas, which small models emit often, are removed only when the payload is
// not already valid JSON.
func extractPayload(raw string) string {
	s := strings.TrimSpace(raw)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
	}
	if s == "" {
		return ""
	}
	if s[0] != '[' && s[0] != '{' {
		start := strings.IndexAny(s, "[{")
		if start < 0 {
			return s
		}
		closer := "]"
		if s[start] == '{' {
			closer = "}"
		}
		if end := strings.LastIndex(s, closer); end > start {
			s = s[start : end+1]
		} else {
			s = s[start:]
		}
	}
	if json.Valid([]byte(s)) {
		return s
	}
	return stripTrailingCommas(s)
}

// stripTrailingCommas drops commas that directly precede a closing bracket or
// brace, leaving string contents untouched.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		} else if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == ']' || s[j] == '}') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// decodeItems accepts a top-level array, an object wrapping the array in
// "qa_pairs", or a single QA object.
func decodeItems(payload string) ([]json.RawMessage, error) {
	switch payload[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(payload), &items); err != nil {
			return nil, malformed("parse array: %v", err)
		}
		return items, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(payload), &obj); err != nil {
			return nil, malformed("parse object: %v", err)
		}
		if wrapped, ok := obj["qa_pairs"]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(wrapped, &items); err != nil || isNull(wrapped) {
				return nil, malformed("qa_pairs is not an array")
			}
			return items, nil
		}
		if _, ok := obj["question"]; ok {
			return []json.RawMessage{json.RawMessage(payload)}, nil
		}
		return nil, malformed("object has no qa_pairs array")
	default:
		return nil, malformed("output is not a JSON array or object")
	}
}

func decodeItem(index int, raw json.RawMessage) (record.QAPair, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return record.QAPair{}, &ValidationError{Kind: MalformedStructure, Index: index, Err: fmt.Errorf("entry %d is not an object", index)}
	}

	question, err := requiredString(index, fields, "question")
	if err != nil {
		return record.QAPair{}, err
	}
	answer, err := requiredString(index, fields, "answer")
	if err != nil {
		return record.QAPair{}, err
	}

	quotes := []string{}
	if rawQuotes, ok := fields["supporting_quotes"]; ok && !isNull(rawQuotes) {
		if err := json.Unmarshal(rawQuotes, &quotes); err != nil {
			return record.QAPair{}, &ValidationError{Kind: MalformedStructure, Index: index, Field: "supporting_quotes",
				Err: errors.New("not an array of strings")}
		}
	}

	return record.QAPair{Question: question, Answer: answer, SupportingQuotes: quotes}, nil
}

func requiredString(index int, fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return "", &ValidationError{Kind: FieldMissing, Index: index, Field: name, Err: errors.New("required field is absent")}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &ValidationError{Kind: MalformedStructure, Index: index, Field: name, Err: errors.New("not a string")}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &ValidationError{Kind: FieldMissing, Index: index, Field: name, Err: errors.New("required field is blank")}
	}
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func malformed(format string, args ...any) *ValidationError {
	return &ValidationError{Kind: MalformedStructure, Index: -1, Err: fmt.Errorf(format, args...)}
}
