// Package extract recovers JSON objects from free-form model output.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ParseError is returned when no JSON object can be recovered from the text
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err carries a *ParseError
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*\\s*\\n?(.*?)```")

// Object extracts the first JSON object found in text
func Object(text string) (map[string]any, error) {
	out := map[string]any{}
	if err := Into(text, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Into extracts the first JSON object found in text and decodes it into v.
// Candidates are tried in order: the whole text, fenced code blocks, then the
// outermost brace span. If none parse, each candidate is repaired once and retried.
func Into(text string, v any) error {
	raw, err := Raw(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return &ParseError{Raw: text, Err: err}
	}
	return nil
}

// Raw returns the recovered JSON object text
func Raw(text string) (string, error) {
	candidates := candidatesOf(text)
	if len(candidates) == 0 {
		return "", &ParseError{Raw: text, Err: errors.New("empty response")}
	}

	var lastErr error
	for _, c := range candidates {
		err := validObject(c)
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	for _, c := range candidates {
		repaired := Repair(c)
		err := validObject(repaired)
		if err == nil {
			return repaired, nil
		}
		lastErr = err
	}
	return "", &ParseError{Raw: text, Err: lastErr}
}

func validObject(s string) error {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return err
	}
	if obj == nil {
		return errors.New("not a JSON object")
	}
	return nil
}

func candidatesOf(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(trimmed)
	for _, m := range fencePattern.FindAllStringSubmatch(trimmed, -1) {
		add(m[1])
		if span, ok := outermostObject(m[1]); ok {
			add(span)
		}
	}
	if span, ok := outermostObject(trimmed); ok {
		add(span)
	}
	return out
}

// outermostObject returns the first balanced {...} span. Both quote styles are
// treated as string delimiters so braces inside strings are ignored. An
// unbalanced span falls back to the first '{' through the last '}'.
func outermostObject(text string) (string, bool) {
	start := -1
	depth := 0
	var quote rune
	escape := false
	for i, r := range text {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if quote != 0 {
			if escape {
				escape = false
				continue
			}
			if r == '\\' {
				escape = true
				continue
			}
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'':
			quote = r
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	if start == -1 {
		return "", false
	}
	if end := strings.LastIndex(text, "}"); end > start {
		return text[start : end+1], true
	}
	return "", false
}
