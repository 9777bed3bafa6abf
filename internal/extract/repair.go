package extract

import (
	"strings"
	"unicode"
)

// Repair applies light fixes to almost-JSON: single-quoted strings become
// double-quoted, bare object keys are quoted and trailing commas are dropped.
// Content inside double-quoted strings is left untouched.
func Repair(s string) string {
	src := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 8)

	// last significant rune written outside a string
	var prev rune
	for i := 0; i < len(src); i++ {
		r := src[i]
		switch {
		case r == '"':
			j := copyDoubleQuoted(&b, src, i)
			i = j
			prev = '"'
		case r == '\'':
			j := convertSingleQuoted(&b, src, i)
			i = j
			prev = '"'
		case r == ',':
			if next := nextSignificant(src, i+1); next == '}' || next == ']' {
				continue
			}
			b.WriteRune(r)
			prev = r
		case isIdentStart(r) && (prev == '{' || prev == ','):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			if nextSignificant(src, j) == ':' {
				b.WriteRune('"')
				b.WriteString(string(src[i:j]))
				b.WriteRune('"')
			} else {
				b.WriteString(string(src[i:j]))
			}
			i = j - 1
			prev = 'a'
		default:
			b.WriteRune(r)
			if !unicode.IsSpace(r) {
				prev = r
			}
		}
	}
	return b.String()
}

func copyDoubleQuoted(b *strings.Builder, src []rune, start int) int {
	b.WriteRune('"')
	escape := false
	for i := start + 1; i < len(src); i++ {
		r := src[i]
		b.WriteRune(r)
		if escape {
			escape = false
			continue
		}
		if r == '\\' {
			escape = true
			continue
		}
		if r == '"' {
			return i
		}
	}
	return len(src) - 1
}

func convertSingleQuoted(b *strings.Builder, src []rune, start int) int {
	b.WriteRune('"')
	for i := start + 1; i < len(src); i++ {
		r := src[i]
		switch r {
		case '\\':
			if i+1 < len(src) && src[i+1] == '\'' {
				b.WriteRune('\'')
				i++
				continue
			}
			b.WriteRune(r)
			if i+1 < len(src) {
				b.WriteRune(src[i+1])
				i++
			}
		case '"':
			b.WriteString(`\"`)
		case '\'':
			b.WriteRune('"')
			return i
		default:
			b.WriteRune(r)
		}
	}
	b.WriteRune('"')
	return len(src) - 1
}

func nextSignificant(src []rune, from int) rune {
	for i := from; i < len(src); i++ {
		if !unicode.IsSpace(src[i]) {
			return src[i]
		}
	}
	return 0
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '-'
}
