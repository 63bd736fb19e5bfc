// Package envtmpl resolves ${NAME} and ${NAME:-default} references in
// configuration strings against a supplied environment map.
//
// Substitution is single-pass and non-recursive: a resolved value is never
// re-scanned for further references. A reference with no default and no
// matching entry is a hard resolution error, never an empty string.
package envtmpl

import (
	"fmt"
	"strings"
)

// SegmentKind identifies the type of a parsed template segment.
type SegmentKind int

const (
	// SegmentLiteral is verbatim text copied to the output.
	SegmentLiteral SegmentKind = iota
	// SegmentRef is a ${NAME} or ${NAME:-default} reference.
	SegmentRef
)

// Segment is one parsed piece of a template string.
type Segment struct {
	Kind       SegmentKind
	Text       string // literal text, or the reference name
	Default    string // default value for SegmentRef when HasDefault
	HasDefault bool
	Pos        int // byte offset in the source string
}

// UnresolvedError reports a reference with no value and no default.
type UnresolvedError struct {
	Name string
	Pos  int
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("envtmpl: unresolved reference ${%s} at offset %d", e.Name, e.Pos)
}

// Parse tokenizes a template string into literal and reference segments.
// A lone "$" or "${" without a closing brace is a parse error.
func Parse(src string) ([]Segment, error) {
	var segments []Segment
	var literal strings.Builder
	literalStart := 0

	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, Segment{
				Kind: SegmentLiteral,
				Text: literal.String(),
				Pos:  literalStart,
			})
			literal.Reset()
		}
	}

	i := 0
	for i < len(src) {
		if src[i] != '$' || i+1 >= len(src) || src[i+1] != '{' {
			if literal.Len() == 0 {
				literalStart = i
			}
			literal.WriteByte(src[i])
			i++
			continue
		}

		end := strings.IndexByte(src[i+2:], '}')
		if end < 0 {
			return nil, fmt.Errorf("envtmpl: unterminated reference at offset %d", i)
		}
		body := src[i+2 : i+2+end]

		name := body
		def := ""
		hasDefault := false
		if idx := strings.Index(body, ":-"); idx >= 0 {
			name = body[:idx]
			def = body[idx+2:]
			hasDefault = true
		}
		if !isValidRefName(name) {
			return nil, fmt.Errorf("envtmpl: invalid reference name %q at offset %d", name, i)
		}

		flush()
		segments = append(segments, Segment{
			Kind:       SegmentRef,
			Text:       name,
			Default:    def,
			HasDefault: hasDefault,
			Pos:        i,
		})
		i += 2 + end + 1
	}
	flush()

	return segments, nil
}

func isValidRefName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Resolve substitutes all references in src from env. Missing references with
// a default use the default; missing references without one return
// *UnresolvedError.
func Resolve(src string, env map[string]string) (string, error) {
	if !strings.Contains(src, "${") {
		return src, nil
	}

	segments, err := Parse(src)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, seg := range segments {
		switch seg.Kind {
		case SegmentLiteral:
			out.WriteString(seg.Text)
		case SegmentRef:
			value, ok := env[seg.Text]
			if !ok {
				if !seg.HasDefault {
					return "", &UnresolvedError{Name: seg.Text, Pos: seg.Pos}
				}
				value = seg.Default
			}
			out.WriteString(value)
		}
	}
	return out.String(), nil
}

// ResolveMap resolves every value of in and returns a new map. Keys are
// copied verbatim.
func ResolveMap(in map[string]string, env map[string]string) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		resolved, err := Resolve(value, env)
		if err != nil {
			return nil, fmt.Errorf("envtmpl: key %q: %w", key, err)
		}
		out[key] = resolved
	}
	return out, nil
}

// ResolveSlice resolves every element of in and returns a new slice.
func ResolveSlice(in []string, env map[string]string) ([]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]string, len(in))
	for i, value := range in {
		resolved, err := Resolve(value, env)
		if err != nil {
			return nil, fmt.Errorf("envtmpl: element %d: %w", i, err)
		}
		out[i] = resolved
	}
	return out, nil
}
