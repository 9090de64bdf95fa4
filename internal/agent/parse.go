package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParseMethod records which strategy extracted an object from model text.
type ParseMethod string

const (
	ParseDirect ParseMethod = "direct"
	ParseFenced ParseMethod = "fenced"
	ParseBrace  ParseMethod = "brace"
	ParseNone   ParseMethod = "none"
)

// Parsed is the result of ParseResponse: either a structured object or the
// unparsed raw text.
type Parsed struct {
	Object map[string]any
	Raw    string
	Method ParseMethod
}

// OK reports whether a structured object was found.
func (p Parsed) OK() bool { return p.Object != nil }

// fenceRe matches the first fenced code block, with or without a language tag.
var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\r?\n?(.*?)```")

// ParseResponse extracts a JSON object from free-form model output. It tries
// the whole text, then the first fenced code block, then the first balanced
// brace span. Only JSON objects count.
func ParseResponse(raw string) Parsed {
	p := Parsed{Raw: raw, Method: ParseNone}

	if obj, ok := decodeObject(raw); ok {
		p.Object, p.Method = obj, ParseDirect
		return p
	}

	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		if obj, ok := decodeObject(m[1]); ok {
			p.Object, p.Method = obj, ParseFenced
			return p
		}
	}

	if span, ok := firstBraceSpan(raw); ok {
		if obj, ok := decodeObject(span); ok {
			p.Object, p.Method = obj, ParseBrace
			return p
		}
	}

	return p
}

func decodeObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// firstBraceSpan returns the text from the first '{' to its matching '}'.
// Braces inside JSON string literals are ignored.
func firstBraceSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
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
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
