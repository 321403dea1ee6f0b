package core

import (
	"encoding/json"
	"regexp"
	"strings"
)

// The model is asked for bare JSON but is not guaranteed to comply: responses
// routinely arrive wrapped in markdown fences, prefixed with prose, or with a
// stray trailing comma. ExtractJSON works through an ordered list of recovery
// strategies until one yields a parseable value.

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n?(.*?)```")
	openFenceRe     = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n?(.*)$")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON recovers a JSON value from free-form model output. The raw
// bytes of the first parseable candidate are returned, so callers can decode
// them into the shape they expect.
func ExtractJSON(raw string) (json.RawMessage, error) {
	var candidates []string

	if m := fencedBlockRe.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if c := braceSubstring(raw); c != "" {
		candidates = append(candidates, c)
	}

	for _, candidate := range candidates {
		if parsed, ok := tryParse(candidate); ok {
			return parsed, nil
		}
		if parsed, ok := tryParse(repairJSON(candidate)); ok {
			return parsed, nil
		}
	}
	return nil, ErrMalformedResponse
}

// braceSubstring cuts the text from the first '{' to the last '}'.
func braceSubstring(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return raw[start : end+1]
}

func tryParse(candidate string) (json.RawMessage, bool) {
	if candidate == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, false
	}
	return json.RawMessage(candidate), true
}

// repairJSON applies the tolerated repairs: drop control characters the
// encoder chokes on and remove trailing commas before a closing brace or
// bracket.
func repairJSON(candidate string) string {
	var b strings.Builder
	b.Grow(len(candidate))
	for _, r := range candidate {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return trailingCommaRe.ReplaceAllString(b.String(), "$1")
}

// ExtractCode returns the body of the first fenced code block, tolerating a
// missing closing fence on truncated responses. Without any fence the whole
// trimmed text is returned.
func ExtractCode(raw string) string {
	if m := fencedBlockRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := openFenceRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}
