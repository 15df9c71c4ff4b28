// Package jsonx extracts JSON objects from LLM output. Models wrap JSON
// in markdown fences, preamble text, or reasoning tags, so extraction
// tries progressively looser strategies before giving up.
package jsonx

import (
	"encoding/json"
	"strings"
)

// Extract locates a JSON object inside text. Strategies, in order:
//
//  1. a fenced ```json ... ``` (or bare ```) block,
//  2. the first balanced {...} that contains requiredKey as a top-level
//     key (any balanced object when requiredKey is empty),
//  3. the entire text.
//
// Returns the candidate JSON and true if the candidate parses as an
// object. Extraction is idempotent: valid JSON input is returned as-is.
func Extract(text, requiredKey string) (string, bool) {
	text = stripThinkTags(text)

	if block, ok := fencedBlock(text); ok {
		if validObject(block, requiredKey) {
			return block, true
		}
	}

	if obj, ok := firstBalancedObject(text, requiredKey); ok {
		return obj, true
	}

	trimmed := strings.TrimSpace(text)
	if validObject(trimmed, requiredKey) {
		return trimmed, true
	}
	return "", false
}

// Unmarshal extracts and decodes in one step.
func Unmarshal(text, requiredKey string, v any) bool {
	raw, ok := Extract(text, requiredKey)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

// stripThinkTags drops a leading <think>...</think> block emitted by
// reasoning models.
func stripThinkTags(s string) string {
	start := strings.Index(s, "<think>")
	if start == -1 {
		return s
	}
	end := strings.Index(s, "</think>")
	if end == -1 {
		return s
	}
	return s[:start] + s[end+len("</think>"):]
}

// fencedBlock returns the contents of the first markdown code fence.
func fencedBlock(s string) (string, bool) {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(s, marker)
		if start == -1 {
			continue
		}
		rest := s[start+len(marker):]
		end := strings.Index(rest, "```")
		if end == -1 {
			continue
		}
		return strings.TrimSpace(rest[:end]), true
	}
	return "", false
}

// firstBalancedObject scans for the first {...} with balanced braces,
// honoring string literals and escapes, that satisfies requiredKey.
func firstBalancedObject(s, requiredKey string) (string, bool) {
	for from := 0; from < len(s); {
		open := strings.IndexByte(s[from:], '{')
		if open == -1 {
			return "", false
		}
		open += from

		if candidate, end, ok := scanObject(s, open); ok {
			if validObject(candidate, requiredKey) {
				return candidate, true
			}
			from = end
		} else {
			from = open + 1
		}
	}
	return "", false
}

// scanObject reads a balanced object starting at s[open] == '{'.
// Returns the object text and the index just past it.
func scanObject(s string, open int) (string, int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
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
				return s[open : i+1], i + 1, true
			}
		}
	}
	return "", 0, false
}

// validObject reports whether raw parses to a JSON object that has
// requiredKey at the top level (when requiredKey is non-empty).
func validObject(raw, requiredKey string) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return false
	}
	if requiredKey == "" {
		return true
	}
	_, ok := obj[requiredKey]
	return ok
}
