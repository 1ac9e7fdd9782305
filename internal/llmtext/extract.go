// Package llmtext implements the text-extraction rules shared by every
// stage that talks to a completion-style provider: pull a JSON object
// out of a raw model response that may be wrapped in prose or a
// fenced code block (spec §4.1).
package llmtext

import "strings"

// ExtractJSON trims the response, prefers a ```json fenced block, falls
// back to any fenced block, and finally falls back to the span between
// the first '{' and the last '}'. Callers still need to json.Unmarshal
// the result and coerce fields defensively.
func ExtractJSON(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}

	if body, ok := fencedBlock(text, "```json"); ok {
		return body
	}
	if body, ok := fencedBlock(text, "```"); ok {
		return body
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

func fencedBlock(text, fence string) (string, bool) {
	start := strings.Index(text, fence)
	if start == -1 {
		return "", false
	}
	bodyStart := start + len(fence)
	end := strings.Index(text[bodyStart:], "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(text[bodyStart : bodyStart+end]), true
}
