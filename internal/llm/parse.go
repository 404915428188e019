package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// previewLen caps the prefix of unparseable model output included in errors.
const previewLen = 200

var (
	// ```json ... ``` or bare ``` fences, optionally with surrounding prose.
	fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	// Bare object keys: {foo: 1} or , bar: 2
	bareKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	// Trailing commas before } or ]
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// StripFences removes markdown code fences around a JSON payload. When the
// text contains a fenced block, its inner content is returned; otherwise the
// trimmed input is returned unchanged.
func StripFences(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// Repair applies best-effort fixes to almost-JSON: quoting bare object keys
// and removing trailing commas. It does not attempt deeper recovery.
func Repair(text string) string {
	text = bareKeyRe.ReplaceAllString(text, `$1"$2"$3`)
	text = trailingCommaRe.ReplaceAllString(text, `$1`)
	return text
}

// ParseLoose parses model output as JSON: strip fences, parse, and on failure
// repair and parse once more. The returned bytes are the exact text that
// parsed, not a re-marshaled form.
func ParseLoose(text string) (json.RawMessage, error) {
	cleaned := StripFences(text)
	if json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned), nil
	}

	repaired := Repair(cleaned)
	if json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired), nil
	}

	preview := cleaned
	if len(preview) > previewLen {
		preview = preview[:previewLen]
	}
	return nil, eris.Errorf("llm: output is not valid JSON after cleanup: %q", preview)
}
