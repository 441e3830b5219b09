package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports model output that could not be recovered as JSON.
// Raw carries the original text for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecoverable LLM output: %v (raw: %s)", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)

// ParseObject recovers a top-level JSON object from raw model output,
// tolerating code fences, trailing commas, and truncated tails. No
// semantic validation happens here.
func ParseObject(raw string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := recoverJSON(raw, "}", &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// ParseArray recovers a top-level JSON array from raw model output.
func ParseArray(raw string) ([]json.RawMessage, error) {
	var arr []json.RawMessage
	if err := recoverJSON(raw, "]", &arr); err != nil {
		return nil, err
	}
	return arr, nil
}

// recoverJSON attempts progressively more forgiving decodes, stopping
// at the first success: direct decode of the fence-stripped text, then
// with trailing commas removed, then truncated at the last close
// matching the expected top-level shape.
func recoverJSON(raw, closer string, dst any) error {
	text := stripFences(raw)

	firstErr := json.Unmarshal([]byte(text), dst)
	if firstErr == nil {
		return nil
	}

	cleaned := trailingCommaRegex.ReplaceAllString(text, "$1")
	if json.Unmarshal([]byte(cleaned), dst) == nil {
		return nil
	}

	if i := strings.LastIndex(cleaned, closer); i >= 0 {
		truncated := cleaned[:i+1]
		if json.Unmarshal([]byte(truncated), dst) == nil {
			return nil
		}
	}

	return &ParseError{Raw: raw, Err: firstErr}
}

// stripFences removes markdown code-fence markers and surrounding
// whitespace. Prose outside a fenced block is dropped along with the
// fence.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}

	body := text[open+3:]
	// Skip a language tag like "json" on the opening fence line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(body[:nl])
		if firstLine == "" || isFenceTag(firstLine) {
			body = body[nl+1:]
		}
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	if close := strings.LastIndex(body, "```"); close >= 0 {
		body = body[:close]
	}
	return strings.TrimSpace(body)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
