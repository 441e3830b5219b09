// Package prompts builds model-ready instruction strings for question
// generation. Builders are pure functions: the same inputs always
// produce byte-identical prompts, so prompt output is cacheable and
// testable.
package prompts

import (
	"fmt"
	"strings"

	"github.com/acadlab/examsmith/internal/model"
)

// Params holds the inputs shared by both prompt modes.
type Params struct {
	Subject    string
	Difficulty model.Difficulty
	Total      int
	Reference  string
	// PreferredKind is a soft hint for flat mode only. Empty means "mixed".
	PreferredKind string
}

// Kind names as they appear in the JSON contract with the model.
const (
	keyMultipleChoice = "multiple_choice"
	keyTrueFalse      = "true_false"
	keyOpenAnalysis   = "open_analysis"
	keyOpenExercise   = "open_exercise"
)

// JSONKey returns the JSON contract key for a question kind.
func JSONKey(k model.QuestionKind) string {
	switch k {
	case model.KindMultipleChoice:
		return keyMultipleChoice
	case model.KindTrueFalse:
		return keyTrueFalse
	case model.KindOpenAnalysis:
		return keyOpenAnalysis
	default:
		return keyOpenExercise
	}
}

// BuildDistribution builds the distribution-mode instruction: the model
// must return one JSON object with four arrays, one per kind, each of
// the exact requested length.
func BuildDistribution(p Params, d model.Distribution) string {
	var sb strings.Builder
	sb.WriteString("You are an exam question writer for an academic platform.\n\n")
	fmt.Fprintf(&sb, "Write exam questions about %q at %s difficulty.\n", p.Subject, p.Difficulty)
	if p.Reference != "" {
		fmt.Fprintf(&sb, "Base the questions on this reference material: %s\n", p.Reference)
	}
	sb.WriteString("\nReturn EXACTLY one JSON object with these four keys and array lengths:\n")
	fmt.Fprintf(&sb, "  %q: array of exactly %d items\n", keyMultipleChoice, d.MultipleChoice)
	fmt.Fprintf(&sb, "  %q: array of exactly %d items\n", keyTrueFalse, d.TrueFalse)
	fmt.Fprintf(&sb, "  %q: array of exactly %d items\n", keyOpenAnalysis, d.OpenAnalysis)
	fmt.Fprintf(&sb, "  %q: array of exactly %d items\n", keyOpenExercise, d.OpenExercise)
	sb.WriteString("\nItem shapes:\n")
	fmt.Fprintf(&sb, "  %s: {\"text\": \"...\", \"options\": [\"...\"], \"correct_option_index\": 0}\n", keyMultipleChoice)
	fmt.Fprintf(&sb, "  %s: {\"text\": \"...\", \"correct_boolean\": true}\n", keyTrueFalse)
	fmt.Fprintf(&sb, "  %s and %s: {\"text\": \"...\", \"expected_answer\": \"...\"}\n", keyOpenAnalysis, keyOpenExercise)
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Output the JSON object only. No prose before or after it.\n")
	sb.WriteString("- Use double-quoted strings. Valid JSON, no trailing commas.\n")
	sb.WriteString("- Do NOT wrap the output in markdown code fences.\n")
	sb.WriteString("- Multiple-choice items need 3 to 5 distinct, plausible options.\n")
	sb.WriteString("- True/false statements must NOT contain or hint at the correct answer.\n")
	sb.WriteString("- Every question text must be a complete, self-contained sentence.\n")
	return sb.String()
}

// BuildFlat builds the flat-mode instruction: the model returns a
// single JSON array of {type, text, options?} objects.
func BuildFlat(p Params) string {
	preferred := p.PreferredKind
	if preferred == "" {
		preferred = "mixed"
	}

	var sb strings.Builder
	sb.WriteString("You are an exam question writer for an academic platform.\n\n")
	fmt.Fprintf(&sb, "Write %d exam questions about %q at %s difficulty.\n", p.Total, p.Subject, p.Difficulty)
	if p.Reference != "" {
		fmt.Fprintf(&sb, "Base the questions on this reference material: %s\n", p.Reference)
	}
	fmt.Fprintf(&sb, "Preferred question type: %s (treat this as a hint, not a requirement).\n", preferred)
	sb.WriteString("\nReturn EXACTLY one JSON array. Each element:\n")
	sb.WriteString("  {\"type\": \"<multiple_choice|true_false|open_analysis|open_exercise>\", \"text\": \"...\", \"options\": [\"...\"]}\n")
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Output the JSON array only. No prose before or after it.\n")
	sb.WriteString("- Use double-quoted strings. Valid JSON, no trailing commas.\n")
	sb.WriteString("- Do NOT wrap the output in markdown code fences.\n")
	sb.WriteString("- Include \"options\" only for multiple_choice items, with 3 to 5 distinct entries.\n")
	sb.WriteString("- Every question text must be a complete, self-contained sentence.\n")
	return sb.String()
}
