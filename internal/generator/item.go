package generator

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/acadlab/examsmith/internal/model"
)

// placeholderMinLen is the softer generation-path text floor; shorter
// texts are treated as scaffolding the model failed to fill in.
const placeholderMinLen = 15

// rawItem is the untrusted per-question shape as decoded from model
// output. Answer fields stay raw so a malformed value flags one item
// instead of failing the whole batch decode.
type rawItem struct {
	Type               string          `json:"type"`
	Text               string          `json:"text"`
	Options            []string        `json:"options"`
	CorrectOptionIndex json.RawMessage `json:"correct_option_index"`
	CorrectBoolean     json.RawMessage `json:"correct_boolean"`
	ExpectedAnswer     json.RawMessage `json:"expected_answer"`
}

// toQuestion converts a raw item into a GeneratedQuestion of the given
// kind. Structural problems are never coerced into defaults: a bad
// correct_option_index or a string-typed correct_boolean marks the
// item flagged for the repair loop.
func (r rawItem) toQuestion(kind model.QuestionKind) model.GeneratedQuestion {
	q := model.GeneratedQuestion{
		Kind: kind,
		Text: strings.TrimSpace(r.Text),
		// Options carry over for every kind; stray options on a
		// non-choice question fail the kind check below and flag the
		// item instead of being dropped.
		Options: r.Options,
	}

	ok := true
	if len(r.CorrectOptionIndex) > 0 {
		var idx int
		if err := json.Unmarshal(r.CorrectOptionIndex, &idx); err != nil {
			ok = false
		} else {
			q.CorrectOptionIndex = &idx
		}
	}
	if len(r.CorrectBoolean) > 0 {
		var b bool
		if err := json.Unmarshal(r.CorrectBoolean, &b); err != nil {
			ok = false
		} else {
			q.CorrectBoolean = &b
		}
	}
	if len(r.ExpectedAnswer) > 0 {
		var s string
		if err := json.Unmarshal(r.ExpectedAnswer, &s); err != nil {
			ok = false
		} else {
			q.ExpectedAnswer = s
		}
	}

	if !ok || isPlaceholder(q.Text) || model.ValidateKindFields(q.Payload()) != nil {
		q.Flagged = true
	}
	return q
}

// boilerplatePhrases are fragments of known generation scaffolding.
var boilerplatePhrases = []string{
	"lorem ipsum",
	"placeholder",
	"question text here",
	"your question here",
	"insert question",
	"question goes here",
	"sample question text",
}

// boilerplateExact matches whole texts that are bare scaffolding, like
// a true/false stem with no statement attached.
var boilerplateExact = []string{
	"true or false",
	"true or false?",
	"true or false:",
	"answer the following",
	"answer the following question",
}

// isPlaceholder reports whether text looks like unfilled scaffolding
// rather than a real question.
func isPlaceholder(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if utf8.RuneCountInString(t) < placeholderMinLen {
		return true
	}
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	for _, exact := range boilerplateExact {
		if t == exact {
			return true
		}
	}
	return false
}

// canonicalKind maps a model-declared type string to a question kind.
// Unrecognized or missing types default to open analysis.
func canonicalKind(s string) model.QuestionKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "multiple_choice", "multiple choice", "multiplechoice", "mc", "choice":
		return model.KindMultipleChoice
	case "true_false", "true/false", "true false", "truefalse", "tf", "boolean":
		return model.KindTrueFalse
	case "open_exercise", "exercise":
		return model.KindOpenExercise
	default:
		return model.KindOpenAnalysis
	}
}
