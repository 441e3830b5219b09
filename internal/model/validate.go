package model

import (
	"strings"
	"unicode/utf8"
)

const (
	minQuestionTextLen = 5
	minOptions         = 2
	maxOptions         = 8
)

// ValidateQuestion applies the per-kind structural rules to a question
// payload on the persistence path. The first violated rule is returned
// as a ValidationError naming the offending field.
func ValidateQuestion(q NewExamQuestion) error {
	if !ValidKind(q.Kind) {
		return &ValidationError{Field: "kind", Reason: "unknown question kind"}
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(text) < minQuestionTextLen {
		return &ValidationError{Field: "text", Reason: "must be at least 5 characters"}
	}
	return validateKindFields(q)
}

// ValidateKindFields checks only the kind-specific shape, leaving text
// quality to the generation path's placeholder heuristic.
func ValidateKindFields(q NewExamQuestion) error {
	if !ValidKind(q.Kind) {
		return &ValidationError{Field: "kind", Reason: "unknown question kind"}
	}
	return validateKindFields(q)
}

func validateKindFields(q NewExamQuestion) error {
	switch q.Kind {
	case KindMultipleChoice:
		if len(q.Options) < minOptions || len(q.Options) > maxOptions {
			return &ValidationError{Field: "options", Reason: "must contain between 2 and 8 entries"}
		}
		seen := make(map[string]bool, len(q.Options))
		for _, opt := range q.Options {
			key := strings.TrimSpace(opt)
			if key == "" {
				return &ValidationError{Field: "options", Reason: "entries must not be empty"}
			}
			if seen[key] {
				return &ValidationError{Field: "options", Reason: "entries must be distinct"}
			}
			seen[key] = true
		}
		if q.CorrectOptionIndex != nil {
			if i := *q.CorrectOptionIndex; i < 0 || i >= len(q.Options) {
				return &ValidationError{Field: "correct_option_index", Reason: "out of range for options"}
			}
		}
	case KindTrueFalse:
		if len(q.Options) > 0 {
			return &ValidationError{Field: "options", Reason: "not allowed for true/false questions"}
		}
	case KindOpenAnalysis, KindOpenExercise:
		if len(q.Options) > 0 {
			return &ValidationError{Field: "options", Reason: "not allowed for open questions"}
		}
		if q.CorrectOptionIndex != nil {
			return &ValidationError{Field: "correct_option_index", Reason: "not allowed for open questions"}
		}
	}
	return nil
}

// ValidateReference rejects references containing angle brackets, which
// would let a caller smuggle markup into the generation prompt.
func ValidateReference(ref string) error {
	if strings.ContainsAny(ref, "<>") {
		return &ValidationError{Field: "reference", Reason: "must not contain angle brackets"}
	}
	return nil
}
