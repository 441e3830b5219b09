package model

import "fmt"

// Distribution is the per-kind target count map for an exam. The sum
// invariant is enforced at construction and the value is never mutated
// afterwards.
type Distribution struct {
	MultipleChoice int `json:"multiple_choice"`
	TrueFalse      int `json:"true_false"`
	OpenAnalysis   int `json:"open_analysis"`
	OpenExercise   int `json:"open_exercise"`
}

// DistributionError reports a distribution whose counts do not form a
// valid per-kind breakdown of the expected total.
type DistributionError struct {
	Sum   int
	Total int
}

func (e *DistributionError) Error() string {
	return fmt.Sprintf("distribution counts sum to %d, expected %d", e.Sum, e.Total)
}

// NewDistribution validates the four per-kind counts against the
// declared total. All counts must be non-negative and sum to total
// exactly.
func NewDistribution(mc, tf, oa, oe, total int) (Distribution, error) {
	for _, n := range []int{mc, tf, oa, oe} {
		if n < 0 {
			return Distribution{}, &ValidationError{Field: "distribution", Reason: "counts must be non-negative"}
		}
	}
	sum := mc + tf + oa + oe
	if sum != total {
		return Distribution{}, &DistributionError{Sum: sum, Total: total}
	}
	return Distribution{
		MultipleChoice: mc,
		TrueFalse:      tf,
		OpenAnalysis:   oa,
		OpenExercise:   oe,
	}, nil
}

// Total returns the sum of all per-kind counts.
func (d Distribution) Total() int {
	return d.MultipleChoice + d.TrueFalse + d.OpenAnalysis + d.OpenExercise
}

// Of returns the count requested for the given kind.
func (d Distribution) Of(k QuestionKind) int {
	switch k {
	case KindMultipleChoice:
		return d.MultipleChoice
	case KindTrueFalse:
		return d.TrueFalse
	case KindOpenAnalysis:
		return d.OpenAnalysis
	default:
		return d.OpenExercise
	}
}

// Single returns a distribution requesting exactly one question of the
// given kind. Used by the repair loop for single-item re-generation.
func Single(k QuestionKind) Distribution {
	var d Distribution
	switch k {
	case KindMultipleChoice:
		d.MultipleChoice = 1
	case KindTrueFalse:
		d.TrueFalse = 1
	case KindOpenAnalysis:
		d.OpenAnalysis = 1
	default:
		d.OpenExercise = 1
	}
	return d
}
