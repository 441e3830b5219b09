package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// ValidUserRole checks whether r is a known role.
func ValidUserRole(r UserRole) bool {
	return r == UserRoleTeacher || r == UserRoleAdmin
}

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Difficulty represents exam difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ValidDifficulty checks whether d is a known difficulty level.
func ValidDifficulty(d Difficulty) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// QuestionKind discriminates the structural shape of a question.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "MULTIPLE_CHOICE"
	KindTrueFalse      QuestionKind = "TRUE_FALSE"
	KindOpenAnalysis   QuestionKind = "OPEN_ANALYSIS"
	KindOpenExercise   QuestionKind = "OPEN_EXERCISE"
)

// Kinds lists all question kinds in canonical order.
var Kinds = []QuestionKind{KindMultipleChoice, KindTrueFalse, KindOpenAnalysis, KindOpenExercise}

// ValidKind checks whether k is a known question kind.
func ValidKind(k QuestionKind) bool {
	switch k {
	case KindMultipleChoice, KindTrueFalse, KindOpenAnalysis, KindOpenExercise:
		return true
	}
	return false
}

// Position is a symbolic insertion position within an exam's question sequence.
type Position string

const (
	PositionStart  Position = "start"
	PositionMiddle Position = "middle"
	PositionEnd    Position = "end"
)

// ValidPosition checks whether p is a known insertion position.
func ValidPosition(p Position) bool {
	switch p {
	case PositionStart, PositionMiddle, PositionEnd:
		return true
	}
	return false
}

// Exam is the aggregate root holding an exam's parameters and live
// per-kind question counters. ApprovedAt nil means the exam is a draft;
// once set it is never cleared.
type Exam struct {
	ID               int64         `json:"id"`
	OwnerID          int64         `json:"owner_id"`
	Subject          string        `json:"subject"`
	Difficulty       Difficulty    `json:"difficulty"`
	Attempts         int           `json:"attempts"`
	PlannedQuestions int           `json:"planned_questions"`
	TimeMinutes      int           `json:"time_minutes"`
	Reference        string        `json:"reference,omitempty"`
	Distribution     *Distribution `json:"distribution,omitempty"`
	QuestionCount    int           `json:"question_count"`
	KindCounts       KindCounts    `json:"kind_counts"`
	CreatedAt        time.Time     `json:"created_at"`
	ApprovedAt       *time.Time    `json:"approved_at,omitempty"`
}

// Approved reports whether the exam has reached its terminal state.
func (e *Exam) Approved() bool {
	return e.ApprovedAt != nil
}

// KindCounts holds the live per-kind question counters of an exam.
type KindCounts struct {
	MultipleChoice int `json:"multiple_choice"`
	TrueFalse      int `json:"true_false"`
	OpenAnalysis   int `json:"open_analysis"`
	OpenExercise   int `json:"open_exercise"`
}

// Of returns the counter for the given kind.
func (c KindCounts) Of(k QuestionKind) int {
	switch k {
	case KindMultipleChoice:
		return c.MultipleChoice
	case KindTrueFalse:
		return c.TrueFalse
	case KindOpenAnalysis:
		return c.OpenAnalysis
	default:
		return c.OpenExercise
	}
}

// ExamQuestion is a persisted question belonging to an exam. Order is
// dense and unique within the exam, 1..N with no gaps.
type ExamQuestion struct {
	ID                 int64        `json:"id"`
	ExamID             int64        `json:"exam_id"`
	Kind               QuestionKind `json:"kind"`
	Text               string       `json:"text"`
	Order              int          `json:"order"`
	Options            []string     `json:"options,omitempty"`
	CorrectOptionIndex *int         `json:"correct_option_index,omitempty"`
	CorrectBoolean     *bool        `json:"correct_boolean,omitempty"`
	ExpectedAnswer     string       `json:"expected_answer,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// NewExamQuestion is the payload for inserting a question into an exam.
type NewExamQuestion struct {
	Kind               QuestionKind `json:"kind"`
	Text               string       `json:"text"`
	Options            []string     `json:"options,omitempty"`
	CorrectOptionIndex *int         `json:"correct_option_index,omitempty"`
	CorrectBoolean     *bool        `json:"correct_boolean,omitempty"`
	ExpectedAnswer     string       `json:"expected_answer,omitempty"`
}

// QuestionPatch holds optional overrides for a question's mutable
// fields. Nil fields keep their current values; kind and order are not
// patchable.
type QuestionPatch struct {
	Text               *string   `json:"text,omitempty"`
	Options            *[]string `json:"options,omitempty"`
	CorrectOptionIndex *int      `json:"correct_option_index,omitempty"`
	CorrectBoolean     *bool     `json:"correct_boolean,omitempty"`
	ExpectedAnswer     *string   `json:"expected_answer,omitempty"`
}

// Merge applies the patch on top of q and returns the merged payload,
// so validation always sees the full resulting question rather than
// the patch alone.
func (p QuestionPatch) Merge(q ExamQuestion) NewExamQuestion {
	merged := NewExamQuestion{
		Kind:               q.Kind,
		Text:               q.Text,
		Options:            q.Options,
		CorrectOptionIndex: q.CorrectOptionIndex,
		CorrectBoolean:     q.CorrectBoolean,
		ExpectedAnswer:     q.ExpectedAnswer,
	}
	if p.Text != nil {
		merged.Text = *p.Text
	}
	if p.Options != nil {
		merged.Options = *p.Options
	}
	if p.CorrectOptionIndex != nil {
		merged.CorrectOptionIndex = p.CorrectOptionIndex
	}
	if p.CorrectBoolean != nil {
		merged.CorrectBoolean = p.CorrectBoolean
	}
	if p.ExpectedAnswer != nil {
		merged.ExpectedAnswer = *p.ExpectedAnswer
	}
	return merged
}

// GeneratedQuestion is a generation-time question produced by the
// orchestrator before persistence. Flagged marks items that failed the
// placeholder heuristic or kind validation after the repair loop was
// exhausted.
type GeneratedQuestion struct {
	Kind               QuestionKind `json:"kind"`
	Text               string       `json:"text"`
	Options            []string     `json:"options,omitempty"`
	CorrectOptionIndex *int         `json:"correct_option_index,omitempty"`
	CorrectBoolean     *bool        `json:"correct_boolean,omitempty"`
	ExpectedAnswer     string       `json:"expected_answer,omitempty"`
	Flagged            bool         `json:"flagged,omitempty"`
}

// Payload converts a generated question into an insertable payload.
func (g GeneratedQuestion) Payload() NewExamQuestion {
	return NewExamQuestion{
		Kind:               g.Kind,
		Text:               g.Text,
		Options:            g.Options,
		CorrectOptionIndex: g.CorrectOptionIndex,
		CorrectBoolean:     g.CorrectBoolean,
		ExpectedAnswer:     g.ExpectedAnswer,
	}
}
