// Package exam implements the exam assembly service: creating exams,
// generating question batches, inserting questions at symbolic
// positions, patching, and the one-way approval transition.
package exam

import (
	"context"
	"time"

	"github.com/acadlab/examsmith/internal/generator"
	"github.com/acadlab/examsmith/internal/model"
	"github.com/acadlab/examsmith/internal/store"
)

type Service struct {
	store *store.Store
	gen   *generator.Generator
}

func NewService(s *store.Store, g *generator.Generator) *Service {
	return &Service{store: s, gen: g}
}

// CreateExamParams are the caller-supplied exam parameters. The
// distribution counts are optional; when present they must sum to
// TotalQuestions.
type CreateExamParams struct {
	OwnerID        int64
	Subject        string
	Difficulty     model.Difficulty
	Attempts       int
	TotalQuestions int
	TimeMinutes    int
	Reference      string
	Distribution   *DistributionCounts
}

// DistributionCounts is the raw per-kind breakdown before validation.
type DistributionCounts struct {
	MultipleChoice int `json:"multiple_choice"`
	TrueFalse      int `json:"true_false"`
	OpenAnalysis   int `json:"open_analysis"`
	OpenExercise   int `json:"open_exercise"`
}

// CreateExam validates the parameters and persists a new draft exam.
func (s *Service) CreateExam(p CreateExamParams) (*model.Exam, error) {
	if p.Subject == "" {
		return nil, &model.ValidationError{Field: "subject", Reason: "must not be empty"}
	}
	if !model.ValidDifficulty(p.Difficulty) {
		return nil, &model.ValidationError{Field: "difficulty", Reason: "must be easy, medium, or hard"}
	}
	if p.Attempts <= 0 {
		return nil, &model.ValidationError{Field: "attempts", Reason: "must be positive"}
	}
	if p.TotalQuestions <= 0 {
		return nil, &model.ValidationError{Field: "total_questions", Reason: "must be positive"}
	}
	if p.TimeMinutes <= 0 {
		return nil, &model.ValidationError{Field: "time_minutes", Reason: "must be positive"}
	}
	if err := model.ValidateReference(p.Reference); err != nil {
		return nil, err
	}

	exam := model.Exam{
		OwnerID:          p.OwnerID,
		Subject:          p.Subject,
		Difficulty:       p.Difficulty,
		Attempts:         p.Attempts,
		PlannedQuestions: p.TotalQuestions,
		TimeMinutes:      p.TimeMinutes,
		Reference:        p.Reference,
	}
	if p.Distribution != nil {
		d, err := model.NewDistribution(
			p.Distribution.MultipleChoice,
			p.Distribution.TrueFalse,
			p.Distribution.OpenAnalysis,
			p.Distribution.OpenExercise,
			p.TotalQuestions,
		)
		if err != nil {
			return nil, err
		}
		exam.Distribution = &d
	}

	id, err := s.store.CreateExam(exam)
	if err != nil {
		return nil, err
	}
	return s.GetExam(id)
}

// GetExam returns an exam or ErrExamNotFound.
func (s *Service) GetExam(id int64) (*model.Exam, error) {
	e, err := s.store.GetExam(id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, model.ErrExamNotFound
	}
	return e, nil
}

// ListExamsByOwner returns a teacher's exams, newest first.
func (s *Service) ListExamsByOwner(ownerID int64) ([]model.Exam, error) {
	return s.store.ListExamsByOwner(ownerID)
}

// ListQuestions returns an exam's questions in ascending order.
func (s *Service) ListQuestions(examID int64) ([]model.ExamQuestion, error) {
	if _, err := s.GetExam(examID); err != nil {
		return nil, err
	}
	return s.store.ListQuestionsByExam(examID)
}

// Generate runs the generation orchestrator for an exam's declared
// parameters. Nothing is persisted: a failed or cancelled generation
// leaves no partial questions behind, and the caller decides which of
// the returned items to insert.
func (s *Service) Generate(ctx context.Context, examID int64) (*generator.Result, error) {
	e, err := s.GetExam(examID)
	if err != nil {
		return nil, err
	}

	return s.gen.Generate(ctx, generator.Params{
		Subject:        e.Subject,
		Difficulty:     e.Difficulty,
		TotalQuestions: e.PlannedQuestions,
		Reference:      e.Reference,
		Distribution:   e.Distribution,
	})
}

// InsertQuestion validates the payload and inserts it at the given
// symbolic position. The approval lock and order bookkeeping are
// enforced atomically by the repository.
func (s *Service) InsertQuestion(examID int64, q model.NewExamQuestion, pos model.Position) (*model.ExamQuestion, error) {
	if !model.ValidPosition(pos) {
		return nil, &model.ValidationError{Field: "position", Reason: "must be start, middle, or end"}
	}
	if err := model.ValidateQuestion(q); err != nil {
		return nil, err
	}
	return s.store.InsertQuestionAt(examID, q, pos)
}

// GetQuestion returns a question or ErrQuestionNotFound.
func (s *Service) GetQuestion(id int64) (*model.ExamQuestion, error) {
	q, err := s.store.GetQuestion(id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, model.ErrQuestionNotFound
	}
	return q, nil
}

// UpdateQuestion merges the patch onto the stored question, validates
// the merged result, and persists it. Questions of approved exams are
// immutable.
func (s *Service) UpdateQuestion(questionID int64, patch model.QuestionPatch) (*model.ExamQuestion, error) {
	q, err := s.store.GetQuestion(questionID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, model.ErrQuestionNotFound
	}

	e, err := s.GetExam(q.ExamID)
	if err != nil {
		return nil, err
	}
	if e.Approved() {
		return nil, model.ErrExamLocked
	}

	// Validate the merged question, not the patch alone, so a partial
	// edit cannot leave an internally inconsistent row.
	merged := patch.Merge(*q)
	if err := model.ValidateQuestion(merged); err != nil {
		return nil, err
	}

	if err := s.store.UpdateQuestion(questionID, merged); err != nil {
		return nil, err
	}

	q.Text = merged.Text
	q.Options = merged.Options
	q.CorrectOptionIndex = merged.CorrectOptionIndex
	q.CorrectBoolean = merged.CorrectBoolean
	q.ExpectedAnswer = merged.ExpectedAnswer
	return q, nil
}

// Approve flips the exam into its terminal approved state. A second
// approval fails with ErrAlreadyApproved rather than silently
// succeeding.
func (s *Service) Approve(examID int64) (*model.Exam, error) {
	if err := s.store.ApproveExam(examID, time.Now()); err != nil {
		return nil, err
	}
	return s.GetExam(examID)
}

// OwnedBy returns the exam if it exists and belongs to the given
// teacher. Used by the transport layer's ownership checks.
func (s *Service) OwnedBy(examID, ownerID int64) (*model.Exam, error) {
	e, err := s.GetExam(examID)
	if err != nil {
		return nil, err
	}
	if e.OwnerID != ownerID {
		return nil, model.ErrNotOwner
	}
	return e, nil
}
