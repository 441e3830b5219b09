package store

import (
	"fmt"

	"github.com/acadlab/examsmith/internal/model"
)

// ExportAllExams builds export-ready dumps of every exam with its
// question sequence.
func (s *Store) ExportAllExams() ([]model.ExamDump, error) {
	exams, err := s.ListExams()
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	var dumps []model.ExamDump
	for _, e := range exams {
		questions, err := s.ListQuestionsByExam(e.ID)
		if err != nil {
			return nil, fmt.Errorf("list questions for exam %d: %w", e.ID, err)
		}

		var ownerName string
		owner, err := s.GetUserByID(e.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("get owner %d: %w", e.OwnerID, err)
		}
		if owner != nil {
			ownerName = owner.DisplayName
		}

		dumps = append(dumps, model.ExamDump{
			Exam:      e,
			OwnerName: ownerName,
			Questions: questions,
		})
	}

	return dumps, nil
}
