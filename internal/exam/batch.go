package exam

import (
	"log/slog"

	"github.com/acadlab/examsmith/internal/model"
)

// BatchItemStatus is the per-item outcome of a batch insertion.
type BatchItemStatus string

const (
	BatchInserted BatchItemStatus = "inserted"
	BatchSkipped  BatchItemStatus = "skipped"
	BatchFailed   BatchItemStatus = "failed"
)

// BatchItem records what happened to one question of a batch.
type BatchItem struct {
	Index      int             `json:"index"`
	Status     BatchItemStatus `json:"status"`
	QuestionID int64           `json:"question_id,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// BatchResult is a partial-batch outcome: every item's fate is
// recorded individually instead of one aggregate error swallowing the
// row-level detail.
type BatchResult struct {
	Total     int         `json:"total"`
	Succeeded int         `json:"succeeded"`
	Skipped   int         `json:"skipped"`
	Failed    int         `json:"failed"`
	Items     []BatchItem `json:"items"`
}

// AssembleBatch appends a batch of generated questions to an exam.
// Items still flagged from generation are skipped, a failing item does
// not abort the rest, and each insertion runs through the same atomic
// ordering path as a single insert. If the exam is missing or locked
// the whole batch is rejected up front.
func (s *Service) AssembleBatch(examID int64, questions []model.GeneratedQuestion) (*BatchResult, error) {
	e, err := s.GetExam(examID)
	if err != nil {
		return nil, err
	}
	if e.Approved() {
		return nil, model.ErrExamLocked
	}

	result := &BatchResult{Total: len(questions)}
	for i, g := range questions {
		item := BatchItem{Index: i}

		switch {
		case g.Flagged:
			item.Status = BatchSkipped
			item.Error = "question flagged during generation"
			result.Skipped++
		default:
			inserted, err := s.InsertQuestion(examID, g.Payload(), model.PositionEnd)
			if err != nil {
				item.Status = BatchFailed
				item.Error = err.Error()
				result.Failed++
			} else {
				item.Status = BatchInserted
				item.QuestionID = inserted.ID
				result.Succeeded++
			}
		}
		result.Items = append(result.Items, item)
	}

	slog.Info("assembled question batch",
		"exam_id", examID,
		"total", result.Total,
		"succeeded", result.Succeeded,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}
