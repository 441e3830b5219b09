package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/acadlab/examsmith/internal/model"
)

// kindCountColumn maps a question kind to its counter column. Only
// called with kinds that already passed validation.
func kindCountColumn(k model.QuestionKind) string {
	switch k {
	case model.KindMultipleChoice:
		return "count_multiple_choice"
	case model.KindTrueFalse:
		return "count_true_false"
	case model.KindOpenAnalysis:
		return "count_open_analysis"
	default:
		return "count_open_exercise"
	}
}

// insertionOrder computes the 1-based order for a symbolic position
// given the current question count n. With n == 0, middle degenerates
// to 1, same as start.
func insertionOrder(pos model.Position, n int) int {
	switch pos {
	case model.PositionStart:
		return 1
	case model.PositionMiddle:
		return n/2 + 1
	default:
		return n + 1
	}
}

// InsertQuestionAt inserts a question at a symbolic position within an
// exam's sequence. The count re-read, neighbor shift, row insert, and
// counter bumps all run in one transaction: they commit together or
// not at all, and concurrent inserts serialize on the store's single
// write connection, so the later insert always observes the earlier
// one's committed count.
func (s *Store) InsertQuestionAt(examID int64, q model.NewExamQuestion, pos model.Position) (*model.ExamQuestion, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// The lock lives here, not in callers: inserting into an approved
	// exam is rejected no matter which path reaches this point.
	var approvedAt *time.Time
	err = tx.QueryRow(`SELECT approved_at FROM exams WHERE id = ?`, examID).Scan(&approvedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}
	if approvedAt != nil {
		return nil, model.ErrExamLocked
	}

	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM exam_questions WHERE exam_id = ?`, examID).Scan(&n); err != nil {
		return nil, err
	}

	ord := insertionOrder(pos, n)
	if ord <= n {
		_, err = tx.Exec(
			`UPDATE exam_questions SET ord = ord + 1 WHERE exam_id = ? AND ord >= ?`,
			examID, ord,
		)
		if err != nil {
			return nil, err
		}
	}

	optionsJSON, err := marshalOptions(q.Options)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res, err := tx.Exec(
		`INSERT INTO exam_questions (exam_id, kind, text, ord, options, correct_option_index, correct_boolean, expected_answer, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		examID, q.Kind, q.Text, ord, optionsJSON, q.CorrectOptionIndex, q.CorrectBoolean, q.ExpectedAnswer, now,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		fmt.Sprintf(`UPDATE exams SET question_count = question_count + 1, %s = %s + 1 WHERE id = ?`,
			kindCountColumn(q.Kind), kindCountColumn(q.Kind)),
		examID,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Info("inserted question", "exam_id", examID, "question_id", id, "kind", q.Kind, "order", ord)
	return &model.ExamQuestion{
		ID:                 id,
		ExamID:             examID,
		Kind:               q.Kind,
		Text:               q.Text,
		Order:              ord,
		Options:            q.Options,
		CorrectOptionIndex: q.CorrectOptionIndex,
		CorrectBoolean:     q.CorrectBoolean,
		ExpectedAnswer:     q.ExpectedAnswer,
		CreatedAt:          now,
	}, nil
}

const questionColumns = `id, exam_id, kind, text, ord, options, correct_option_index, correct_boolean, expected_answer, created_at`

func scanQuestion(row interface{ Scan(...any) error }) (*model.ExamQuestion, error) {
	var q model.ExamQuestion
	var options sql.NullString
	var idx sql.NullInt64
	var correct sql.NullBool
	err := row.Scan(&q.ID, &q.ExamID, &q.Kind, &q.Text, &q.Order, &options, &idx, &correct, &q.ExpectedAnswer, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &q.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %d: %w", q.ID, err)
		}
	}
	if idx.Valid {
		i := int(idx.Int64)
		q.CorrectOptionIndex = &i
	}
	if correct.Valid {
		b := correct.Bool
		q.CorrectBoolean = &b
	}
	return &q, nil
}

// GetQuestion returns a question by ID, or nil if it does not exist.
func (s *Store) GetQuestion(id int64) (*model.ExamQuestion, error) {
	q, err := scanQuestion(s.db.QueryRow(`SELECT `+questionColumns+` FROM exam_questions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateQuestion persists the merged mutable fields of a question.
// Kind and order are immutable via this path.
func (s *Store) UpdateQuestion(id int64, merged model.NewExamQuestion) error {
	optionsJSON, err := marshalOptions(merged.Options)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE exam_questions SET text = ?, options = ?, correct_option_index = ?, correct_boolean = ?, expected_answer = ?
		 WHERE id = ?`,
		merged.Text, optionsJSON, merged.CorrectOptionIndex, merged.CorrectBoolean, merged.ExpectedAnswer, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrQuestionNotFound
	}
	return nil
}

// ListQuestionsByExam returns an exam's questions ordered ascending.
func (s *Store) ListQuestionsByExam(examID int64) ([]model.ExamQuestion, error) {
	rows, err := s.db.Query(
		`SELECT `+questionColumns+` FROM exam_questions WHERE exam_id = ? ORDER BY ord ASC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.ExamQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// CountQuestionsByExam returns the persisted question count for an exam.
func (s *Store) CountQuestionsByExam(examID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exam_questions WHERE exam_id = ?`, examID).Scan(&count)
	return count, err
}

// ExamExists reports whether an exam row exists.
func (s *Store) ExamExists(id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM exams WHERE id = ?)`, id).Scan(&exists)
	return exists, err
}

func marshalOptions(options []string) (any, error) {
	if len(options) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	return string(data), nil
}
