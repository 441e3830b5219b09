package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/acadlab/examsmith/internal/model"
)

// CreateExam inserts a new draft exam and returns its ID. Counters
// start at zero; the distribution columns stay NULL when no
// distribution was requested.
func (s *Store) CreateExam(e model.Exam) (int64, error) {
	var mc, tf, oa, oe any
	if e.Distribution != nil {
		mc = e.Distribution.MultipleChoice
		tf = e.Distribution.TrueFalse
		oa = e.Distribution.OpenAnalysis
		oe = e.Distribution.OpenExercise
	}

	res, err := s.db.Exec(
		`INSERT INTO exams (owner_id, subject, difficulty, attempts, planned_questions, time_minutes, reference,
			dist_multiple_choice, dist_true_false, dist_open_analysis, dist_open_exercise, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OwnerID, e.Subject, e.Difficulty, e.Attempts, e.PlannedQuestions, e.TimeMinutes, e.Reference,
		mc, tf, oa, oe, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created exam", "id", id, "subject", e.Subject, "owner", e.OwnerID)
	return id, nil
}

const examColumns = `id, owner_id, subject, difficulty, attempts, planned_questions, time_minutes, reference,
	dist_multiple_choice, dist_true_false, dist_open_analysis, dist_open_exercise,
	question_count, count_multiple_choice, count_true_false, count_open_analysis, count_open_exercise,
	created_at, approved_at`

func scanExam(row interface{ Scan(...any) error }) (*model.Exam, error) {
	var e model.Exam
	var mc, tf, oa, oe sql.NullInt64
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Subject, &e.Difficulty, &e.Attempts, &e.PlannedQuestions, &e.TimeMinutes, &e.Reference,
		&mc, &tf, &oa, &oe,
		&e.QuestionCount, &e.KindCounts.MultipleChoice, &e.KindCounts.TrueFalse,
		&e.KindCounts.OpenAnalysis, &e.KindCounts.OpenExercise,
		&e.CreatedAt, &e.ApprovedAt,
	)
	if err != nil {
		return nil, err
	}
	if mc.Valid {
		e.Distribution = &model.Distribution{
			MultipleChoice: int(mc.Int64),
			TrueFalse:      int(tf.Int64),
			OpenAnalysis:   int(oa.Int64),
			OpenExercise:   int(oe.Int64),
		}
	}
	return &e, nil
}

// GetExam returns an exam by ID, or nil if it does not exist.
func (s *Store) GetExam(id int64) (*model.Exam, error) {
	e, err := scanExam(s.db.QueryRow(`SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListExamsByOwner returns all exams owned by a teacher, newest first.
func (s *Store) ListExamsByOwner(ownerID int64) ([]model.Exam, error) {
	rows, err := s.db.Query(
		`SELECT `+examColumns+` FROM exams WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// ListExams returns every exam, newest first.
func (s *Store) ListExams() ([]model.Exam, error) {
	rows, err := s.db.Query(`SELECT ` + examColumns + ` FROM exams ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// ApproveExam sets the approval timestamp if and only if the exam is
// still a draft. The WHERE clause makes the draft check and the write
// a single atomic step, so a concurrent double-approve can never both
// succeed.
func (s *Store) ApproveExam(id int64, at time.Time) error {
	res, err := s.db.Exec(
		`UPDATE exams SET approved_at = ? WHERE id = ? AND approved_at IS NULL`, at, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		slog.Info("approved exam", "id", id)
		return nil
	}

	exists, err := s.ExamExists(id)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrExamNotFound
	}
	return model.ErrAlreadyApproved
}
