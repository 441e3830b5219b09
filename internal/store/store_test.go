package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/acadlab/examsmith/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTeacher(t *testing.T, s *Store) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Username:     "teacher",
		DisplayName:  "Test Teacher",
		PasswordHash: "hash",
		Role:         model.UserRoleTeacher,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return id
}

func createDraftExam(t *testing.T, s *Store, ownerID int64) int64 {
	t.Helper()
	id, err := s.CreateExam(model.Exam{
		OwnerID:          ownerID,
		Subject:          "Algebra",
		Difficulty:       model.DifficultyMedium,
		Attempts:         2,
		PlannedQuestions: 10,
		TimeMinutes:      60,
	})
	if err != nil {
		t.Fatalf("failed to create exam: %v", err)
	}
	return id
}

func openQuestion(text string) model.NewExamQuestion {
	return model.NewExamQuestion{
		Kind:           model.KindOpenAnalysis,
		Text:           text,
		ExpectedAnswer: "an answer",
	}
}

func insertAt(t *testing.T, s *Store, examID int64, text string, pos model.Position) *model.ExamQuestion {
	t.Helper()
	q, err := s.InsertQuestionAt(examID, openQuestion(text), pos)
	if err != nil {
		t.Fatalf("insert %q at %s: %v", text, pos, err)
	}
	return q
}

func assertSequence(t *testing.T, s *Store, examID int64, wantTexts []string) {
	t.Helper()
	questions, err := s.ListQuestionsByExam(examID)
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(questions) != len(wantTexts) {
		t.Fatalf("got %d questions, want %d", len(questions), len(wantTexts))
	}
	for i, q := range questions {
		if q.Order != i+1 {
			t.Errorf("question %d has order %d, want %d (orders must be dense)", i, q.Order, i+1)
		}
		if q.Text != wantTexts[i] {
			t.Errorf("position %d text = %q, want %q", i, q.Text, wantTexts[i])
		}
	}
}

func TestInsertQuestionAtEnd(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))

	q1 := insertAt(t, s, examID, "first question", model.PositionEnd)
	q2 := insertAt(t, s, examID, "second question", model.PositionEnd)
	if q1.Order != 1 || q2.Order != 2 {
		t.Errorf("orders = %d, %d, want 1, 2", q1.Order, q2.Order)
	}
	assertSequence(t, s, examID, []string{"first question", "second question"})
}

func TestInsertQuestionAtStartShiftsNeighbors(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))

	insertAt(t, s, examID, "was first", model.PositionEnd)
	insertAt(t, s, examID, "was second", model.PositionEnd)
	q := insertAt(t, s, examID, "new head", model.PositionStart)

	if q.Order != 1 {
		t.Errorf("start insert order = %d, want 1", q.Order)
	}
	assertSequence(t, s, examID, []string{"new head", "was first", "was second"})
}

func TestInsertQuestionStartSequence(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))

	// Repeated start insertions reverse the insertion sequence while
	// keeping orders dense.
	var last *model.ExamQuestion
	for _, text := range []string{"alpha", "beta", "gamma", "delta"} {
		last = insertAt(t, s, examID, text, model.PositionStart)
	}
	if last.Order != 1 {
		t.Errorf("last start insert order = %d, want 1", last.Order)
	}
	assertSequence(t, s, examID, []string{"delta", "gamma", "beta", "alpha"})
}

func TestInsertQuestionAtMiddle(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))

	insertAt(t, s, examID, "q1", model.PositionEnd)
	insertAt(t, s, examID, "q2", model.PositionEnd)
	insertAt(t, s, examID, "q3", model.PositionEnd)
	insertAt(t, s, examID, "q4", model.PositionEnd)

	// With 4 existing questions, middle means order 3.
	q := insertAt(t, s, examID, "wedge", model.PositionMiddle)
	if q.Order != 3 {
		t.Errorf("middle insert order = %d, want 3", q.Order)
	}
	assertSequence(t, s, examID, []string{"q1", "q2", "wedge", "q3", "q4"})
}

func TestInsertQuestionAtMiddleEmptyExam(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))

	q := insertAt(t, s, examID, "lonely", model.PositionMiddle)
	if q.Order != 1 {
		t.Errorf("middle insert into empty exam order = %d, want 1", q.Order)
	}
}

func TestInsertQuestionCounterSync(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))

	idx := 0
	if _, err := s.InsertQuestionAt(examID, model.NewExamQuestion{
		Kind:               model.KindMultipleChoice,
		Text:               "pick one",
		Options:            []string{"a", "b"},
		CorrectOptionIndex: &idx,
	}, model.PositionEnd); err != nil {
		t.Fatalf("insert multiple choice: %v", err)
	}
	insertAt(t, s, examID, "analysis one", model.PositionEnd)
	insertAt(t, s, examID, "analysis two", model.PositionStart)

	e, err := s.GetExam(examID)
	if err != nil || e == nil {
		t.Fatalf("get exam: %v", err)
	}
	count, err := s.CountQuestionsByExam(examID)
	if err != nil {
		t.Fatalf("count questions: %v", err)
	}
	if e.QuestionCount != count {
		t.Errorf("exam counter %d diverged from stored rows %d", e.QuestionCount, count)
	}
	if e.QuestionCount != 3 {
		t.Errorf("question count = %d, want 3", e.QuestionCount)
	}
	if e.KindCounts.MultipleChoice != 1 || e.KindCounts.OpenAnalysis != 2 {
		t.Errorf("kind counts = %+v, want 1 multiple choice, 2 open analysis", e.KindCounts)
	}
}

func TestConcurrentInsertsSerialize(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))

	// Parallel inserts into one exam must all succeed by queueing on
	// the write path, never error with a busy database.
	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.InsertQuestionAt(examID, openQuestion(fmt.Sprintf("concurrent question %d", i)), model.PositionEnd)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}

	questions, err := s.ListQuestionsByExam(examID)
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(questions) != workers {
		t.Fatalf("got %d questions, want %d", len(questions), workers)
	}
	for i, q := range questions {
		if q.Order != i+1 {
			t.Errorf("question %d has order %d, want %d", i, q.Order, i+1)
		}
	}

	e, err := s.GetExam(examID)
	if err != nil || e == nil {
		t.Fatalf("get exam: %v", err)
	}
	if e.QuestionCount != workers {
		t.Errorf("question count = %d, want %d", e.QuestionCount, workers)
	}
}

func TestInsertQuestionIntoApprovedExam(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))
	insertAt(t, s, examID, "only question", model.PositionEnd)

	if err := s.ApproveExam(examID, time.Now()); err != nil {
		t.Fatalf("approve exam: %v", err)
	}

	_, err := s.InsertQuestionAt(examID, openQuestion("late arrival"), model.PositionEnd)
	if !errors.Is(err, model.ErrExamLocked) {
		t.Fatalf("expected ErrExamLocked, got %v", err)
	}
	assertSequence(t, s, examID, []string{"only question"})
}

func TestInsertQuestionUnknownExam(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertQuestionAt(999, openQuestion("orphan"), model.PositionEnd)
	if !errors.Is(err, model.ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}

func TestApproveExam(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))

	if err := s.ApproveExam(examID, time.Now()); err != nil {
		t.Fatalf("approve exam: %v", err)
	}
	e, err := s.GetExam(examID)
	if err != nil || e == nil {
		t.Fatalf("get exam: %v", err)
	}
	if !e.Approved() {
		t.Fatal("exam not marked approved")
	}
	first := *e.ApprovedAt

	// Approving again must fail and leave the original timestamp alone.
	err = s.ApproveExam(examID, time.Now().Add(time.Hour))
	if !errors.Is(err, model.ErrAlreadyApproved) {
		t.Fatalf("expected ErrAlreadyApproved, got %v", err)
	}
	e, err = s.GetExam(examID)
	if err != nil || e == nil {
		t.Fatalf("get exam: %v", err)
	}
	if !e.ApprovedAt.Equal(first) {
		t.Errorf("approval timestamp changed from %v to %v", first, e.ApprovedAt)
	}
}

func TestApproveExamNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.ApproveExam(12345, time.Now())
	if !errors.Is(err, model.ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}

func TestUpdateQuestion(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))
	q := insertAt(t, s, examID, "original text", model.PositionEnd)

	merged := model.NewExamQuestion{
		Kind:           q.Kind,
		Text:           "revised text",
		ExpectedAnswer: "revised answer",
	}
	if err := s.UpdateQuestion(q.ID, merged); err != nil {
		t.Fatalf("update question: %v", err)
	}

	got, err := s.GetQuestion(q.ID)
	if err != nil || got == nil {
		t.Fatalf("get question: %v", err)
	}
	if got.Text != "revised text" || got.ExpectedAnswer != "revised answer" {
		t.Errorf("question = %+v, update not persisted", got)
	}
	if got.Order != q.Order {
		t.Errorf("order changed from %d to %d", q.Order, got.Order)
	}
}

func TestUpdateQuestionNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateQuestion(42, model.NewExamQuestion{Kind: model.KindOpenAnalysis, Text: "ghost"})
	if !errors.Is(err, model.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestQuestionOptionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))

	idx := 1
	q, err := s.InsertQuestionAt(examID, model.NewExamQuestion{
		Kind:               model.KindMultipleChoice,
		Text:               "pick the second option",
		Options:            []string{"first", "second", "third"},
		CorrectOptionIndex: &idx,
	}, model.PositionEnd)
	if err != nil {
		t.Fatalf("insert question: %v", err)
	}

	got, err := s.GetQuestion(q.ID)
	if err != nil || got == nil {
		t.Fatalf("get question: %v", err)
	}
	if len(got.Options) != 3 || got.Options[1] != "second" {
		t.Errorf("options = %v", got.Options)
	}
	if got.CorrectOptionIndex == nil || *got.CorrectOptionIndex != 1 {
		t.Error("correct option index lost in round trip")
	}
	if got.CorrectBoolean != nil {
		t.Error("correct boolean set on a multiple choice question")
	}
}

func TestExamDistributionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ownerID := createTeacher(t, s)

	d, err := model.NewDistribution(2, 1, 1, 0, 4)
	if err != nil {
		t.Fatalf("NewDistribution: %v", err)
	}
	id, err := s.CreateExam(model.Exam{
		OwnerID:          ownerID,
		Subject:          "Chemistry",
		Difficulty:       model.DifficultyHard,
		Attempts:         1,
		PlannedQuestions: 4,
		TimeMinutes:      30,
		Distribution:     &d,
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}

	e, err := s.GetExam(id)
	if err != nil || e == nil {
		t.Fatalf("get exam: %v", err)
	}
	if e.Distribution == nil {
		t.Fatal("distribution not persisted")
	}
	if *e.Distribution != d {
		t.Errorf("distribution = %+v, want %+v", *e.Distribution, d)
	}

	// Without a distribution the columns stay NULL and read back as nil.
	plain := createDraftExam(t, s, ownerID)
	e, err = s.GetExam(plain)
	if err != nil || e == nil {
		t.Fatalf("get exam: %v", err)
	}
	if e.Distribution != nil {
		t.Errorf("distribution = %+v, want nil", e.Distribution)
	}
}

func TestGetExamNotFound(t *testing.T) {
	s := newTestStore(t)
	e, err := s.GetExam(404)
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if e != nil {
		t.Errorf("got %+v, want nil", e)
	}
}

func TestListExamsByOwner(t *testing.T) {
	s := newTestStore(t)
	owner := createTeacher(t, s)
	other, err := s.CreateUser(model.User{
		Username: "other", PasswordHash: "hash", Role: model.UserRoleTeacher, Active: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	createDraftExam(t, s, owner)
	createDraftExam(t, s, owner)
	createDraftExam(t, s, other)

	exams, err := s.ListExamsByOwner(owner)
	if err != nil {
		t.Fatalf("list exams: %v", err)
	}
	if len(exams) != 2 {
		t.Errorf("got %d exams, want 2", len(exams))
	}
	for _, e := range exams {
		if e.OwnerID != owner {
			t.Errorf("exam %d owned by %d, want %d", e.ID, e.OwnerID, owner)
		}
	}
}

func TestExamExists(t *testing.T) {
	s := newTestStore(t)
	examID := createDraftExam(t, s, createTeacher(t, s))

	exists, err := s.ExamExists(examID)
	if err != nil {
		t.Fatalf("exam exists: %v", err)
	}
	if !exists {
		t.Error("created exam reported as missing")
	}

	exists, err = s.ExamExists(examID + 100)
	if err != nil {
		t.Fatalf("exam exists: %v", err)
	}
	if exists {
		t.Error("unknown exam reported as existing")
	}
}

func TestCreateUserInvalidRole(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateUser(model.User{
		Username:     "intruder",
		PasswordHash: "hash",
		Role:         "superuser",
		Active:       true,
	})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "role" {
		t.Errorf("field = %q, want role", ve.Field)
	}
}

func TestCreateUserDefaultsDisplayName(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateUser(model.User{
		Username: "plain", PasswordHash: "hash", Role: model.UserRoleTeacher, Active: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	u, err := s.GetUserByID(id)
	if err != nil || u == nil {
		t.Fatalf("get user: %v", err)
	}
	if u.DisplayName != "plain" {
		t.Errorf("display name = %q, want username fallback", u.DisplayName)
	}
}

func TestToggleUserActiveLastAdmin(t *testing.T) {
	s := newTestStore(t)
	first, err := s.CreateUser(model.User{
		Username: "admin1", PasswordHash: "hash", Role: model.UserRoleAdmin, Active: true,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	// The only active admin cannot be deactivated.
	if err := s.ToggleUserActive(first); !errors.Is(err, model.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}

	second, err := s.CreateUser(model.User{
		Username: "admin2", PasswordHash: "hash", Role: model.UserRoleAdmin, Active: true,
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}

	// With a second active admin, deactivation goes through.
	if err := s.ToggleUserActive(first); err != nil {
		t.Fatalf("toggle first admin: %v", err)
	}
	u, err := s.GetUserByID(first)
	if err != nil || u == nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Active {
		t.Error("first admin still active after toggle")
	}

	// The remaining admin is now the last one again.
	if err := s.ToggleUserActive(second); !errors.Is(err, model.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	userID := createTeacher(t, s)

	live, err := s.CreateAuthSession(userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		"stale-token", userID, time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour),
	)
	if err != nil {
		t.Fatalf("insert stale session: %v", err)
	}

	if err := s.CleanupExpiredSessions(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	sess, err := s.GetAuthSession("stale-token")
	if err != nil {
		t.Fatalf("get stale session: %v", err)
	}
	if sess != nil {
		t.Error("expired session survived cleanup")
	}
	sess, err = s.GetAuthSession(live)
	if err != nil {
		t.Fatalf("get live session: %v", err)
	}
	if sess == nil {
		t.Error("live session removed by cleanup")
	}
}

func TestAuthSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	userID := createTeacher(t, s)

	token, err := s.CreateAuthSession(userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess == nil || sess.UserID != userID {
		t.Fatalf("session = %+v, want user %d", sess, userID)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("get session after delete: %v", err)
	}
	if sess != nil {
		t.Error("session survived deletion")
	}
}

func TestExportAllExams(t *testing.T) {
	s := newTestStore(t)
	owner := createTeacher(t, s)
	examID := createDraftExam(t, s, owner)
	insertAt(t, s, examID, "exported question", model.PositionEnd)

	dumps, err := s.ExportAllExams()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(dumps) != 1 {
		t.Fatalf("got %d dumps, want 1", len(dumps))
	}
	if dumps[0].OwnerName != "Test Teacher" {
		t.Errorf("owner name = %q", dumps[0].OwnerName)
	}
	if len(dumps[0].Questions) != 1 || dumps[0].Questions[0].Text != "exported question" {
		t.Errorf("questions = %+v", dumps[0].Questions)
	}
}
