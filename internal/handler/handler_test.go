package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/acadlab/examsmith/internal/exam"
	"github.com/acadlab/examsmith/internal/model"
	"github.com/acadlab/examsmith/internal/store"
)

type testServer struct {
	t      *testing.T
	server *httptest.Server
	store  *store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := New(s, exam.NewService(s, nil), Config{})
	r := chi.NewRouter()
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{t: t, server: srv, store: s}
}

func (ts *testServer) createUser(username string, role model.UserRole) int64 {
	ts.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		ts.t.Fatalf("hash password: %v", err)
	}
	id, err := ts.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  username,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		ts.t.Fatalf("create user: %v", err)
	}
	return id
}

// login authenticates and returns the session cookie.
func (ts *testServer) login(username string) *http.Cookie {
	ts.t.Helper()
	resp := ts.request(http.MethodPost, "/login", map[string]string{
		"username": username,
		"password": "secret",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		ts.t.Fatalf("login returned %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	ts.t.Fatal("login set no session cookie")
	return nil
}

func (ts *testServer) request(method, path string, body any, cookie *http.Cookie) *http.Response {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatalf("encode request body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	if err != nil {
		ts.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := ts.server.Client().Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func assertErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d", resp.StatusCode, status)
	}
	body := decodeBody[errorResponse](t, resp)
	if body.Code != code {
		t.Errorf("error code = %q, want %q", body.Code, code)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.request(http.MethodGet, "/api/exams", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice", model.UserRoleTeacher)

	resp := ts.request(http.MethodPost, "/login", map[string]string{
		"username": "alice", "password": "wrong",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestExamLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice", model.UserRoleTeacher)
	cookie := ts.login("alice")

	// Create a draft exam.
	resp := ts.request(http.MethodPost, "/api/exams", map[string]any{
		"subject":         "Statistics",
		"difficulty":      "medium",
		"attempts":        2,
		"total_questions": 3,
		"time_minutes":    45,
	}, cookie)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create exam status = %d", resp.StatusCode)
	}
	created := decodeBody[model.Exam](t, resp)
	examPath := "/api/exams/" + itoa(created.ID)

	// Insert a question.
	resp = ts.request(http.MethodPost, examPath+"/questions", map[string]any{
		"kind":            "OPEN_ANALYSIS",
		"text":            "Explain the difference between mean and median.",
		"expected_answer": "The mean averages values; the median splits the ordered set.",
		"position":        "end",
	}, cookie)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("insert question status = %d", resp.StatusCode)
	}
	q := decodeBody[model.ExamQuestion](t, resp)
	if q.Order != 1 {
		t.Errorf("order = %d, want 1", q.Order)
	}

	// Approve it.
	resp = ts.request(http.MethodPost, examPath+"/approve", nil, cookie)
	approved := decodeBody[model.Exam](t, resp)
	if !approved.Approved() {
		t.Fatal("exam not approved in response")
	}

	// Approval is one-way.
	resp = ts.request(http.MethodPost, examPath+"/approve", nil, cookie)
	assertErrorCode(t, resp, http.StatusConflict, "already_approved")

	// The lock rejects further inserts.
	resp = ts.request(http.MethodPost, examPath+"/questions", map[string]any{
		"kind": "OPEN_ANALYSIS",
		"text": "One more question after the deadline.",
	}, cookie)
	assertErrorCode(t, resp, http.StatusConflict, "exam_locked")

	// And patches.
	resp = ts.request(http.MethodPatch, "/api/questions/"+itoa(q.ID), map[string]any{
		"text": "A revised question that must be rejected.",
	}, cookie)
	assertErrorCode(t, resp, http.StatusConflict, "exam_locked")
}

func TestCreateExamValidationMapped(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice", model.UserRoleTeacher)
	cookie := ts.login("alice")

	resp := ts.request(http.MethodPost, "/api/exams", map[string]any{
		"subject":         "Statistics",
		"difficulty":      "extreme",
		"attempts":        1,
		"total_questions": 3,
		"time_minutes":    45,
	}, cookie)
	assertErrorCode(t, resp, http.StatusUnprocessableEntity, "validation")

	resp = ts.request(http.MethodPost, "/api/exams", map[string]any{
		"subject":         "Statistics",
		"difficulty":      "medium",
		"attempts":        1,
		"total_questions": 4,
		"time_minutes":    45,
		"distribution":    map[string]int{"multiple_choice": 1, "true_false": 1},
	}, cookie)
	assertErrorCode(t, resp, http.StatusUnprocessableEntity, "distribution")
}

func TestOwnershipEnforced(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice", model.UserRoleTeacher)
	ts.createUser("bob", model.UserRoleTeacher)
	ts.createUser("root", model.UserRoleAdmin)

	alice := ts.login("alice")
	resp := ts.request(http.MethodPost, "/api/exams", map[string]any{
		"subject":         "Botany",
		"difficulty":      "easy",
		"attempts":        1,
		"total_questions": 2,
		"time_minutes":    20,
	}, alice)
	created := decodeBody[model.Exam](t, resp)
	examPath := "/api/exams/" + itoa(created.ID)

	// Another teacher is rejected.
	bob := ts.login("bob")
	resp = ts.request(http.MethodGet, examPath, nil, bob)
	assertErrorCode(t, resp, http.StatusForbidden, "forbidden")

	// Admins may reach any exam.
	admin := ts.login("root")
	resp = ts.request(http.MethodGet, examPath, nil, admin)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin access status = %d, want 200", resp.StatusCode)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice", model.UserRoleTeacher)
	ts.createUser("root", model.UserRoleAdmin)

	alice := ts.login("alice")
	resp := ts.request(http.MethodGet, "/api/admin/users", nil, alice)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("teacher on admin route status = %d, want 403", resp.StatusCode)
	}

	admin := ts.login("root")
	resp = ts.request(http.MethodGet, "/api/admin/users", nil, admin)
	users := decodeBody[[]userResponse](t, resp)
	if len(users) != 2 {
		t.Errorf("got %d users, want 2", len(users))
	}
}

func TestToggleLastAdminConflict(t *testing.T) {
	ts := newTestServer(t)
	adminID := ts.createUser("root", model.UserRoleAdmin)

	admin := ts.login("root")
	resp := ts.request(http.MethodPost, "/api/admin/users/"+itoa(adminID)+"/toggle", nil, admin)
	assertErrorCode(t, resp, http.StatusConflict, "last_admin")
}

func TestUnknownExamMapped(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser("alice", model.UserRoleTeacher)
	cookie := ts.login("alice")

	resp := ts.request(http.MethodGet, "/api/exams/9999", nil, cookie)
	assertErrorCode(t, resp, http.StatusNotFound, "not_found")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
