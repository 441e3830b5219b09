package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/acadlab/examsmith/internal/exam"
	"github.com/acadlab/examsmith/internal/generator"
	"github.com/acadlab/examsmith/internal/llm"
	"github.com/acadlab/examsmith/internal/model"
	"github.com/acadlab/examsmith/internal/store"
)

// Config holds transport-level settings.
type Config struct {
	SecureCookies bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	svc    *exam.Service
	config Config
}

// New creates a new Handler.
func New(s *store.Store, svc *exam.Service, cfg Config) *Handler {
	return &Handler{store: s, svc: svc, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))

		r.Post("/api/exams", h.handleCreateExam)
		r.Get("/api/exams", h.handleListExams)
		r.Get("/api/exams/{examID}", h.handleGetExam)
		r.Get("/api/exams/{examID}/questions", h.handleListQuestions)
		r.Post("/api/exams/{examID}/generate", h.handleGenerate)
		r.Post("/api/exams/{examID}/questions", h.handleInsertQuestion)
		r.Post("/api/exams/{examID}/assemble", h.handleAssemble)
		r.Post("/api/exams/{examID}/approve", h.handleApprove)
		r.Patch("/api/questions/{questionID}", h.handlePatchQuestion)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Use(requireRole(model.UserRoleAdmin))

		r.Get("/api/admin/users", h.handleListUsers)
		r.Post("/api/admin/users", h.handleCreateUser)
		r.Post("/api/admin/users/{userID}/toggle", h.handleToggleUserActive)
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError maps the domain error taxonomy onto HTTP status codes,
// so callers can react to the specific broken invariant.
func respondError(w http.ResponseWriter, err error) {
	var (
		valErr      *model.ValidationError
		distErr     *model.DistributionError
		mismatchErr *generator.DistributionMismatchError
		parseErr    *llm.ParseError
		genErr      *generator.GenerationError
	)

	switch {
	case errors.Is(err, model.ErrExamNotFound), errors.Is(err, model.ErrQuestionNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, model.ErrNotOwner):
		respondJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Code: "forbidden"})
	case errors.Is(err, model.ErrExamLocked):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "exam_locked"})
	case errors.Is(err, model.ErrAlreadyApproved):
		respondJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "already_approved"})
	case errors.As(err, &valErr):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "validation"})
	case errors.As(err, &distErr):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "distribution"})
	case errors.As(err, &mismatchErr):
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Code: "distribution_mismatch"})
	case errors.As(err, &parseErr):
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: "generation output was not valid JSON", Code: "parse"})
	case errors.As(err, &genErr):
		respondJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Code: "generation"})
	default:
		slog.Error("internal error", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}

func urlID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// ownedExam loads the exam and enforces that the authenticated teacher
// owns it. Admins may operate on any exam.
func (h *Handler) ownedExam(r *http.Request, examID int64) (*model.Exam, error) {
	user := model.UserFromContext(r.Context())
	if user.Role == model.UserRoleAdmin {
		return h.svc.GetExam(examID)
	}
	return h.svc.OwnedBy(examID, user.ID)
}

type createExamRequest struct {
	Subject        string                   `json:"subject"`
	Difficulty     model.Difficulty         `json:"difficulty"`
	Attempts       int                      `json:"attempts"`
	TotalQuestions int                      `json:"total_questions"`
	TimeMinutes    int                      `json:"time_minutes"`
	Reference      string                   `json:"reference"`
	Distribution   *exam.DistributionCounts `json:"distribution"`
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req createExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: "bad_request"})
		return
	}

	user := model.UserFromContext(r.Context())
	created, err := h.svc.CreateExam(exam.CreateExamParams{
		OwnerID:        user.ID,
		Subject:        req.Subject,
		Difficulty:     req.Difficulty,
		Attempts:       req.Attempts,
		TotalQuestions: req.TotalQuestions,
		TimeMinutes:    req.TimeMinutes,
		Reference:      req.Reference,
		Distribution:   req.Distribution,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exams, err := h.svc.ListExamsByOwner(user.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	respondJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := urlID(r, "examID")
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid exam ID", Code: "bad_request"})
		return
	}
	e, err := h.ownedExam(r, examID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	examID, ok := urlID(r, "examID")
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid exam ID", Code: "bad_request"})
		return
	}
	if _, err := h.ownedExam(r, examID); err != nil {
		respondError(w, err)
		return
	}
	questions, err := h.svc.ListQuestions(examID)
	if err != nil {
		respondError(w, err)
		return
	}
	if questions == nil {
		questions = []model.ExamQuestion{}
	}
	respondJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	examID, ok := urlID(r, "examID")
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid exam ID", Code: "bad_request"})
		return
	}
	if _, err := h.ownedExam(r, examID); err != nil {
		respondError(w, err)
		return
	}

	result, err := h.svc.Generate(r.Context(), examID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type insertQuestionRequest struct {
	model.NewExamQuestion
	Position model.Position `json:"position"`
}

func (h *Handler) handleInsertQuestion(w http.ResponseWriter, r *http.Request) {
	examID, ok := urlID(r, "examID")
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid exam ID", Code: "bad_request"})
		return
	}
	if _, err := h.ownedExam(r, examID); err != nil {
		respondError(w, err)
		return
	}

	var req insertQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: "bad_request"})
		return
	}
	if req.Position == "" {
		req.Position = model.PositionEnd
	}

	inserted, err := h.svc.InsertQuestion(examID, req.NewExamQuestion, req.Position)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, inserted)
}

type assembleRequest struct {
	Questions []model.GeneratedQuestion `json:"questions"`
}

func (h *Handler) handleAssemble(w http.ResponseWriter, r *http.Request) {
	examID, ok := urlID(r, "examID")
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid exam ID", Code: "bad_request"})
		return
	}
	if _, err := h.ownedExam(r, examID); err != nil {
		respondError(w, err)
		return
	}

	var req assembleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: "bad_request"})
		return
	}

	result, err := h.svc.AssembleBatch(examID, req.Questions)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	examID, ok := urlID(r, "examID")
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid exam ID", Code: "bad_request"})
		return
	}
	if _, err := h.ownedExam(r, examID); err != nil {
		respondError(w, err)
		return
	}

	approved, err := h.svc.Approve(examID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, approved)
}

func (h *Handler) handlePatchQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := urlID(r, "questionID")
	if !ok {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid question ID", Code: "bad_request"})
		return
	}

	q, err := h.svc.GetQuestion(questionID)
	if err != nil {
		respondError(w, err)
		return
	}
	if _, err := h.ownedExam(r, q.ExamID); err != nil {
		respondError(w, err)
		return
	}

	var patch model.QuestionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: "bad_request"})
		return
	}

	updated, err := h.svc.UpdateQuestion(questionID, patch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}
