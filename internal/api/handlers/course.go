package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/api"
	"github.com/cloo-solutions/coursetutor/internal/api/middleware"
	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/service"
	"github.com/go-chi/chi/v5"
)

type CourseService interface {
	Create(ctx context.Context, p domain.Principal, input service.CreateCourseInput) (*domain.Course, error)
	Get(ctx context.Context, id string) (*domain.Course, error)
	List(ctx context.Context, p domain.Principal) ([]*domain.Course, error)
	Delete(ctx context.Context, p domain.Principal, id string) error
}

type EnrollmentService interface {
	Enroll(ctx context.Context, p domain.Principal, courseID string) (*domain.Enrollment, bool, error)
	Unenroll(ctx context.Context, p domain.Principal, courseID string) error
	Catalog(ctx context.Context, p domain.Principal) ([]domain.CourseListing, error)
}

type QuizService interface {
	Generate(ctx context.Context, p domain.Principal, courseID string, count int) ([]domain.QuizQuestion, error)
	Grade(ctx context.Context, p domain.Principal, courseID string, questions []domain.QuizQuestion, answers []string) (domain.QuizResult, error)
}

type ReportService interface {
	GateReport(ctx context.Context, p domain.Principal, courseID string, since time.Time) (*domain.GateReport, error)
}

type CourseHandler struct {
	courses     CourseService
	enrollments EnrollmentService
	quizzes     QuizService
	reports     ReportService
}

func NewCourseHandler(courses CourseService, enrollments EnrollmentService, quizzes QuizService, reports ReportService) *CourseHandler {
	return &CourseHandler{courses: courses, enrollments: enrollments, quizzes: quizzes, reports: reports}
}

type CreateCourseRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CourseResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	InstructorID string `json:"instructor_id"`
	Summary      string `json:"summary"`
	CreatedAt    string `json:"created_at"`
	// Enrolled is set in catalog listings only.
	Enrolled *bool `json:"enrolled,omitempty"`
}

func courseToResponse(c *domain.Course) CourseResponse {
	return CourseResponse{
		ID:           c.ID,
		Name:         c.Name,
		InstructorID: c.InstructorID,
		Summary:      c.Summary,
		CreatedAt:    c.CreatedAt.Format(timeFormat),
	}
}

func (h *CourseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	course, err := h.courses.Create(r.Context(), middleware.GetPrincipal(r.Context()), service.CreateCourseInput{ID: req.ID, Name: req.Name})
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, courseToResponse(course))
}

func (h *CourseHandler) Get(w http.ResponseWriter, r *http.Request) {
	course, err := h.courses.Get(r.Context(), chi.URLParam(r, "courseID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, courseToResponse(course))
}

// List returns the caller's courses: owned for instructors, enrolled for
// students. ?all=true returns the whole catalog with enrollment flags.
func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if r.URL.Query().Get("all") == "true" {
		h.catalog(w, r, p)
		return
	}
	courses, err := h.courses.List(r.Context(), p)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	out := make([]CourseResponse, len(courses))
	for i, c := range courses {
		out[i] = courseToResponse(c)
	}
	api.Success(w, http.StatusOK, out)
}

func (h *CourseHandler) catalog(w http.ResponseWriter, r *http.Request, p domain.Principal) {
	listing, err := h.enrollments.Catalog(r.Context(), p)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	out := make([]CourseResponse, len(listing))
	for i, l := range listing {
		out[i] = courseToResponse(l.Course)
		enrolled := l.Enrolled
		out[i].Enrolled = &enrolled
	}
	api.Success(w, http.StatusOK, out)
}

type EnrollmentResponse struct {
	CourseID  string `json:"course_id"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

// Enroll answers 201 for a new enrollment and 200 when it already existed.
func (h *CourseHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	e, created, err := h.enrollments.Enroll(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "courseID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	api.Success(w, status, EnrollmentResponse{
		CourseID:  e.CourseID,
		UserID:    e.UserID,
		CreatedAt: e.CreatedAt.Format(timeFormat),
	})
}

func (h *CourseHandler) Unenroll(w http.ResponseWriter, r *http.Request) {
	if err := h.enrollments.Unenroll(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "courseID")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CourseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.courses.Delete(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "courseID")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type QuizResponse struct {
	Questions []domain.QuizQuestion `json:"questions"`
}

// Quiz generates a practice quiz over the course summary.
func (h *CourseHandler) Quiz(w http.ResponseWriter, r *http.Request) {
	questions, err := h.quizzes.Generate(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "courseID"), queryInt(r, "count", service.DefaultQuizQuestions))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, QuizResponse{Questions: questions})
}

type GradeQuizRequest struct {
	Questions []domain.QuizQuestion `json:"questions"`
	Answers   []string              `json:"answers"`
}

func (h *CourseHandler) GradeQuiz(w http.ResponseWriter, r *http.Request) {
	var req GradeQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Questions) == 0 {
		api.Error(w, http.StatusBadRequest, "questions are required")
		return
	}
	result, err := h.quizzes.Grade(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "courseID"), req.Questions, req.Answers)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, result)
}

// Report aggregates gate outcomes; ?since= takes an RFC 3339 time or a
// duration such as 168h.
func (h *CourseHandler) Report(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			since = time.Now().UTC().Add(-d)
		} else if t, err := time.Parse(time.RFC3339, v); err == nil {
			since = t
		} else {
			api.Error(w, http.StatusBadRequest, "since must be an RFC 3339 time or a duration")
			return
		}
	}

	report, err := h.reports.GateReport(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "courseID"), since)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, report)
}
