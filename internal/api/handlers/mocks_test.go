package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/api/middleware"
	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
)

var (
	instructor = domain.Principal{UserID: "user-inst", Role: domain.UserRoleInstructor}
	student    = domain.Principal{UserID: "user-stud", Role: domain.UserRoleStudent}
)

// withRequest attaches a principal and chi URL params.
func withRequest(r *http.Request, p domain.Principal, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middleware.PrincipalKey, p)
	return r.WithContext(ctx)
}

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(1) == nil {
		return "", nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*domain.User), args.Error(2)
}

func (m *MockAuthService) CreateAPIKey(ctx context.Context, userID, name string) (string, error) {
	args := m.Called(ctx, userID, name)
	return args.String(0), args.Error(1)
}

type MockCourseService struct {
	mock.Mock
}

func (m *MockCourseService) Create(ctx context.Context, p domain.Principal, input service.CreateCourseInput) (*domain.Course, error) {
	args := m.Called(ctx, p, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Course), args.Error(1)
}

func (m *MockCourseService) Get(ctx context.Context, id string) (*domain.Course, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Course), args.Error(1)
}

func (m *MockCourseService) List(ctx context.Context, p domain.Principal) ([]*domain.Course, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Course), args.Error(1)
}

func (m *MockCourseService) Delete(ctx context.Context, p domain.Principal, id string) error {
	return m.Called(ctx, p, id).Error(0)
}

type MockQuizService struct {
	mock.Mock
}

func (m *MockQuizService) Generate(ctx context.Context, p domain.Principal, courseID string, count int) ([]domain.QuizQuestion, error) {
	args := m.Called(ctx, p, courseID, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.QuizQuestion), args.Error(1)
}

func (m *MockQuizService) Grade(ctx context.Context, p domain.Principal, courseID string, questions []domain.QuizQuestion, answers []string) (domain.QuizResult, error) {
	args := m.Called(ctx, p, courseID, questions, answers)
	return args.Get(0).(domain.QuizResult), args.Error(1)
}

type MockEnrollmentService struct {
	mock.Mock
}

func (m *MockEnrollmentService) Enroll(ctx context.Context, p domain.Principal, courseID string) (*domain.Enrollment, bool, error) {
	args := m.Called(ctx, p, courseID)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*domain.Enrollment), args.Bool(1), args.Error(2)
}

func (m *MockEnrollmentService) Unenroll(ctx context.Context, p domain.Principal, courseID string) error {
	return m.Called(ctx, p, courseID).Error(0)
}

func (m *MockEnrollmentService) Catalog(ctx context.Context, p domain.Principal) ([]domain.CourseListing, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CourseListing), args.Error(1)
}

type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) GateReport(ctx context.Context, p domain.Principal, courseID string, since time.Time) (*domain.GateReport, error) {
	args := m.Called(ctx, p, courseID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GateReport), args.Error(1)
}

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) List(ctx context.Context, p domain.Principal, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error) {
	args := m.Called(ctx, p, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListDocumentsOutput), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, p domain.Principal, courseID, documentID string) (*domain.Document, error) {
	args := m.Called(ctx, p, courseID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) SetAvailability(ctx context.Context, p domain.Principal, courseID, documentID string, available bool) (*domain.Document, error) {
	args := m.Called(ctx, p, courseID, documentID, available)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, p domain.Principal, courseID, documentID string) error {
	return m.Called(ctx, p, courseID, documentID).Error(0)
}

type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) Upload(ctx context.Context, p domain.Principal, input service.UploadInput) (*domain.Document, error) {
	args := m.Called(ctx, p, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

type MockPayloadReader struct {
	mock.Mock
}

func (m *MockPayloadReader) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockURLSigner struct {
	mock.Mock
}

func (m *MockURLSigner) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Send(ctx context.Context, p domain.Principal, input service.ChatInput) (*service.ChatResult, error) {
	args := m.Called(ctx, p, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChatResult), args.Error(1)
}

func (m *MockChatService) ListConversations(ctx context.Context, p domain.Principal, input service.ListConversationsInput) (*service.ListConversationsOutput, error) {
	args := m.Called(ctx, p, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListConversationsOutput), args.Error(1)
}

func (m *MockChatService) SelectConversation(ctx context.Context, p domain.Principal, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, p, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockChatService) DeleteConversation(ctx context.Context, p domain.Principal, id string) error {
	return m.Called(ctx, p, id).Error(0)
}
