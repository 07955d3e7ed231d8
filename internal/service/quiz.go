package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/telemetry"
	"go.uber.org/zap"
)

const (
	DefaultQuizQuestions = 10
	maxQuizQuestions     = 20
)

var ErrNoCourseMaterial = domain.NewDomainError(domain.ErrCodeInvalidOperation, "course has no published material to quiz on")

// QuizService generates multiple-choice practice quizzes from a course summary.
type QuizService struct {
	access    *CourseAccess
	completer Completer
	logger    *zap.Logger
}

func NewQuizService(access *CourseAccess, completer Completer, logger *zap.Logger) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizService{access: access, completer: completer, logger: logger.Named("quiz")}
}

// Generate asks the completion service for count questions over the course
// summary and keeps the well-formed ones.
func (s *QuizService) Generate(ctx context.Context, p domain.Principal, courseID string, count int) ([]domain.QuizQuestion, error) {
	ctx, span := telemetry.StartSpan(ctx, "QuizService.Generate", telemetry.SpanAttributes{
		CourseID:  courseID,
		UserID:    p.UserID,
		Operation: "generate_quiz",
	})
	defer span.End()

	if count <= 0 {
		count = DefaultQuizQuestions
	}
	if count > maxQuizQuestions {
		count = maxQuizQuestions
	}

	course, err := s.access.Open(ctx, p, courseID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(course.Summary) == "" {
		return nil, ErrNoCourseMaterial
	}

	text, err := s.completer.Complete(ctx, quizPrompt(course, count))
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("quiz generation failed: %w", err)
	}

	questions := domain.ParseQuiz(text)
	if len(questions) == 0 {
		s.logger.Warn("quiz output had no valid questions", zap.String("course_id", courseID), zap.Int("output_len", len(text)))
		return nil, domain.ErrEmptyQuiz
	}
	if len(questions) > count {
		questions = questions[:count]
	}
	return questions, nil
}

// Grade scores answers against questions previously returned by Generate.
func (s *QuizService) Grade(ctx context.Context, p domain.Principal, courseID string, questions []domain.QuizQuestion, answers []string) (domain.QuizResult, error) {
	if _, err := s.access.Open(ctx, p, courseID); err != nil {
		return domain.QuizResult{}, err
	}
	return domain.GradeQuiz(questions, answers), nil
}

func quizPrompt(course *domain.Course, count int) []domain.Message {
	system := fmt.Sprintf(`You write multiple-choice practice questions for the course %q.
Use only the course material below. Write exactly %d questions in this format and nothing else:

Q: <question>
A. <option>
B. <option>
C. <option>
D. <option>
Answer: <letter>

Leave one blank line between questions.`, course.Name, count)

	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: "Course material:\n" + course.Summary},
	}
}
