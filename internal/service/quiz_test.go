package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quizText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Q: Question %d?\nA. one\nB. two\nC. three\nD. four\nAnswer: B\n\n", i+1)
	}
	return b.String()
}

func newTestQuizService(summary string, completer *fakeCompleter) *QuizService {
	course := testCourse("c1")
	course.Summary = summary
	access, _ := enrolledAccess(newFakeCourseRepo(course), "c1")
	return NewQuizService(access, completer, nil)
}

func TestQuizService_Generate(t *testing.T) {
	completer := &fakeCompleter{reply: quizText(3)}
	svc := newTestQuizService("Cells and membranes.", completer)

	questions, err := svc.Generate(context.Background(), student, "c1", 3)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, "Question 1?", questions[0].Question)
	assert.Equal(t, "B", questions[0].Answer)

	prompt := completer.lastPrompt()
	assert.Contains(t, prompt[0].Content, "exactly 3 questions")
	assert.Contains(t, prompt[1].Content, "Cells and membranes.")
}

func TestQuizService_GenerateTruncatesAndClamps(t *testing.T) {
	completer := &fakeCompleter{reply: quizText(25)}
	svc := newTestQuizService("Cells.", completer)

	questions, err := svc.Generate(context.Background(), student, "c1", 2)
	require.NoError(t, err)
	assert.Len(t, questions, 2)

	questions, err = svc.Generate(context.Background(), student, "c1", 500)
	require.NoError(t, err)
	assert.Len(t, questions, maxQuizQuestions)

	_, err = svc.Generate(context.Background(), student, "c1", 0)
	require.NoError(t, err)
	assert.Contains(t, completer.lastPrompt()[0].Content, fmt.Sprintf("exactly %d questions", DefaultQuizQuestions))
}

func TestQuizService_GenerateErrors(t *testing.T) {
	ctx := context.Background()

	_, err := newTestQuizService("", &fakeCompleter{}).Generate(ctx, student, "c1", 5)
	assert.ErrorIs(t, err, ErrNoCourseMaterial)

	_, err = newTestQuizService("Cells.", &fakeCompleter{reply: "I cannot do that."}).Generate(ctx, student, "c1", 5)
	assert.ErrorIs(t, err, domain.ErrEmptyQuiz)

	_, err = newTestQuizService("Cells.", &fakeCompleter{err: errors.New("boom")}).Generate(ctx, student, "c1", 5)
	assert.Error(t, err)

	_, err = newTestQuizService("Cells.", &fakeCompleter{}).Generate(ctx, student, "missing", 5)
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)
}

func TestQuizService_Grade(t *testing.T) {
	svc := newTestQuizService("Cells.", &fakeCompleter{})
	questions := domain.ParseQuiz(quizText(3))

	result, err := svc.Grade(context.Background(), student, "c1", questions, []string{"B", "a", "b."})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Correct)
	assert.Equal(t, []int{1}, result.Wrong)
}

func TestQuizService_RequiresEnrollment(t *testing.T) {
	ctx := context.Background()
	completer := &fakeCompleter{reply: quizText(3)}
	svc := newTestQuizService("Cells.", completer)
	outsider := domain.Principal{UserID: "student-2", Role: domain.UserRoleStudent}

	_, err := svc.Generate(ctx, outsider, "c1", 3)
	assert.ErrorIs(t, err, domain.ErrNotEnrolled)
	_, err = svc.Grade(ctx, outsider, "c1", domain.ParseQuiz(quizText(1)), []string{"B"})
	assert.ErrorIs(t, err, domain.ErrNotEnrolled)
	assert.Empty(t, completer.prompts)

	_, err = svc.Generate(ctx, otherProf, "c1", 3)
	assert.ErrorIs(t, err, domain.ErrNotCourseOwner)

	questions, err := svc.Generate(ctx, instructor, "c1", 3)
	require.NoError(t, err)
	assert.Len(t, questions, 3)
}
