package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/telemetry"
	"go.uber.org/zap"
)

// CourseRepositoryInterface defines the repository interface for course persistence
type CourseRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Course) error
	GetByID(ctx context.Context, id string) (*domain.Course, error)
	List(ctx context.Context) ([]*domain.Course, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]*domain.Course, error)
	Delete(ctx context.Context, id string) error
	AddSummaryEntry(ctx context.Context, courseID string, entry domain.SummaryEntry) error
	// RemoveSummaryEntry reports whether an entry for documentID existed.
	RemoveSummaryEntry(ctx context.Context, courseID, documentID string) (bool, error)
	ListSummaryEntries(ctx context.Context, courseID string) ([]domain.SummaryEntry, error)
	UpdateSummary(ctx context.Context, courseID, summary string) error
}

// CourseService manages courses and their knowledge stores.
type CourseService struct {
	courses     CourseRepositoryInterface
	documents   DocumentRepositoryInterface
	enrollments EnrollmentRepositoryInterface
	store       *KnowledgeStore
	blobs       BlobStore
	uuidGen     UUIDGenerator
	logger      *zap.Logger
}

func NewCourseService(
	courses CourseRepositoryInterface,
	documents DocumentRepositoryInterface,
	enrollments EnrollmentRepositoryInterface,
	store *KnowledgeStore,
	blobs BlobStore,
	logger *zap.Logger,
) *CourseService {
	return NewCourseServiceWithUUIDGen(courses, documents, enrollments, store, blobs, logger, &DefaultUUIDGenerator{})
}

// NewCourseServiceWithUUIDGen creates a CourseService with custom UUID generator (for testing)
func NewCourseServiceWithUUIDGen(
	courses CourseRepositoryInterface,
	documents DocumentRepositoryInterface,
	enrollments EnrollmentRepositoryInterface,
	store *KnowledgeStore,
	blobs BlobStore,
	logger *zap.Logger,
	uuidGen UUIDGenerator,
) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{
		courses:     courses,
		documents:   documents,
		enrollments: enrollments,
		store:       store,
		blobs:       blobs,
		uuidGen:     uuidGen,
		logger:      logger.Named("courses"),
	}
}

type CreateCourseInput struct {
	ID   string
	Name string
}

// Create creates a course owned by the calling instructor together with its
// knowledge store. A course whose store cannot be created is removed again.
func (s *CourseService) Create(ctx context.Context, p domain.Principal, input CreateCourseInput) (*domain.Course, error) {
	ctx, span := telemetry.StartSpan(ctx, "CourseService.Create", telemetry.SpanAttributes{
		CourseID:  input.ID,
		UserID:    p.UserID,
		Operation: "create_course",
	})
	defer span.End()

	if !p.IsInstructor() {
		return nil, domain.ErrInstructorOnly
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = s.uuidGen.NewString()
	}
	course := domain.NewCourse(id, strings.TrimSpace(input.Name), p.UserID, time.Now().UTC())
	if err := domain.ValidateCourse(course); err != nil {
		return nil, domain.ErrMissingRequiredField.WithCause(err)
	}

	if err := s.courses.Create(ctx, course); err != nil {
		span.SetError(err)
		return nil, err
	}

	if err := s.store.CreateStore(ctx, course.ID); err != nil {
		span.SetError(err)
		if delErr := s.courses.Delete(context.WithoutCancel(ctx), course.ID); delErr != nil {
			s.logger.Error("failed to roll back course after store creation failure",
				zap.String("course_id", course.ID),
				zap.Error(delErr),
			)
		}
		return nil, err
	}

	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("instructor_id", p.UserID))
	return course, nil
}

// Get returns a course. Any authenticated user may read a course.
func (s *CourseService) Get(ctx context.Context, id string) (*domain.Course, error) {
	return s.courses.GetByID(ctx, id)
}

// List returns the caller's own courses for instructors and the enrolled
// courses for students. The full catalog is EnrollmentService.Catalog.
func (s *CourseService) List(ctx context.Context, p domain.Principal) ([]*domain.Course, error) {
	if p.IsInstructor() {
		return s.courses.ListByInstructor(ctx, p.UserID)
	}
	return s.enrollments.ListCourses(ctx, p.UserID)
}

// Delete removes a course, its knowledge store and every stored payload.
// Documents, conversations and summary entries go with the course row.
func (s *CourseService) Delete(ctx context.Context, p domain.Principal, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "CourseService.Delete", telemetry.SpanAttributes{
		CourseID:  id,
		UserID:    p.UserID,
		Operation: "delete_course",
	})
	defer span.End()

	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := authorizeOwner(course, p); err != nil {
		return err
	}

	docs, err := s.documents.ListByCourse(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list course documents: %w", err)
	}

	// The course row goes first. Its cascade removes the durable store, so a
	// failure here leaves the course fully searchable.
	if err := s.courses.Delete(ctx, id); err != nil {
		span.SetError(err)
		return err
	}
	if err := s.store.DropStore(ctx, id); err != nil {
		s.logger.Warn("failed to drop knowledge store of deleted course", zap.String("course_id", id), zap.Error(err))
	}

	for _, d := range docs {
		if d.BlobKey == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, d.BlobKey); err != nil {
			s.logger.Warn("failed to delete document payload",
				zap.String("course_id", id),
				zap.String("document_id", d.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("course deleted", zap.String("course_id", id), zap.Int("documents", len(docs)))
	return nil
}

// ownedCourse loads a course and checks the caller owns it.
func ownedCourse(ctx context.Context, courses CourseRepositoryInterface, p domain.Principal, courseID string) (*domain.Course, error) {
	if !p.IsInstructor() {
		return nil, domain.ErrInstructorOnly
	}
	course, err := courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(course, p); err != nil {
		return nil, err
	}
	return course, nil
}

func authorizeOwner(course *domain.Course, p domain.Principal) error {
	if !p.IsInstructor() {
		return domain.ErrInstructorOnly
	}
	if course.InstructorID != p.UserID {
		return domain.ErrNotCourseOwner
	}
	return nil
}

func isNotFound(err error) bool {
	var de *domain.DomainError
	return errors.As(err, &de) && de.Code == domain.ErrCodeNotFound
}
