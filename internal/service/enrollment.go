package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"go.uber.org/zap"
)

// EnrollmentRepositoryInterface defines the repository interface for enrollments.
type EnrollmentRepositoryInterface interface {
	// Create reports whether the enrollment did not exist before.
	Create(ctx context.Context, e *domain.Enrollment) (bool, error)
	Delete(ctx context.Context, courseID, userID string) error
	Exists(ctx context.Context, courseID, userID string) (bool, error)
	ListCourses(ctx context.Context, userID string) ([]*domain.Course, error)
	ListCourseIDs(ctx context.Context, userID string) ([]string, error)
}

// CourseAccess admits a course's owner and its enrolled students.
type CourseAccess struct {
	courses     CourseRepositoryInterface
	enrollments EnrollmentRepositoryInterface
}

func NewCourseAccess(courses CourseRepositoryInterface, enrollments EnrollmentRepositoryInterface) *CourseAccess {
	return &CourseAccess{courses: courses, enrollments: enrollments}
}

// Open loads the course if p may use it. Other instructors get
// ErrNotCourseOwner and students without an enrollment ErrNotEnrolled.
func (a *CourseAccess) Open(ctx context.Context, p domain.Principal, courseID string) (*domain.Course, error) {
	course, err := a.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if p.IsInstructor() {
		if course.InstructorID != p.UserID {
			return nil, domain.ErrNotCourseOwner
		}
		return course, nil
	}
	ok, err := a.enrollments.Exists(ctx, course.ID, p.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotEnrolled
	}
	return course, nil
}

// EnrollmentService lets students join and leave courses.
type EnrollmentService struct {
	courses     CourseRepositoryInterface
	enrollments EnrollmentRepositoryInterface
	logger      *zap.Logger
}

func NewEnrollmentService(courses CourseRepositoryInterface, enrollments EnrollmentRepositoryInterface, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{courses: courses, enrollments: enrollments, logger: logger.Named("enrollments")}
}

// Enroll adds the calling student to a course. Enrolling twice is not an
// error; created reports whether this call added the enrollment.
func (s *EnrollmentService) Enroll(ctx context.Context, p domain.Principal, courseID string) (e *domain.Enrollment, created bool, err error) {
	if p.IsInstructor() {
		return nil, false, domain.ErrStudentOnly
	}
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, false, err
	}
	e = domain.NewEnrollment(course.ID, p.UserID, time.Now().UTC())
	created, err = s.enrollments.Create(ctx, e)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Info("student enrolled", zap.String("course_id", course.ID), zap.String("user_id", p.UserID))
	}
	return e, created, nil
}

// Unenroll removes the calling student from a course. Conversations are kept.
func (s *EnrollmentService) Unenroll(ctx context.Context, p domain.Principal, courseID string) error {
	if p.IsInstructor() {
		return domain.ErrStudentOnly
	}
	if err := s.enrollments.Delete(ctx, courseID, p.UserID); err != nil {
		return err
	}
	s.logger.Info("student unenrolled", zap.String("course_id", courseID), zap.String("user_id", p.UserID))
	return nil
}

// Catalog lists every course with the caller's enrollment state.
func (s *EnrollmentService) Catalog(ctx context.Context, p domain.Principal) ([]domain.CourseListing, error) {
	courses, err := s.courses.List(ctx)
	if err != nil {
		return nil, err
	}
	enrolled := map[string]bool{}
	if !p.IsInstructor() {
		ids, err := s.enrollments.ListCourseIDs(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			enrolled[id] = true
		}
	}
	out := make([]domain.CourseListing, len(courses))
	for i, c := range courses {
		out[i] = domain.CourseListing{Course: c, Enrolled: enrolled[c.ID]}
	}
	return out, nil
}
