package repository

import (
	"context"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EnrollmentRepository struct {
	db dbtx
}

func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{db: pool}
}

func NewEnrollmentRepositoryWithTx(tx pgx.Tx) *EnrollmentRepository {
	return &EnrollmentRepository{db: tx}
}

// Create enrolls a student and reports whether the enrollment is new.
func (r *EnrollmentRepository) Create(ctx context.Context, e *domain.Enrollment) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO enrollments (course_id, user_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (course_id, user_id) DO NOTHING`,
		e.CourseID, e.UserID, e.CreatedAt,
	)
	if pgErrorCode(err) == pgFKViolation {
		return false, domain.ErrCourseNotFound
	}
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}

func (r *EnrollmentRepository) Delete(ctx context.Context, courseID, userID string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM enrollments WHERE course_id = $1 AND user_id = $2`, courseID, userID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrEnrollmentNotFound
	}
	return nil
}

func (r *EnrollmentRepository) Exists(ctx context.Context, courseID, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE course_id = $1 AND user_id = $2)`,
		courseID, userID,
	).Scan(&ok)
	return ok, err
}

// ListCourses returns the courses a student is enrolled in, by name.
func (r *EnrollmentRepository) ListCourses(ctx context.Context, userID string) ([]*domain.Course, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.name, c.instructor_id, c.summary, c.created_at, c.updated_at
		 FROM courses c JOIN enrollments e ON e.course_id = c.id
		 WHERE e.user_id = $1
		 ORDER BY c.name, c.id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Course, error) {
		return scanCourse(row)
	})
}

func (r *EnrollmentRepository) ListCourseIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT course_id FROM enrollments WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
