package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CourseRepository struct {
	db dbtx
}

func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{db: pool}
}

func NewCourseRepositoryWithTx(tx pgx.Tx) *CourseRepository {
	return &CourseRepository{db: tx}
}

const courseColumns = `id, name, instructor_id, summary, created_at, updated_at`

func scanCourse(row pgx.Row) (*domain.Course, error) {
	var c domain.Course
	if err := row.Scan(&c.ID, &c.Name, &c.InstructorID, &c.Summary, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CourseRepository) Create(ctx context.Context, c *domain.Course) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO courses (id, name, instructor_id, summary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.InstructorID, c.Summary, c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrCourseAlreadyExists
	}
	return err
}

func (r *CourseRepository) GetByID(ctx context.Context, id string) (*domain.Course, error) {
	c, err := scanCourse(r.db.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCourseNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *CourseRepository) List(ctx context.Context) ([]*domain.Course, error) {
	return r.list(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY name, id`)
}

func (r *CourseRepository) ListByInstructor(ctx context.Context, instructorID string) ([]*domain.Course, error) {
	return r.list(ctx, `SELECT `+courseColumns+` FROM courses WHERE instructor_id = $1 ORDER BY name, id`, instructorID)
}

func (r *CourseRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Course, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []*domain.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// Delete removes the course. Documents, conversations, summary entries and
// the course store cascade with it.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrCourseNotFound
	}
	return nil
}

// AddSummaryEntry appends an entry. Re-adding a document keeps its original position.
func (r *CourseRepository) AddSummaryEntry(ctx context.Context, courseID string, entry domain.SummaryEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO course_summary_entries (course_id, document_id, summary)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (course_id, document_id) DO UPDATE SET summary = EXCLUDED.summary`,
		courseID, entry.DocumentID, entry.Summary,
	)
	return err
}

func (r *CourseRepository) RemoveSummaryEntry(ctx context.Context, courseID, documentID string) (bool, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM course_summary_entries WHERE course_id = $1 AND document_id = $2`,
		courseID, documentID,
	)
	if err != nil {
		return false, err
	}
	return cmdTag.RowsAffected() > 0, nil
}

func (r *CourseRepository) ListSummaryEntries(ctx context.Context, courseID string) ([]domain.SummaryEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT document_id, summary FROM course_summary_entries WHERE course_id = $1 ORDER BY position`,
		courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.SummaryEntry
	for rows.Next() {
		var e domain.SummaryEntry
		if err := rows.Scan(&e.DocumentID, &e.Summary); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *CourseRepository) UpdateSummary(ctx context.Context, courseID, summary string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE courses SET summary = $1, updated_at = now() WHERE id = $2`,
		summary, courseID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrCourseNotFound
	}
	return nil
}
