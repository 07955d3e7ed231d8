package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/pagination"
	"github.com/cloo-solutions/coursetutor/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

const documentColumns = `id, course_id, name, content_type, size_bytes, blob_key, extracted_text, status,
	failure_reason, available, summary, is_homework, created_at, updated_at`

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	err := row.Scan(&d.ID, &d.CourseID, &d.Name, &d.ContentType, &d.SizeBytes, &d.BlobKey, &d.ExtractedText, &d.Status,
		&d.FailureReason, &d.Available, &d.Summary, &d.IsHomework, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func collectDocuments(rows pgx.Rows) ([]*domain.Document, error) {
	defer rows.Close()
	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.CourseID, d.Name, d.ContentType, d.SizeBytes, d.BlobKey, d.ExtractedText, d.Status,
		d.FailureReason, d.Available, d.Summary, d.IsHomework, d.CreatedAt, d.UpdatedAt,
	)
	if pgErrorCode(err) == pgFKViolation {
		return domain.ErrCourseNotFound
	}
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	d, err := scanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *DocumentRepository) ListByCourse(ctx context.Context, courseID string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE course_id = $1 ORDER BY created_at DESC, id DESC`,
		courseID,
	)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) ListByCourseWithCursor(ctx context.Context, courseID string, availableOnly bool, cursor *pagination.Cursor, limit int) (*service.DocumentPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+` FROM documents
			 WHERE course_id = $1 AND (available OR NOT $2) AND (created_at, id) < ($3, $4)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $5`,
			courseID, availableOnly, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+` FROM documents
			 WHERE course_id = $1 AND (available OR NOT $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			courseID, availableOnly, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}

	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, err
	}

	page, next, hasMore := pagination.Trim(docs, limit, func(d *domain.Document) (string, time.Time) {
		return d.ID, d.CreatedAt
	})
	return &service.DocumentPageResult{Items: page, NextCursor: next, HasMore: hasMore}, nil
}

func (r *DocumentRepository) MarkCompleted(ctx context.Context, id, extractedText, summary string, isHomework bool) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = 'Completed', extracted_text = $1, summary = $2, is_homework = $3, failure_reason = '', updated_at = now()
		 WHERE id = $4 AND status = 'Processing'`,
		extractedText, summary, isHomework, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id, reason string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET status = 'Failed', failure_reason = $1, available = false, updated_at = now()
		 WHERE id = $2 AND status = 'Processing'`,
		reason, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) SetAvailability(ctx context.Context, id string, available bool) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET available = $1, updated_at = now() WHERE id = $2`,
		available, id,
	)
	if pgErrorCode(err) == pgCheckViolation {
		return domain.ErrDocumentNotReady
	}
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if pgErrorCode(err) == pgFKViolation {
		return domain.ErrPassageRemovalFail
	}
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) ListHomeworkIDs(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM documents WHERE course_id = $1 AND is_homework AND available ORDER BY created_at`,
		courseID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// FailStaleProcessing fails every Processing document last touched before
// updatedBefore and returns the rows it changed.
func (r *DocumentRepository) FailStaleProcessing(ctx context.Context, updatedBefore time.Time, reason string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`UPDATE documents
		 SET status = 'Failed', failure_reason = $1, available = false, updated_at = now()
		 WHERE status = 'Processing' AND updated_at < $2
		 RETURNING `+documentColumns,
		reason, updatedBefore,
	)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}
