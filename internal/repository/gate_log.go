package repository

import (
	"context"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GateLogRepository stores per-turn gate outcomes for instructor reports.
type GateLogRepository struct {
	pool *pgxpool.Pool
}

func NewGateLogRepository(pool *pgxpool.Pool) *GateLogRepository {
	return &GateLogRepository{pool: pool}
}

func (r *GateLogRepository) Create(ctx context.Context, l *domain.GateLog) error {
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO gate_logs
			(id, course_id, user_id, conversation_id, query_length, form_passed, semantic_passed, top_score, homework_triggered, duration_ms, created_at)
		 VALUES
			(COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		nullableString(l.ID),
		l.CourseID,
		nullableString(l.UserID),
		nullableString(l.ConversationID),
		l.QueryLength,
		l.FormPassed,
		l.SemanticPassed,
		l.TopScore,
		l.HomeworkTriggered,
		l.DurationMs,
		createdAt,
	)
	return err
}

// Report aggregates a course's gate logs created at or after since.
func (r *GateLogRepository) Report(ctx context.Context, courseID string, since time.Time) (*domain.GateReport, error) {
	report := domain.GateReport{CourseID: courseID}
	err := r.pool.QueryRow(ctx,
		`SELECT
			count(*),
			count(*) FILTER (WHERE form_passed AND semantic_passed),
			count(*) FILTER (WHERE NOT form_passed),
			count(*) FILTER (WHERE form_passed AND NOT semantic_passed),
			count(*) FILTER (WHERE homework_triggered),
			COALESCE(avg(top_score) FILTER (WHERE form_passed), 0)
		 FROM gate_logs
		 WHERE course_id = $1 AND created_at >= $2`,
		courseID, since,
	).Scan(
		&report.Turns,
		&report.Answerable,
		&report.RejectedForm,
		&report.RejectedSemantic,
		&report.HomeworkTriggered,
		&report.AvgTopScore,
	)
	if err != nil {
		return nil, err
	}
	return &report, nil
}
