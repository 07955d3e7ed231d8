package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PassageRepository is the pgvector-backed passage index. Each course store
// is a row in course_stores; passages rank by cosine similarity through the
// HNSW index.
type PassageRepository struct {
	pool *pgxpool.Pool
}

func NewPassageRepository(pool *pgxpool.Pool) *PassageRepository {
	return &PassageRepository{pool: pool}
}

func (r *PassageRepository) CreateStore(ctx context.Context, courseID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO course_stores (course_id) VALUES ($1) ON CONFLICT (course_id) DO NOTHING`,
		courseID,
	)
	if pgErrorCode(err) == pgFKViolation {
		return domain.ErrCourseNotFound
	}
	return err
}

func (r *PassageRepository) StoreExists(ctx context.Context, courseID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM course_stores WHERE course_id = $1)`,
		courseID,
	).Scan(&exists)
	return exists, err
}

// DropStore removes the store and, by cascade, all of its passages.
func (r *PassageRepository) DropStore(ctx context.Context, courseID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM course_stores WHERE course_id = $1`, courseID)
	return err
}

func (r *PassageRepository) InsertPassages(ctx context.Context, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return insertPassages(ctx, tx, passages)
	})
}

func insertPassages(ctx context.Context, tx pgx.Tx, passages []domain.Passage) error {
	batch := &pgx.Batch{}
	for _, p := range passages {
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(
			`INSERT INTO passages (id, course_id, document_id, chunk_index, content, embedding, available, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, p.CourseID, p.DocumentID, p.ChunkIndex, p.Content, pgvector.NewVector(p.Embedding), p.Available, createdAt,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}

const passageColumns = `id, course_id, document_id, chunk_index, content, embedding, available, created_at`

func scanPassage(row pgx.Row, extra ...any) (domain.Passage, error) {
	var p domain.Passage
	var embedding pgvector.Vector
	dest := append([]any{&p.ID, &p.CourseID, &p.DocumentID, &p.ChunkIndex, &p.Content, &embedding, &p.Available, &p.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Passage{}, err
	}
	p.Embedding = embedding.Slice()
	return p, nil
}

func (r *PassageRepository) ListByDocument(ctx context.Context, courseID, documentID string) ([]domain.Passage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+passageColumns+` FROM passages
		 WHERE course_id = $1 AND document_id = $2
		 ORDER BY chunk_index`,
		courseID, documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Passage
	for rows.Next() {
		p, err := scanPassage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceDocumentPassages swaps a document's passage set in one transaction.
func (r *PassageRepository) ReplaceDocumentPassages(ctx context.Context, courseID, documentID string, passages []domain.Passage) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM passages WHERE course_id = $1 AND document_id = $2`,
			courseID, documentID,
		); err != nil {
			return err
		}
		if len(passages) == 0 {
			return nil
		}
		return insertPassages(ctx, tx, passages)
	})
}

func (r *PassageRepository) DeleteByDocument(ctx context.Context, courseID, documentID string) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM passages WHERE course_id = $1 AND document_id = $2`,
		courseID, documentID,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func (r *PassageRepository) CountByDocument(ctx context.Context, courseID, documentID string, filter domain.PassageFilter) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM passages
		 WHERE course_id = $1 AND document_id = $2 AND ($3::boolean IS NULL OR available = $3)`,
		courseID, documentID, filter.Available,
	).Scan(&n)
	return n, err
}

// searchEfSearch is the HNSW candidate list size for Search. The index spans
// every course, so filtered scans need more candidates than pgvector's default.
const searchEfSearch = 200

// Search ranks by cosine distance. Scores are 1 - distance clamped to [0,1].
// The HNSW index covers all courses, so the scan runs with iterative
// scanning: it keeps walking the graph until k rows pass the course and
// availability filters instead of stopping at ef_search candidates.
func (r *PassageRepository) Search(ctx context.Context, courseID string, embedding []float32, k int, filter domain.PassageFilter) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return []domain.ScoredPassage{}, nil
	}
	if filter.DocumentIDs != nil && len(filter.DocumentIDs) == 0 {
		return []domain.ScoredPassage{}, nil
	}

	results := []domain.ScoredPassage{}
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SET LOCAL hnsw.iterative_scan = relaxed_order`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`SELECT set_config('hnsw.ef_search', $1, true)`,
			strconv.Itoa(min(max(searchEfSearch, k), 1000)),
		); err != nil {
			return err
		}

		// relaxed_order may return rows slightly out of order; the
		// materialized outer query restores exact distance order.
		rows, err := tx.Query(ctx,
			`WITH ranked AS MATERIALIZED (
			   SELECT `+passageColumns+`, embedding <=> $2 AS distance
			   FROM passages
			   WHERE course_id = $1
			     AND ($3::boolean IS NULL OR available = $3)
			     AND ($4::uuid[] IS NULL OR document_id = ANY($4))
			   ORDER BY embedding <=> $2
			   LIMIT $5
			 )
			 SELECT `+passageColumns+`, 1 - distance AS score
			 FROM ranked
			 ORDER BY distance, id`,
			courseID, pgvector.NewVector(embedding), filter.Available, filter.DocumentIDs, k,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var score float64
			p, err := scanPassage(rows, &score)
			if err != nil {
				return err
			}
			results = append(results, domain.ScoredPassage{Passage: p, Score: clampScore(score)})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
