package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PayloadRepository keeps raw uploads in Postgres. It serves as the blob
// store when no S3 bucket is configured.
type PayloadRepository struct {
	pool *pgxpool.Pool
}

func NewPayloadRepository(pool *pgxpool.Pool) *PayloadRepository {
	return &PayloadRepository{pool: pool}
}

func (r *PayloadRepository) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO document_payloads (blob_key, payload) VALUES ($1, $2)
		 ON CONFLICT (blob_key) DO UPDATE SET payload = EXCLUDED.payload, created_at = now()`,
		key, data,
	)
	return err
}

func (r *PayloadRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT payload FROM document_payloads WHERE blob_key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPayloadNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete is idempotent.
func (r *PayloadRepository) Delete(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM document_payloads WHERE blob_key = $1`, key)
	return err
}
