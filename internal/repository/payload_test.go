//go:build integration

package repository

import (
	"testing"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRepository_PutGetDelete(t *testing.T) {
	ctx, pool := setupTestDB(t)
	repo := NewPayloadRepository(pool)

	require.NoError(t, repo.Put(ctx, "courses/c1/documents/d1/a.pdf", "application/pdf", []byte("%PDF-1.7")))
	data, err := repo.Get(ctx, "courses/c1/documents/d1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)

	require.NoError(t, repo.Put(ctx, "courses/c1/documents/d1/a.pdf", "application/pdf", []byte("v2")))
	data, err = repo.Get(ctx, "courses/c1/documents/d1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	require.NoError(t, repo.Delete(ctx, "courses/c1/documents/d1/a.pdf"))
	require.NoError(t, repo.Delete(ctx, "courses/c1/documents/d1/a.pdf"))
	_, err = repo.Get(ctx, "courses/c1/documents/d1/a.pdf")
	assert.ErrorIs(t, err, domain.ErrPayloadNotFound)
}
