//go:build integration

package repository

import (
	"testing"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseRepository_CreateGetList(t *testing.T) {
	ctx, pool := setupTestDB(t)
	repo := NewCourseRepository(pool)
	c := seedCourse(ctx, t, pool, "bio101")

	got, err := repo.GetByID(ctx, "bio101")
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.InstructorID, got.InstructorID)
	assert.Empty(t, got.Summary)

	dup := domain.NewCourse("bio101", "Again", c.InstructorID, time.Now().UTC())
	assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrCourseAlreadyExists)

	seedCourse(ctx, t, pool, "chem101")
	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := repo.ListByInstructor(ctx, c.InstructorID)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "bio101", own[0].ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)
}

func TestCourseRepository_SummaryEntries(t *testing.T) {
	ctx, pool := setupTestDB(t)
	repo := NewCourseRepository(pool)
	seedCourse(ctx, t, pool, "c1")
	now := time.Now()
	d1 := seedDocument(ctx, t, pool, "c1", now)
	d2 := seedDocument(ctx, t, pool, "c1", now)
	d3 := seedDocument(ctx, t, pool, "c1", now)

	for _, e := range []domain.SummaryEntry{
		{DocumentID: d2.ID, Summary: "Second."},
		{DocumentID: d1.ID, Summary: "First."},
		{DocumentID: d3.ID, Summary: "Third."},
	} {
		require.NoError(t, repo.AddSummaryEntry(ctx, "c1", e))
	}

	entries, err := repo.ListSummaryEntries(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Second.\nFirst.\nThird.", domain.ComposeSummary(entries))

	removed, err := repo.RemoveSummaryEntry(ctx, "c1", d1.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.RemoveSummaryEntry(ctx, "c1", d1.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	entries, err = repo.ListSummaryEntries(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateSummary(ctx, "c1", domain.ComposeSummary(entries)))

	c, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Second.\nThird.", c.Summary)

	assert.ErrorIs(t, repo.UpdateSummary(ctx, "missing", "x"), domain.ErrCourseNotFound)
}

func TestCourseRepository_DeleteCascades(t *testing.T) {
	ctx, pool := setupTestDB(t)
	repo := NewCourseRepository(pool)
	seedCourse(ctx, t, pool, "c1")
	doc := seedDocument(ctx, t, pool, "c1", time.Now())
	passages := NewPassageRepository(pool)
	require.NoError(t, passages.CreateStore(ctx, "c1"))
	require.NoError(t, passages.InsertPassages(ctx, []domain.Passage{newPassage("c1", doc.ID, 0, axis(0), true)}))

	require.NoError(t, repo.Delete(ctx, "c1"))

	n, err := passages.CountByDocument(ctx, "c1", doc.ID, domain.PassageFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = NewDocumentRepository(pool).GetByID(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	exists, err := NewPassageRepository(pool).StoreExists(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, repo.Delete(ctx, "c1"), domain.ErrCourseNotFound)
}
