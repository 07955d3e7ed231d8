//go:build integration

package repository

import (
	"testing"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRepository_CreateThenAppend(t *testing.T) {
	ctx, pool := setupTestDB(t)
	repo := NewConversationRepository(pool)
	seedCourse(ctx, t, pool, "c1")
	user := seedUser(ctx, t, pool, "alice", domain.UserRoleStudent)

	conv := domain.NewConversation(uuid.NewString(), "c1", user.ID, time.Now().UTC())
	conv.AppendExchange("what is a cell?", "The basic unit of life.")
	conv.Status = domain.ConversationStatusNew
	require.NoError(t, repo.Create(ctx, conv))

	conv.AppendExchange("and a nucleus?", "It holds the DNA.")
	conv.Status = domain.ConversationStatusUpdated
	conv.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.Update(ctx, conv))

	got, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "what is a cell?", got.Title)
	assert.Equal(t, domain.ConversationStatusUpdated, got.Status)
	assert.Equal(t, conv.Messages, got.Messages)
	assert.Equal(t, []domain.Exchange{
		{User: "what is a cell?", Assistant: "The basic unit of life."},
		{User: "and a nucleus?", Assistant: "It holds the DNA."},
	}, got.Exchanges())

	// Re-saving without new messages changes nothing.
	require.NoError(t, repo.Update(ctx, conv))
	got, err = repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 4)
}

func TestConversationRepository_UpdateRejectsStaleCopy(t *testing.T) {
	ctx, pool := setupTestDB(t)
	repo := NewConversationRepository(pool)
	seedCourse(ctx, t, pool, "c1")
	user := seedUser(ctx, t, pool, "alice", domain.UserRoleStudent)

	conv := domain.NewConversation(uuid.NewString(), "c1", user.ID, time.Now().UTC())
	conv.AppendExchange("what is a cell?", "The basic unit of life.")
	conv.Status = domain.ConversationStatusNew
	require.NoError(t, repo.Create(ctx, conv))

	a, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	b, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, a.StoredMessages)

	a.AppendExchange("and a nucleus?", "It holds the DNA.")
	a.Status = domain.ConversationStatusUpdated
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, 4, a.StoredMessages)

	b.AppendExchange("and a membrane?", "It encloses the cell.")
	b.Status = domain.ConversationStatusUpdated
	assert.ErrorIs(t, repo.Update(ctx, b), domain.ErrConversationChanged)

	got, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "and a nucleus?", got.Messages[2].Content)
}

func TestConversationRepository_NotFound(t *testing.T) {
	ctx, pool := setupTestDB(t)
	repo := NewConversationRepository(pool)

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	missing := domain.NewConversation(uuid.NewString(), "c1", uuid.NewString(), time.Now().UTC())
	missing.Status = domain.ConversationStatusUpdated
	assert.ErrorIs(t, repo.Update(ctx, missing), domain.ErrConversationNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, missing.ID), domain.ErrConversationNotFound)
}

func TestConversationRepository_ListByOwner(t *testing.T) {
	ctx, pool := setupTestDB(t)
	repo := NewConversationRepository(pool)
	seedCourse(ctx, t, pool, "c1")
	alice := seedUser(ctx, t, pool, "alice", domain.UserRoleStudent)
	bob := seedUser(ctx, t, pool, "bob", domain.UserRoleStudent)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	var ids []string
	for i := 0; i < 3; i++ {
		c := domain.NewConversation(uuid.NewString(), "c1", alice.ID, base.Add(time.Duration(i)*time.Minute))
		c.AppendExchange("q?", "a")
		c.Status = domain.ConversationStatusNew
		require.NoError(t, repo.Create(ctx, c))
		ids = append(ids, c.ID)
	}
	other := domain.NewConversation(uuid.NewString(), "c1", bob.ID, base)
	other.Status = domain.ConversationStatusNew
	require.NoError(t, repo.Create(ctx, other))

	page1, err := repo.ListByOwner(ctx, "c1", alice.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page1.Items, 2)
	assert.True(t, page1.HasMore)
	assert.Equal(t, ids[2], page1.Items[0].ID)

	cursor, err := pagination.DecodeCursor(page1.NextCursor)
	require.NoError(t, err)
	page2, err := repo.ListByOwner(ctx, "c1", alice.ID, cursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Items, 1)
	assert.Equal(t, ids[0], page2.Items[0].ID)
	assert.False(t, page2.HasMore)

	require.NoError(t, repo.Delete(ctx, ids[0]))
	_, err = repo.GetByID(ctx, ids[0])
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}
