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

type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

const conversationColumns = `id, course_id, user_id, title, status, created_at, updated_at`

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := row.Scan(&c.ID, &c.CourseID, &c.UserID, &c.Title, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts the conversation with all of its messages.
func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO conversations (`+conversationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.CourseID, c.UserID, c.Title, c.Status, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return insertMessages(ctx, tx, c.ID, 0, c.Messages)
	})
	if err != nil {
		return err
	}
	c.StoredMessages = len(c.Messages)
	return nil
}

// Update stores title, status and the messages beyond c.StoredMessages.
// Stored messages are never rewritten. The UPDATE holds the row lock, so a
// concurrent save of the same conversation waits and then sees the new
// count, failing with ErrConversationChanged.
func (r *ConversationRepository) Update(ctx context.Context, c *domain.Conversation) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE conversations SET title = $1, status = $2, updated_at = $3 WHERE id = $4`,
			c.Title, c.Status, c.UpdatedAt, c.ID,
		)
		if err != nil {
			return err
		}
		if cmdTag.RowsAffected() == 0 {
			return domain.ErrConversationNotFound
		}

		var stored int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM messages WHERE conversation_id = $1`,
			c.ID,
		).Scan(&stored); err != nil {
			return err
		}
		if stored != c.StoredMessages || stored > len(c.Messages) {
			return domain.ErrConversationChanged
		}
		return insertMessages(ctx, tx, c.ID, stored, c.Messages[stored:])
	})
	if err != nil {
		return err
	}
	c.StoredMessages = len(c.Messages)
	return nil
}

func insertMessages(ctx context.Context, tx pgx.Tx, conversationID string, offset int, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, m := range messages {
		batch.Queue(
			`INSERT INTO messages (conversation_id, position, role, content) VALUES ($1, $2, $3, $4)`,
			conversationID, offset+i, m.Role, m.Content,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT role, content FROM messages WHERE conversation_id = $1 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, err
	}
	c.Messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Message, error) {
		var m domain.Message
		err := row.Scan(&m.Role, &m.Content)
		return m, err
	})
	if err != nil {
		return nil, err
	}
	c.StoredMessages = len(c.Messages)
	return c, nil
}

// ListByOwner pages through a user's conversations in a course, most
// recently updated first. Messages are not loaded.
func (r *ConversationRepository) ListByOwner(ctx context.Context, courseID, userID string, cursor *pagination.Cursor, limit int) (*service.ConversationPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+conversationColumns+` FROM conversations
			 WHERE course_id = $1 AND user_id = $2 AND (updated_at, id) < ($3, $4)
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $5`,
			courseID, userID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+conversationColumns+` FROM conversations
			 WHERE course_id = $1 AND user_id = $2
			 ORDER BY updated_at DESC, id DESC
			 LIMIT $3`,
			courseID, userID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page, next, hasMore := pagination.Trim(convs, limit, func(c *domain.Conversation) (string, time.Time) {
		return c.ID, c.UpdatedAt
	})
	return &service.ConversationPageResult{Items: page, NextCursor: next, HasMore: hasMore}, nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}
