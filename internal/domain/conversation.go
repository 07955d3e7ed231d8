package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// MessageRole identifies the author of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ConversationStatus tracks whether a conversation has been saved before
type ConversationStatus string

const (
	ConversationStatusNew     ConversationStatus = "New"
	ConversationStatusUpdated ConversationStatus = "Updated"
)

// TitleMaxRunes is the length of the first user message kept in a title.
const TitleMaxRunes = 30

// Message is a single turn fragment. Order within a conversation is significant.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Exchange is a completed (user, assistant) pair.
type Exchange struct {
	User      string
	Assistant string
}

// Conversation is owned by exactly one (course, user) pair.
type Conversation struct {
	ID        string
	CourseID  string
	UserID    string
	Title     string
	Status    ConversationStatus
	Messages  []Message
	CreatedAt time.Time
	UpdatedAt time.Time
	// StoredMessages is how many of Messages were persisted when this copy
	// was loaded or last saved. A save from a copy that is behind the
	// stored conversation fails with ErrConversationChanged.
	StoredMessages int
}

// NewConversation creates an unsaved conversation. Status stays empty until the first save.
func NewConversation(id, courseID, userID string, createdAt time.Time) *Conversation {
	return &Conversation{
		ID:        id,
		CourseID:  courseID,
		UserID:    userID,
		Messages:  []Message{},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// AppendExchange adds a user message and the assistant reply.
func (c *Conversation) AppendExchange(user, assistant string) {
	c.Messages = append(c.Messages,
		Message{Role: RoleUser, Content: user},
		Message{Role: RoleAssistant, Content: assistant},
	)
	if c.Title == "" {
		c.Title = MakeTitle(user)
	}
}

// HasUserMessage reports whether the conversation contains any user-authored message.
func (c *Conversation) HasUserMessage() bool {
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

// IsSaved reports whether the conversation has been persisted at least once.
func (c *Conversation) IsSaved() bool {
	return c.Status != ""
}

// NextStatus is the status a conversation takes on its next save.
func (c *Conversation) NextStatus() ConversationStatus {
	if c.IsSaved() {
		return ConversationStatusUpdated
	}
	return ConversationStatusNew
}

// Exchanges returns the strictly alternating (user, assistant) pairs in order.
// A user message not directly followed by an assistant message is dropped,
// as is any message that cannot start or finish a pair.
func (c *Conversation) Exchanges() []Exchange {
	return PairExchanges(c.Messages)
}

// PairExchanges extracts alternating (user, assistant) pairs from messages.
func PairExchanges(messages []Message) []Exchange {
	var out []Exchange
	for i := 0; i < len(messages)-1; {
		if messages[i].Role == RoleUser && messages[i+1].Role == RoleAssistant {
			out = append(out, Exchange{User: messages[i].Content, Assistant: messages[i+1].Content})
			i += 2
			continue
		}
		i++
	}
	return out
}

// MakeTitle derives a conversation title from the first user message.
func MakeTitle(firstMessage string) string {
	if utf8.RuneCountInString(firstMessage) <= TitleMaxRunes {
		return firstMessage
	}
	return string([]rune(firstMessage)[:TitleMaxRunes]) + "..."
}

// ValidateConversation validates a Conversation instance
func ValidateConversation(c *Conversation) error {
	if c == nil {
		return fmt.Errorf("conversation cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("conversation ID is required")
	}

	if c.CourseID == "" {
		return fmt.Errorf("conversation CourseID is required")
	}

	if c.UserID == "" {
		return fmt.Errorf("conversation UserID is required")
	}

	if c.Status != "" && !isValidConversationStatus(c.Status) {
		return fmt.Errorf("conversation Status is invalid: %s", c.Status)
	}

	for i, m := range c.Messages {
		if !IsValidMessageRole(m.Role) {
			return fmt.Errorf("conversation message %d has invalid role: %s", i, m.Role)
		}
	}

	return nil
}

// IsValidMessageRole checks if a MessageRole is valid
func IsValidMessageRole(r MessageRole) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

func isValidConversationStatus(s ConversationStatus) bool {
	switch s {
	case ConversationStatusNew, ConversationStatusUpdated:
		return true
	default:
		return false
	}
}
