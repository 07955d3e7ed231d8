package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairExchanges_DropsDanglingUser(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
		{Role: RoleUser, Content: "c"},
	}

	pairs := PairExchanges(messages)

	require.Len(t, pairs, 1)
	assert.Equal(t, Exchange{User: "a", Assistant: "b"}, pairs[0])
}

func TestPairExchanges_SkipsNonAlternating(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleUser, Content: "q2"},
		{Role: RoleAssistant, Content: "a2"},
		{Role: RoleAssistant, Content: "orphan"},
		{Role: RoleUser, Content: "q3"},
		{Role: RoleAssistant, Content: "a3"},
	}

	pairs := PairExchanges(messages)

	assert.Equal(t, []Exchange{
		{User: "q2", Assistant: "a2"},
		{User: "q3", Assistant: "a3"},
	}, pairs)
}

func TestPairExchanges_Empty(t *testing.T) {
	assert.Empty(t, PairExchanges(nil))
	assert.Empty(t, PairExchanges([]Message{{Role: RoleUser, Content: "only"}}))
}

func TestConversation_StatusLifecycle(t *testing.T) {
	conv := NewConversation("conv1", "c1", "u1", time.Now())

	assert.False(t, conv.IsSaved())
	assert.False(t, conv.HasUserMessage())
	assert.Equal(t, ConversationStatusNew, conv.NextStatus())

	conv.Status = ConversationStatusNew
	assert.Equal(t, ConversationStatusUpdated, conv.NextStatus())

	conv.Status = ConversationStatusUpdated
	assert.Equal(t, ConversationStatusUpdated, conv.NextStatus())
}

func TestConversation_AppendExchangeSetsTitleOnce(t *testing.T) {
	conv := NewConversation("conv1", "c1", "u1", time.Now())

	conv.AppendExchange("What is a mitochondrion and why does it matter?", "It is an organelle.")
	conv.AppendExchange("Second question", "Second answer")

	assert.True(t, conv.HasUserMessage())
	assert.Len(t, conv.Messages, 4)
	assert.Equal(t, "What is a mitochondrion and wh...", conv.Title)
}

func TestMakeTitle(t *testing.T) {
	assert.Equal(t, "short", MakeTitle("short"))
	assert.Equal(t, strings.Repeat("x", 30), MakeTitle(strings.Repeat("x", 30)))
	assert.Equal(t, strings.Repeat("é", 30)+"...", MakeTitle(strings.Repeat("é", 31)))
}

func TestValidateConversation(t *testing.T) {
	conv := NewConversation("conv1", "c1", "u1", time.Now())
	require.NoError(t, ValidateConversation(conv))

	conv.Messages = append(conv.Messages, Message{Role: "robot", Content: "beep"})
	err := ValidateConversation(conv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")

	assert.Error(t, ValidateConversation(&Conversation{ID: "x", CourseID: "c1"}))
}
