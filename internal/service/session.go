package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/coursetutor/internal/domain"
)

// ChatMemory holds the sliding window of recent exchanges per conversation.
// Implementations keep at most their configured window, dropping the oldest.
type ChatMemory interface {
	Load(ctx context.Context, key string) ([]domain.Exchange, error)
	Append(ctx context.Context, key string, ex domain.Exchange) error
	Reset(ctx context.Context, key string, exchanges []domain.Exchange) error
	Clear(ctx context.Context, key string) error
}

// Completer is the text completion service.
type Completer interface {
	Complete(ctx context.Context, messages []domain.Message) (string, error)
	// CompleteStream calls onDelta for each fragment and returns the full text.
	CompleteStream(ctx context.Context, messages []domain.Message, onDelta func(string) error) (string, error)
}

// PolicyFunc returns extra rules for a query, or "" when none apply.
type PolicyFunc func(ctx context.Context, query string) (string, error)

// Session is one conversation's view of the assistant: the course it is
// grounded in, its working memory and the completion service.
type Session struct {
	course    *domain.Course
	key       string
	memory    ChatMemory
	completer Completer
	policy    PolicyFunc
}

func NewSession(course *domain.Course, key string, memory ChatMemory, completer Completer, policy PolicyFunc) *Session {
	return &Session{
		course:    course,
		key:       key,
		memory:    memory,
		completer: completer,
		policy:    policy,
	}
}

// Turn is a single user message with its retrieved context.
type Turn struct {
	Input    string
	Context  string
	Selected *domain.Conversation
	// OnDelta enables streaming when set.
	OnDelta func(string) error
}

// Reply is the assistant's answer to a Turn.
type Reply struct {
	Text              string
	HomeworkTriggered bool
}

// GetResponse answers userInput grounded in contextText. When selected is
// set, memory is first rebuilt from its stored exchanges.
func (s *Session) GetResponse(ctx context.Context, userInput, contextText string, selected *domain.Conversation) (string, error) {
	reply, err := s.Respond(ctx, Turn{Input: userInput, Context: contextText, Selected: selected})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

// Respond runs one turn: replay, policy, prompt, completion, then memory append.
func (s *Session) Respond(ctx context.Context, turn Turn) (*Reply, error) {
	if strings.TrimSpace(turn.Input) == "" {
		return nil, domain.ErrEmptyQuery
	}

	if turn.Selected != nil {
		if err := s.Select(ctx, turn.Selected); err != nil {
			return nil, err
		}
	}

	history, err := s.memory.Load(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat memory: %w", err)
	}

	var policy string
	if s.policy != nil {
		policy, err = s.policy(ctx, turn.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate response policy: %w", err)
		}
	}

	messages := BuildPrompt(s.course, history, turn.Input, turn.Context, policy)

	var text string
	if turn.OnDelta != nil {
		text, err = s.completer.CompleteStream(ctx, messages, turn.OnDelta)
	} else {
		text, err = s.completer.Complete(ctx, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	if err := s.memory.Append(ctx, s.key, domain.Exchange{User: turn.Input, Assistant: text}); err != nil {
		return nil, fmt.Errorf("failed to update chat memory: %w", err)
	}

	return &Reply{Text: text, HomeworkTriggered: policy != ""}, nil
}

// Select clears memory and replays the conversation's alternating pairs.
func (s *Session) Select(ctx context.Context, conv *domain.Conversation) error {
	if err := s.memory.Reset(ctx, s.key, conv.Exchanges()); err != nil {
		return fmt.Errorf("failed to replay conversation: %w", err)
	}
	return nil
}

// Clear forgets the working memory.
func (s *Session) Clear(ctx context.Context) error {
	return s.memory.Clear(ctx, s.key)
}

// BuildPrompt assembles the messages sent to the completion service.
func BuildPrompt(course *domain.Course, history []domain.Exchange, input, contextText, policy string) []domain.Message {
	messages := make([]domain.Message, 0, 2+2*len(history))
	messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: systemPrompt(course)})
	for _, ex := range history {
		messages = append(messages,
			domain.Message{Role: domain.RoleUser, Content: ex.User},
			domain.Message{Role: domain.RoleAssistant, Content: ex.Assistant},
		)
	}

	user := fmt.Sprintf("CONTEXT\n\n%s\n\nQuestion\n\n%s", contextText, input)
	if policy != "" {
		user += "\n\nRules: " + policy
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: user})
	return messages
}

func systemPrompt(course *domain.Course) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the teaching assistant for the course %q. ", course.Name)
	b.WriteString("Answer students the way the instructor would in class: clearly and patiently. ")
	b.WriteString("Base answers on the CONTEXT from the course material first and only fill gaps with general knowledge that stays on topic. ")
	fmt.Fprintf(&b, "If a question has nothing to do with %s, say so instead of answering it.", course.Name)
	if summary := strings.TrimSpace(course.Summary); summary != "" {
		b.WriteString("\n\nCourse material covered so far:\n")
		b.WriteString(summary)
	}
	return b.String()
}
