package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/pagination"
	"github.com/cloo-solutions/coursetutor/internal/telemetry"
	"go.uber.org/zap"
)

// ConversationRepositoryInterface defines the repository interface for conversation persistence.
// Update appends the messages beyond those already stored.
type ConversationRepositoryInterface interface {
	Create(ctx context.Context, c *domain.Conversation) error
	Update(ctx context.Context, c *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListByOwner(ctx context.Context, courseID, userID string, cursor *pagination.Cursor, limit int) (*ConversationPageResult, error)
	Delete(ctx context.Context, id string) error
}

type ConversationPageResult struct {
	Items      []*domain.Conversation
	NextCursor string
	HasMore    bool
}

// GateLogRepositoryInterface defines the repository interface for gate logs
type GateLogRepositoryInterface interface {
	Create(ctx context.Context, l *domain.GateLog) error
	Report(ctx context.Context, courseID string, since time.Time) (*domain.GateReport, error)
}

const DefaultRetrievalK = 3

// ChatService runs chat turns: gate, retrieval, homework policy, completion
// and persistence.
type ChatService struct {
	access        *CourseAccess
	documents     DocumentRepositoryInterface
	conversations ConversationRepositoryInterface
	gateLogs      GateLogRepositoryInterface
	store         PassageSearcher
	gate          *RelevanceGate
	guard         *HomeworkGuard
	memory        ChatMemory
	completer     Completer
	retrievalK    int
	locks         *keyedMutex
	uuidGen       UUIDGenerator
	logger        *zap.Logger
}

type ChatDeps struct {
	Access        *CourseAccess
	Documents     DocumentRepositoryInterface
	Conversations ConversationRepositoryInterface
	GateLogs      GateLogRepositoryInterface
	Store         PassageSearcher
	Gate          *RelevanceGate
	Guard         *HomeworkGuard
	Memory        ChatMemory
	Completer     Completer
	RetrievalK    int
	UUIDGen       UUIDGenerator
	Logger        *zap.Logger
}

func NewChatService(deps ChatDeps) *ChatService {
	if deps.RetrievalK <= 0 {
		deps.RetrievalK = DefaultRetrievalK
	}
	if deps.UUIDGen == nil {
		deps.UUIDGen = &DefaultUUIDGenerator{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ChatService{
		access:        deps.Access,
		documents:     deps.Documents,
		conversations: deps.Conversations,
		gateLogs:      deps.GateLogs,
		store:         deps.Store,
		gate:          deps.Gate,
		guard:         deps.Guard,
		memory:        deps.Memory,
		completer:     deps.Completer,
		retrievalK:    deps.RetrievalK,
		locks:         newKeyedMutex(),
		uuidGen:       deps.UUIDGen,
		logger:        deps.Logger.Named("chat"),
	}
}

type ChatInput struct {
	CourseID       string
	ConversationID string
	Message        string
	// OnDelta streams the reply when set.
	OnDelta func(string) error
}

// SourceRef identifies a passage used as context.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

type ChatResult struct {
	ConversationID    string
	Title             string
	Status            domain.ConversationStatus
	Reply             string
	Answerable        bool
	HomeworkTriggered bool
	TopScore          float64
	Sources           []SourceRef
}

// Send runs one chat turn. A query the gate rejects is still answered, with
// NoContextSentinel in place of retrieved material.
func (s *ChatService) Send(ctx context.Context, p domain.Principal, input ChatInput) (*ChatResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChatService.Send", telemetry.SpanAttributes{
		CourseID:       input.CourseID,
		ConversationID: input.ConversationID,
		UserID:         p.UserID,
		Operation:      "chat",
	})
	defer span.End()

	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, domain.ErrEmptyQuery
	}
	start := time.Now()

	course, err := s.access.Open(ctx, p, input.CourseID)
	if err != nil {
		return nil, err
	}

	// The lock is taken before the load so a turn always extends the
	// latest stored history.
	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID = s.uuidGen.NewString()
	}
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.openConversation(ctx, p, course.ID, conversationID, input.ConversationID == "")
	if err != nil {
		return nil, err
	}

	decision, err := s.gate.Evaluate(ctx, message, course.ID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	telemetry.AddBreadcrumb(ctx, "gate", decision.label())

	contextText := NoContextSentinel
	var sources []SourceRef
	if decision.Answerable() {
		contextText, sources, err = s.retrieve(ctx, course.ID, message)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
	}

	selected, err := s.replayTarget(ctx, conv)
	if err != nil {
		return nil, err
	}

	session := NewSession(course, conv.ID, s.memory, s.completer, s.policyFor(course.ID))
	reply, err := session.Respond(ctx, Turn{
		Input:    message,
		Context:  contextText,
		Selected: selected,
		OnDelta:  input.OnDelta,
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	conv.AppendExchange(message, reply.Text)
	if err := s.save(ctx, conv); err != nil {
		span.SetError(err)
		return nil, err
	}

	s.recordGate(ctx, &domain.GateLog{
		ID:                s.uuidGen.NewString(),
		CourseID:          course.ID,
		UserID:            p.UserID,
		ConversationID:    conv.ID,
		QueryLength:       utf8.RuneCountInString(message),
		FormPassed:        decision.FormPassed,
		SemanticPassed:    decision.SemanticPassed,
		TopScore:          decision.TopScore,
		HomeworkTriggered: reply.HomeworkTriggered,
		DurationMs:        int(time.Since(start).Milliseconds()),
		CreatedAt:         time.Now().UTC(),
	})

	return &ChatResult{
		ConversationID:    conv.ID,
		Title:             conv.Title,
		Status:            conv.Status,
		Reply:             reply.Text,
		Answerable:        decision.Answerable(),
		HomeworkTriggered: reply.HomeworkTriggered,
		TopScore:          decision.TopScore,
		Sources:           sources,
	}, nil
}

func (s *ChatService) openConversation(ctx context.Context, p domain.Principal, courseID, conversationID string, fresh bool) (*domain.Conversation, error) {
	if fresh {
		return domain.NewConversation(conversationID, courseID, p.UserID, time.Now().UTC()), nil
	}
	conv, err := s.ownedConversation(ctx, p, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.CourseID != courseID {
		return nil, domain.ErrConversationNotFound
	}
	return conv, nil
}

func (s *ChatService) ownedConversation(ctx context.Context, p domain.Principal, id string) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != p.UserID {
		return nil, domain.ErrConversationNotFound
	}
	return conv, nil
}

// replayTarget returns conv when its history must be replayed because the
// working memory no longer holds it.
func (s *ChatService) replayTarget(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	if !conv.IsSaved() || len(conv.Exchanges()) == 0 {
		return nil, nil
	}
	history, err := s.memory.Load(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat memory: %w", err)
	}
	if len(history) > 0 {
		return nil, nil
	}
	return conv, nil
}

func (s *ChatService) retrieve(ctx context.Context, courseID, query string) (string, []SourceRef, error) {
	results, err := s.store.Search(ctx, courseID, query, s.retrievalK, domain.AvailableOnly())
	if err != nil {
		return "", nil, err
	}
	if len(results) == 0 {
		return NoContextSentinel, nil, nil
	}
	parts := make([]string, len(results))
	sources := make([]SourceRef, len(results))
	for i, r := range results {
		parts[i] = r.Content
		sources[i] = SourceRef{DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex, Score: r.Score}
	}
	return strings.Join(parts, "\n\n"), sources, nil
}

func (s *ChatService) policyFor(courseID string) PolicyFunc {
	if s.guard == nil {
		return nil
	}
	return func(ctx context.Context, query string) (string, error) {
		ids, err := s.documents.ListHomeworkIDs(ctx, courseID)
		if err != nil {
			return "", fmt.Errorf("failed to list homework documents: %w", err)
		}
		return s.guard.ResponsePolicy(ctx, query, courseID, ids)
	}
}

// save persists conv if it holds a user message: created on the first save,
// updated afterwards.
func (s *ChatService) save(ctx context.Context, conv *domain.Conversation) error {
	if !conv.HasUserMessage() {
		return nil
	}
	status := conv.NextStatus()
	conv.Status = status
	conv.UpdatedAt = time.Now().UTC()
	if err := domain.ValidateConversation(conv); err != nil {
		return err
	}
	if status == domain.ConversationStatusNew {
		return s.conversations.Create(ctx, conv)
	}
	return s.conversations.Update(ctx, conv)
}

func (s *ChatService) recordGate(ctx context.Context, l *domain.GateLog) {
	if s.gateLogs == nil {
		return
	}
	if err := s.gateLogs.Create(context.WithoutCancel(ctx), l); err != nil {
		s.logger.Warn("failed to record gate log", zap.String("course_id", l.CourseID), zap.Error(err))
	}
}

type ListConversationsInput struct {
	CourseID string
	Cursor   string
	Limit    int
}

type ListConversationsOutput struct {
	Items   []*domain.Conversation
	Cursor  string
	HasMore bool
}

// ListConversations pages through the caller's conversations in a course, newest first.
func (s *ChatService) ListConversations(ctx context.Context, p domain.Principal, input ListConversationsInput) (*ListConversationsOutput, error) {
	if _, err := s.access.Open(ctx, p, input.CourseID); err != nil {
		return nil, err
	}
	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	page, err := s.conversations.ListByOwner(ctx, input.CourseID, p.UserID, cursor, pagination.ClampLimit(input.Limit, defaultPageLimit, maxPageLimit))
	if err != nil {
		return nil, err
	}
	return &ListConversationsOutput{Items: page.Items, Cursor: page.NextCursor, HasMore: page.HasMore}, nil
}

// SelectConversation loads a conversation and rebuilds the working memory from it.
func (s *ChatService) SelectConversation(ctx context.Context, p domain.Principal, id string) (*domain.Conversation, error) {
	conv, err := s.ownedConversation(ctx, p, id)
	if err != nil {
		return nil, err
	}
	course, err := s.access.Open(ctx, p, conv.CourseID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(conv.ID)
	defer unlock()

	if err := NewSession(course, conv.ID, s.memory, s.completer, nil).Select(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// DeleteConversation removes a conversation and its working memory.
func (s *ChatService) DeleteConversation(ctx context.Context, p domain.Principal, id string) error {
	conv, err := s.ownedConversation(ctx, p, id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(conv.ID)
	defer unlock()

	if err := s.conversations.Delete(ctx, conv.ID); err != nil {
		return err
	}
	if err := s.memory.Clear(ctx, conv.ID); err != nil {
		s.logger.Warn("failed to clear chat memory", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	return nil
}
