package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloo-solutions/coursetutor/internal/api"
	"github.com/cloo-solutions/coursetutor/internal/api/middleware"
	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/service"
	"github.com/go-chi/chi/v5"
)

type ChatService interface {
	Send(ctx context.Context, p domain.Principal, input service.ChatInput) (*service.ChatResult, error)
	ListConversations(ctx context.Context, p domain.Principal, input service.ListConversationsInput) (*service.ListConversationsOutput, error)
	SelectConversation(ctx context.Context, p domain.Principal, id string) (*domain.Conversation, error)
	DeleteConversation(ctx context.Context, p domain.Principal, id string) error
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type ChatResponse struct {
	ConversationID    string              `json:"conversation_id"`
	Title             string              `json:"title"`
	Status            string              `json:"status"`
	Reply             string              `json:"reply"`
	Answerable        bool                `json:"answerable"`
	HomeworkTriggered bool                `json:"homework_triggered"`
	TopScore          float64             `json:"top_score"`
	Sources           []service.SourceRef `json:"sources"`
}

type ConversationSummaryResponse struct {
	ID        string `json:"id"`
	CourseID  string `json:"course_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type ConversationResponse struct {
	ConversationSummaryResponse
	Messages []domain.Message `json:"messages"`
}

type ListConversationsResponse struct {
	Items   []ConversationSummaryResponse `json:"items"`
	Cursor  string                        `json:"cursor,omitempty"`
	HasMore bool                          `json:"has_more"`
}

func chatResultToResponse(res *service.ChatResult) ChatResponse {
	sources := res.Sources
	if sources == nil {
		sources = []service.SourceRef{}
	}
	return ChatResponse{
		ConversationID:    res.ConversationID,
		Title:             res.Title,
		Status:            string(res.Status),
		Reply:             res.Reply,
		Answerable:        res.Answerable,
		HomeworkTriggered: res.HomeworkTriggered,
		TopScore:          res.TopScore,
		Sources:           sources,
	}
}

func conversationSummary(c *domain.Conversation) ConversationSummaryResponse {
	return ConversationSummaryResponse{
		ID:        c.ID,
		CourseID:  c.CourseID,
		Title:     c.Title,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt.Format(timeFormat),
		UpdatedAt: c.UpdatedAt.Format(timeFormat),
	}
}

func wantsStream(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "true" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// Send runs one chat turn. With ?stream=true or Accept: text/event-stream
// the reply is written as server-sent events: "delta" events carrying reply
// fragments, then one "done" event with the full result.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	input := service.ChatInput{
		CourseID:       chi.URLParam(r, "courseID"),
		ConversationID: req.ConversationID,
		Message:        req.Message,
	}
	p := middleware.GetPrincipal(r.Context())

	if !wantsStream(r) {
		res, err := h.svc.Send(r.Context(), p, input)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		api.Success(w, http.StatusOK, chatResultToResponse(res))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream := &sseWriter{w: w, flusher: flusher}
	input.OnDelta = func(delta string) error {
		return stream.event("delta", map[string]string{"text": delta})
	}

	res, err := h.svc.Send(r.Context(), p, input)
	if err != nil {
		if !stream.started {
			api.HandleError(w, err)
			return
		}
		_ = stream.event("error", api.ErrorResponse{Error: "chat turn failed"})
		return
	}
	_ = stream.event("done", chatResultToResponse(res))
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseWriter) event(name string, payload any) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ListConversations(r.Context(), middleware.GetPrincipal(r.Context()), service.ListConversationsInput{
		CourseID: chi.URLParam(r, "courseID"),
		Cursor:   r.URL.Query().Get("cursor"),
		Limit:    queryInt(r, "limit", 0),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]ConversationSummaryResponse, len(out.Items))
	for i, c := range out.Items {
		items[i] = conversationSummary(c)
	}
	api.Success(w, http.StatusOK, ListConversationsResponse{Items: items, Cursor: out.Cursor, HasMore: out.HasMore})
}

// GetConversation selects a conversation and returns its transcript.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.SelectConversation(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "conversationID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	messages := conv.Messages
	if messages == nil {
		messages = []domain.Message{}
	}
	api.Success(w, http.StatusOK, ConversationResponse{ConversationSummaryResponse: conversationSummary(conv), Messages: messages})
}

func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteConversation(r.Context(), middleware.GetPrincipal(r.Context()), chi.URLParam(r, "conversationID")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
