// Package openai adapts the OpenAI API to the embedding, completion,
// summarization and relevance scoring ports used by the services.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel answers chat turns, summaries and relevance checks.
	DefaultChatModel = openai.GPT4oMini

	maxSummaryInputRunes = 12000
	maxScoreInputRunes   = 4000
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoChoices is returned when a completion carries no choices.
	ErrNoChoices = errors.New("completion returned no choices")
	// ErrUnparseableScore is returned when the relevance reply is not a number.
	ErrUnparseableScore = errors.New("relevance reply is not a score")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// ChatAPI is the subset of the go-openai client used for completions.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// Client wraps the OpenAI API client
type Client struct {
	api        EmbeddingAPI
	chat       ChatAPI
	chatModel  string
	dimensions int
}

type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIAdapter(client *openai.Client, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{client: client, model: model, dimensions: dimensions}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	}
	// ada-002 rejects the dimensions parameter.
	if a.model != openai.AdaEmbeddingV2 {
		req.Dimensions = a.dimensions
	}
	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatModel           string
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	api := openai.NewClientWithConfig(clientCfg)

	return &Client{
		api:        NewOpenAIAdapter(api, openai.EmbeddingModel(cfg.EmbeddingModel), dimensions),
		chat:       api,
		chatModel:  chatModel,
		dimensions: dimensions,
	}
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	expected := c.dimensions
	if expected <= 0 {
		expected = DefaultEmbeddingDimensions
	}
	if len(embedding) != expected {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(embedding), expected)
	}

	return embedding, nil
}

func toChatMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// Complete returns the assistant reply to messages.
func (c *Client) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	return c.complete(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: toChatMessages(messages),
	})
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream streams the reply, calling onDelta for every non-empty
// fragment. An onDelta error aborts the stream.
func (c *Client) CompleteStream(ctx context.Context, messages []domain.Message, onDelta func(string) error) (string, error) {
	stream, err := c.chat.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: toChatMessages(messages),
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open completion stream: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return full.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("completion stream failed: %w", err)
		}
		for _, choice := range resp.Choices {
			delta := choice.Delta.Content
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			if onDelta != nil {
				if err := onDelta(delta); err != nil {
					return "", err
				}
			}
		}
	}
}

const summarizePrompt = "Summarize the following course document in exactly one sentence. " +
	"Reply with the sentence only."

// Summarize produces a one-sentence summary of a document's text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	summary, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizePrompt},
			{Role: openai.ChatMessageRoleUser, Content: truncateRunes(text, maxSummaryInputRunes)},
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

const scorePrompt = "Rate how relevant the passage is to the question on a scale from 0 to 1, " +
	"where 1 means the passage directly answers it. Reply with the number only."

// ScoreRelevance asks the model for a query/passage relevance score in [0,1].
func (c *Client) ScoreRelevance(ctx context.Context, query, passage string) (float64, error) {
	reply, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model:     c.chatModel,
		MaxTokens: 8,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scorePrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Question: " + query + "\n\nPassage: " + truncateRunes(passage, maxScoreInputRunes)},
		},
	})
	if err != nil {
		return 0, err
	}
	return ParseScore(reply)
}

// ParseScore reads the first number in reply and clamps it to [0,1].
func ParseScore(reply string) (float64, error) {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return 0, ErrUnparseableScore
	}
	score, err := strconv.ParseFloat(strings.TrimRight(fields[0], ".,;:"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparseableScore, reply)
	}
	switch {
	case score < 0:
		return 0, nil
	case score > 1:
		return 1, nil
	}
	return score, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
