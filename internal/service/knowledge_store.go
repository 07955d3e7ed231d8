package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/metrics"
	"github.com/cloo-solutions/coursetutor/internal/telemetry"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PassageBackend is the durable per-course passage index.
// ReplaceDocumentPassages must be atomic: readers observe the old or the new
// set, never a mix.
type PassageBackend interface {
	CreateStore(ctx context.Context, courseID string) error
	StoreExists(ctx context.Context, courseID string) (bool, error)
	DropStore(ctx context.Context, courseID string) error
	InsertPassages(ctx context.Context, passages []domain.Passage) error
	ListByDocument(ctx context.Context, courseID, documentID string) ([]domain.Passage, error)
	ReplaceDocumentPassages(ctx context.Context, courseID, documentID string, passages []domain.Passage) error
	DeleteByDocument(ctx context.Context, courseID, documentID string) (int64, error)
	CountByDocument(ctx context.Context, courseID, documentID string, filter domain.PassageFilter) (int, error)
	Search(ctx context.Context, courseID string, embedding []float32, k int, filter domain.PassageFilter) ([]domain.ScoredPassage, error)
}

// KnowledgeStoreConfig tunes the registry.
type KnowledgeStoreConfig struct {
	RegistrySize     int
	EmbedConcurrency int
}

func DefaultKnowledgeStoreConfig() KnowledgeStoreConfig {
	return KnowledgeStoreConfig{
		RegistrySize:     256,
		EmbedConcurrency: 4,
	}
}

// StoreHandle is an open handle for one course store.
type StoreHandle struct {
	CourseID string
	OpenedAt time.Time
}

// KnowledgeStore is the registry of per-course passage stores. It owns a
// fixed-capacity set of open handles; a course absent from the set is looked
// up in the backend, and a course absent from the backend is ErrStoreNotFound.
type KnowledgeStore struct {
	backend  PassageBackend
	embedder EmbeddingClient
	query    EmbeddingClient
	uuidGen  UUIDGenerator
	cfg      KnowledgeStoreConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu    sync.Mutex
	open  *lru.Cache[string, *StoreHandle]
	locks *keyedMutex
}

// NewKnowledgeStore builds the registry. embedder is used for passages and
// query for search text; they may be the same client.
func NewKnowledgeStore(
	backend PassageBackend,
	embedder EmbeddingClient,
	query EmbeddingClient,
	uuidGen UUIDGenerator,
	cfg KnowledgeStoreConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*KnowledgeStore, error) {
	if cfg.RegistrySize <= 0 {
		cfg.RegistrySize = DefaultKnowledgeStoreConfig().RegistrySize
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = DefaultKnowledgeStoreConfig().EmbedConcurrency
	}
	if query == nil {
		query = embedder
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	open, err := lru.New[string, *StoreHandle](cfg.RegistrySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create store registry: %w", err)
	}
	return &KnowledgeStore{
		backend:  backend,
		embedder: embedder,
		query:    query,
		uuidGen:  uuidGen,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Named("knowledge_store"),
		open:     open,
		locks:    newKeyedMutex(),
	}, nil
}

// CreateStore creates the store for a course. Creating an existing store is a no-op.
func (ks *KnowledgeStore) CreateStore(ctx context.Context, courseID string) error {
	_, err := ks.OpenOrCreate(ctx, courseID)
	return err
}

// OpenOrCreate returns the open handle for courseID, creating the backing store if needed.
func (ks *KnowledgeStore) OpenOrCreate(ctx context.Context, courseID string) (*StoreHandle, error) {
	if courseID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "course ID is required")
	}
	if h, ok := ks.open.Get(courseID); ok {
		return h, nil
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if err := ks.backend.CreateStore(ctx, courseID); err != nil {
		return nil, fmt.Errorf("failed to create knowledge store: %w", err)
	}
	h := &StoreHandle{CourseID: courseID, OpenedAt: time.Now().UTC()}
	ks.open.Add(courseID, h)
	ks.logger.Info("knowledge store opened", zap.String("course_id", courseID))
	return h, nil
}

// lookup resolves an existing store. It never creates one.
func (ks *KnowledgeStore) lookup(ctx context.Context, courseID string) (*StoreHandle, error) {
	if h, ok := ks.open.Get(courseID); ok {
		return h, nil
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if h, ok := ks.open.Get(courseID); ok {
		return h, nil
	}
	exists, err := ks.backend.StoreExists(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up knowledge store: %w", err)
	}
	if !exists {
		return nil, domain.ErrStoreNotFound
	}
	h := &StoreHandle{CourseID: courseID, OpenedAt: time.Now().UTC()}
	ks.open.Add(courseID, h)
	return h, nil
}

// DropStore removes every passage of the course and forgets the store.
func (ks *KnowledgeStore) DropStore(ctx context.Context, courseID string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.open.Remove(courseID)
	if err := ks.backend.DropStore(ctx, courseID); err != nil {
		return fmt.Errorf("failed to drop knowledge store: %w", err)
	}
	ks.logger.Info("knowledge store dropped", zap.String("course_id", courseID))
	return nil
}

// AddPassages embeds chunks and stores them for documentID with the given availability.
func (ks *KnowledgeStore) AddPassages(ctx context.Context, courseID, documentID string, chunks []string, available bool) ([]domain.Passage, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeStore.AddPassages", telemetry.SpanAttributes{
		CourseID:   courseID,
		DocumentID: documentID,
		Operation:  "add_passages",
	})
	defer span.End()

	h, err := ks.lookup(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "no passages to add")
	}

	embeddings, err := ks.embedAll(ctx, chunks)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	now := time.Now().UTC()
	passages := make([]domain.Passage, len(chunks))
	for i, content := range chunks {
		passages[i] = domain.Passage{
			ID:         ks.uuidGen.NewString(),
			CourseID:   h.CourseID,
			DocumentID: documentID,
			ChunkIndex: i,
			Content:    content,
			Embedding:  embeddings[i],
			Available:  available,
			CreatedAt:  now,
		}
	}

	unlock := ks.locks.Lock(documentKey(courseID, documentID))
	defer unlock()

	if err := ks.backend.InsertPassages(ctx, passages); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to insert passages: %w", err)
	}
	return passages, nil
}

func (ks *KnowledgeStore) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	out := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ks.cfg.EmbedConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			v, err := ks.embedder.GenerateEmbedding(gctx, chunk)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.ErrEmbeddingFailed.WithCause(err)
	}
	return out, nil
}

// SetAvailability flips the availability of every passage of a document by
// deleting and reinserting them with the same ids and embeddings. Calls for
// the same document are serialized. A document without passages reports
// ErrPassagesNotFound and leaves the store untouched.
func (ks *KnowledgeStore) SetAvailability(ctx context.Context, courseID, documentID string, available bool) error {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeStore.SetAvailability", telemetry.SpanAttributes{
		CourseID:   courseID,
		DocumentID: documentID,
		Operation:  "set_availability",
	})
	defer span.End()

	if _, err := ks.lookup(ctx, courseID); err != nil {
		return err
	}

	unlock := ks.locks.Lock(documentKey(courseID, documentID))
	defer unlock()

	current, err := ks.backend.ListByDocument(ctx, courseID, documentID)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to read passages: %w", err)
	}
	if len(current) == 0 {
		ks.metrics.RecordToggle("not_found")
		ks.logger.Warn("availability toggle found no passages",
			zap.String("course_id", courseID),
			zap.String("document_id", documentID),
		)
		return domain.ErrPassagesNotFound
	}

	replacement := make([]domain.Passage, len(current))
	for i, p := range current {
		replacement[i] = p.WithAvailability(available)
	}

	if err := ks.backend.ReplaceDocumentPassages(ctx, courseID, documentID, replacement); err != nil {
		ks.metrics.RecordToggle("error")
		span.SetError(err)
		return fmt.Errorf("failed to replace passages: %w", err)
	}

	n, err := ks.backend.CountByDocument(ctx, courseID, documentID, domain.PassageFilter{Available: &available})
	if err != nil {
		return fmt.Errorf("failed to verify passages: %w", err)
	}
	if n != len(replacement) {
		ks.metrics.RecordToggle("verify_failed")
		err := domain.ErrAvailabilityVerifyFail.WithCause(
			fmt.Errorf("expected %d passages with available=%t, found %d", len(replacement), available, n))
		span.SetError(err)
		return err
	}

	ks.metrics.RecordToggle("ok")
	ks.logger.Info("passage availability updated",
		zap.String("course_id", courseID),
		zap.String("document_id", documentID),
		zap.Bool("available", available),
		zap.Int("passages", n),
	)
	return nil
}

// Search returns the k passages most similar to query that satisfy filter.
func (ks *KnowledgeStore) Search(ctx context.Context, courseID, query string, k int, filter domain.PassageFilter) ([]domain.ScoredPassage, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeStore.Search", telemetry.SpanAttributes{
		CourseID:  courseID,
		Operation: "search",
	})
	defer span.End()

	if _, err := ks.lookup(ctx, courseID); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.ScoredPassage{}, nil
	}
	if filter.DocumentIDs != nil && len(filter.DocumentIDs) == 0 {
		return []domain.ScoredPassage{}, nil
	}

	embedding, err := ks.query.GenerateEmbedding(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, domain.ErrEmbeddingFailed.WithCause(err)
	}

	results, err := ks.backend.Search(ctx, courseID, embedding, k, filter)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to search passages: %w", err)
	}
	return results, nil
}

// SearchByDocumentIDs is Search restricted to available passages of the given documents.
func (ks *KnowledgeStore) SearchByDocumentIDs(ctx context.Context, courseID, query string, k int, documentIDs []string) ([]domain.ScoredPassage, error) {
	filter := domain.AvailableOnly()
	filter.DocumentIDs = documentIDs
	if filter.DocumentIDs == nil {
		filter.DocumentIDs = []string{}
	}
	return ks.Search(ctx, courseID, query, k, filter)
}

// RemovePassages deletes every passage of a document and verifies none remain.
func (ks *KnowledgeStore) RemovePassages(ctx context.Context, courseID, documentID string) error {
	if _, err := ks.lookup(ctx, courseID); err != nil {
		return err
	}

	unlock := ks.locks.Lock(documentKey(courseID, documentID))
	defer unlock()

	removed, err := ks.backend.DeleteByDocument(ctx, courseID, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete passages: %w", err)
	}

	remaining, err := ks.backend.CountByDocument(ctx, courseID, documentID, domain.PassageFilter{})
	if err != nil {
		return fmt.Errorf("failed to verify passage removal: %w", err)
	}
	if remaining != 0 {
		return domain.ErrPassageRemovalFail.WithCause(fmt.Errorf("%d passages remain", remaining))
	}

	ks.logger.Info("passages removed",
		zap.String("course_id", courseID),
		zap.String("document_id", documentID),
		zap.Int64("removed", removed),
	)
	return nil
}

// RestorePassages reinserts passages previously read with ListPassages,
// keeping their ids, embeddings and availability.
func (ks *KnowledgeStore) RestorePassages(ctx context.Context, courseID, documentID string, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	if _, err := ks.lookup(ctx, courseID); err != nil {
		return err
	}

	unlock := ks.locks.Lock(documentKey(courseID, documentID))
	defer unlock()

	if err := ks.backend.InsertPassages(ctx, passages); err != nil {
		return fmt.Errorf("failed to restore passages: %w", err)
	}
	ks.logger.Info("passages restored",
		zap.String("course_id", courseID),
		zap.String("document_id", documentID),
		zap.Int("passages", len(passages)),
	)
	return nil
}

// CountPassages counts passages of a document matching filter.
func (ks *KnowledgeStore) CountPassages(ctx context.Context, courseID, documentID string, filter domain.PassageFilter) (int, error) {
	if _, err := ks.lookup(ctx, courseID); err != nil {
		return 0, err
	}
	return ks.backend.CountByDocument(ctx, courseID, documentID, filter)
}

// ListPassages returns the passages of a document in chunk order.
func (ks *KnowledgeStore) ListPassages(ctx context.Context, courseID, documentID string) ([]domain.Passage, error) {
	if _, err := ks.lookup(ctx, courseID); err != nil {
		return nil, err
	}
	return ks.backend.ListByDocument(ctx, courseID, documentID)
}

// IsStoreNotFound reports whether err is a lookup failure for an unknown course.
func IsStoreNotFound(err error) bool {
	return errors.Is(err, domain.ErrStoreNotFound)
}
