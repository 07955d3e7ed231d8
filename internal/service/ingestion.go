package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/pagination"
	"github.com/cloo-solutions/coursetutor/internal/telemetry"
	"go.uber.org/zap"
)

// DocumentRepositoryInterface defines the repository interface for document persistence.
// MarkCompleted and MarkFailed only transition documents that are still
// Processing and return domain.ErrDocumentNotFound when none matched.
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByCourse(ctx context.Context, courseID string) ([]*domain.Document, error)
	ListByCourseWithCursor(ctx context.Context, courseID string, availableOnly bool, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error)
	MarkCompleted(ctx context.Context, id, extractedText, summary string, isHomework bool) error
	MarkFailed(ctx context.Context, id, reason string) error
	SetAvailability(ctx context.Context, id string, available bool) error
	Delete(ctx context.Context, id string) error
	ListHomeworkIDs(ctx context.Context, courseID string) ([]string, error)
	FailStaleProcessing(ctx context.Context, updatedBefore time.Time, reason string) ([]*domain.Document, error)
}

type DocumentPageResult struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

// BlobStore holds raw uploaded payloads.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// TextExtractor turns a raw payload into text blocks (pages, slides, sheets).
type TextExtractor interface {
	Extract(name, contentType string, payload []byte) ([]string, error)
}

// Summarizer produces the one-sentence summary of a document.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// TaskSubmitter runs work off the request path. Submit blocks while the
// queue is full and fails once ctx is done.
type TaskSubmitter interface {
	Submit(ctx context.Context, name string, run func(context.Context) error) error
}

const (
	reasonQueueFull   = "ingestion queue full"
	reasonInterrupted = "ingestion interrupted"
	reasonTimedOut    = "ingestion timed out"
)

// IngestionService accepts uploads and turns them into passages asynchronously.
type IngestionService struct {
	courses    CourseRepositoryInterface
	documents  DocumentRepositoryInterface
	blobs      BlobStore
	extractor  TextExtractor
	summarizer Summarizer
	store      *KnowledgeStore
	chunker    *Chunker
	submitter  TaskSubmitter
	staleAfter time.Duration
	uuidGen    UUIDGenerator
	logger     *zap.Logger
}

type IngestionConfig struct {
	Chunk      ChunkConfig
	StaleAfter time.Duration
}

func NewIngestionService(
	courses CourseRepositoryInterface,
	documents DocumentRepositoryInterface,
	blobs BlobStore,
	extractor TextExtractor,
	summarizer Summarizer,
	store *KnowledgeStore,
	submitter TaskSubmitter,
	cfg IngestionConfig,
	logger *zap.Logger,
) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	return &IngestionService{
		courses:    courses,
		documents:  documents,
		blobs:      blobs,
		extractor:  extractor,
		summarizer: summarizer,
		store:      store,
		chunker:    NewChunker(cfg.Chunk),
		submitter:  submitter,
		staleAfter: cfg.StaleAfter,
		uuidGen:    &DefaultUUIDGenerator{},
		logger:     logger.Named("ingestion"),
	}
}

// WithUUIDGen swaps the id generator (for testing).
func (s *IngestionService) WithUUIDGen(gen UUIDGenerator) *IngestionService {
	s.uuidGen = gen
	return s
}

type UploadInput struct {
	CourseID    string
	Name        string
	ContentType string
	Payload     []byte
}

// Upload stores the payload, records the document as Processing and queues
// ingestion. It returns before any text is extracted.
func (s *IngestionService) Upload(ctx context.Context, p domain.Principal, input UploadInput) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Upload", telemetry.SpanAttributes{
		CourseID:  input.CourseID,
		UserID:    p.UserID,
		Operation: "upload",
	})
	defer span.End()

	if len(input.Payload) == 0 {
		return nil, domain.ErrEmptyPayload
	}
	name := path.Base(strings.TrimSpace(input.Name))
	if name == "" || name == "." || name == "/" {
		return nil, domain.ErrMissingRequiredField.WithCause(fmt.Errorf("document name is required"))
	}

	course, err := ownedCourse(ctx, s.courses, p, input.CourseID)
	if err != nil {
		return nil, err
	}

	doc := domain.NewDocument(s.uuidGen.NewString(), course.ID, name, input.ContentType, int64(len(input.Payload)), time.Now().UTC())
	doc.BlobKey = BlobKey(course.ID, doc.ID, name)
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.ErrMissingRequiredField.WithCause(err)
	}

	if err := s.blobs.Put(ctx, doc.BlobKey, doc.ContentType, input.Payload); err != nil {
		span.SetError(err)
		return nil, domain.ErrStorageOperationFail.WithCause(err)
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		span.SetError(err)
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), doc.BlobKey); delErr != nil {
			s.logger.Warn("failed to delete orphaned payload", zap.String("blob_key", doc.BlobKey), zap.Error(delErr))
		}
		return nil, err
	}

	documentID := doc.ID
	err = s.submitter.Submit(ctx, "ingest:"+documentID, func(taskCtx context.Context) error {
		return s.Process(taskCtx, documentID)
	})
	if err != nil {
		span.SetError(err)
		if markErr := s.documents.MarkFailed(context.WithoutCancel(ctx), documentID, reasonQueueFull); markErr != nil {
			s.logger.Error("failed to mark unqueued document failed", zap.String("document_id", documentID), zap.Error(markErr))
		}
		return nil, domain.ErrIngestionBusy.WithCause(err)
	}

	s.logger.Info("document queued",
		zap.String("course_id", course.ID),
		zap.String("document_id", documentID),
		zap.String("name", name),
		zap.Int64("size_bytes", doc.SizeBytes),
	)
	return doc, nil
}

// Process runs ingestion for one document. Documents no longer Processing
// are skipped. Any failure, a panic included, leaves the document Failed
// with no passages and availability untouched.
func (s *IngestionService) Process(ctx context.Context, documentID string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Process", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "ingest",
	})
	defer span.End()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	if doc.Status != domain.DocumentStatusProcessing {
		s.logger.Info("skipping document not in processing", zap.String("document_id", doc.ID), zap.String("status", string(doc.Status)))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = s.fail(ctx, doc, "ingestion crashed", fmt.Errorf("panic: %v", r), true)
		}
		if err != nil {
			span.SetError(err)
		}
	}()

	start := time.Now()

	payload, err := s.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		return s.fail(ctx, doc, "payload unavailable", err, false)
	}

	blocks, err := s.extractor.Extract(doc.Name, doc.ContentType, payload)
	if err != nil {
		return s.fail(ctx, doc, "text extraction failed", domain.ErrExtractionFailed.WithCause(err), false)
	}
	text := strings.TrimSpace(strings.Join(blocks, "\n"))
	if text == "" {
		return s.fail(ctx, doc, "no text could be extracted", domain.ErrExtractionFailed, false)
	}

	isHomework := ClassifyHomework(blocks...)
	chunks := s.chunker.Split(text)

	if _, err := s.store.AddPassages(ctx, doc.CourseID, doc.ID, chunks, false); err != nil {
		return s.fail(ctx, doc, "indexing failed", err, true)
	}

	summary, err := s.summarizer.Summarize(ctx, text)
	if err != nil {
		return s.fail(ctx, doc, "summarization failed", err, true)
	}

	if err := s.documents.MarkCompleted(ctx, doc.ID, text, strings.TrimSpace(summary), isHomework); err != nil {
		return s.fail(ctx, doc, "failed to record completion", err, true)
	}

	s.logger.Info("document ingested",
		zap.String("course_id", doc.CourseID),
		zap.String("document_id", doc.ID),
		zap.Int("passages", len(chunks)),
		zap.Bool("homework", isHomework),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// fail records a terminal failure. Cleanup uses a detached context so a
// cancelled task still leaves a consistent document.
func (s *IngestionService) fail(ctx context.Context, doc *domain.Document, reason string, cause error, removePassages bool) error {
	cleanupCtx := context.WithoutCancel(ctx)
	logger := s.logger.With(zap.String("course_id", doc.CourseID), zap.String("document_id", doc.ID))

	if removePassages {
		if err := s.store.RemovePassages(cleanupCtx, doc.CourseID, doc.ID); err != nil && !IsStoreNotFound(err) {
			logger.Warn("failed to remove passages of failed document", zap.Error(err))
		}
	}

	if err := s.documents.MarkFailed(cleanupCtx, doc.ID, reason); err != nil && !isNotFound(err) {
		logger.Error("failed to mark document failed", zap.Error(err))
	}

	logger.Warn("document ingestion failed", zap.String("reason", reason), zap.Error(cause))
	telemetry.CaptureErrorWithTags(ctx, cause, map[string]string{
		"course_id":   doc.CourseID,
		"document_id": doc.ID,
		"stage":       reason,
	})
	return fmt.Errorf("%s: %w", reason, cause)
}

// RecoverInterrupted fails every document a previous process left in
// Processing. Call it once at startup before the pool accepts work.
func (s *IngestionService) RecoverInterrupted(ctx context.Context) (int, error) {
	return s.failProcessingBefore(ctx, time.Now().UTC(), reasonInterrupted)
}

// FailStale fails documents that have been Processing for longer than the
// configured stale window.
func (s *IngestionService) FailStale(ctx context.Context) (int, error) {
	return s.failProcessingBefore(ctx, time.Now().UTC().Add(-s.staleAfter), reasonTimedOut)
}

func (s *IngestionService) failProcessingBefore(ctx context.Context, before time.Time, reason string) (int, error) {
	failed, err := s.documents.FailStaleProcessing(ctx, before, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale documents: %w", err)
	}
	for _, d := range failed {
		if err := s.store.RemovePassages(ctx, d.CourseID, d.ID); err != nil && !IsStoreNotFound(err) {
			s.logger.Warn("failed to remove passages of stale document", zap.String("document_id", d.ID), zap.Error(err))
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("failed stale documents", zap.String("reason", reason), zap.Int("count", len(failed)))
	}
	return len(failed), nil
}

// BlobKey is the storage key for a document payload.
func BlobKey(courseID, documentID, name string) string {
	return fmt.Sprintf("courses/%s/documents/%s/%s", courseID, documentID, name)
}
