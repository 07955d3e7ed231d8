package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/pagination"
	"github.com/cloo-solutions/coursetutor/internal/telemetry"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// DocumentService exposes document state and owns availability changes.
type DocumentService struct {
	courses   CourseRepositoryInterface
	access    *CourseAccess
	documents DocumentRepositoryInterface
	store     *KnowledgeStore
	blobs     BlobStore
	txRunner  TxRunner
	locks     *keyedMutex
	logger    *zap.Logger
}

func NewDocumentService(
	courses CourseRepositoryInterface,
	access *CourseAccess,
	documents DocumentRepositoryInterface,
	store *KnowledgeStore,
	blobs BlobStore,
	txRunner TxRunner,
	logger *zap.Logger,
) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		courses:   courses,
		access:    access,
		documents: documents,
		store:     store,
		blobs:     blobs,
		txRunner:  txRunner,
		locks:     newKeyedMutex(),
		logger:    logger.Named("documents"),
	}
}

type ListDocumentsInput struct {
	CourseID string
	Cursor   string
	Limit    int
}

type ListDocumentsOutput struct {
	Items   []*domain.Document
	Cursor  string
	HasMore bool
}

// List pages through a course's documents, newest first. Enrolled students
// only see documents that are available.
func (s *DocumentService) List(ctx context.Context, p domain.Principal, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	course, err := s.access.Open(ctx, p, input.CourseID)
	if err != nil {
		return nil, err
	}
	availableOnly := authorizeOwner(course, p) != nil

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	limit := pagination.ClampLimit(input.Limit, defaultPageLimit, maxPageLimit)

	page, err := s.documents.ListByCourseWithCursor(ctx, course.ID, availableOnly, cursor, limit)
	if err != nil {
		return nil, err
	}
	return &ListDocumentsOutput{Items: page.Items, Cursor: page.NextCursor, HasMore: page.HasMore}, nil
}

// Get returns one document of a course.
func (s *DocumentService) Get(ctx context.Context, p domain.Principal, courseID, documentID string) (*domain.Document, error) {
	course, err := s.access.Open(ctx, p, courseID)
	if err != nil {
		return nil, err
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.CourseID != course.ID {
		return nil, domain.ErrDocumentNotFound
	}
	if authorizeOwner(course, p) != nil && !doc.Available {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// SetAvailability publishes or hides a completed document. The passage flip
// happens first; the document flag and the course summary follow in one
// transaction, and the passages are flipped back if that transaction fails.
// Requesting the current state is a no-op.
func (s *DocumentService) SetAvailability(ctx context.Context, p domain.Principal, courseID, documentID string, available bool) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.SetAvailability", telemetry.SpanAttributes{
		CourseID:   courseID,
		DocumentID: documentID,
		UserID:     p.UserID,
		Operation:  "toggle_availability",
	})
	defer span.End()

	if _, err := ownedCourse(ctx, s.courses, p, courseID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(documentKey(courseID, documentID))
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.CourseID != courseID {
		return nil, domain.ErrDocumentNotFound
	}
	if doc.Status != domain.DocumentStatusCompleted {
		return nil, domain.ErrDocumentNotReady
	}
	if doc.Available == available {
		return doc, nil
	}

	if err := s.store.SetAvailability(ctx, courseID, documentID, available); err != nil {
		span.SetError(err)
		if errors.Is(err, domain.ErrPassagesNotFound) {
			s.logger.Warn("completed document has no passages",
				zap.String("course_id", courseID),
				zap.String("document_id", documentID),
			)
		}
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().SetAvailability(ctx, documentID, available); err != nil {
			return err
		}
		if available {
			if err := repos.Courses().AddSummaryEntry(ctx, courseID, domain.SummaryEntry{DocumentID: documentID, Summary: doc.Summary}); err != nil {
				return err
			}
		} else if _, err := repos.Courses().RemoveSummaryEntry(ctx, courseID, documentID); err != nil {
			return err
		}
		return recomposeSummary(ctx, repos.Courses(), courseID)
	})
	if err != nil {
		span.SetError(err)
		if revertErr := s.store.SetAvailability(context.WithoutCancel(ctx), courseID, documentID, !available); revertErr != nil {
			s.logger.Error("failed to revert passage availability",
				zap.String("course_id", courseID),
				zap.String("document_id", documentID),
				zap.Error(revertErr),
			)
			telemetry.CaptureError(ctx, revertErr)
		}
		return nil, fmt.Errorf("failed to record availability: %w", err)
	}

	doc.Available = available
	s.logger.Info("document availability changed",
		zap.String("course_id", courseID),
		zap.String("document_id", documentID),
		zap.Bool("available", available),
	)
	return doc, nil
}

// Delete removes a document whose ingestion has finished, along with its
// passages, summary entry and payload.
func (s *DocumentService) Delete(ctx context.Context, p domain.Principal, courseID, documentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		CourseID:   courseID,
		DocumentID: documentID,
		UserID:     p.UserID,
		Operation:  "delete_document",
	})
	defer span.End()

	if _, err := ownedCourse(ctx, s.courses, p, courseID); err != nil {
		return err
	}

	unlock := s.locks.Lock(documentKey(courseID, documentID))
	defer unlock()

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.CourseID != courseID {
		return domain.ErrDocumentNotFound
	}
	if !doc.IsTerminal() {
		return domain.ErrDocumentNotReady
	}

	// Passages must go before the document row; the snapshot puts them
	// back if the metadata transaction fails.
	snapshot, err := s.store.ListPassages(ctx, courseID, documentID)
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("failed to read passages: %w", err)
	}
	if err := s.store.RemovePassages(ctx, courseID, documentID); err != nil {
		span.SetError(err)
		return err
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		removed, err := repos.Courses().RemoveSummaryEntry(ctx, courseID, documentID)
		if err != nil {
			return err
		}
		if removed {
			if err := recomposeSummary(ctx, repos.Courses(), courseID); err != nil {
				return err
			}
		}
		return repos.Documents().Delete(ctx, documentID)
	})
	if err != nil {
		span.SetError(err)
		if restoreErr := s.store.RestorePassages(context.WithoutCancel(ctx), courseID, documentID, snapshot); restoreErr != nil {
			s.logger.Error("failed to restore passages after failed delete",
				zap.String("course_id", courseID),
				zap.String("document_id", documentID),
				zap.Error(restoreErr),
			)
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if doc.BlobKey != "" {
		if err := s.blobs.Delete(ctx, doc.BlobKey); err != nil {
			s.logger.Warn("failed to delete document payload", zap.String("blob_key", doc.BlobKey), zap.Error(err))
		}
	}

	s.logger.Info("document deleted", zap.String("course_id", courseID), zap.String("document_id", documentID))
	return nil
}

func recomposeSummary(ctx context.Context, courses CourseRepositoryInterface, courseID string) error {
	entries, err := courses.ListSummaryEntries(ctx, courseID)
	if err != nil {
		return err
	}
	return courses.UpdateSummary(ctx, courseID, domain.ComposeSummary(entries))
}
