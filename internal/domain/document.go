package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents the ingestion lifecycle state of a document
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "Processing"
	DocumentStatusCompleted  DocumentStatus = "Completed"
	DocumentStatusFailed     DocumentStatus = "Failed"
)

// Document is an uploaded piece of course material.
type Document struct {
	ID            string
	CourseID      string
	Name          string
	ContentType   string
	SizeBytes     int64
	BlobKey       string
	ExtractedText string
	Status        DocumentStatus
	FailureReason string
	Available     bool
	Summary       string
	IsHomework    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewDocument creates a Document in its initial Processing state.
func NewDocument(id, courseID, name, contentType string, sizeBytes int64, createdAt time.Time) *Document {
	return &Document{
		ID:          id,
		CourseID:    courseID,
		Name:        name,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		Status:      DocumentStatusProcessing,
		Available:   false,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// IsTerminal reports whether ingestion has finished, successfully or not.
func (d *Document) IsTerminal() bool {
	return d.Status == DocumentStatusCompleted || d.Status == DocumentStatusFailed
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.CourseID == "" {
		return fmt.Errorf("document CourseID is required")
	}

	if d.Name == "" {
		return fmt.Errorf("document Name is required")
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	if d.Available && d.Status != DocumentStatusCompleted {
		return fmt.Errorf("document cannot be available while %s", d.Status)
	}

	return nil
}

// ParseDocumentStatus converts a stored value to a DocumentStatus.
func ParseDocumentStatus(s string) (DocumentStatus, error) {
	status := DocumentStatus(s)
	if !isValidDocumentStatus(status) {
		return "", ErrInvalidDocumentStatus
	}
	return status, nil
}

func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	default:
		return false
	}
}
