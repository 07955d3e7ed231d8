package domain

import (
	"fmt"
	"strings"
	"time"
)

// Course is the tenant boundary for documents, passages and conversations.
type Course struct {
	ID           string
	Name         string
	InstructorID string
	Summary      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SummaryEntry is one document summary contributing to a course summary.
type SummaryEntry struct {
	DocumentID string
	Summary    string
}

// NewCourse creates a new Course instance
func NewCourse(id, name, instructorID string, createdAt time.Time) *Course {
	return &Course{
		ID:           id,
		Name:         name,
		InstructorID: instructorID,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

// ValidateCourse validates a Course instance
func ValidateCourse(c *Course) error {
	if c == nil {
		return fmt.Errorf("course cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("course ID is required")
	}

	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("course Name is required")
	}

	if c.InstructorID == "" {
		return fmt.Errorf("course InstructorID is required")
	}

	return nil
}

// ComposeSummary joins the entries in grant order into the running course summary.
func ComposeSummary(entries []SummaryEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		s := strings.TrimSpace(e.Summary)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}
