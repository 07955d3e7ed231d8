package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
)

// ReportService summarizes gate outcomes for instructors.
type ReportService struct {
	courses  CourseRepositoryInterface
	gateLogs GateLogRepositoryInterface
}

func NewReportService(courses CourseRepositoryInterface, gateLogs GateLogRepositoryInterface) *ReportService {
	return &ReportService{courses: courses, gateLogs: gateLogs}
}

// GateReport aggregates the course's gate logs recorded since the given time.
// A zero since covers the whole history.
func (s *ReportService) GateReport(ctx context.Context, p domain.Principal, courseID string, since time.Time) (*domain.GateReport, error) {
	if _, err := ownedCourse(ctx, s.courses, p, courseID); err != nil {
		return nil, err
	}
	return s.gateLogs.Report(ctx, courseID, since)
}
