package domain

import "time"

// Enrollment admits a student to a course's assistant, documents and quizzes.
type Enrollment struct {
	CourseID  string
	UserID    string
	CreatedAt time.Time
}

func NewEnrollment(courseID, userID string, createdAt time.Time) *Enrollment {
	return &Enrollment{CourseID: courseID, UserID: userID, CreatedAt: createdAt}
}

// CourseListing is a course as seen by a student browsing the catalog.
type CourseListing struct {
	Course   *Course
	Enrolled bool
}
