package domain

import "time"

// GateLog records the retrieval gate outcome of one chat turn.
type GateLog struct {
	ID                string
	CourseID          string
	UserID            string
	ConversationID    string
	QueryLength       int
	FormPassed        bool
	SemanticPassed    bool
	TopScore          float64
	HomeworkTriggered bool
	DurationMs        int
	CreatedAt         time.Time
}

// Answerable reports whether both gate stages passed.
func (g *GateLog) Answerable() bool {
	return g.FormPassed && g.SemanticPassed
}

// GateReport aggregates gate logs for one course.
type GateReport struct {
	CourseID          string  `json:"course_id"`
	Turns             int     `json:"turns"`
	Answerable        int     `json:"answerable"`
	RejectedForm      int     `json:"rejected_form"`
	RejectedSemantic  int     `json:"rejected_semantic"`
	HomeworkTriggered int     `json:"homework_triggered"`
	AvgTopScore       float64 `json:"avg_top_score"`
}
