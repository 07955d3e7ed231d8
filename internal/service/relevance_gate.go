package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/cloo-solutions/coursetutor/internal/metrics"
	"github.com/cloo-solutions/coursetutor/internal/telemetry"
	"go.uber.org/zap"
)

// NoContextSentinel replaces retrieved context when a query is not answerable from course material.
const NoContextSentinel = "No relevant course material was found for this question."

// DefaultGateThreshold is the minimum top-1 similarity for a query to count as on-topic.
const DefaultGateThreshold = 0.2

var questionLexicon = map[string]struct{}{
	"who": {}, "what": {}, "why": {}, "where": {}, "when": {}, "how": {}, "which": {},
	"whom": {}, "whose": {}, "explain": {}, "describe": {}, "define": {}, "list": {},
	"solve": {}, "calculate": {}, "compare": {}, "summarize": {}, "elaborate": {},
	"clarify": {}, "discuss": {}, "illustrate": {}, "outline": {}, "evaluate": {},
	"analyze": {}, "identify": {}, "prove": {}, "derive": {},
}

// GateDecision is the outcome of both gate stages for one query.
type GateDecision struct {
	FormPassed     bool
	SemanticPassed bool
	TopScore       float64
}

// Answerable reports whether both stages passed.
func (d GateDecision) Answerable() bool {
	return d.FormPassed && d.SemanticPassed
}

func (d GateDecision) label() string {
	switch {
	case !d.FormPassed:
		return "rejected_form"
	case !d.SemanticPassed:
		return "rejected_semantic"
	default:
		return "answerable"
	}
}

// PassageSearcher is the read side of the knowledge store.
type PassageSearcher interface {
	Search(ctx context.Context, courseID, query string, k int, filter domain.PassageFilter) ([]domain.ScoredPassage, error)
	SearchByDocumentIDs(ctx context.Context, courseID, query string, k int, documentIDs []string) ([]domain.ScoredPassage, error)
}

// RelevanceGate decides whether a query should be answered from course material.
type RelevanceGate struct {
	store     PassageSearcher
	threshold float64
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewRelevanceGate(store PassageSearcher, threshold float64, m *metrics.Metrics, logger *zap.Logger) *RelevanceGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelevanceGate{
		store:     store,
		threshold: threshold,
		metrics:   m,
		logger:    logger.Named("gate"),
	}
}

// IsAnswerable reports whether query looks like a question and is close
// enough to some available passage of the course.
func (g *RelevanceGate) IsAnswerable(ctx context.Context, query, courseID string) (bool, error) {
	d, err := g.Evaluate(ctx, query, courseID)
	if err != nil {
		return false, err
	}
	return d.Answerable(), nil
}

// Evaluate runs the form check and, when it passes, the semantic check.
// An unknown course surfaces as domain.ErrStoreNotFound.
func (g *RelevanceGate) Evaluate(ctx context.Context, query, courseID string) (GateDecision, error) {
	ctx, span := telemetry.StartSpan(ctx, "RelevanceGate.Evaluate", telemetry.SpanAttributes{
		CourseID:  courseID,
		Operation: "gate",
	})
	defer span.End()

	var d GateDecision
	d.FormPassed = IsQuestion(query)
	if !d.FormPassed {
		g.metrics.RecordGate(d.label(), 0)
		return d, nil
	}

	results, err := g.store.Search(ctx, courseID, query, 1, domain.AvailableOnly())
	if err != nil {
		span.SetError(err)
		return GateDecision{}, err
	}
	if len(results) > 0 {
		d.TopScore = results[0].Score
		d.SemanticPassed = d.TopScore >= g.threshold
	}

	g.metrics.RecordGate(d.label(), d.TopScore)
	g.logger.Debug("gate evaluated",
		zap.String("course_id", courseID),
		zap.String("decision", d.label()),
		zap.Float64("top_score", d.TopScore),
	)
	return d, nil
}

// IsQuestion reports whether s ends with a question mark or contains a
// whole-word interrogative or request term.
func IsQuestion(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	tokens := strings.FieldsFunc(strings.ToLower(trimmed), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	for _, tok := range tokens {
		if _, ok := questionLexicon[strings.Trim(tok, "'")]; ok {
			return true
		}
	}
	return false
}
