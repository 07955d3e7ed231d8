package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloo-solutions/coursetutor/internal/metrics"
	"github.com/cloo-solutions/coursetutor/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HomeworkPolicy is appended to the prompt of queries that look like graded work.
const HomeworkPolicy = `This question may be part of a graded homework or assignment. Follow these rules strictly:
1. Do not give a direct or complete answer, and do not refuse bluntly either.
2. Give one correct starting hint that points the student in the right direction.
3. Cover only a high-level view of the task, in at most 50 words.
4. End with a note that the question appears to be homework or an assignment, so the direct answer was withheld.`

const (
	DefaultHomeworkThreshold = 0.5
	homeworkSearchK          = 10
	homeworkScoreConcurrency = 4
)

var homeworkPattern = regexp.MustCompile(`\b(assignment|homework|due date|submit|quiz)\b`)

// ClassifyHomework reports whether extracted text mentions graded work.
// Blocks are joined before matching.
func ClassifyHomework(blocks ...string) bool {
	return homeworkPattern.MatchString(strings.ToLower(strings.Join(blocks, " ")))
}

// RelevanceScorer scores how well a passage answers a query, in [0,1].
type RelevanceScorer interface {
	ScoreRelevance(ctx context.Context, query, passage string) (float64, error)
}

// HomeworkGuard decides whether a query needs the homework response policy.
type HomeworkGuard struct {
	store     PassageSearcher
	scorer    RelevanceScorer
	threshold float64
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewHomeworkGuard(store PassageSearcher, scorer RelevanceScorer, threshold float64, m *metrics.Metrics, logger *zap.Logger) *HomeworkGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HomeworkGuard{
		store:     store,
		scorer:    scorer,
		threshold: threshold,
		metrics:   m,
		logger:    logger.Named("homework_guard"),
	}
}

// ResponsePolicy returns HomeworkPolicy when any available homework passage
// scores strictly above the threshold against query, and "" otherwise.
func (g *HomeworkGuard) ResponsePolicy(ctx context.Context, query, courseID string, homeworkDocumentIDs []string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "HomeworkGuard.ResponsePolicy", telemetry.SpanAttributes{
		CourseID:  courseID,
		Operation: "homework_guard",
	})
	defer span.End()

	if len(homeworkDocumentIDs) == 0 {
		return "", nil
	}

	passages, err := g.store.SearchByDocumentIDs(ctx, courseID, query, homeworkSearchK, homeworkDocumentIDs)
	if err != nil {
		span.SetError(err)
		return "", err
	}
	if len(passages) == 0 {
		return "", nil
	}

	scores := make([]float64, len(passages))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(homeworkScoreConcurrency)
	for i, p := range passages {
		eg.Go(func() error {
			score, err := g.scorer.ScoreRelevance(egctx, query, p.Content)
			if err != nil {
				return fmt.Errorf("failed to score passage %s: %w", p.ID, err)
			}
			scores[i] = score
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.SetError(err)
		return "", err
	}

	best := 0.0
	for _, s := range scores {
		if s > best {
			best = s
		}
	}
	if best <= g.threshold {
		return "", nil
	}

	g.metrics.RecordHomework()
	g.logger.Info("homework policy applied",
		zap.String("course_id", courseID),
		zap.Float64("max_score", best),
	)
	return HomeworkPolicy, nil
}
