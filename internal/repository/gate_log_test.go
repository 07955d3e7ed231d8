//go:build integration

package repository

import (
	"testing"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateLogRepository_Report(t *testing.T) {
	ctx, pool := setupTestDB(t)
	repo := NewGateLogRepository(pool)
	seedCourse(ctx, t, pool, "c1")
	now := time.Now().UTC()

	logs := []*domain.GateLog{
		{CourseID: "c1", QueryLength: 10, FormPassed: true, SemanticPassed: true, TopScore: 0.8, CreatedAt: now},
		{CourseID: "c1", QueryLength: 10, FormPassed: true, SemanticPassed: true, TopScore: 0.6, HomeworkTriggered: true, CreatedAt: now},
		{CourseID: "c1", QueryLength: 10, FormPassed: true, SemanticPassed: false, TopScore: 0.1, CreatedAt: now},
		{CourseID: "c1", QueryLength: 5, FormPassed: false, CreatedAt: now},
		{CourseID: "c1", QueryLength: 5, FormPassed: false, CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, l := range logs {
		require.NoError(t, repo.Create(ctx, l))
	}

	report, err := repo.Report(ctx, "c1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "c1", report.CourseID)
	assert.Equal(t, 4, report.Turns)
	assert.Equal(t, 2, report.Answerable)
	assert.Equal(t, 1, report.RejectedForm)
	assert.Equal(t, 1, report.RejectedSemantic)
	assert.Equal(t, 1, report.HomeworkTriggered)
	assert.InDelta(t, 0.5, report.AvgTopScore, 1e-9)

	all, err := repo.Report(ctx, "c1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 5, all.Turns)

	empty, err := repo.Report(ctx, "other", time.Time{})
	require.NoError(t, err)
	assert.Zero(t, empty.Turns)
	assert.Zero(t, empty.AvgTopScore)
}
