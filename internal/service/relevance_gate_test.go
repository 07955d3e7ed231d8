package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"What is the capital of France?", true},
		{"is this on the exam?", true},
		{"explain osmosis", true},
		{"Describe the Krebs cycle.", true},
		{"how's mitosis different from meiosis", true},
		{"photosynthesis", false},
		{"thanks a lot", false},
		{"somewhat related", false},
		{"   ", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuestion(tt.input))
		})
	}
}

func TestRelevanceGate_EmptyStoreRejects(t *testing.T) {
	ks, _ := newTestKnowledgeStore(t)
	ctx := context.Background()
	require.NoError(t, ks.CreateStore(ctx, "c1"))
	gate := NewRelevanceGate(ks, DefaultGateThreshold, nil, nil)

	ok, err := gate.IsAnswerable(ctx, "What is the capital of France?", "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	d, err := gate.Evaluate(ctx, "What is the capital of France?", "c1")
	require.NoError(t, err)
	assert.True(t, d.FormPassed)
	assert.False(t, d.SemanticPassed)
	assert.Equal(t, "rejected_semantic", d.label())
}

func TestRelevanceGate_FormCheckRunsFirst(t *testing.T) {
	ks, _ := newTestKnowledgeStore(t)
	ctx := context.Background()
	require.NoError(t, ks.CreateStore(ctx, "c1"))
	_, err := ks.AddPassages(ctx, "c1", "d1", []string{"photosynthesis converts light into sugar"}, true)
	require.NoError(t, err)
	gate := NewRelevanceGate(ks, DefaultGateThreshold, nil, nil)

	d, err := gate.Evaluate(ctx, "photosynthesis", "c1")
	require.NoError(t, err)
	assert.False(t, d.Answerable())
	assert.Equal(t, "rejected_form", d.label())
	assert.Zero(t, d.TopScore)
}

func TestRelevanceGate_OnlyAvailablePassagesCount(t *testing.T) {
	ks, _ := newTestKnowledgeStore(t)
	ctx := context.Background()
	require.NoError(t, ks.CreateStore(ctx, "c1"))
	_, err := ks.AddPassages(ctx, "c1", "d1", []string{"photosynthesis converts light into sugar"}, false)
	require.NoError(t, err)
	gate := NewRelevanceGate(ks, DefaultGateThreshold, nil, nil)
	query := "how does photosynthesis convert light into sugar?"

	ok, err := gate.IsAnswerable(ctx, query, "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ks.SetAvailability(ctx, "c1", "d1", true))

	d, err := gate.Evaluate(ctx, query, "c1")
	require.NoError(t, err)
	assert.True(t, d.Answerable())
	assert.GreaterOrEqual(t, d.TopScore, DefaultGateThreshold)
	assert.Equal(t, "answerable", d.label())
}

func TestRelevanceGate_UnrelatedQuestionRejected(t *testing.T) {
	ks, _ := newTestKnowledgeStore(t)
	ctx := context.Background()
	require.NoError(t, ks.CreateStore(ctx, "c1"))
	_, err := ks.AddPassages(ctx, "c1", "d1", []string{"photosynthesis converts light into sugar"}, true)
	require.NoError(t, err)
	gate := NewRelevanceGate(ks, DefaultGateThreshold, nil, nil)

	ok, err := gate.IsAnswerable(ctx, "Who painted the Mona Lisa?", "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRelevanceGate_UnknownCourse(t *testing.T) {
	ks, _ := newTestKnowledgeStore(t)
	gate := NewRelevanceGate(ks, DefaultGateThreshold, nil, nil)

	_, err := gate.IsAnswerable(context.Background(), "what is a cell?", "missing")
	assert.True(t, IsStoreNotFound(err))
}

func TestRelevanceGate_ZeroThresholdAdmitsAnyQuestion(t *testing.T) {
	ks, _ := newTestKnowledgeStore(t)
	ctx := context.Background()
	require.NoError(t, ks.CreateStore(ctx, "c1"))
	_, err := ks.AddPassages(ctx, "c1", "d1", []string{"photosynthesis converts light into sugar"}, true)
	require.NoError(t, err)
	gate := NewRelevanceGate(ks, 0, nil, nil)

	ok, err := gate.IsAnswerable(ctx, "Who painted the Mona Lisa?", "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	d, err := gate.Evaluate(ctx, "photosynthesis", "c1")
	require.NoError(t, err)
	assert.False(t, d.Answerable())
}
