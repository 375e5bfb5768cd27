package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTracker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker()
	defer tracker.Close()

	run, err := tracker.StartRun(ctx, "udacity", "l4_exercise_02")
	require.NoError(t, err)
	assert.Len(t, run.ID, 32)
	assert.Equal(t, "1", run.ExperimentID)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, tracker.LogParams(ctx, run.ID, map[string]string{
		"embeddings_model": "text-embedding-3-small",
		"llm_model":        "gpt-4o-mini",
		"llm_judge_model":  "gpt-4o",
	}))
	require.NoError(t, tracker.LogMetrics(ctx, run.ID, map[string]float64{"faithfulness": 0.5}))
	require.NoError(t, tracker.LogMetrics(ctx, run.ID, map[string]float64{"faithfulness": 0.75, "context_recall": 1}))
	require.NoError(t, tracker.EndRun(ctx, run.ID, RunStatusFinished))

	got, err := tracker.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFinished, got.Status)
	assert.False(t, got.EndTime.IsZero())
	assert.Equal(t, "gpt-4o", got.Params["llm_judge_model"])
	assert.Equal(t, map[string]float64{"faithfulness": 0.75, "context_recall": 1}, got.Metrics)

	// returned runs are copies
	got.Metrics["faithfulness"] = 0
	again, _ := tracker.GetRun(ctx, run.ID)
	assert.Equal(t, 0.75, again.Metrics["faithfulness"])

	second, err := tracker.StartRun(ctx, "udacity", "other")
	require.NoError(t, err)
	assert.Equal(t, run.ExperimentID, second.ExperimentID)
	assert.NotEqual(t, run.ID, second.ID)
}

func TestMemoryTracker_UnknownRun(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker()

	assert.ErrorIs(t, tracker.LogParams(ctx, "nope", nil), ErrRunNotFound)
	assert.ErrorIs(t, tracker.LogMetrics(ctx, "nope", nil), ErrRunNotFound)
	assert.ErrorIs(t, tracker.EndRun(ctx, "nope", RunStatusFailed), ErrRunNotFound)
	_, err := tracker.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = tracker.StartRun(ctx, "", "run")
	assert.Error(t, err)
}
