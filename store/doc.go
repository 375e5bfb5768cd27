// Package store records experiment runs: the parameters a RAG pipeline ran
// with and the evaluation metrics it scored.
//
// Tracker is implemented by MemoryTracker here and by the sqlite, postgres,
// redis and mlflow subpackages. Run ids are 32 character hex strings so that
// they look the same across backends.
//
//	run, err := tracker.StartRun(ctx, "udacity", "l4_exercise_02")
//	err = tracker.LogParams(ctx, run.ID, map[string]string{"llm_model": "gpt-4o-mini"})
//	err = tracker.LogMetrics(ctx, run.ID, map[string]float64{"faithfulness": 0.91})
//	err = tracker.EndRun(ctx, run.ID, store.RunStatusFinished)
package store
