package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MemoryTracker keeps runs in process.
type MemoryTracker struct {
	mu          sync.RWMutex
	experiments map[string]string
	runs        map[string]*Run
}

var _ Tracker = (*MemoryTracker)(nil)

// NewMemoryTracker creates an empty in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		experiments: make(map[string]string),
		runs:        make(map[string]*Run),
	}
}

// StartRun implements Tracker.
func (t *MemoryTracker) StartRun(_ context.Context, experiment, runName string) (*Run, error) {
	if experiment == "" {
		return nil, fmt.Errorf("experiment name is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	expID, ok := t.experiments[experiment]
	if !ok {
		expID = strconv.Itoa(len(t.experiments) + 1)
		t.experiments[experiment] = expID
	}

	run := &Run{
		ID:           NewRunID(),
		ExperimentID: expID,
		Experiment:   experiment,
		Name:         runName,
		Status:       RunStatusRunning,
		StartTime:    time.Now(),
		Params:       map[string]string{},
		Metrics:      map[string]float64{},
	}
	t.runs[run.ID] = run
	return run.Clone(), nil
}

// LogParams implements Tracker.
func (t *MemoryTracker) LogParams(_ context.Context, runID string, params map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	for k, v := range params {
		run.Params[k] = v
	}
	return nil
}

// LogMetrics implements Tracker.
func (t *MemoryTracker) LogMetrics(_ context.Context, runID string, metrics map[string]float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	for k, v := range metrics {
		run.Metrics[k] = v
	}
	return nil
}

// EndRun implements Tracker.
func (t *MemoryTracker) EndRun(_ context.Context, runID string, status RunStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.Status = status
	run.EndTime = time.Now()
	return nil
}

// GetRun implements Tracker.
func (t *MemoryTracker) GetRun(_ context.Context, runID string) (*Run, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run, ok := t.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run.Clone(), nil
}

// Close implements Tracker.
func (t *MemoryTracker) Close() error {
	return nil
}
