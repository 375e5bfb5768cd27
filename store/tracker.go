package store

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id is unknown to the tracker.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
)

// Run is one tracked execution inside an experiment.
type Run struct {
	ID           string             `json:"id"`
	ExperimentID string             `json:"experiment_id"`
	Experiment   string             `json:"experiment"`
	Name         string             `json:"name"`
	Status       RunStatus          `json:"status"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      time.Time          `json:"end_time,omitzero"`
	Params       map[string]string  `json:"params"`
	Metrics      map[string]float64 `json:"metrics"`
}

// Tracker records experiment runs with their parameters and metrics.
type Tracker interface {
	// StartRun creates the experiment if needed and opens a RUNNING run in it.
	StartRun(ctx context.Context, experiment, runName string) (*Run, error)

	// LogParams records parameters. Logging a key again overwrites it.
	LogParams(ctx context.Context, runID string, params map[string]string) error

	// LogMetrics records metric values. Logging a key again overwrites it.
	LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error

	// EndRun sets the final status and end time.
	EndRun(ctx context.Context, runID string, status RunStatus) error

	// GetRun returns the run with its params and metrics.
	GetRun(ctx context.Context, runID string) (*Run, error)

	Close() error
}

// NewRunID returns a 32 character hex id.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Clone returns a deep copy of r.
func (r *Run) Clone() *Run {
	c := *r
	c.Params = maps.Clone(r.Params)
	c.Metrics = maps.Clone(r.Metrics)
	if c.Params == nil {
		c.Params = map[string]string{}
	}
	if c.Metrics == nil {
		c.Metrics = map[string]float64{}
	}
	return &c
}
