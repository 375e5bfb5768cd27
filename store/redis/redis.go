package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/kbagents/store"
)

// RedisTracker implements store.Tracker using Redis hashes.
//
// Keys, under the configured prefix:
//
//	experiments                 hash  name -> id
//	experiments:seq             counter
//	experiment:<id>:runs        set of run ids
//	run:<id>                    hash  run fields
//	run:<id>:params             hash
//	run:<id>:metrics            hash
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ store.Tracker = (*RedisTracker)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "kbagents:"
	TTL      time.Duration // Expiration for run keys, default 0 (no expiration)
}

// NewRedisTracker creates a new Redis tracker
func NewRedisTracker(opts RedisOptions) *RedisTracker {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "kbagents:"
	}

	return &RedisTracker{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
	}
}

func (s *RedisTracker) experimentsKey() string {
	return s.prefix + "experiments"
}

func (s *RedisTracker) experimentRunsKey(id string) string {
	return fmt.Sprintf("%sexperiment:%s:runs", s.prefix, id)
}

func (s *RedisTracker) runKey(id string) string {
	return fmt.Sprintf("%srun:%s", s.prefix, id)
}

func (s *RedisTracker) paramsKey(id string) string {
	return s.runKey(id) + ":params"
}

func (s *RedisTracker) metricsKey(id string) string {
	return s.runKey(id) + ":metrics"
}

// Ping checks the connection.
func (s *RedisTracker) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisTracker) Close() error {
	return s.client.Close()
}

func (s *RedisTracker) experimentID(ctx context.Context, name string) (string, error) {
	id, err := s.client.HGet(ctx, s.experimentsKey(), name).Result()
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", err
	}

	next, err := s.client.Incr(ctx, s.experimentsKey()+":seq").Result()
	if err != nil {
		return "", err
	}
	if _, err := s.client.HSetNX(ctx, s.experimentsKey(), name, strconv.FormatInt(next, 10)).Result(); err != nil {
		return "", err
	}
	// another writer may have won the HSETNX
	return s.client.HGet(ctx, s.experimentsKey(), name).Result()
}

// StartRun implements store.Tracker.
func (s *RedisTracker) StartRun(ctx context.Context, experiment, runName string) (*store.Run, error) {
	if experiment == "" {
		return nil, fmt.Errorf("experiment name is required")
	}

	expID, err := s.experimentID(ctx, experiment)
	if err != nil {
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	run := &store.Run{
		ID:           store.NewRunID(),
		ExperimentID: expID,
		Experiment:   experiment,
		Name:         runName,
		Status:       store.RunStatusRunning,
		StartTime:    time.Now().UTC(),
		Params:       map[string]string{},
		Metrics:      map[string]float64{},
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.runKey(run.ID),
		"id", run.ID,
		"experiment_id", run.ExperimentID,
		"experiment", run.Experiment,
		"name", run.Name,
		"status", string(run.Status),
		"start_time", run.StartTime.Format(time.RFC3339Nano),
	)
	pipe.SAdd(ctx, s.experimentRunsKey(expID), run.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.runKey(run.ID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to save run to redis: %w", err)
	}
	return run, nil
}

// LogParams implements store.Tracker.
func (s *RedisTracker) LogParams(ctx context.Context, runID string, params map[string]string) error {
	if err := s.checkRun(ctx, runID); err != nil {
		return err
	}
	if len(params) == 0 {
		return nil
	}

	values := make([]any, 0, 2*len(params))
	for k, v := range params {
		values = append(values, k, v)
	}
	if err := s.write(ctx, s.paramsKey(runID), values); err != nil {
		return fmt.Errorf("failed to log params to redis: %w", err)
	}
	return nil
}

// LogMetrics implements store.Tracker.
func (s *RedisTracker) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	if err := s.checkRun(ctx, runID); err != nil {
		return err
	}
	if len(metrics) == 0 {
		return nil
	}

	values := make([]any, 0, 2*len(metrics))
	for k, v := range metrics {
		values = append(values, k, strconv.FormatFloat(v, 'g', -1, 64))
	}
	if err := s.write(ctx, s.metricsKey(runID), values); err != nil {
		return fmt.Errorf("failed to log metrics to redis: %w", err)
	}
	return nil
}

func (s *RedisTracker) write(ctx context.Context, key string, values []any) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// EndRun implements store.Tracker.
func (s *RedisTracker) EndRun(ctx context.Context, runID string, status store.RunStatus) error {
	if err := s.checkRun(ctx, runID); err != nil {
		return err
	}
	err := s.client.HSet(ctx, s.runKey(runID),
		"status", string(status),
		"end_time", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	return nil
}

// GetRun implements store.Tracker.
func (s *RedisTracker) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	pipe := s.client.Pipeline()
	runCmd := pipe.HGetAll(ctx, s.runKey(runID))
	paramsCmd := pipe.HGetAll(ctx, s.paramsKey(runID))
	metricsCmd := pipe.HGetAll(ctx, s.metricsKey(runID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load run from redis: %w", err)
	}

	fields := runCmd.Val()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, runID)
	}

	run := &store.Run{
		ID:           fields["id"],
		ExperimentID: fields["experiment_id"],
		Experiment:   fields["experiment"],
		Name:         fields["name"],
		Status:       store.RunStatus(fields["status"]),
		Params:       paramsCmd.Val(),
		Metrics:      make(map[string]float64, len(metricsCmd.Val())),
	}

	var err error
	if run.StartTime, err = time.Parse(time.RFC3339Nano, fields["start_time"]); err != nil {
		return nil, fmt.Errorf("invalid start_time for run %s: %w", runID, err)
	}
	if v, ok := fields["end_time"]; ok {
		if run.EndTime, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("invalid end_time for run %s: %w", runID, err)
		}
	}

	for k, v := range metricsCmd.Val() {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid metric %s for run %s: %w", k, runID, err)
		}
		run.Metrics[k] = f
	}

	return run, nil
}

// ListRuns returns the ids of every run in the named experiment.
func (s *RedisTracker) ListRuns(ctx context.Context, experiment string) ([]string, error) {
	id, err := s.client.HGet(ctx, s.experimentsKey(), experiment).Result()
	if errors.Is(err, redis.Nil) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment: %w", err)
	}

	ids, err := s.client.SMembers(ctx, s.experimentRunsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for experiment %s: %w", experiment, err)
	}
	return ids, nil
}

func (s *RedisTracker) checkRun(ctx context.Context, runID string) error {
	n, err := s.client.Exists(ctx, s.runKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrRunNotFound, runID)
	}
	return nil
}
