package postgres

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/kbagents/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresTracker implements store.Tracker using PostgreSQL
type PostgresTracker struct {
	pool   DBPool
	prefix string
}

var _ store.Tracker = (*PostgresTracker)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	// TablePrefix is prepended to every table name. Default "tracking_".
	TablePrefix string
}

// NewPostgresTracker connects to Postgres and creates the schema.
func NewPostgresTracker(ctx context.Context, opts PostgresOptions) (*PostgresTracker, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	t := NewPostgresTrackerWithPool(pool, opts.TablePrefix)
	if err := t.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return t, nil
}

// NewPostgresTrackerWithPool creates a tracker on an existing pool.
// Useful for testing with mocks
func NewPostgresTrackerWithPool(pool DBPool, tablePrefix string) *PostgresTracker {
	if tablePrefix == "" {
		tablePrefix = "tracking_"
	}
	return &PostgresTracker{
		pool:   pool,
		prefix: tablePrefix,
	}
}

func (t *PostgresTracker) table(name string) string {
	return t.prefix + name
}

// InitSchema creates the necessary tables if they don't exist
func (t *PostgresTracker) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			id TEXT PRIMARY KEY,
			experiment_id BIGINT NOT NULL REFERENCES %[1]s (id),
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS %[3]s (
			run_id TEXT NOT NULL REFERENCES %[2]s (id),
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (run_id, key)
		);
		CREATE TABLE IF NOT EXISTS %[4]s (
			run_id TEXT NOT NULL REFERENCES %[2]s (id),
			key TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (run_id, key)
		);
	`, t.table("experiments"), t.table("runs"), t.table("params"), t.table("metrics"))

	if _, err := t.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (t *PostgresTracker) Close() error {
	t.pool.Close()
	return nil
}

// StartRun implements store.Tracker.
func (t *PostgresTracker) StartRun(ctx context.Context, experiment, runName string) (*store.Run, error) {
	if experiment == "" {
		return nil, fmt.Errorf("experiment name is required")
	}

	var expID int64
	err := t.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, t.table("experiments")), experiment).Scan(&expID)
	if err != nil {
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	run := &store.Run{
		ID:           store.NewRunID(),
		ExperimentID: strconv.FormatInt(expID, 10),
		Experiment:   experiment,
		Name:         runName,
		Status:       store.RunStatusRunning,
		StartTime:    time.Now().UTC(),
		Params:       map[string]string{},
		Metrics:      map[string]float64{},
	}

	_, err = t.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, experiment_id, name, status, start_time)
		VALUES ($1, $2, $3, $4, $5)`, t.table("runs")),
		run.ID, expID, run.Name, string(run.Status), run.StartTime)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// LogParams implements store.Tracker.
func (t *PostgresTracker) LogParams(ctx context.Context, runID string, params map[string]string) error {
	if err := t.checkRun(ctx, runID); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value`, t.table("params"))
	for _, k := range slices.Sorted(maps.Keys(params)) {
		if _, err := t.pool.Exec(ctx, query, runID, k, params[k]); err != nil {
			return fmt.Errorf("failed to log param %s: %w", k, err)
		}
	}
	return nil
}

// LogMetrics implements store.Tracker.
func (t *PostgresTracker) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	if err := t.checkRun(ctx, runID); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO %s (run_id, key, value, timestamp) VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, key) DO UPDATE SET value = EXCLUDED.value, timestamp = EXCLUDED.timestamp`, t.table("metrics"))
	for _, k := range slices.Sorted(maps.Keys(metrics)) {
		if _, err := t.pool.Exec(ctx, query, runID, k, metrics[k], now); err != nil {
			return fmt.Errorf("failed to log metric %s: %w", k, err)
		}
	}
	return nil
}

// EndRun implements store.Tracker.
func (t *PostgresTracker) EndRun(ctx context.Context, runID string, status store.RunStatus) error {
	tag, err := t.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $1, end_time = $2 WHERE id = $3`, t.table("runs")),
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrRunNotFound, runID)
	}
	return nil
}

// GetRun implements store.Tracker.
func (t *PostgresTracker) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	var run store.Run
	var expID int64
	var status string
	var endTime *time.Time

	err := t.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT r.id, r.experiment_id, e.name, r.name, r.status, r.start_time, r.end_time
		FROM %s r JOIN %s e ON e.id = r.experiment_id
		WHERE r.id = $1`, t.table("runs"), t.table("experiments")), runID).Scan(
		&run.ID, &expID, &run.Experiment, &run.Name, &status, &run.StartTime, &endTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	run.ExperimentID = strconv.FormatInt(expID, 10)
	run.Status = store.RunStatus(status)
	if endTime != nil {
		run.EndTime = *endTime
	}

	run.Params = map[string]string{}
	rows, err := t.pool.Query(ctx, fmt.Sprintf(`SELECT key, value FROM %s WHERE run_id = $1`, t.table("params")), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load params: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan param: %w", err)
		}
		run.Params[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load params: %w", err)
	}

	run.Metrics = map[string]float64{}
	rows, err = t.pool.Query(ctx, fmt.Sprintf(`SELECT key, value FROM %s WHERE run_id = $1`, t.table("metrics")), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		run.Metrics[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}

	return &run, nil
}

func (t *PostgresTracker) checkRun(ctx context.Context, runID string) error {
	var one int
	err := t.pool.QueryRow(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = $1`, t.table("runs")), runID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrRunNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	return nil
}
