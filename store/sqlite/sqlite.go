package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/kbagents/store"
)

// SqliteTracker implements store.Tracker using SQLite
type SqliteTracker struct {
	db     *sql.DB
	prefix string
}

var _ store.Tracker = (*SqliteTracker)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path string
	// TablePrefix is prepended to every table name. Default "tracking_".
	TablePrefix string
}

// NewSqliteTracker opens the database at opts.Path and creates the schema.
func NewSqliteTracker(opts SqliteOptions) (*SqliteTracker, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	prefix := opts.TablePrefix
	if prefix == "" {
		prefix = "tracking_"
	}

	t := &SqliteTracker{
		db:     db,
		prefix: prefix,
	}

	if err := t.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return t, nil
}

func (t *SqliteTracker) table(name string) string {
	return t.prefix + name
}

// InitSchema creates the necessary tables if they don't exist
func (t *SqliteTracker) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS %[2]s (
			id TEXT PRIMARY KEY,
			experiment_id INTEGER NOT NULL REFERENCES %[1]s (id),
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME
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
			value REAL NOT NULL,
			timestamp DATETIME NOT NULL,
			PRIMARY KEY (run_id, key)
		);
	`, t.table("experiments"), t.table("runs"), t.table("params"), t.table("metrics"))

	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (t *SqliteTracker) Close() error {
	return t.db.Close()
}

// StartRun implements store.Tracker.
func (t *SqliteTracker) StartRun(ctx context.Context, experiment, runName string) (*store.Run, error) {
	if experiment == "" {
		return nil, fmt.Errorf("experiment name is required")
	}

	now := time.Now().UTC()
	_, err := t.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, t.table("experiments")),
		experiment, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}

	var expID int64
	err = t.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE name = ?`, t.table("experiments")),
		experiment).Scan(&expID)
	if err != nil {
		return nil, fmt.Errorf("failed to load experiment: %w", err)
	}

	run := &store.Run{
		ID:           store.NewRunID(),
		ExperimentID: strconv.FormatInt(expID, 10),
		Experiment:   experiment,
		Name:         runName,
		Status:       store.RunStatusRunning,
		StartTime:    now,
		Params:       map[string]string{},
		Metrics:      map[string]float64{},
	}

	_, err = t.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, experiment_id, name, status, start_time) VALUES (?, ?, ?, ?, ?)`, t.table("runs")),
		run.ID, expID, run.Name, string(run.Status), run.StartTime)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// LogParams implements store.Tracker.
func (t *SqliteTracker) LogParams(ctx context.Context, runID string, params map[string]string) error {
	return t.inRunTx(ctx, runID, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`
			INSERT INTO %s (run_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value
		`, t.table("params"))
		for k, v := range params {
			if _, err := tx.ExecContext(ctx, query, runID, k, v); err != nil {
				return fmt.Errorf("failed to log param %s: %w", k, err)
			}
		}
		return nil
	})
}

// LogMetrics implements store.Tracker.
func (t *SqliteTracker) LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error {
	now := time.Now().UTC()
	return t.inRunTx(ctx, runID, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`
			INSERT INTO %s (run_id, key, value, timestamp) VALUES (?, ?, ?, ?)
			ON CONFLICT(run_id, key) DO UPDATE SET value = excluded.value, timestamp = excluded.timestamp
		`, t.table("metrics"))
		for k, v := range metrics {
			if _, err := tx.ExecContext(ctx, query, runID, k, v, now); err != nil {
				return fmt.Errorf("failed to log metric %s: %w", k, err)
			}
		}
		return nil
	})
}

// EndRun implements store.Tracker.
func (t *SqliteTracker) EndRun(ctx context.Context, runID string, status store.RunStatus) error {
	res, err := t.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET status = ?, end_time = ? WHERE id = ?`, t.table("runs")),
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", store.ErrRunNotFound, runID)
	}
	return nil
}

// GetRun implements store.Tracker.
func (t *SqliteTracker) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	query := fmt.Sprintf(`
		SELECT r.id, r.experiment_id, e.name, r.name, r.status, r.start_time, r.end_time
		FROM %s r JOIN %s e ON e.id = r.experiment_id
		WHERE r.id = ?
	`, t.table("runs"), t.table("experiments"))

	var run store.Run
	var expID int64
	var status string
	var endTime sql.NullTime

	err := t.db.QueryRowContext(ctx, query, runID).Scan(
		&run.ID, &expID, &run.Experiment, &run.Name, &status, &run.StartTime, &endTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	run.ExperimentID = strconv.FormatInt(expID, 10)
	run.Status = store.RunStatus(status)
	if endTime.Valid {
		run.EndTime = endTime.Time
	}

	run.Params, err = t.loadParams(ctx, runID)
	if err != nil {
		return nil, err
	}
	run.Metrics, err = t.loadMetrics(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (t *SqliteTracker) loadParams(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := t.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT key, value FROM %s WHERE run_id = ?`, t.table("params")), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load params: %w", err)
	}
	defer rows.Close()

	params := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan param: %w", err)
		}
		params[k] = v
	}
	return params, rows.Err()
}

func (t *SqliteTracker) loadMetrics(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := t.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT key, value FROM %s WHERE run_id = ?`, t.table("metrics")), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	defer rows.Close()

	metrics := map[string]float64{}
	for rows.Next() {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics[k] = v
	}
	return metrics, rows.Err()
}

// inRunTx runs fn in a transaction after checking the run exists.
func (t *SqliteTracker) inRunTx(ctx context.Context, runID string, fn func(tx *sql.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, t.table("runs")), runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrRunNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
