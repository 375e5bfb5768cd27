// Package tracking opens the experiment tracker selected by configuration.
package tracking

import (
	"context"
	"fmt"

	"github.com/smallnest/kbagents/config"
	"github.com/smallnest/kbagents/log"
	"github.com/smallnest/kbagents/store"
	"github.com/smallnest/kbagents/store/mlflow"
	"github.com/smallnest/kbagents/store/postgres"
	"github.com/smallnest/kbagents/store/redis"
	"github.com/smallnest/kbagents/store/sqlite"
)

// Backend names accepted in TRACKING_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSqlite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMLflow   = "mlflow"
)

// New opens the tracker named by cfg.TrackingBackend. TrackingURI is the
// sqlite file, the postgres connection string or the MLflow server URL;
// the redis backend reads RedisAddr and RedisPassword.
func New(ctx context.Context, cfg *config.Config) (store.Tracker, error) {
	log.Info("[tracking] using %s backend", cfg.TrackingBackend)

	switch cfg.TrackingBackend {
	case BackendMemory:
		return store.NewMemoryTracker(), nil

	case "", BackendSqlite:
		t, err := sqlite.NewSqliteTracker(sqlite.SqliteOptions{Path: cfg.TrackingURI})
		if err != nil {
			return nil, err
		}
		return t, nil

	case BackendPostgres:
		t, err := postgres.NewPostgresTracker(ctx, postgres.PostgresOptions{ConnString: cfg.TrackingURI})
		if err != nil {
			return nil, err
		}
		return t, nil

	case BackendRedis:
		t := redis.NewRedisTracker(redis.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := t.Ping(ctx); err != nil {
			t.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return t, nil

	case BackendMLflow:
		var opts []mlflow.Option
		if cfg.MLflowToken != "" {
			opts = append(opts, mlflow.WithToken(cfg.MLflowToken))
		}
		t, err := mlflow.NewMLflowTracker(cfg.TrackingURI, opts...)
		if err != nil {
			return nil, err
		}
		return t, nil

	default:
		return nil, fmt.Errorf("unknown tracking backend %q", cfg.TrackingBackend)
	}
}
