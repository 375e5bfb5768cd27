package graph

import "context"

// Config is the per-run configuration handed to InvokeWithConfig.
type Config struct {
	// Configurable carries run-scoped values that nodes and tools look up,
	// for example a database handle under "db_engine".
	Configurable map[string]any

	// RecursionLimit overrides DefaultRecursionLimit when positive.
	RecursionLimit int

	Tags     []string
	Metadata map[string]any
}

// Get returns the configurable value stored under key.
func (c *Config) Get(key string) (any, bool) {
	if c == nil || c.Configurable == nil {
		return nil, false
	}
	v, ok := c.Configurable[key]
	return v, ok
}

type configKey struct{}

// WithConfig adds the config to the context.
func WithConfig(ctx context.Context, config *Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// GetConfig retrieves the config from the context, or nil.
func GetConfig(ctx context.Context) *Config {
	if config, ok := ctx.Value(configKey{}).(*Config); ok {
		return config
	}
	return nil
}
