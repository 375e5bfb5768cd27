// Package redis stores experiment runs in Redis hashes with go-redis.
// Runs can expire after a TTL, which suits short-lived evaluation sweeps.
package redis
