package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallnest/kbagents/log"
)

// StateRunnable is a compiled state graph.
type StateRunnable[S any] struct {
	graph     *StateGraph[S]
	listeners []NodeListener
}

// AddListener registers a listener notified around every node execution.
func (r *StateRunnable[S]) AddListener(l NodeListener) *StateRunnable[S] {
	r.listeners = append(r.listeners, l)
	return r
}

// Graph returns the graph the runnable was compiled from.
func (r *StateRunnable[S]) Graph() *StateGraph[S] {
	return r.graph
}

// Invoke runs the graph from the entry point until END.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig runs the graph with a run configuration. The config is
// available to nodes through GetConfig. On a node error the zero state is
// returned; on ErrRecursionLimit or cancellation the last state is returned.
func (r *StateRunnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	var zero S
	if config != nil {
		ctx = WithConfig(ctx, config)
	}

	limit := DefaultRecursionLimit
	if config != nil && config.RecursionLimit > 0 {
		limit = config.RecursionLimit
	}

	state := initialState
	current := r.graph.entryPoint

	for steps := 0; current != END; steps++ {
		if steps >= limit {
			return state, fmt.Errorf("%w: %d steps without reaching %s", ErrRecursionLimit, limit, END)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node := r.graph.nodes[current]
		r.notify(ctx, NodeEventStart, current, state, nil)
		log.Debug("[graph] running node %s (step %d)", current, steps+1)

		next, err := r.executeNodeWithRetry(ctx, node, state)
		if err != nil {
			r.notify(ctx, NodeEventError, current, state, err)
			return zero, fmt.Errorf("error in node %s: %w", current, err)
		}
		state = next
		r.notify(ctx, NodeEventComplete, current, state, nil)

		current, err = r.graph.next(ctx, node.Name, state)
		if err != nil {
			return zero, err
		}
	}

	return state, nil
}

func (r *StateRunnable[S]) notify(ctx context.Context, event NodeEvent, node string, state S, err error) {
	for _, l := range r.listeners {
		l.OnNodeEvent(ctx, event, node, state, err)
	}
}

// executeNodeWithRetry executes a node with retry logic based on the retry policy.
func (r *StateRunnable[S]) executeNodeWithRetry(ctx context.Context, node Node[S], state S) (S, error) {
	var zero S
	policy := r.graph.retryPolicy

	attempts := 1
	if policy != nil && policy.MaxRetries > 0 {
		attempts = policy.MaxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := node.Function(ctx, state)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts-1 || !isRetryableError(policy, err) {
			break
		}

		delay := backoffDelay(policy, attempt)
		log.Warn("[graph] node %s failed (attempt %d/%d), retrying in %v: %v", node.Name, attempt+1, attempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}

func isRetryableError(policy *RetryPolicy, err error) bool {
	if policy == nil {
		return false
	}
	if len(policy.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range policy.RetryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func backoffDelay(policy *RetryPolicy, attempt int) time.Duration {
	base := policy.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	switch policy.BackoffStrategy {
	case ExponentialBackoff:
		return base * time.Duration(1<<attempt)
	case LinearBackoff:
		return base * time.Duration(attempt+1)
	default:
		return base
	}
}
