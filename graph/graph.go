package graph

import (
	"errors"
	"time"
)

const (
	// START is the virtual node a run begins from. AddEdge(START, name) sets the entry point.
	START = "START"
	// END is the virtual node that terminates a run.
	END = "END"

	// DefaultRecursionLimit bounds the number of node executions in one run.
	DefaultRecursionLimit = 25
)

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrAmbiguousEdge is returned when a node has more than one way out.
	ErrAmbiguousEdge = errors.New("node has more than one outgoing edge")

	// ErrDuplicateNode is returned when a node name is registered twice.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrReservedNodeName is returned when a node is named START or END.
	ErrReservedNodeName = errors.New("reserved node name")

	// ErrInvalidRoute is returned when a conditional edge routes to a target it did not declare.
	ErrInvalidRoute = errors.New("invalid route")

	// ErrRecursionLimit is returned when a run executes more steps than allowed.
	ErrRecursionLimit = errors.New("recursion limit reached")
)

// Edge represents a static edge in the graph.
type Edge struct {
	// From is the name of the node from which the edge starts.
	From string

	// To is the name of the node to which the edge points.
	To string
}

// RetryPolicy defines how to handle node failures
type RetryPolicy struct {
	MaxRetries      int
	BackoffStrategy BackoffStrategy
	// BaseDelay defaults to one second.
	BaseDelay time.Duration
	// RetryableErrors are substrings matched against the error text.
	// An empty list retries every error.
	RetryableErrors []string
}

// BackoffStrategy defines different backoff strategies
type BackoffStrategy int

const (
	FixedBackoff BackoffStrategy = iota
	ExponentialBackoff
	LinearBackoff
)

// NewRetryPolicy returns an exponential backoff policy that retries any
// error up to maxRetries times, or nil when maxRetries is not positive.
func NewRetryPolicy(maxRetries int) *RetryPolicy {
	if maxRetries <= 0 {
		return nil
	}
	return &RetryPolicy{
		MaxRetries:      maxRetries,
		BackoffStrategy: ExponentialBackoff,
		BaseDelay:       time.Second,
	}
}
