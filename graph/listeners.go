package graph

import (
	"context"

	"github.com/smallnest/kbagents/log"
)

// NodeEvent represents different types of node events
type NodeEvent string

const (
	// NodeEventStart indicates a node has started execution
	NodeEventStart NodeEvent = "start"

	// NodeEventComplete indicates a node has completed successfully
	NodeEventComplete NodeEvent = "complete"

	// NodeEventError indicates a node encountered an error
	NodeEventError NodeEvent = "error"
)

// NodeListener defines the interface for node event listeners
type NodeListener interface {
	// OnNodeEvent is called when a node event occurs
	OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state any, err error)
}

// NodeListenerFunc is a function adapter for NodeListener
type NodeListenerFunc func(ctx context.Context, event NodeEvent, nodeName string, state any, err error)

// OnNodeEvent implements the NodeListener interface
func (f NodeListenerFunc) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state any, err error) {
	f(ctx, event, nodeName, state, err)
}

// LoggingListener writes one line per node event to a logger.
type LoggingListener struct {
	Logger log.Logger
}

// NewLoggingListener returns a listener that logs through logger, or the
// package-level logger when logger is nil.
func NewLoggingListener(logger log.Logger) *LoggingListener {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &LoggingListener{Logger: logger}
}

// OnNodeEvent implements NodeListener.
func (l *LoggingListener) OnNodeEvent(_ context.Context, event NodeEvent, nodeName string, _ any, err error) {
	switch event {
	case NodeEventStart:
		l.Logger.Debug("[graph] node %s started", nodeName)
	case NodeEventComplete:
		l.Logger.Info("[graph] node %s completed", nodeName)
	case NodeEventError:
		l.Logger.Error("[graph] node %s failed: %v", nodeName, err)
	}
}
