package graph

import (
	"context"
	"fmt"
	"slices"
)

// StateGraph is a typed state machine. Nodes receive the current state and
// return the next one; edges decide which node runs after.
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("retrieve", "Retrieve documents", retrieve)
//	g.AddNode("generate", "Generate answer", generate)
//	g.AddEdge(graph.START, "retrieve")
//	g.AddEdge("retrieve", "generate")
//	g.AddEdge("generate", graph.END)
//	app, err := g.Compile()
type StateGraph[S any] struct {
	nodes map[string]Node[S]
	// order keeps insertion order for drawing and validation messages
	order []string

	// errs collects registration errors surfaced by Compile
	errs []error

	edges            []Edge
	conditionalEdges map[string]conditionalEdge[S]

	entryPoint  string
	retryPolicy *RetryPolicy
}

// Node represents a typed node in the graph.
type Node[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

type conditionalEdge[S any] struct {
	condition func(ctx context.Context, state S) string
	targets   []string
}

// NewStateGraph creates an empty graph for state type S.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		conditionalEdges: make(map[string]conditionalEdge[S]),
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	if name == START || name == END {
		g.errs = append(g.errs, fmt.Errorf("%w: %s", ErrReservedNodeName, name))
		return
	}
	if _, ok := g.nodes[name]; ok {
		g.errs = append(g.errs, fmt.Errorf("%w: %s", ErrDuplicateNode, name))
		return
	}
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
	g.order = append(g.order, name)
}

// AddEdge adds a static edge. An edge from START sets the entry point.
func (g *StateGraph[S]) AddEdge(from, to string) {
	if from == START {
		g.entryPoint = to
		return
	}
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge routes out of from by calling condition on the state the
// node produced. When targets are given, Compile checks they exist and the
// runner rejects any other route.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string, targets ...string) {
	g.conditionalEdges[from] = conditionalEdge[S]{
		condition: condition,
		targets:   targets,
	}
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetRetryPolicy sets the retry policy applied to every node.
func (g *StateGraph[S]) SetRetryPolicy(policy *RetryPolicy) {
	g.retryPolicy = policy
}

// Nodes returns the node names in insertion order.
func (g *StateGraph[S]) Nodes() []string {
	return slices.Clone(g.order)
}

// Compile validates the graph and returns a runnable.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if len(g.errs) > 0 {
		return nil, g.errs[0]
	}
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if !g.exists(g.entryPoint) || g.entryPoint == END {
		return nil, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}

	outgoing := make(map[string]int, len(g.nodes))
	for _, edge := range g.edges {
		if !g.exists(edge.From) || edge.From == END {
			return nil, fmt.Errorf("%w: edge source %s", ErrNodeNotFound, edge.From)
		}
		if !g.exists(edge.To) {
			return nil, fmt.Errorf("%w: edge target %s", ErrNodeNotFound, edge.To)
		}
		outgoing[edge.From]++
	}

	for from, ce := range g.conditionalEdges {
		if !g.exists(from) || from == END {
			return nil, fmt.Errorf("%w: conditional edge source %s", ErrNodeNotFound, from)
		}
		for _, target := range ce.targets {
			if !g.exists(target) {
				return nil, fmt.Errorf("%w: conditional edge target %s", ErrNodeNotFound, target)
			}
		}
		outgoing[from]++
	}

	for _, name := range g.order {
		switch n := outgoing[name]; {
		case n == 0:
			return nil, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, name)
		case n > 1:
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousEdge, name)
		}
	}

	return &StateRunnable[S]{graph: g}, nil
}

func (g *StateGraph[S]) exists(name string) bool {
	if name == END {
		return true
	}
	_, ok := g.nodes[name]
	return ok
}

// next resolves the node that follows from, given the state it produced.
func (g *StateGraph[S]) next(ctx context.Context, from string, state S) (string, error) {
	if ce, ok := g.conditionalEdges[from]; ok {
		to := ce.condition(ctx, state)
		if to == "" {
			return "", fmt.Errorf("%w: conditional edge returned empty next node from %s", ErrInvalidRoute, from)
		}
		if len(ce.targets) > 0 && !slices.Contains(ce.targets, to) {
			return "", fmt.Errorf("%w: %s -> %s", ErrInvalidRoute, from, to)
		}
		if !g.exists(to) {
			return "", fmt.Errorf("%w: %s", ErrNodeNotFound, to)
		}
		return to, nil
	}
	for _, edge := range g.edges {
		if edge.From == from {
			return edge.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}
