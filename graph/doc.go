// Package graph runs typed state machines made of named nodes.
//
// A StateGraph[S] holds nodes (functions from S to S), static edges and
// conditional edges. Compile validates the wiring; the resulting
// StateRunnable executes one node at a time from the entry point until END,
// replacing the state with each node's output.
//
// Run-scoped values travel in a Config that nodes read back with GetConfig:
//
//	final, err := app.InvokeWithConfig(ctx, state, &graph.Config{
//		Configurable: map[string]any{"db_engine": db},
//	})
//
// A run stops with ErrRecursionLimit after Config.RecursionLimit node
// executions (DefaultRecursionLimit when unset). A RetryPolicy re-runs
// failing nodes with fixed, linear or exponential backoff.
//
// NewExporter renders a graph as Mermaid or an ASCII tree.
package graph
