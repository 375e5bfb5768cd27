// kbagents - knowledge-base agents on a small typed graph runner
//
// kbagents wires a hosted chat model, a hosted embedding model, a vector
// store and a PDF loader into three programs:
//
//   - cmd/kbagent answers questions about a PDF (retrieve, augment, generate)
//   - cmd/rageval runs the same graph with an evaluation step and records
//     faithfulness, context precision, context recall and answer relevancy
//     in an experiment tracker
//   - cmd/text2sql turns a question into SQL with a tool-calling agent and
//     runs it against SQLite or PostgreSQL
//
// # Quick Start
//
// Put the endpoint settings in a .env file:
//
//	OPENAI_API_KEY=sk-...
//	OPENAI_BASE_URL=https://api.openai.com/v1
//	PDF_PATH=compact-guide-to-large-language-models.pdf
//
// Then run one of the programs:
//
//	go run ./cmd/kbagent -question "What are Open source models?"
//	go run ./cmd/rageval
//	go run ./cmd/text2sql -db Chinook_Sqlite.sqlite
//
// # Package Structure
//
// graph/
// The state machine runner: nodes, static and conditional edges, run
// configuration in the context, recursion limit, retries, listeners and
// Mermaid/ASCII export.
//
//	g := graph.NewStateGraph[State]()
//	g.AddNode("step", "does one thing", func(ctx context.Context, s State) (State, error) {
//		s.Done = true
//		return s, nil
//	})
//	g.AddEdge(graph.START, "step")
//	g.AddEdge("step", graph.END)
//
//	runnable, _ := g.Compile()
//	result, _ := runnable.Invoke(ctx, State{})
//
// prebuilt/
// The RAG, RAG evaluation and text-to-SQL graphs, the tool node and the
// transcript printer.
//
// rag/
// PDF loading, chunking, vector stores (in-memory, pgvector, Qdrant) and
// indexing.
//
// eval/
// LLM-as-judge metrics scored concurrently.
//
// store/
// Experiment tracking with memory, SQLite, PostgreSQL, Redis and MLflow
// backends.
//
// tool/
// The SQL toolkit exposed as langchaingo tools.
//
// config/, llm/, log/
// Environment configuration, model constructors and leveled logging.
package kbagents
