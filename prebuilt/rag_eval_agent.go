package prebuilt

import (
	"context"
	"fmt"

	"github.com/smallnest/kbagents/eval"
	"github.com/smallnest/kbagents/graph"
	"github.com/smallnest/kbagents/log"
	"github.com/smallnest/kbagents/rag"
	"github.com/smallnest/kbagents/store"
)

// RAGEvalConfig configures CreateRAGEvalAgent.
type RAGEvalConfig struct {
	RAGAgentConfig

	Evaluator *eval.Evaluator

	// Tracker receives the scores under RAGState.RunID. Optional.
	Tracker store.Tracker
}

// CreateRAGEvalAgent builds the RAG graph with an evaluate_rag step between
// generate and END. evaluate_rag scores the answer and logs the scores into
// the state's run.
func CreateRAGEvalAgent(config RAGEvalConfig) (*graph.StateRunnable[RAGState], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}

	workflow := graph.NewStateGraph[RAGState]()
	addRAGNodes(workflow, config.RAGAgentConfig)

	workflow.AddNode("evaluate_rag", "Score the answer and log the metrics", func(ctx context.Context, state RAGState) (RAGState, error) {
		if config.Tracker != nil && state.RunID == "" {
			return state, fmt.Errorf("run id is required to log metrics")
		}

		result, err := config.Evaluator.Evaluate(ctx, eval.Sample{
			Question:    state.Question,
			Answer:      state.Answer,
			Contexts:    rag.Contents(state.Documents),
			GroundTruth: state.GroundTruth,
		})
		if err != nil {
			return state, fmt.Errorf("evaluation failed: %w", err)
		}

		if config.Tracker != nil {
			if err := config.Tracker.LogMetrics(ctx, state.RunID, result.Scores); err != nil {
				return state, fmt.Errorf("failed to log metrics: %w", err)
			}
			log.Info("[tracking] logged %d metrics into run %s", len(result.Scores), state.RunID)
		}

		state.Evaluation = result
		return state, nil
	})

	workflow.AddEdge(graph.START, "retrieve")
	workflow.AddEdge("retrieve", "augment")
	workflow.AddEdge("augment", "generate")
	workflow.AddEdge("generate", "evaluate_rag")
	workflow.AddEdge("evaluate_rag", graph.END)
	workflow.SetRetryPolicy(config.RetryPolicy)

	return workflow.Compile()
}
