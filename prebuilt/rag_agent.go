package prebuilt

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/smallnest/kbagents/eval"
	"github.com/smallnest/kbagents/graph"
	"github.com/smallnest/kbagents/log"
	"github.com/smallnest/kbagents/rag"
)

const (
	// RAGSystemPrompt is the system message of the augment step.
	RAGSystemPrompt = "You are an assistant for question-answering tasks."

	// RAGHumanPrompt is the question-answering template of the augment step.
	RAGHumanPrompt = "Use the following pieces of retrieved context to answer the question. " +
		"If you don't know the answer, just say that you don't know. " +
		"Use three sentences maximum and keep the answer concise. " +
		"\n# Question: \n-> {{.question}} " +
		"\n# Context: \n-> {{.context}} " +
		"\n# Answer: "

	// DefaultRetrieverK is the number of chunks retrieved per question.
	DefaultRetrieverK = 4
)

// RAGState flows through the RAG graphs.
type RAGState struct {
	Messages  []llms.MessageContent
	Question  string
	Documents []schema.Document
	Answer    string

	// Used by the evaluation graph.
	RunID       string
	GroundTruth string
	Evaluation  *eval.Result
}

// RAGAgentConfig configures CreateRAGAgent.
type RAGAgentConfig struct {
	Model llms.Model
	Store vectorstores.VectorStore

	// K is the number of chunks to retrieve. Defaults to DefaultRetrieverK.
	K int

	// SearchOptions are passed to the similarity search.
	SearchOptions []vectorstores.Option

	// CallOptions are passed to the model on generate, e.g. llms.WithTemperature(0).
	CallOptions []llms.CallOption

	// RetryPolicy is applied to every node. Optional.
	RetryPolicy *graph.RetryPolicy
}

func (c *RAGAgentConfig) validate() error {
	if c.Model == nil {
		return fmt.Errorf("model is required")
	}
	if c.Store == nil {
		return fmt.Errorf("vector store is required")
	}
	if c.K <= 0 {
		c.K = DefaultRetrieverK
	}
	return nil
}

// CreateRAGAgent builds START -> retrieve -> augment -> generate -> END.
func CreateRAGAgent(config RAGAgentConfig) (*graph.StateRunnable[RAGState], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	workflow := graph.NewStateGraph[RAGState]()
	addRAGNodes(workflow, config)
	workflow.AddEdge(graph.START, "retrieve")
	workflow.AddEdge("retrieve", "augment")
	workflow.AddEdge("augment", "generate")
	workflow.AddEdge("generate", graph.END)
	workflow.SetRetryPolicy(config.RetryPolicy)

	return workflow.Compile()
}

func addRAGNodes(workflow *graph.StateGraph[RAGState], config RAGAgentConfig) {
	retriever := vectorstores.ToRetriever(config.Store, config.K, config.SearchOptions...)
	template := prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(RAGSystemPrompt, nil),
		prompts.NewHumanMessagePromptTemplate(RAGHumanPrompt, []string{"question", "context"}),
	})

	workflow.AddNode("retrieve", "Retrieve chunks similar to the question", func(ctx context.Context, state RAGState) (RAGState, error) {
		if strings.TrimSpace(state.Question) == "" {
			return state, fmt.Errorf("question is empty")
		}
		docs, err := retriever.GetRelevantDocuments(ctx, state.Question)
		if err != nil {
			return state, fmt.Errorf("retrieval failed: %w", err)
		}
		log.Info("[rag] retrieved %d chunks", len(docs))
		state.Documents = docs
		return state, nil
	})

	workflow.AddNode("augment", "Build the question-answering prompt", func(_ context.Context, state RAGState) (RAGState, error) {
		formatted, err := template.FormatMessages(map[string]any{
			"question": state.Question,
			"context":  rag.JoinContents(state.Documents),
		})
		if err != nil {
			return state, fmt.Errorf("failed to format prompt: %w", err)
		}

		msgs := make([]llms.MessageContent, 0, len(formatted))
		for _, m := range formatted {
			msgs = append(msgs, llms.TextParts(m.GetType(), m.GetContent()))
		}
		state.Messages = slices.Concat(state.Messages, msgs)
		return state, nil
	})

	workflow.AddNode("generate", "Answer with the chat model", func(ctx context.Context, state RAGState) (RAGState, error) {
		resp, err := config.Model.GenerateContent(ctx, state.Messages, config.CallOptions...)
		if err != nil {
			return state, fmt.Errorf("generation failed: %w", err)
		}
		choice, err := firstChoice(resp)
		if err != nil {
			return state, err
		}

		state.Messages = slices.Concat(state.Messages, []llms.MessageContent{aiMessage(choice)})
		state.Answer = choice.Content
		return state, nil
	})
}
