package prebuilt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/smallnest/kbagents/eval"
	"github.com/smallnest/kbagents/graph"
	"github.com/smallnest/kbagents/store"
)

const openSourceAnswer = "Open source models are models whose weights and code are publicly available."

func newMockStore() *mockStore {
	return &mockStore{docs: []schema.Document{
		{PageContent: "Open source models such as Llama can be fine-tuned.", Metadata: map[string]any{"page": 3}},
		{PageContent: "Proprietary LLMs are served through paid APIs.", Metadata: map[string]any{"page": 4}},
		{PageContent: "Many open models are published on Hugging Face.", Metadata: map[string]any{"page": 7}},
	}}
}

func TestCreateRAGAgent(t *testing.T) {
	model := &MockLLM{choices: []*llms.ContentChoice{{Content: openSourceAnswer}}}
	vs := newMockStore()

	agent, err := CreateRAGAgent(RAGAgentConfig{
		Model:       model,
		Store:       vs,
		CallOptions: []llms.CallOption{llms.WithTemperature(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"retrieve", "augment", "generate"}, agent.Graph().Nodes())

	result, err := agent.Invoke(context.Background(), RAGState{Question: "open models"})
	require.NoError(t, err)

	assert.Equal(t, DefaultRetrieverK, vs.k)
	require.Len(t, result.Documents, 2)
	assert.Equal(t, openSourceAnswer, result.Answer)

	require.Len(t, result.Messages, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, result.Messages[0].Role)
	assert.Equal(t, RAGSystemPrompt, MessageText(result.Messages[0]))

	human := MessageText(result.Messages[1])
	assert.Equal(t, llms.ChatMessageTypeHuman, result.Messages[1].Role)
	assert.Contains(t, human, "# Question: \n-> open models \n# Context: \n-> Open source models such as Llama")
	assert.Contains(t, human, "can be fine-tuned.\n\nMany open models")
	assert.True(t, strings.HasSuffix(human, "# Answer: "))

	assert.Equal(t, llms.ChatMessageTypeAI, result.Messages[2].Role)
	assert.Equal(t, openSourceAnswer, MessageText(result.Messages[2]))

	require.Len(t, model.inputs, 1)
	assert.Len(t, model.inputs[0], 2)
	assert.Equal(t, 0.0, model.options[0].Temperature)
}

func TestCreateRAGAgent_Errors(t *testing.T) {
	_, err := CreateRAGAgent(RAGAgentConfig{Store: newMockStore()})
	assert.Error(t, err)
	_, err = CreateRAGAgent(RAGAgentConfig{Model: &MockLLM{}})
	assert.Error(t, err)

	t.Run("empty question", func(t *testing.T) {
		agent, err := CreateRAGAgent(RAGAgentConfig{Model: &MockLLM{}, Store: newMockStore()})
		require.NoError(t, err)
		_, err = agent.Invoke(context.Background(), RAGState{})
		assert.ErrorContains(t, err, "error in node retrieve")
	})

	t.Run("retrieval failure", func(t *testing.T) {
		vs := newMockStore()
		vs.err = errors.New("connection refused")
		agent, err := CreateRAGAgent(RAGAgentConfig{Model: &MockLLM{}, Store: vs, K: 2})
		require.NoError(t, err)
		_, err = agent.Invoke(context.Background(), RAGState{Question: "open"})
		assert.ErrorContains(t, err, "connection refused")
		assert.Equal(t, 2, vs.k)
	})

	t.Run("model failure", func(t *testing.T) {
		model := &MockLLM{err: errors.New("rate limited")}
		agent, err := CreateRAGAgent(RAGAgentConfig{Model: model, Store: newMockStore()})
		require.NoError(t, err)
		_, err = agent.Invoke(context.Background(), RAGState{Question: "open"})
		assert.ErrorContains(t, err, "error in node generate")
		assert.ErrorContains(t, err, "rate limited")
	})
}

// fixedMetric scores every sample with the same value.
type fixedMetric struct {
	name  string
	score float64
	seen  *eval.Sample
}

func (m *fixedMetric) Name() string { return m.name }

func (m *fixedMetric) Score(_ context.Context, s eval.Sample) (float64, error) {
	*m.seen = s
	return m.score, nil
}

func TestCreateRAGEvalAgent(t *testing.T) {
	ctx := context.Background()
	model := &MockLLM{choices: []*llms.ContentChoice{{Content: openSourceAnswer}}}

	var seen eval.Sample
	evaluator := eval.NewEvaluator(nil, nil, eval.WithMetrics(
		&fixedMetric{name: eval.MetricFaithfulness, score: 1, seen: &seen},
	))
	tracker := store.NewMemoryTracker()
	run, err := tracker.StartRun(ctx, "udacity", "l4_exercise_02")
	require.NoError(t, err)

	agent, err := CreateRAGEvalAgent(RAGEvalConfig{
		RAGAgentConfig: RAGAgentConfig{Model: model, Store: newMockStore()},
		Evaluator:      evaluator,
		Tracker:        tracker,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"retrieve", "augment", "generate", "evaluate_rag"}, agent.Graph().Nodes())

	result, err := agent.Invoke(ctx, RAGState{
		Question:    "open models",
		GroundTruth: "Open-source models are publicly available.",
		RunID:       run.ID,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Evaluation)
	assert.Equal(t, 1.0, result.Evaluation.Scores[eval.MetricFaithfulness])

	assert.Equal(t, "open models", seen.Question)
	assert.Equal(t, openSourceAnswer, seen.Answer)
	assert.Equal(t, "Open-source models are publicly available.", seen.GroundTruth)
	assert.Len(t, seen.Contexts, 2)

	stored, err := tracker.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.Metrics[eval.MetricFaithfulness])
}

func TestCreateRAGEvalAgent_Errors(t *testing.T) {
	_, err := CreateRAGEvalAgent(RAGEvalConfig{
		RAGAgentConfig: RAGAgentConfig{Model: &MockLLM{}, Store: newMockStore()},
	})
	assert.Error(t, err)

	var seen eval.Sample
	agent, err := CreateRAGEvalAgent(RAGEvalConfig{
		RAGAgentConfig: RAGAgentConfig{
			Model: &MockLLM{choices: []*llms.ContentChoice{{Content: "x"}, {Content: "y"}}},
			Store: newMockStore(),
		},
		Evaluator: eval.NewEvaluator(nil, nil, eval.WithMetrics(&fixedMetric{name: "m", seen: &seen})),
		Tracker:   store.NewMemoryTracker(),
	})
	require.NoError(t, err)

	_, err = agent.Invoke(context.Background(), RAGState{Question: "open"})
	assert.ErrorContains(t, err, "run id is required")

	_, err = agent.Invoke(context.Background(), RAGState{Question: "open", RunID: "nope"})
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestRAGAgent_Mermaid(t *testing.T) {
	agent, err := CreateRAGAgent(RAGAgentConfig{Model: &MockLLM{}, Store: newMockStore()})
	require.NoError(t, err)

	mermaid := graph.NewExporter(agent.Graph()).DrawMermaid()
	assert.Contains(t, mermaid, "START --> retrieve")
	assert.Contains(t, mermaid, "retrieve --> augment")
	assert.Contains(t, mermaid, "generate --> END")
}
