package eval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// routedJudge answers each prompt with the reply of the first route whose key
// the prompt contains. Safe for concurrent use.
type routedJudge struct {
	mu      sync.Mutex
	routes  []route
	prompts []string
	options []llms.CallOptions
	err     error

	// ignoreN answers with one choice whatever n was requested.
	ignoreN bool
}

type route struct {
	contains string
	reply    string
}

func (j *routedJudge) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	prompt := messages[0].Parts[0].(llms.TextContent).Text
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.prompts = append(j.prompts, prompt)
	j.options = append(j.options, opts)
	if j.err != nil {
		return nil, j.err
	}
	n := 1
	if opts.N > 1 && !j.ignoreN {
		n = opts.N
	}
	for _, r := range j.routes {
		if strings.Contains(prompt, r.contains) {
			resp := &llms.ContentResponse{}
			for range n {
				resp.Choices = append(resp.Choices, &llms.ContentChoice{Content: r.reply})
			}
			return resp, nil
		}
	}
	return nil, errors.New("no route for prompt")
}

func (j *routedJudge) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, j, prompt, options...)
}

// axisEmbedder embeds text onto fixed axes by keyword.
type axisEmbedder struct{}

func (axisEmbedder) vec(text string) []float32 {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "open source") || strings.Contains(text, "open-source"):
		return []float32{1, 0}
	case strings.Contains(text, "weather"):
		return []float32{0, 1}
	}
	return []float32{1, 1}
}

func (e axisEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vec(t)
	}
	return out, nil
}

func (e axisEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vec(text), nil
}

var referenceSample = Sample{
	Question: "What are Open source models?",
	Answer:   "Open-source models are models whose code and weights are public. They can be fine-tuned.",
	Contexts: []string{
		"Open source models publish their weights.",
		"The weather today is sunny.",
	},
	GroundTruth: "Open-source models are AI models whose code is publicly available. They enable collaboration.",
}

func TestFaithfulness(t *testing.T) {
	judge := &routedJudge{routes: []route{
		{"break the answer down", "```json\n{\"statements\": [\"code is public\", \"weights are public\", \"can be fine-tuned\"]}\n```"},
		{"judge the faithfulness", `{"verdicts": [{"statement": "code is public", "verdict": 1}, {"statement": "weights are public", "verdict": 1}, {"statement": "can be fine-tuned", "verdict": 0}]}`},
	}}

	score, err := NewFaithfulness(judge).Score(context.Background(), referenceSample)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, score, 1e-9)

	require.Len(t, judge.prompts, 2)
	assert.Contains(t, judge.prompts[1], "1. code is public")
	assert.Contains(t, judge.prompts[1], "The weather today is sunny.")
}

func TestFaithfulness_ExtraVerdictsIgnored(t *testing.T) {
	judge := &routedJudge{routes: []route{
		{"break the answer down", `{"statements": ["code is public"]}`},
		{"judge the faithfulness", `{"verdicts": [{"verdict": 1}, {"verdict": 1}, {"verdict": 1}]}`},
	}}

	score, err := NewFaithfulness(judge).Score(context.Background(), referenceSample)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	judge = &routedJudge{routes: []route{
		{"break the answer down", `{"statements": ["code is public", "weights are public"]}`},
		{"judge the faithfulness", `{"verdicts": [{"verdict": 0}, {"verdict": 1}, {"verdict": 1}]}`},
	}}
	score, err = NewFaithfulness(judge).Score(context.Background(), referenceSample)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestFaithfulness_NoStatements(t *testing.T) {
	judge := &routedJudge{routes: []route{{"break the answer down", `{"statements": []}`}}}

	score, err := NewFaithfulness(judge).Score(context.Background(), referenceSample)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	_, err = NewFaithfulness(judge).Score(context.Background(), Sample{Question: "q"})
	assert.ErrorIs(t, err, ErrMissingAnswer)
}

func TestContextPrecision(t *testing.T) {
	judge := &routedJudge{routes: []route{
		{"Context: Open source models publish", `{"reason": "mentions weights", "verdict": 1}`},
		{"Context: The weather", `{"reason": "unrelated", "verdict": 0}`},
	}}

	score, err := NewContextPrecision(judge).Score(context.Background(), referenceSample)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-6)

	reversed := referenceSample
	reversed.Contexts = []string{referenceSample.Contexts[1], referenceSample.Contexts[0]}
	score, err = NewContextPrecision(judge).Score(context.Background(), reversed)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-6)

	_, err = NewContextPrecision(judge).Score(context.Background(), Sample{Question: "q", Answer: "a"})
	assert.ErrorIs(t, err, ErrMissingGroundTruth)
}

func TestAveragePrecision(t *testing.T) {
	assert.InDelta(t, 0.0, averagePrecision([]int{0, 0}), 1e-9)
	assert.InDelta(t, (1.0+2.0/3.0)/2.0, averagePrecision([]int{1, 0, 1}), 1e-6)
	assert.InDelta(t, 0.0, averagePrecision(nil), 1e-9)
}

func TestContextRecall(t *testing.T) {
	judge := &routedJudge{routes: []route{
		{"classify whether it can be attributed", `{"classifications": [{"statement": "code is public", "attributed": 1}, {"statement": "enable collaboration", "attributed": 0}]}`},
	}}

	score, err := NewContextRecall(judge).Score(context.Background(), referenceSample)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestAnswerRelevancy(t *testing.T) {
	judge := &routedJudge{routes: []route{
		{"Generate a question", `{"question": "What are open source models?", "noncommittal": 0}`},
	}}

	score, err := NewAnswerRelevancy(judge, axisEmbedder{}).Score(context.Background(), referenceSample)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	// one sampled call for all questions
	require.Len(t, judge.prompts, 1)
	assert.Equal(t, 3, judge.options[0].N)
	assert.InDelta(t, DefaultRelevancyTemperature, judge.options[0].Temperature, 1e-9)
	assert.True(t, judge.options[0].JSONMode)

	judge = &routedJudge{routes: []route{
		{"Generate a question", `{"question": "What is the weather?", "noncommittal": 0}`},
	}}
	score, err = NewAnswerRelevancy(judge, axisEmbedder{}).WithQuestions(2).Score(context.Background(), referenceSample)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, score, 1e-9)
	require.Len(t, judge.prompts, 1)
	assert.Equal(t, 2, judge.options[0].N)
}

func TestAnswerRelevancy_ProviderIgnoresN(t *testing.T) {
	judge := &routedJudge{ignoreN: true, routes: []route{
		{"Generate a question", `{"question": "What are open source models?", "noncommittal": 0}`},
	}}

	score, err := NewAnswerRelevancy(judge, axisEmbedder{}).Score(context.Background(), referenceSample)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

// shortEmbedder drops every document vector.
type shortEmbedder struct{ axisEmbedder }

func (shortEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, nil
}

func TestAnswerRelevancy_MissingVectors(t *testing.T) {
	judge := &routedJudge{routes: []route{
		{"Generate a question", `{"question": "What are open source models?", "noncommittal": 0}`},
	}}

	score, err := NewAnswerRelevancy(judge, shortEmbedder{}).Score(context.Background(), referenceSample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 0 vectors for 3 generated questions")
	assert.Equal(t, 0.0, score)
}

func TestAnswerRelevancy_Noncommittal(t *testing.T) {
	judge := &routedJudge{routes: []route{
		{"Generate a question", `{"question": "What are open source models?", "noncommittal": 1}`},
	}}

	sample := referenceSample
	sample.Answer = "I don't know."
	score, err := NewAnswerRelevancy(judge, axisEmbedder{}).Score(context.Background(), sample)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestEvaluator_Evaluate(t *testing.T) {
	judge := &routedJudge{routes: []route{
		{"break the answer down", `{"statements": ["code is public"]}`},
		{"judge the faithfulness", `{"verdicts": [{"verdict": 1}]}`},
		{"Context: Open source models publish", `{"verdict": 1}`},
		{"Context: The weather", `{"verdict": 0}`},
		{"classify whether it can be attributed", `{"classifications": [{"attributed": 1}]}`},
		{"Generate a question", `{"question": "What are open source models?", "noncommittal": 0}`},
	}}

	evaluator := NewEvaluator(judge, axisEmbedder{})
	assert.Equal(t, []string{MetricFaithfulness, MetricContextPrecision, MetricContextRecall, MetricAnswerRelevancy}, evaluator.Metrics())

	result, err := evaluator.Evaluate(context.Background(), referenceSample)
	require.NoError(t, err)
	require.Len(t, result.Scores, 4)

	for _, name := range evaluator.Metrics() {
		score, ok := result.Get(name)
		assert.True(t, ok, name)
		assert.InDelta(t, 1.0, score, 1e-6, name)
	}
	assert.True(t, strings.HasPrefix(result.String(), "{answer_relevancy: 1.0000, context_precision: 1.0000"))
}

func TestEvaluator_FailsFast(t *testing.T) {
	judge := &routedJudge{err: errors.New("rate limited")}

	_, err := NewEvaluator(judge, axisEmbedder{}, WithMetrics(NewFaithfulness(judge))).Evaluate(context.Background(), referenceSample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metric faithfulness")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestParseJSON(t *testing.T) {
	var out struct {
		Verdict int `json:"verdict"`
	}
	require.NoError(t, parseJSON("Sure! Here it is: {\"verdict\": 1} Hope this helps.", &out))
	assert.Equal(t, 1, out.Verdict)

	assert.Error(t, parseJSON("no json here", &out))
}
