package eval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/kbagents/rag"
)

const statementsPrompt = `Given a question and an answer, break the answer down into one or more fully understandable statements. Each statement must stand on its own without pronouns.
Respond only with JSON of the form {"statements": ["..."]}.

Question: %s
Answer: %s`

const faithfulnessPrompt = `Your task is to judge the faithfulness of a series of statements based on a given context. For each statement return verdict 1 if the statement can be directly inferred from the context, or 0 if it cannot.
Respond only with JSON of the form {"verdicts": [{"statement": "...", "reason": "...", "verdict": 1}]}, one entry per statement, in order.

Context:
%s
Statements:
%s`

const contextPrecisionPrompt = `Given a question, a reference answer and a context, verify whether the context was useful in arriving at the reference answer. Return verdict 1 if useful and 0 if not.
Respond only with JSON of the form {"reason": "...", "verdict": 1}.

Question: %s
Reference answer: %s
Context: %s`

const contextRecallPrompt = `Given a context and a reference answer, analyze each sentence of the reference answer and classify whether it can be attributed to the context. Use attributed 1 for yes and 0 for no.
Respond only with JSON of the form {"classifications": [{"statement": "...", "reason": "...", "attributed": 1}]}.

Question: %s
Context:
%s
Reference answer: %s`

const answerRelevancyPrompt = `Generate a question for the given answer and identify if the answer is noncommittal. Give noncommittal 1 if the answer is evasive, vague or ambiguous (for example "I don't know" or "I'm not sure"), and 0 if the answer is committal.
Respond only with JSON of the form {"question": "...", "noncommittal": 0}.

Answer: %s`

// Faithfulness measures how many claims in the answer are supported by the
// retrieved contexts.
type Faithfulness struct {
	judge judge
}

// NewFaithfulness creates the faithfulness metric.
func NewFaithfulness(model llms.Model) *Faithfulness {
	return &Faithfulness{judge: judge{model: model}}
}

// Name implements Metric.
func (m *Faithfulness) Name() string { return MetricFaithfulness }

// Score returns supported statements / total statements, or 0 when the
// answer yields no statements.
func (m *Faithfulness) Score(ctx context.Context, s Sample) (float64, error) {
	if strings.TrimSpace(s.Answer) == "" {
		return 0, ErrMissingAnswer
	}

	var extracted struct {
		Statements []string `json:"statements"`
	}
	if err := m.judge.generateJSON(ctx, fmt.Sprintf(statementsPrompt, s.Question, s.Answer), &extracted); err != nil {
		return 0, err
	}
	if len(extracted.Statements) == 0 {
		return 0, nil
	}

	var judged struct {
		Verdicts []struct {
			Statement string `json:"statement"`
			Reason    string `json:"reason"`
			Verdict   int    `json:"verdict"`
		} `json:"verdicts"`
	}
	prompt := fmt.Sprintf(faithfulnessPrompt, strings.Join(s.Contexts, "\n"), numbered(extracted.Statements))
	if err := m.judge.generateJSON(ctx, prompt, &judged); err != nil {
		return 0, err
	}

	// verdicts past the statement count are ignored
	verdicts := judged.Verdicts[:min(len(judged.Verdicts), len(extracted.Statements))]
	supported := 0
	for _, v := range verdicts {
		if v.Verdict == 1 {
			supported++
		}
	}
	return float64(supported) / float64(len(extracted.Statements)), nil
}

// ContextPrecision measures whether the contexts useful for the reference
// answer are ranked above the ones that are not.
type ContextPrecision struct {
	judge judge
}

// NewContextPrecision creates the context precision metric.
func NewContextPrecision(model llms.Model) *ContextPrecision {
	return &ContextPrecision{judge: judge{model: model}}
}

// Name implements Metric.
func (m *ContextPrecision) Name() string { return MetricContextPrecision }

// Score returns the average precision over the ranked contexts.
func (m *ContextPrecision) Score(ctx context.Context, s Sample) (float64, error) {
	if strings.TrimSpace(s.GroundTruth) == "" {
		return 0, ErrMissingGroundTruth
	}

	verdicts := make([]int, len(s.Contexts))
	for i, c := range s.Contexts {
		var out struct {
			Reason  string `json:"reason"`
			Verdict int    `json:"verdict"`
		}
		if err := m.judge.generateJSON(ctx, fmt.Sprintf(contextPrecisionPrompt, s.Question, s.GroundTruth, c), &out); err != nil {
			return 0, err
		}
		verdicts[i] = out.Verdict
	}
	return averagePrecision(verdicts), nil
}

// averagePrecision computes sum(precision@k * v_k) / (sum(v) + 1e-10).
func averagePrecision(verdicts []int) float64 {
	var numerator float64
	relevant := 0
	for k, v := range verdicts {
		if v == 1 {
			relevant++
			numerator += float64(relevant) / float64(k+1)
		}
	}
	return numerator / (float64(relevant) + 1e-10)
}

// ContextRecall measures how much of the reference answer can be attributed
// to the retrieved contexts.
type ContextRecall struct {
	judge judge
}

// NewContextRecall creates the context recall metric.
func NewContextRecall(model llms.Model) *ContextRecall {
	return &ContextRecall{judge: judge{model: model}}
}

// Name implements Metric.
func (m *ContextRecall) Name() string { return MetricContextRecall }

// Score returns attributed sentences / classified sentences.
func (m *ContextRecall) Score(ctx context.Context, s Sample) (float64, error) {
	if strings.TrimSpace(s.GroundTruth) == "" {
		return 0, ErrMissingGroundTruth
	}

	var out struct {
		Classifications []struct {
			Statement  string `json:"statement"`
			Reason     string `json:"reason"`
			Attributed int    `json:"attributed"`
		} `json:"classifications"`
	}
	prompt := fmt.Sprintf(contextRecallPrompt, s.Question, strings.Join(s.Contexts, "\n"), s.GroundTruth)
	if err := m.judge.generateJSON(ctx, prompt, &out); err != nil {
		return 0, err
	}
	if len(out.Classifications) == 0 {
		return 0, nil
	}

	attributed := 0
	for _, c := range out.Classifications {
		if c.Attributed == 1 {
			attributed++
		}
	}
	return float64(attributed) / float64(len(out.Classifications)), nil
}

// DefaultRelevancyTemperature is the sampling temperature used to generate
// questions for answer relevancy.
const DefaultRelevancyTemperature = 0.3

// AnswerRelevancy measures how well the answer addresses the question by
// regenerating questions from the answer and comparing them with the
// original in embedding space.
type AnswerRelevancy struct {
	judge       judge
	embedder    embeddings.Embedder
	questions   int
	temperature float64
}

// NewAnswerRelevancy creates the answer relevancy metric with three
// generated questions.
func NewAnswerRelevancy(model llms.Model, embedder embeddings.Embedder) *AnswerRelevancy {
	return &AnswerRelevancy{
		judge:       judge{model: model},
		embedder:    embedder,
		questions:   3,
		temperature: DefaultRelevancyTemperature,
	}
}

// WithQuestions sets how many questions are generated per answer.
func (m *AnswerRelevancy) WithQuestions(n int) *AnswerRelevancy {
	if n > 0 {
		m.questions = n
	}
	return m
}

// Name implements Metric.
func (m *AnswerRelevancy) Name() string { return MetricAnswerRelevancy }

// Score returns the mean cosine similarity between the question and the
// generated questions, or 0 if any generation flags the answer as
// noncommittal.
func (m *AnswerRelevancy) Score(ctx context.Context, s Sample) (float64, error) {
	if strings.TrimSpace(s.Answer) == "" {
		return 0, ErrMissingAnswer
	}
	if m.embedder == nil {
		return 0, errors.New("answer relevancy requires an embedder")
	}

	choices, err := m.judge.sample(ctx, fmt.Sprintf(answerRelevancyPrompt, s.Answer), m.questions, m.temperature)
	if err != nil {
		return 0, err
	}

	generated := make([]string, 0, len(choices))
	noncommittal := false
	for _, c := range choices {
		var out struct {
			Question     string `json:"question"`
			Noncommittal int    `json:"noncommittal"`
		}
		if err := parseJSON(c.Content, &out); err != nil {
			return 0, err
		}
		if out.Noncommittal == 1 {
			noncommittal = true
		}
		if q := strings.TrimSpace(out.Question); q != "" {
			generated = append(generated, q)
		}
	}
	if noncommittal || len(generated) == 0 {
		return 0, nil
	}

	questionVec, err := m.embedder.EmbedQuery(ctx, s.Question)
	if err != nil {
		return 0, fmt.Errorf("failed to embed question: %w", err)
	}
	generatedVecs, err := m.embedder.EmbedDocuments(ctx, generated)
	if err != nil {
		return 0, fmt.Errorf("failed to embed generated questions: %w", err)
	}
	if len(generatedVecs) != len(generated) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d generated questions", len(generatedVecs), len(generated))
	}

	var total float64
	for _, v := range generatedVecs {
		total += rag.CosineSimilarity(questionVec, v)
	}
	return total / float64(len(generatedVecs)), nil
}
