package eval

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/errgroup"

	"github.com/smallnest/kbagents/log"
)

// Metric names, matching the keys logged to the tracker.
const (
	MetricFaithfulness     = "faithfulness"
	MetricContextPrecision = "context_precision"
	MetricContextRecall    = "context_recall"
	MetricAnswerRelevancy  = "answer_relevancy"
)

var (
	// ErrMissingGroundTruth is returned by metrics that need a reference answer.
	ErrMissingGroundTruth = errors.New("sample has no ground truth")
	// ErrMissingAnswer is returned by metrics that need a generated answer.
	ErrMissingAnswer = errors.New("sample has no answer")
)

// Sample is one question/answer pair with the contexts it was answered from.
type Sample struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Contexts    []string `json:"contexts"`
	GroundTruth string   `json:"ground_truth"`
}

// Metric scores a sample in [0, 1].
type Metric interface {
	Name() string
	Score(ctx context.Context, sample Sample) (float64, error)
}

// Result holds the score of each metric that ran.
type Result struct {
	Scores   map[string]float64
	Duration time.Duration
}

// Get returns the score for metric name.
func (r *Result) Get(name string) (float64, bool) {
	v, ok := r.Scores[name]
	return v, ok
}

// String renders scores sorted by metric name, e.g. "{answer_relevancy: 0.9123, ...}".
func (r *Result) String() string {
	keys := slices.Sorted(maps.Keys(r.Scores))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %.4f", k, r.Scores[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Evaluator runs a set of metrics over samples.
type Evaluator struct {
	metrics []Metric
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithMetrics replaces the default metric set.
func WithMetrics(metrics ...Metric) EvaluatorOption {
	return func(e *Evaluator) {
		e.metrics = metrics
	}
}

// NewEvaluator returns an evaluator that scores faithfulness, context
// precision, context recall and answer relevancy with judge as the grading
// model and embedder for answer relevancy.
func NewEvaluator(judge llms.Model, embedder embeddings.Embedder, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		metrics: []Metric{
			NewFaithfulness(judge),
			NewContextPrecision(judge),
			NewContextRecall(judge),
			NewAnswerRelevancy(judge, embedder),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Metrics returns the names of the configured metrics.
func (e *Evaluator) Metrics() []string {
	names := make([]string, len(e.metrics))
	for i, m := range e.metrics {
		names[i] = m.Name()
	}
	return names
}

// Evaluate scores sample with every metric concurrently. The first failing
// metric cancels the others and its error is returned.
func (e *Evaluator) Evaluate(ctx context.Context, sample Sample) (*Result, error) {
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	scores := make(map[string]float64, len(e.metrics))

	for _, m := range e.metrics {
		g.Go(func() error {
			score, err := m.Score(ctx, sample)
			if err != nil {
				return fmt.Errorf("metric %s: %w", m.Name(), err)
			}
			log.Debug("[eval] %s = %.4f", m.Name(), score)

			mu.Lock()
			scores[m.Name()] = score
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{Scores: scores, Duration: time.Since(start)}
	log.Info("[eval] scored %d metrics in %v: %s", len(scores), result.Duration.Round(time.Millisecond), result)
	return result, nil
}
