// Command rageval runs the RAG graph with an evaluation step and records
// the run, its parameters and its metric scores in an experiment tracker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/smallnest/kbagents/config"
	"github.com/smallnest/kbagents/eval"
	"github.com/smallnest/kbagents/graph"
	"github.com/smallnest/kbagents/llm"
	"github.com/smallnest/kbagents/log"
	"github.com/smallnest/kbagents/prebuilt"
	"github.com/smallnest/kbagents/rag/ingest"
	"github.com/smallnest/kbagents/store"
	"github.com/smallnest/kbagents/store/tracking"
)

const (
	referenceQuestion    = "What are Open source models?"
	referenceGroundTruth = "Open-source models are AI or machine learning models whose code, architecture, " +
		"and in some cases, training data and weights, are publicly available for use, modification, " +
		"and distribution. They enable collaboration, transparency, and innovation by allowing developers " +
		"to fine-tune, deploy, or improve them without proprietary restrictions."
)

var (
	pdfPath     = flag.String("pdf", "", "PDF to index (defaults to PDF_PATH)")
	question    = flag.String("question", referenceQuestion, "Question to evaluate")
	groundTruth = flag.String("ground-truth", referenceGroundTruth, "Reference answer for the question")
	dataset     = flag.String("dataset", "", "JSON file with [{\"question\": ..., \"ground_truth\": ...}], one run per entry")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		log.Error("rageval: %v", err)
		os.Exit(1)
	}
}

func loadSamples() ([]eval.Sample, error) {
	if *dataset == "" {
		return []eval.Sample{{Question: *question, GroundTruth: *groundTruth}}, nil
	}

	data, err := os.ReadFile(*dataset)
	if err != nil {
		return nil, err
	}
	var samples []eval.Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("invalid dataset %s: %w", *dataset, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", *dataset)
	}
	return samples, nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *pdfPath != "" {
		cfg.PDFPath = *pdfPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLogLevel(level)

	samples, err := loadSamples()
	if err != nil {
		return err
	}

	tracker, err := tracking.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer tracker.Close()

	model, err := llm.NewChatModel(cfg, cfg.ChatModel)
	if err != nil {
		return err
	}
	judge, err := llm.NewChatModel(cfg, cfg.JudgeModel)
	if err != nil {
		return err
	}
	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		return err
	}

	evaluator := eval.NewEvaluator(judge, embedder)
	log.Info("[eval] metrics: %v", evaluator.Metrics())

	e := &evaluation{
		cfg:     cfg,
		tracker: tracker,
		build: func(vs vectorstores.VectorStore) (*graph.StateRunnable[prebuilt.RAGState], error) {
			return prebuilt.CreateRAGEvalAgent(prebuilt.RAGEvalConfig{
				RAGAgentConfig: prebuilt.RAGAgentConfig{
					Model:       model,
					Store:       vs,
					K:           cfg.RetrieverK,
					CallOptions: []llms.CallOption{llms.WithTemperature(cfg.Temperature)},
					RetryPolicy: graph.NewRetryPolicy(cfg.NodeMaxRetries),
				},
				Evaluator: evaluator,
				Tracker:   tracker,
			})
		},
		index: func(ctx context.Context) (vectorstores.VectorStore, error) {
			vs, _, err := ingest.Build(ctx, ingest.FromConfig(cfg), embedder)
			return vs, err
		},
	}

	for i, sample := range samples {
		name := cfg.RunName
		if len(samples) > 1 {
			name = fmt.Sprintf("%s_%d", cfg.RunName, i+1)
		}
		runID, err := e.runOne(ctx, name, sample)
		if err != nil {
			return err
		}
		if err := printRun(ctx, tracker, runID); err != nil {
			return err
		}
	}
	return nil
}

type evaluation struct {
	cfg     *config.Config
	tracker store.Tracker
	build   func(vectorstores.VectorStore) (*graph.StateRunnable[prebuilt.RAGState], error)
	index   func(context.Context) (vectorstores.VectorStore, error)

	agent *graph.StateRunnable[prebuilt.RAGState]
}

// runOne evaluates one sample inside its own tracking run and returns the
// run id. The run is marked FAILED when anything after StartRun fails.
// The vector store is built on the first call.
func (e *evaluation) runOne(ctx context.Context, runName string, sample eval.Sample) (runID string, err error) {
	run, err := e.tracker.StartRun(ctx, e.cfg.ExperimentName, runName)
	if err != nil {
		return "", err
	}
	log.Info("[tracking] started run %s (%s/%s)", run.ID, e.cfg.ExperimentName, runName)

	defer func() {
		status := store.RunStatusFinished
		if err != nil {
			status = store.RunStatusFailed
		}
		// the run is closed even when ctx was cancelled
		if endErr := e.tracker.EndRun(context.WithoutCancel(ctx), run.ID, status); endErr != nil {
			err = errors.Join(err, endErr)
		}
	}()

	if err := e.tracker.LogParams(ctx, run.ID, map[string]string{
		"embeddings_model": e.cfg.EmbeddingModel,
		"llm_model":        e.cfg.ChatModel,
		"llm_judge_model":  e.cfg.JudgeModel,
	}); err != nil {
		return run.ID, err
	}

	if e.agent == nil {
		vs, err := e.index(ctx)
		if err != nil {
			return run.ID, err
		}
		if e.agent, err = e.build(vs); err != nil {
			return run.ID, err
		}
		e.agent.AddListener(graph.NewLoggingListener(log.GetDefaultLogger()))
	}

	result, err := e.agent.InvokeWithConfig(ctx, prebuilt.RAGState{
		Question:    sample.Question,
		GroundTruth: sample.GroundTruth,
		RunID:       run.ID,
	}, &graph.Config{RecursionLimit: e.cfg.RecursionLimit})
	if err != nil {
		return run.ID, err
	}

	if err := prebuilt.PrettyPrint(os.Stdout, result.Messages); err != nil {
		return run.ID, err
	}
	fmt.Printf("Evaluation: %s\n", result.Evaluation)
	return run.ID, nil
}

// printRun shows the stored run once it has been closed.
func printRun(ctx context.Context, tracker store.Tracker, runID string) error {
	run, err := tracker.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
