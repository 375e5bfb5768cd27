// Command kbagent indexes a PDF and answers a question about it with a
// retrieve -> augment -> generate graph.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/kbagents/config"
	"github.com/smallnest/kbagents/graph"
	"github.com/smallnest/kbagents/llm"
	"github.com/smallnest/kbagents/log"
	"github.com/smallnest/kbagents/prebuilt"
	"github.com/smallnest/kbagents/rag/ingest"
)

var (
	pdfPath   = flag.String("pdf", "", "PDF to index (defaults to PDF_PATH)")
	question  = flag.String("question", "Qué son los modelos Open source?", "Question to answer")
	showGraph = flag.Bool("graph", false, "Print the Mermaid diagram of the graph")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		log.Error("kbagent: %v", err)
		os.Exit(1)
	}
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

	model, err := llm.NewChatModel(cfg, cfg.ChatModel)
	if err != nil {
		return err
	}
	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		return err
	}

	vectorStore, _, err := ingest.Build(ctx, ingest.FromConfig(cfg), embedder)
	if err != nil {
		return err
	}

	agent, err := prebuilt.CreateRAGAgent(prebuilt.RAGAgentConfig{
		Model:       model,
		Store:       vectorStore,
		K:           cfg.RetrieverK,
		CallOptions: []llms.CallOption{llms.WithTemperature(cfg.Temperature)},
		RetryPolicy: graph.NewRetryPolicy(cfg.NodeMaxRetries),
	})
	if err != nil {
		return err
	}
	agent.AddListener(graph.NewLoggingListener(log.GetDefaultLogger()))

	if *showGraph {
		fmt.Println(graph.NewExporter(agent.Graph()).DrawMermaid())
	}

	result, err := agent.InvokeWithConfig(ctx, prebuilt.RAGState{Question: *question}, &graph.Config{
		RecursionLimit: cfg.RecursionLimit,
	})
	if err != nil {
		return err
	}

	return prebuilt.PrettyPrint(os.Stdout, result.Messages)
}
