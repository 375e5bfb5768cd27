// Package llm builds the chat models and embedders the agents talk to. Both
// point at an OpenAI-compatible endpoint configured through OPENAI_BASE_URL
// and OPENAI_API_KEY.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/smallnest/kbagents/config"
)

// NewChatModel returns a langchaingo chat model for the given model name.
func NewChatModel(cfg *config.Config, model string) (*openai.LLM, error) {
	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithToken(cfg.OpenAIAPIKey),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model %s: %w", model, err)
	}
	return llm, nil
}

// EmbeddingClient implements embeddings.EmbedderClient over go-openai.
type EmbeddingClient struct {
	client     *goopenai.Client
	model      string
	dimensions int
}

var _ embeddings.EmbedderClient = (*EmbeddingClient)(nil)

// EmbeddingOption configures an EmbeddingClient.
type EmbeddingOption func(*EmbeddingClient)

// WithDimensions requests shortened embeddings. Zero keeps the model default.
func WithDimensions(n int) EmbeddingOption {
	return func(c *EmbeddingClient) {
		c.dimensions = n
	}
}

// NewEmbeddingClient creates an embedding client for model.
func NewEmbeddingClient(apiKey, baseURL, model string, opts ...EmbeddingOption) *EmbeddingClient {
	cc := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cc.BaseURL = baseURL
	}

	c := &EmbeddingClient{
		client: goopenai.NewClientWithConfig(cc),
		model:  model,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateEmbedding embeds texts and returns vectors in input order.
func (c *EmbeddingClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input:      texts,
		Model:      goopenai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, errors.New("empty embedding in response")
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// NewEmbedder wraps an EmbeddingClient configured from cfg in a langchaingo
// embedder that batches requests.
func NewEmbedder(cfg *config.Config) (*embeddings.EmbedderImpl, error) {
	client := NewEmbeddingClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel,
		WithDimensions(cfg.EmbeddingDims))

	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if cfg.EmbeddingBatchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(cfg.EmbeddingBatchSize))
	}

	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}
