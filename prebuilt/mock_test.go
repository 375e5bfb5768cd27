package prebuilt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// MockLLM replays scripted choices and records what it was sent.
type MockLLM struct {
	mu        sync.Mutex
	choices   []*llms.ContentChoice
	err       error
	callCount int
	inputs    [][]llms.MessageContent
	options   []llms.CallOptions
}

func (m *MockLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	m.inputs = append(m.inputs, messages)
	m.options = append(m.options, opts)

	if m.err != nil {
		return nil, m.err
	}
	if m.callCount >= len(m.choices) {
		return nil, fmt.Errorf("unexpected call %d", m.callCount+1)
	}
	choice := m.choices[m.callCount]
	m.callCount++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

func (m *MockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// MockTool echoes its input.
type MockTool struct {
	name string
	err  error
}

func (t *MockTool) Name() string        { return t.name }
func (t *MockTool) Description() string { return "A mock tool" }

func (t *MockTool) Call(_ context.Context, input string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return fmt.Sprintf("Executed %s with %s", t.name, input), nil
}

// mockStore returns the documents whose content mentions a query word.
type mockStore struct {
	docs []schema.Document
	err  error
	k    int
}

func (s *mockStore) AddDocuments(_ context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	s.docs = append(s.docs, docs...)
	return nil, nil
}

func (s *mockStore) SimilaritySearch(_ context.Context, query string, k int, _ ...vectorstores.Option) ([]schema.Document, error) {
	s.k = k
	if s.err != nil {
		return nil, s.err
	}
	var out []schema.Document
	for _, d := range s.docs {
		for _, w := range strings.Fields(strings.ToLower(query)) {
			if strings.Contains(strings.ToLower(d.PageContent), w) {
				out = append(out, d)
				break
			}
		}
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
	}
}
