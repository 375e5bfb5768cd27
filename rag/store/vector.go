package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/smallnest/kbagents/rag"
)

// ErrNoEmbedder is returned when a store has no embedder to vectorize text.
var ErrNoEmbedder = errors.New("no embedder configured")

// InMemoryVectorStore is an in-process vectorstores.VectorStore using cosine
// similarity. It is safe for concurrent use.
type InMemoryVectorStore struct {
	mu         sync.RWMutex
	ids        []string
	documents  []schema.Document
	embeddings [][]float32
	embedder   embeddings.Embedder
}

var _ vectorstores.VectorStore = (*InMemoryVectorStore)(nil)

// NewInMemoryVectorStore creates a new InMemoryVectorStore
func NewInMemoryVectorStore(embedder embeddings.Embedder) *InMemoryVectorStore {
	return &InMemoryVectorStore{embedder: embedder}
}

// AddDocuments embeds docs and stores them. It returns the generated ids.
func (s *InMemoryVectorStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := s.getOptions(options...)
	if opts.Embedder == nil {
		return nil, ErrNoEmbedder
	}

	if opts.Deduplicater != nil {
		filtered := docs[:0:0]
		for _, doc := range docs {
			if !opts.Deduplicater(ctx, doc) {
				filtered = append(filtered, doc)
			}
		}
		docs = filtered
	}
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}
	vectors, err := opts.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	ids := make([]string, len(docs))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		ids[i] = uuid.NewString()
		s.ids = append(s.ids, ids[i])
		s.documents = append(s.documents, doc)
		s.embeddings = append(s.embeddings, vectors[i])
	}
	return ids, nil
}

// SimilaritySearch returns up to numDocuments documents ordered by descending
// cosine similarity to query. Filters must be a map[string]any of metadata
// values that have to match exactly.
func (s *InMemoryVectorStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	opts := s.getOptions(options...)
	if opts.Embedder == nil {
		return nil, ErrNoEmbedder
	}

	filter, err := toFilter(opts.Filters)
	if err != nil {
		return nil, err
	}

	queryEmbedding, err := opts.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	type docScore struct {
		index int
		score float64
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make([]docScore, 0, len(s.documents))
	for i, doc := range s.documents {
		if !matchesFilter(doc, filter) {
			continue
		}
		score := rag.CosineSimilarity(queryEmbedding, s.embeddings[i])
		if opts.ScoreThreshold > 0 && score < float64(opts.ScoreThreshold) {
			continue
		}
		scores = append(scores, docScore{index: i, score: score})
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if len(scores) > numDocuments {
		scores = scores[:numDocuments]
	}

	results := make([]schema.Document, len(scores))
	for i, sc := range scores {
		doc := s.documents[sc.index]
		results[i] = schema.Document{
			PageContent: doc.PageContent,
			Metadata:    doc.Metadata,
			Score:       float32(sc.score),
		}
	}
	return results, nil
}

// Delete removes documents by id.
func (s *InMemoryVectorStore) Delete(_ context.Context, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keep := 0
	for i, id := range s.ids {
		if drop[id] {
			continue
		}
		s.ids[keep] = id
		s.documents[keep] = s.documents[i]
		s.embeddings[keep] = s.embeddings[i]
		keep++
	}
	s.ids = s.ids[:keep]
	s.documents = s.documents[:keep]
	s.embeddings = s.embeddings[:keep]
	return nil
}

// Stats describes the contents of a vector store.
type Stats struct {
	TotalDocuments int
	Dimension      int
}

// GetStats returns statistics about the vector store
func (s *InMemoryVectorStore) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalDocuments: len(s.documents)}
	if len(s.embeddings) > 0 {
		stats.Dimension = len(s.embeddings[0])
	}
	return stats
}

func (s *InMemoryVectorStore) getOptions(options ...vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = s.embedder
	}
	return opts
}

func toFilter(filters any) (map[string]any, error) {
	switch f := filters.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return f, nil
	case map[string]string:
		out := make(map[string]any, len(f))
		for k, v := range f {
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported filter type %T", filters)
	}
}

// matchesFilter checks if a document matches the given filter. Values are
// compared deeply so slice and map metadata can be filtered on.
func matchesFilter(doc schema.Document, filter map[string]any) bool {
	for key, value := range filter {
		docValue, exists := doc.Metadata[key]
		if !exists || !reflect.DeepEqual(docValue, value) {
			return false
		}
	}
	return true
}
