package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/smallnest/kbagents/log"
)

// DocumentLoader loads documents from a source.
type DocumentLoader interface {
	Load(ctx context.Context) ([]schema.Document, error)
}

// ErrNoDocuments is returned by Index when the loader produced nothing to index.
var ErrNoDocuments = errors.New("no documents to index")

// Index loads documents, splits them into chunks and adds the chunks to the
// vector store. It returns the number of chunks stored.
func Index(ctx context.Context, loader DocumentLoader, splitter textsplitter.TextSplitter, store vectorstores.VectorStore) (int, error) {
	docs, err := loader.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load documents: %w", err)
	}
	if len(docs) == 0 {
		return 0, ErrNoDocuments
	}

	chunks, err := textsplitter.SplitDocuments(splitter, docs)
	if err != nil {
		return 0, fmt.Errorf("failed to split documents: %w", err)
	}
	for i := range chunks {
		chunks[i].Metadata = withChunkIndex(chunks[i].Metadata, i)
	}

	if _, err := store.AddDocuments(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to add documents to vector store: %w", err)
	}

	log.Info("[rag] indexed %d pages as %d chunks", len(docs), len(chunks))
	return len(chunks), nil
}

func withChunkIndex(metadata map[string]any, i int) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["chunk"] = i
	return out
}

// JoinContents concatenates the page content of docs separated by a blank line.
func JoinContents(docs []schema.Document) string {
	parts := make([]string, len(docs))
	for i, doc := range docs {
		parts[i] = doc.PageContent
	}
	return strings.Join(parts, "\n\n")
}

// Contents returns the page content of each document.
func Contents(docs []schema.Document) []string {
	out := make([]string, len(docs))
	for i, doc := range docs {
		out[i] = doc.PageContent
	}
	return out
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length, or with a zero norm, score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct float64
	var normA float64
	var normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
