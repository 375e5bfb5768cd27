package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/tmc/langchaingo/vectorstores"
)

type staticLoader struct {
	docs []schema.Document
	err  error
}

func (l staticLoader) Load(context.Context) ([]schema.Document, error) {
	return l.docs, l.err
}

type recordingStore struct {
	added []schema.Document
	err   error
}

func (s *recordingStore) AddDocuments(_ context.Context, docs []schema.Document, _ ...vectorstores.Option) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.added = append(s.added, docs...)
	ids := make([]string, len(docs))
	return ids, nil
}

func (s *recordingStore) SimilaritySearch(context.Context, string, int, ...vectorstores.Option) ([]schema.Document, error) {
	return nil, nil
}

func TestIndex(t *testing.T) {
	loader := staticLoader{docs: []schema.Document{
		{PageContent: "first page. " + repeat("alpha ", 40), Metadata: map[string]any{"source": "guide.pdf", "page": 0}},
		{PageContent: "second page", Metadata: map[string]any{"source": "guide.pdf", "page": 1}},
	}}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(100),
		textsplitter.WithChunkOverlap(10),
	)
	store := &recordingStore{}

	n, err := Index(context.Background(), loader, splitter, store)
	require.NoError(t, err)
	assert.Greater(t, n, 2)
	assert.Len(t, store.added, n)

	for i, doc := range store.added {
		assert.Equal(t, "guide.pdf", doc.Metadata["source"])
		assert.Equal(t, i, doc.Metadata["chunk"])
		assert.LessOrEqual(t, len(doc.PageContent), 100)
	}
	assert.Equal(t, 1, store.added[n-1].Metadata["page"])
}

func TestIndex_Errors(t *testing.T) {
	splitter := textsplitter.NewRecursiveCharacter()

	_, err := Index(context.Background(), staticLoader{}, splitter, &recordingStore{})
	assert.ErrorIs(t, err, ErrNoDocuments)

	boom := errors.New("boom")
	_, err = Index(context.Background(), staticLoader{err: boom}, splitter, &recordingStore{})
	assert.ErrorIs(t, err, boom)

	docs := []schema.Document{{PageContent: "text"}}
	_, err = Index(context.Background(), staticLoader{docs: docs}, splitter, &recordingStore{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestJoinContents(t *testing.T) {
	docs := []schema.Document{{PageContent: "a"}, {PageContent: "b"}}
	assert.Equal(t, "a\n\nb", JoinContents(docs))
	assert.Equal(t, []string{"a", "b"}, Contents(docs))
	assert.Equal(t, "", JoinContents(nil))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func repeat(s string, n int) string {
	out := ""
	for range n {
		out += s
	}
	return out
}
