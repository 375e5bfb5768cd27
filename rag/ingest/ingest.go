// Package ingest turns the configured PDF into a populated vector store.
package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/vectorstores"

	"github.com/smallnest/kbagents/config"
	"github.com/smallnest/kbagents/log"
	"github.com/smallnest/kbagents/rag"
	"github.com/smallnest/kbagents/rag/loader"
	"github.com/smallnest/kbagents/rag/splitter"
	"github.com/smallnest/kbagents/rag/store"
)

// Options controls ingestion.
type Options struct {
	PDFPath      string
	ChunkSize    int
	ChunkOverlap int
	Store        store.Options
}

// FromConfig maps the environment configuration onto Options. The
// collection is recreated on every build.
func FromConfig(cfg *config.Config) Options {
	return Options{
		PDFPath:      cfg.PDFPath,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Store: store.Options{
			Backend:      cfg.VectorStore,
			Collection:   cfg.VectorCollection,
			PGVectorURL:  cfg.PGVectorURL,
			QdrantURL:    cfg.QdrantURL,
			QdrantAPIKey: cfg.QdrantAPIKey,
			Recreate:     true,
			Dimensions:   cfg.EmbeddingDims,
		},
	}
}

// Build loads the PDF, splits it into chunks and indexes them into a new
// vector store. It returns the store and the number of chunks indexed.
func Build(ctx context.Context, opts Options, embedder embeddings.Embedder) (vectorstores.VectorStore, int, error) {
	log.Info("[rag] ingesting %s", opts.PDFPath)
	if _, err := os.Stat(opts.PDFPath); err != nil {
		return nil, 0, fmt.Errorf("pdf not readable: %w", err)
	}

	vs, err := store.NewVectorStore(ctx, opts.Store, embedder)
	if err != nil {
		return nil, 0, err
	}

	n, err := rag.Index(ctx,
		loader.NewPDFLoader(opts.PDFPath),
		splitter.New(opts.ChunkSize, opts.ChunkOverlap),
		vs,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to index %s: %w", opts.PDFPath, err)
	}
	return vs, n, nil
}
