package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/pgvector"
	"github.com/tmc/langchaingo/vectorstores/qdrant"

	"github.com/smallnest/kbagents/log"
)

// Backend names accepted by NewVectorStore.
const (
	BackendMemory   = "memory"
	BackendPGVector = "pgvector"
	BackendQdrant   = "qdrant"

	DefaultCollection = "udacity"
)

// Options selects and configures a vector store backend.
type Options struct {
	Backend    string
	Collection string

	// PGVectorURL is a postgres connection string, used by the pgvector backend.
	PGVectorURL string

	// QdrantURL and QdrantAPIKey are used by the qdrant backend.
	QdrantURL    string
	QdrantAPIKey string

	// Recreate drops the collection and starts it empty, so indexing the
	// same source again does not duplicate chunks in persistent backends.
	Recreate bool

	// Dimensions is the embedding size used when qdrant recreates the
	// collection. Zero embeds a sample text to find it.
	Dimensions int
}

// NewVectorStore builds the configured backend around embedder.
func NewVectorStore(ctx context.Context, opts Options, embedder embeddings.Embedder) (vectorstores.VectorStore, error) {
	collection := opts.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	switch opts.Backend {
	case "", BackendMemory:
		log.Info("[rag] using in-memory vector store")
		return NewInMemoryVectorStore(embedder), nil

	case BackendPGVector:
		if opts.PGVectorURL == "" {
			return nil, fmt.Errorf("pgvector backend requires a connection url")
		}
		s, err := pgvector.New(ctx,
			pgvector.WithConnectionURL(opts.PGVectorURL),
			pgvector.WithEmbedder(embedder),
			pgvector.WithCollectionName(collection),
			pgvector.WithPreDeleteCollection(opts.Recreate),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgvector store: %w", err)
		}
		log.Info("[rag] using pgvector collection %s", collection)
		return &s, nil

	case BackendQdrant:
		u, err := url.Parse(opts.QdrantURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid qdrant url %q", opts.QdrantURL)
		}
		qopts := []qdrant.Option{
			qdrant.WithURL(*u),
			qdrant.WithCollectionName(collection),
			qdrant.WithEmbedder(embedder),
		}
		if opts.QdrantAPIKey != "" {
			qopts = append(qopts, qdrant.WithAPIKey(opts.QdrantAPIKey))
		}
		s, err := qdrant.New(qopts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant store: %w", err)
		}
		if opts.Recreate {
			if err := recreateQdrantCollection(ctx, *u, opts.QdrantAPIKey, collection, opts.Dimensions, embedder); err != nil {
				return nil, err
			}
		}
		log.Info("[rag] using qdrant collection %s at %s", collection, u.Host)
		return &s, nil
	}

	return nil, fmt.Errorf("unknown vector store backend %q", opts.Backend)
}

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type qdrantCreateCollection struct {
	Vectors qdrantVectorParams `json:"vectors"`
}

// recreateQdrantCollection deletes collection if present and creates it
// again with cosine distance.
func recreateQdrantCollection(ctx context.Context, base url.URL, apiKey, collection string, dims int, embedder embeddings.Embedder) error {
	if dims <= 0 {
		if embedder == nil {
			return ErrNoEmbedder
		}
		v, err := embedder.EmbedQuery(ctx, collection)
		if err != nil {
			return fmt.Errorf("failed to find embedding size: %w", err)
		}
		dims = len(v)
	}

	target := base.JoinPath("collections", collection)

	body, status, err := qdrant.DoRequest(ctx, *target, apiKey, http.MethodDelete, nil)
	if err != nil {
		return fmt.Errorf("failed to delete qdrant collection %s: %w", collection, err)
	}
	body.Close()
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("failed to delete qdrant collection %s: status %d", collection, status)
	}

	body, status, err = qdrant.DoRequest(ctx, *target, apiKey, http.MethodPut, qdrantCreateCollection{
		Vectors: qdrantVectorParams{Size: dims, Distance: "Cosine"},
	})
	if err != nil {
		return fmt.Errorf("failed to create qdrant collection %s: %w", collection, err)
	}
	body.Close()
	if status != http.StatusOK {
		return fmt.Errorf("failed to create qdrant collection %s: status %d", collection, status)
	}

	log.Info("[rag] recreated qdrant collection %s (%d dims)", collection, dims)
	return nil
}
