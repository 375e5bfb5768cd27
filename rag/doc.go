// Package rag holds the retrieval side of the question-answering agents.
//
// Documents are langchaingo schema.Document values. The subpackages provide
// the pieces Index wires together:
//
//   - loader: a PDF loader that yields pages lazily
//   - splitter: recursive character chunking (1000/200 by default)
//   - store: an in-memory vector store plus pgvector and Qdrant factories
//
// A typical ingestion:
//
//	l := loader.NewPDFLoader("guide.pdf")
//	s := splitter.New(1000, 200)
//	vs := store.NewInMemoryVectorStore(embedder)
//	n, err := rag.Index(ctx, l, s, vs)
package rag
