// Package store provides the vector stores documents are indexed into.
//
// InMemoryVectorStore keeps vectors in process and is the default. The
// pgvector and qdrant backends delegate to the langchaingo integrations and
// keep their data in a collection named "udacity" unless configured
// otherwise. All of them satisfy langchaingo's vectorstores.VectorStore, so
// they can be turned into retrievers with vectorstores.ToRetriever.
package store
