package contract

import "context"

// Agent answers one user message, possibly after calling tools.
type Agent interface {
	HandleMessage(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// PolicyLookup returns the k policy excerpts most similar to query.
type PolicyLookup interface {
	Query(ctx context.Context, query string, k int) ([]string, error)
}

// VectorIndex persists policy chunks with their embeddings.
type VectorIndex interface {
	Built(ctx context.Context) (bool, error)
	Meta(ctx context.Context) (IndexMeta, error)
	Replace(ctx context.Context, meta IndexMeta, chunks []IndexedChunk) error
	Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error)
	Close() error
}
