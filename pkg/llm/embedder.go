package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	openaisdk "github.com/openai/openai-go"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
	defaultGeminiEmbeddingModel = "text-embedding-004"
)

// Embedding is an eino embedder that names its model and owns a connection.
type Embedding interface {
	embedding.Embedder
	Name() string
	Close() error
}

var (
	_ Embedding = (*Embedder)(nil)
	_ Embedding = (*GeminiEmbedder)(nil)
)

// OpenEmbedding builds the embedder for cfg.Provider.
func OpenEmbedding(ctx context.Context, cfg EmbeddingConfig) (Embedding, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewEmbedder(cfg)
	case ProviderGemini:
		return NewGeminiEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}

// Embedder implements the eino embedding contract on top of the OpenAI SDK.
type Embedder struct {
	client     *openaisdk.Client
	model      string
	dimensions int
}

func NewEmbedder(cfg EmbeddingConfig) (*Embedder, error) {
	client := NewClient(cfg)
	if client == nil {
		return nil, errors.New("embedding: api key is required")
	}
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = defaultOpenAIEmbeddingModel
	}
	return &Embedder{
		client:     client,
		model:      modelName,
		dimensions: cfg.Dimensions,
	}, nil
}

func (e *Embedder) Name() string {
	return e.model
}

func (e *Embedder) Close() error {
	return nil
}

func (e *Embedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openaisdk.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		params.Dimensions = openaisdk.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embedding: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("embedding: vector index %d out of range", idx)
		}
		out[idx] = d.Embedding
	}
	return out, nil
}
