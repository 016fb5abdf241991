package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tanpawarit/agentic-support/agent/contract"
	logx "github.com/tanpawarit/agentic-support/pkg/logger"
)

const (
	defaultBatchSize   = 64
	defaultConcurrency = 4
)

type Option func(*Retriever)

func WithSplitter(s Splitter) Option {
	return func(r *Retriever) {
		r.splitter = s
	}
}

func WithBatchSize(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithEmbedderName overrides the embedder name recorded in the index
// metadata, which defaults to the embedder's own Name.
func WithEmbedderName(name string) Option {
	return func(r *Retriever) {
		r.embedderName = name
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// Retriever builds the policy index from a document and answers similarity
// queries against it.
type Retriever struct {
	index    contract.VectorIndex
	embedder embedding.Embedder

	splitter     Splitter
	batchSize    int
	concurrency  int
	embedderName string
	logger       zerolog.Logger

	builds singleflight.Group
	// buildMu serializes builds and rebuilds against the same index.
	buildMu sync.Mutex
}

var _ contract.PolicyLookup = (*Retriever)(nil)

func NewRetriever(index contract.VectorIndex, embedder embedding.Embedder, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, errors.New("policy vector index is required")
	}
	if embedder == nil {
		return nil, errors.New("policy embedder is required")
	}

	r := &Retriever{
		index:       index,
		embedder:    embedder,
		splitter:    NewSplitter(DefaultChunkSize, DefaultChunkOverlap),
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		logger:      logx.Component("policy_retriever"),
	}
	if named, ok := embedder.(interface{ Name() string }); ok {
		r.embedderName = named.Name()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// BuildIndex builds the index from the document at path unless a completed
// index already exists. It reports whether a build happened.
func (r *Retriever) BuildIndex(ctx context.Context, path string) (bool, error) {
	v, err, _ := r.builds.Do("build:"+path, func() (any, error) {
		r.buildMu.Lock()
		defer r.buildMu.Unlock()

		built, err := r.index.Built(ctx)
		if err != nil {
			return false, err
		}
		if built {
			r.warnIfStale(ctx, path)
			return false, nil
		}
		return true, r.build(ctx, path)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Rebuild replaces the index with a fresh build of the document at path.
func (r *Retriever) Rebuild(ctx context.Context, path string) error {
	_, err, _ := r.builds.Do("rebuild:"+path, func() (any, error) {
		r.buildMu.Lock()
		defer r.buildMu.Unlock()
		return true, r.build(ctx, path)
	})
	return err
}

func (r *Retriever) Meta(ctx context.Context) (contract.IndexMeta, error) {
	return r.index.Meta(ctx)
}

// Query returns up to k chunk texts, most similar first.
func (r *Retriever) Query(ctx context.Context, text string, k int) ([]string, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", contract.ErrValidation, k)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query is empty", contract.ErrValidation)
	}

	built, err := r.index.Built(ctx)
	if err != nil {
		return nil, err
	}
	if !built {
		return nil, ErrIndexNotBuilt
	}

	vectors, err := r.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", contract.ErrUpstream, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", contract.ErrUpstream, len(vectors))
	}

	hits, err := r.index.Search(ctx, normalize(vectors[0]), k)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.Seq]; dup {
			continue
		}
		seen[h.Seq] = struct{}{}
		out = append(out, h.Text)
		if len(out) == k {
			break
		}
	}

	r.logger.Debug().Str("query", text).Int("k", k).Int("hits", len(out)).Msg("policy lookup")
	return out, nil
}

func (r *Retriever) build(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy document %s: %w", path, err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyDocument, path)
	}

	texts := r.splitter.Split(string(raw))
	started := time.Now()

	vectors, err := r.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	chunks := make([]contract.IndexedChunk, len(texts))
	for i, t := range texts {
		chunks[i] = contract.IndexedChunk{Seq: i, Text: t, Vector: normalize(vectors[i])}
	}

	meta := contract.IndexMeta{
		SourcePath:   path,
		SourceSHA256: digest(raw),
		Embedder:     r.embedderName,
		Dimension:    len(chunks[0].Vector),
		ChunkCount:   len(chunks),
		BuiltAt:      time.Now().UTC(),
	}
	if err := r.index.Replace(ctx, meta, chunks); err != nil {
		return err
	}

	r.logger.Info().
		Str("document", path).
		Int("chunks", len(chunks)).
		Int("dimension", meta.Dimension).
		Dur("elapsed", time.Since(started)).
		Msg("policy index built")
	return nil
}

// embedAll embeds texts in batches, running up to r.concurrency batches at a
// time, and returns vectors in input order.
func (r *Retriever) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for start := 0; start < len(texts); start += r.batchSize {
		end := min(start+r.batchSize, len(texts))
		g.Go(func() error {
			out, err := r.embedder.EmbedStrings(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("%w: embed batch %d-%d: %w", contract.ErrUpstream, start, end, err)
			}
			if len(out) != end-start {
				return fmt.Errorf("%w: embed batch %d-%d returned %d vectors", contract.ErrUpstream, start, end, len(out))
			}
			copy(vectors[start:end], out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("%w: chunk %d has dimension %d, want %d", contract.ErrUpstream, i, len(v), dim)
		}
	}
	return vectors, nil
}

// CheckStale reports whether the document at path differs from the one the
// index was built from.
func (r *Retriever) CheckStale(ctx context.Context, path string) (bool, error) {
	meta, err := r.index.Meta(ctx)
	if err != nil {
		return false, fmt.Errorf("read policy index metadata: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read policy document %s: %w", path, err)
	}
	return digest(raw) != meta.SourceSHA256, nil
}

func (r *Retriever) warnIfStale(ctx context.Context, path string) {
	stale, err := r.CheckStale(ctx, path)
	if err != nil {
		r.logger.Warn().Err(err).Str("document", path).Msg("policy staleness check failed")
		return
	}
	if stale {
		r.logger.Warn().
			Str("document", path).
			Msg("policy document changed since the index was built; run `index --rebuild` to refresh")
	}
}

func digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func normalize(v []float64) []float32 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	for i, x := range v {
		if norm > 0 {
			x /= norm
		}
		out[i] = float32(x)
	}
	return out
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
