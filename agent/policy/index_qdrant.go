package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/agentic-support/agent/contract"
)

const qdrantUpsertBatch = 256

// pointNamespace seeds the UUIDv5 point IDs so that every build behind the
// same alias produces the same IDs for the same chunk sequence.
var pointNamespace = uuid.MustParse("6f1b3f0e-9c55-4b8e-8f6c-2a0f5e4c9d11")

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// qdrantClient is the part of *pb.Client the index uses.
type qdrantClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *pb.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	ListAliases(ctx context.Context) ([]*pb.AliasDescription, error)
	UpdateAliases(ctx context.Context, actions []*pb.AliasOperations) error
	Count(ctx context.Context, request *pb.CountPoints) (uint64, error)
	Scroll(ctx context.Context, request *pb.ScrollPoints) ([]*pb.RetrievedPoint, error)
	Upsert(ctx context.Context, request *pb.UpsertPoints) (*pb.UpdateResult, error)
	Query(ctx context.Context, request *pb.QueryPoints) ([]*pb.ScoredPoint, error)
	Close() error
}

// QdrantIndex stores policy chunks as points in a Qdrant collection reached
// through an alias. Each build fills a fresh versioned collection and the
// alias is switched to it in one alias update, so readers always see either
// the previous index or the new one.
//
// Index metadata rides on every point payload; the index counts as built once
// the aliased collection holds as many points as the payload says it should.
type QdrantIndex struct {
	client qdrantClient
	alias  string
}

func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	client, err := pb.NewClient(&pb.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to qdrant at %s:%d: %w", contract.ErrUpstream, cfg.Host, cfg.Port, err)
	}

	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("alias", cfg.Collection).Msg("connected to qdrant")
	return newQdrantIndex(client, cfg.Collection), nil
}

func newQdrantIndex(client qdrantClient, alias string) *QdrantIndex {
	return &QdrantIndex{client: client, alias: alias}
}

// target returns the collection currently serving the alias. A plain
// collection carrying the alias name is reported as itself; "" means nothing
// has been built.
func (q *QdrantIndex) target(ctx context.Context) (string, error) {
	aliases, err := q.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: qdrant list aliases: %w", contract.ErrUpstream, err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == q.alias {
			return a.GetCollectionName(), nil
		}
	}

	exists, err := q.client.CollectionExists(ctx, q.alias)
	if err != nil {
		return "", fmt.Errorf("%w: qdrant collection exists: %w", contract.ErrUpstream, err)
	}
	if exists {
		return q.alias, nil
	}
	return "", nil
}

func (q *QdrantIndex) Built(ctx context.Context) (bool, error) {
	target, err := q.target(ctx)
	if err != nil {
		return false, err
	}
	if target == "" {
		return false, nil
	}

	count, err := q.client.Count(ctx, &pb.CountPoints{
		CollectionName: q.alias,
		Exact:          pb.PtrOf(true),
	})
	if err != nil {
		return false, fmt.Errorf("%w: qdrant count: %w", contract.ErrUpstream, err)
	}
	if count == 0 {
		return false, nil
	}

	meta, err := q.Meta(ctx)
	if err != nil {
		return false, err
	}
	return count >= uint64(meta.ChunkCount), nil
}

func (q *QdrantIndex) Meta(ctx context.Context) (contract.IndexMeta, error) {
	target, err := q.target(ctx)
	if err != nil {
		return contract.IndexMeta{}, err
	}
	if target == "" {
		return contract.IndexMeta{}, ErrIndexNotBuilt
	}

	points, err := q.client.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: q.alias,
		Limit:          pb.PtrOf(uint32(1)),
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		return contract.IndexMeta{}, fmt.Errorf("%w: qdrant scroll: %w", contract.ErrUpstream, err)
	}
	if len(points) == 0 {
		return contract.IndexMeta{}, ErrIndexNotBuilt
	}
	return metaFromPayload(points[0].GetPayload()), nil
}

// Replace builds a new collection and then points the alias at it. The
// previous collection is dropped only after the switch.
func (q *QdrantIndex) Replace(ctx context.Context, meta contract.IndexMeta, chunks []contract.IndexedChunk) error {
	prev, err := q.target(ctx)
	if err != nil {
		return err
	}

	next := q.versionName()
	err = q.client.CreateCollection(ctx, &pb.CreateCollection{
		CollectionName: next,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     uint64(meta.Dimension),
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant create collection %s: %w", contract.ErrUpstream, next, err)
	}

	if err := q.upsertChunks(ctx, next, meta, chunks); err != nil {
		if delErr := q.client.DeleteCollection(ctx, next); delErr != nil {
			log.Warn().Err(delErr).Str("collection", next).Msg("drop unfinished qdrant collection")
		}
		return err
	}

	var actions []*pb.AliasOperations
	switch prev {
	case "":
	case q.alias:
		// A plain collection holds the alias name and has to go before the
		// alias can be created.
		if err := q.client.DeleteCollection(ctx, q.alias); err != nil {
			return fmt.Errorf("%w: qdrant delete collection %s: %w", contract.ErrUpstream, q.alias, err)
		}
	default:
		actions = append(actions, &pb.AliasOperations{
			Action: &pb.AliasOperations_DeleteAlias{
				DeleteAlias: &pb.DeleteAlias{AliasName: q.alias},
			},
		})
	}
	actions = append(actions, &pb.AliasOperations{
		Action: &pb.AliasOperations_CreateAlias{
			CreateAlias: &pb.CreateAlias{CollectionName: next, AliasName: q.alias},
		},
	})
	if err := q.client.UpdateAliases(ctx, actions); err != nil {
		return fmt.Errorf("%w: qdrant switch alias %s to %s: %w", contract.ErrUpstream, q.alias, next, err)
	}

	if prev != "" && prev != q.alias {
		if err := q.client.DeleteCollection(ctx, prev); err != nil {
			log.Warn().Err(err).Str("collection", prev).Msg("drop previous qdrant collection")
		}
	}

	log.Info().Str("alias", q.alias).Str("collection", next).Int("points", len(chunks)).Msg("qdrant policy collection rebuilt")
	return nil
}

func (q *QdrantIndex) upsertChunks(ctx context.Context, collection string, meta contract.IndexMeta, chunks []contract.IndexedChunk) error {
	for start := 0; start < len(chunks); start += qdrantUpsertBatch {
		end := min(start+qdrantUpsertBatch, len(chunks))

		points := make([]*pb.PointStruct, 0, end-start)
		for _, c := range chunks[start:end] {
			points = append(points, &pb.PointStruct{
				Id:      pb.NewIDUUID(q.pointID(c.Seq)),
				Vectors: pb.NewVectors(c.Vector...),
				Payload: pb.NewValueMap(chunkPayload(meta, c)),
			})
		}

		_, err := q.client.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: collection,
			Wait:           pb.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("%w: qdrant upsert: %w", contract.ErrUpstream, err)
		}
	}
	return nil
}

func (q *QdrantIndex) versionName() string {
	return fmt.Sprintf("%s_%s_%s", q.alias, time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]contract.ScoredChunk, error) {
	points, err := q.client.Query(ctx, &pb.QueryPoints{
		CollectionName: q.alias,
		Query:          pb.NewQuery(vector...),
		Limit:          pb.PtrOf(uint64(k)),
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant query: %w", contract.ErrUpstream, err)
	}

	scored := make([]contract.ScoredChunk, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		scored = append(scored, contract.ScoredChunk{
			Seq:   int(payload["seq"].GetIntegerValue()),
			Text:  payload["text"].GetStringValue(),
			Score: p.GetScore(),
		})
	}
	rankChunks(scored)
	return scored, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func (q *QdrantIndex) pointID(seq int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s/%d", q.alias, seq)).String()
}

func chunkPayload(meta contract.IndexMeta, c contract.IndexedChunk) map[string]any {
	return map[string]any{
		"seq":           int64(c.Seq),
		"text":          c.Text,
		"source_path":   meta.SourcePath,
		"source_sha256": meta.SourceSHA256,
		"embedder":      meta.Embedder,
		"dimension":     int64(meta.Dimension),
		"chunk_count":   int64(meta.ChunkCount),
		"built_at":      meta.BuiltAt.UTC().Format(time.RFC3339),
	}
}

func metaFromPayload(payload map[string]*pb.Value) contract.IndexMeta {
	builtAt, _ := time.Parse(time.RFC3339, payload["built_at"].GetStringValue())
	return contract.IndexMeta{
		SourcePath:   payload["source_path"].GetStringValue(),
		SourceSHA256: payload["source_sha256"].GetStringValue(),
		Embedder:     payload["embedder"].GetStringValue(),
		Dimension:    int(payload["dimension"].GetIntegerValue()),
		ChunkCount:   int(payload["chunk_count"].GetIntegerValue()),
		BuiltAt:      builtAt,
	}
}
