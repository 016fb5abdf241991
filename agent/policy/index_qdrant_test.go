package policy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/tanpawarit/agentic-support/agent/contract"
)

// fakeQdrant keeps collections and aliases in memory. Point operations
// resolve aliases the way the server does.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string][]*pb.PointStruct
	aliases     map[string]string

	// onUpsert runs before each upsert is applied, outside the lock.
	onUpsert func(collection string)
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{
		collections: map[string][]*pb.PointStruct{},
		aliases:     map[string]string{},
	}
}

func (f *fakeQdrant) resolve(name string) (string, bool) {
	if target, ok := f.aliases[name]; ok {
		name = target
	}
	_, ok := f.collections[name]
	return name, ok
}

func (f *fakeQdrant) CollectionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeQdrant) CreateCollection(_ context.Context, req *pb.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[req.GetCollectionName()]; ok {
		return errors.New("collection already exists")
	}
	f.collections[req.GetCollectionName()] = nil
	return nil
}

func (f *fakeQdrant) DeleteCollection(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	for alias, target := range f.aliases {
		if target == name {
			delete(f.aliases, alias)
		}
	}
	return nil
}

func (f *fakeQdrant) ListAliases(context.Context) ([]*pb.AliasDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*pb.AliasDescription, 0, len(f.aliases))
	for alias, target := range f.aliases {
		out = append(out, &pb.AliasDescription{AliasName: alias, CollectionName: target})
	}
	return out, nil
}

func (f *fakeQdrant) UpdateAliases(_ context.Context, actions []*pb.AliasOperations) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := make(map[string]string, len(f.aliases))
	for k, v := range f.aliases {
		next[k] = v
	}
	for _, a := range actions {
		switch {
		case a.GetDeleteAlias() != nil:
			delete(next, a.GetDeleteAlias().GetAliasName())
		case a.GetCreateAlias() != nil:
			c := a.GetCreateAlias()
			if _, ok := f.collections[c.GetAliasName()]; ok {
				return errors.New("alias clashes with a collection")
			}
			next[c.GetAliasName()] = c.GetCollectionName()
		}
	}
	f.aliases = next
	return nil
}

func (f *fakeQdrant) Count(_ context.Context, req *pb.CountPoints) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.resolve(req.GetCollectionName())
	if !ok {
		return 0, errors.New("collection not found")
	}
	return uint64(len(f.collections[name])), nil
}

func (f *fakeQdrant) Scroll(_ context.Context, req *pb.ScrollPoints) ([]*pb.RetrievedPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.resolve(req.GetCollectionName())
	if !ok {
		return nil, errors.New("collection not found")
	}
	points := f.collections[name]
	if len(points) == 0 {
		return nil, nil
	}
	return []*pb.RetrievedPoint{{Payload: points[0].GetPayload()}}, nil
}

func (f *fakeQdrant) Upsert(_ context.Context, req *pb.UpsertPoints) (*pb.UpdateResult, error) {
	if f.onUpsert != nil {
		f.onUpsert(req.GetCollectionName())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.resolve(req.GetCollectionName())
	if !ok {
		return nil, errors.New("collection not found")
	}
	f.collections[name] = append(f.collections[name], req.GetPoints()...)
	return &pb.UpdateResult{}, nil
}

// Query returns every point with a fixed score; ranking falls back to seq.
func (f *fakeQdrant) Query(_ context.Context, req *pb.QueryPoints) ([]*pb.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.resolve(req.GetCollectionName())
	if !ok {
		return nil, errors.New("collection not found")
	}
	out := make([]*pb.ScoredPoint, 0, len(f.collections[name]))
	for _, p := range f.collections[name] {
		out = append(out, &pb.ScoredPoint{Payload: p.GetPayload(), Score: 0.5})
	}
	return out, nil
}

func (f *fakeQdrant) Close() error { return nil }

func qdrantChunks(texts ...string) (contract.IndexMeta, []contract.IndexedChunk) {
	chunks := make([]contract.IndexedChunk, len(texts))
	for i, t := range texts {
		chunks[i] = contract.IndexedChunk{Seq: i, Text: t, Vector: []float32{1, 0}}
	}
	meta := contract.IndexMeta{
		SourcePath:   "data/policies.txt",
		SourceSHA256: texts[0],
		Dimension:    2,
		ChunkCount:   len(chunks),
		BuiltAt:      time.Now().UTC(),
	}
	return meta, chunks
}

func TestQdrantReplaceKeepsServingPreviousIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeQdrant()
	index := newQdrantIndex(fake, "policies")

	if built, err := index.Built(ctx); err != nil || built {
		t.Fatalf("Built() on empty server = (%v, %v)", built, err)
	}

	meta, chunks := qdrantChunks("Returns are accepted within 30 days.", "Shipping takes 3-5 days.")
	if err := index.Replace(ctx, meta, chunks); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	first := fake.aliases["policies"]

	var (
		checked   bool
		builtMid  bool
		searchMid []contract.ScoredChunk
		errMid    error
	)
	fake.onUpsert = func(string) {
		if checked {
			return
		}
		checked = true
		builtMid, errMid = index.Built(ctx)
		if errMid == nil {
			searchMid, errMid = index.Search(ctx, []float32{1, 0}, 5)
		}
	}

	meta, chunks = qdrantChunks("Gift cards are final sale.")
	if err := index.Replace(ctx, meta, chunks); err != nil {
		t.Fatalf("second Replace() error = %v", err)
	}

	if errMid != nil || !builtMid {
		t.Fatalf("Built() during rebuild = (%v, %v), want (true, nil)", builtMid, errMid)
	}
	if len(searchMid) != 2 || searchMid[0].Text != "Returns are accepted within 30 days." {
		t.Fatalf("Search() during rebuild = %+v, want the previous chunks", searchMid)
	}

	hits, err := index.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Text != "Gift cards are final sale." {
		t.Fatalf("Search() after rebuild = %+v", hits)
	}

	second := fake.aliases["policies"]
	if second == first {
		t.Fatal("alias still points at the first collection")
	}
	if _, ok := fake.collections[first]; ok {
		t.Fatalf("previous collection %s was not dropped", first)
	}
	if got, err := index.Meta(ctx); err != nil || got.ChunkCount != 1 {
		t.Fatalf("Meta() = (%+v, %v)", got, err)
	}
}

func TestQdrantReplaceTakesOverPlainCollection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeQdrant()
	fake.collections["policies"] = nil
	index := newQdrantIndex(fake, "policies")

	meta, chunks := qdrantChunks("Returns are accepted within 30 days.")
	if err := index.Replace(ctx, meta, chunks); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	if _, ok := fake.collections["policies"]; ok {
		t.Fatal("plain collection with the alias name is still there")
	}
	if target := fake.aliases["policies"]; target == "" || target == "policies" {
		t.Fatalf("alias target = %q", target)
	}
	if built, err := index.Built(ctx); err != nil || !built {
		t.Fatalf("Built() = (%v, %v), want (true, nil)", built, err)
	}
}

func TestQdrantFailedBuildLeavesNoCollection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := newFakeQdrant()
	index := newQdrantIndex(fake, "policies")

	meta, chunks := qdrantChunks("Returns are accepted within 30 days.")
	if err := index.Replace(ctx, meta, chunks); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	serving := fake.aliases["policies"]

	errDown := errors.New("qdrant went away")
	failing := &failingUpsert{fakeQdrant: fake, err: errDown}
	index = newQdrantIndex(failing, "policies")

	meta, chunks = qdrantChunks("Gift cards are final sale.")
	err := index.Replace(ctx, meta, chunks)
	if !errors.Is(err, contract.ErrUpstream) || !errors.Is(err, errDown) {
		t.Fatalf("Replace() error = %v, want ErrUpstream wrapping the cause", err)
	}
	if fake.aliases["policies"] != serving {
		t.Fatal("failed build moved the alias")
	}
	if len(fake.collections) != 1 {
		t.Fatalf("collections after failed build = %d, want 1", len(fake.collections))
	}
}

type failingUpsert struct {
	*fakeQdrant
	err error
}

func (f *failingUpsert) Upsert(context.Context, *pb.UpsertPoints) (*pb.UpdateResult, error) {
	return nil, f.err
}

func TestQdrantPointIDsAreStable(t *testing.T) {
	t.Parallel()

	q := newQdrantIndex(nil, "policies")
	if q.pointID(3) != q.pointID(3) {
		t.Fatal("point id is not deterministic")
	}
	if q.pointID(3) == q.pointID(4) {
		t.Fatal("distinct chunks share a point id")
	}
	other := newQdrantIndex(nil, "archive")
	if other.pointID(3) == q.pointID(3) {
		t.Fatal("collections share point ids")
	}
}

func TestQdrantPayloadRoundTripsMeta(t *testing.T) {
	t.Parallel()

	meta := contract.IndexMeta{
		SourcePath:   "data/policies.txt",
		SourceSHA256: "deadbeef",
		Embedder:     "text-embedding-3-small",
		Dimension:    1536,
		ChunkCount:   7,
		BuiltAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	payload := pb.NewValueMap(chunkPayload(meta, contract.IndexedChunk{Seq: 2, Text: "x"}))

	got := metaFromPayload(payload)
	if !got.BuiltAt.Equal(meta.BuiltAt) {
		t.Fatalf("BuiltAt = %v, want %v", got.BuiltAt, meta.BuiltAt)
	}
	got.BuiltAt = meta.BuiltAt
	if got != meta {
		t.Fatalf("metaFromPayload() = %+v, want %+v", got, meta)
	}
	if payload["seq"].GetIntegerValue() != 2 || payload["text"].GetStringValue() != "x" {
		t.Fatalf("chunk payload = %v", payload)
	}
}
