package policy

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/tanpawarit/agentic-support/agent/contract"
)

const boltFileName = "index.db"

var (
	metaBucket   = []byte("meta")
	chunksBucket = []byte("chunks")

	metaKey  = []byte("meta")
	builtKey = []byte("built")
)

type storedChunk struct {
	Seq    int       `json:"seq"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// BoltIndex persists chunks and their vectors in a single bbolt file and
// answers queries with an exact cosine scan.
//
// The file is opened read-write, so bbolt holds an exclusive lock on it for
// the lifetime of the index; a second process opening the same directory
// waits up to the lock timeout.
type BoltIndex struct {
	db *bolt.DB

	mu     sync.RWMutex
	cached []storedChunk
	loaded bool
}

func OpenBoltIndex(dir string, lockTimeout time.Duration) (*BoltIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, boltFileName)
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("open policy index %s: %w", path, err)
	}

	return &BoltIndex{db: db}, nil
}

func (b *BoltIndex) Built(ctx context.Context) (bool, error) {
	built := false
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(metaBucket)
		if bkt == nil {
			return nil
		}
		built = bkt.Get(builtKey) != nil
		return nil
	})
	return built, err
}

func (b *BoltIndex) Meta(ctx context.Context) (contract.IndexMeta, error) {
	var meta contract.IndexMeta
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(metaBucket)
		if bkt == nil || bkt.Get(builtKey) == nil {
			return ErrIndexNotBuilt
		}
		raw := bkt.Get(metaKey)
		if raw == nil {
			return ErrIndexNotBuilt
		}
		return json.Unmarshal(raw, &meta)
	})
	return meta, err
}

// Replace drops any previous content and writes the new chunks in one
// transaction. The built marker is the last key written.
func (b *BoltIndex) Replace(ctx context.Context, meta contract.IndexMeta, chunks []contract.IndexedChunk) error {
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{metaBucket, chunksBucket} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
		}

		chunkBkt, err := tx.CreateBucket(chunksBucket)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			raw, err := json.Marshal(storedChunk{Seq: c.Seq, Text: c.Text, Vector: c.Vector})
			if err != nil {
				return err
			}
			if err := chunkBkt.Put(seqKey(c.Seq), raw); err != nil {
				return err
			}
		}

		metaBkt, err := tx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		if err := metaBkt.Put(metaKey, rawMeta); err != nil {
			return err
		}
		return metaBkt.Put(builtKey, []byte(meta.BuiltAt.UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return fmt.Errorf("write policy index: %w", err)
	}

	b.mu.Lock()
	b.cached, b.loaded = nil, false
	b.mu.Unlock()
	return nil
}

func (b *BoltIndex) Search(ctx context.Context, vector []float32, k int) ([]contract.ScoredChunk, error) {
	chunks, err := b.load()
	if err != nil {
		return nil, err
	}

	scored := make([]contract.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		scored = append(scored, contract.ScoredChunk{Seq: c.Seq, Text: c.Text, Score: cosine(vector, c.Vector)})
	}
	rankChunks(scored)

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

func (b *BoltIndex) Close() error {
	return b.db.Close()
}

func (b *BoltIndex) load() ([]storedChunk, error) {
	b.mu.RLock()
	if b.loaded {
		defer b.mu.RUnlock()
		return b.cached, nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return b.cached, nil
	}

	var chunks []storedChunk
	err := b.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		bkt := tx.Bucket(chunksBucket)
		if meta == nil || meta.Get(builtKey) == nil || bkt == nil {
			return ErrIndexNotBuilt
		}
		return bkt.ForEach(func(_, v []byte) error {
			var c storedChunk
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			chunks = append(chunks, c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	b.cached, b.loaded = chunks, true
	return chunks, nil
}

func seqKey(seq int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}

// rankChunks orders by score descending, then by sequence ascending.
func rankChunks(chunks []contract.ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].Seq < chunks[j].Seq
	})
}
