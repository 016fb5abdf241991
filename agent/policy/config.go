package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/tanpawarit/agentic-support/agent/contract"
)

const (
	BackendBolt   = "bolt"
	BackendQdrant = "qdrant"
)

// Config is loaded with the POLICY prefix.
type Config struct {
	DocumentPath string `split_words:"true" default:"data/policies.txt"`
	IndexDir     string `split_words:"true" default:"data/policy_index"`
	Backend      string `default:"bolt"`

	ChunkSize        int `split_words:"true" default:"500"`
	ChunkOverlap     int `split_words:"true" default:"50"`
	TopK             int `split_words:"true" default:"2"`
	BatchSize        int `split_words:"true" default:"64"`
	EmbedConcurrency int `split_words:"true" default:"4"`

	LockTimeout time.Duration `split_words:"true" default:"30s"`

	// StaleCheck is the cron schedule of the document staleness job; empty disables it.
	StaleCheck  string `split_words:"true" default:"@every 1h"`
	AutoRebuild bool   `split_words:"true" default:"false"`

	QdrantHost       string `split_words:"true" default:"localhost"`
	QdrantPort       int    `split_words:"true" default:"6334"`
	QdrantCollection string `split_words:"true" default:"policies"`
	QdrantAPIKey     string `split_words:"true"`
	QdrantUseTLS     bool   `split_words:"true" default:"false"`
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendBolt:
		if strings.TrimSpace(c.IndexDir) == "" {
			return fmt.Errorf("%w: POLICY_INDEX_DIR is required for the bolt backend", contract.ErrValidation)
		}
	case BackendQdrant:
		if strings.TrimSpace(c.QdrantHost) == "" {
			return fmt.Errorf("%w: POLICY_QDRANT_HOST is required for the qdrant backend", contract.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown policy backend %q", contract.ErrValidation, c.Backend)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: POLICY_TOP_K must be positive", contract.ErrValidation)
	}
	return nil
}

// OpenIndex opens the vector index selected by cfg.Backend.
func OpenIndex(cfg Config) (contract.VectorIndex, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.ToLower(cfg.Backend) == BackendQdrant {
		return NewQdrantIndex(QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.QdrantCollection,
		})
	}
	return OpenBoltIndex(cfg.IndexDir, cfg.LockTimeout)
}
