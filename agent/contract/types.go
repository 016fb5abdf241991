package contract

import "time"

const DefaultUserID int64 = 1

type ChatRequest struct {
	Query  string `json:"query"`
	UserID int64  `json:"user_id"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type IndexMeta struct {
	SourcePath   string    `json:"source_path"`
	SourceSHA256 string    `json:"source_sha256"`
	Embedder     string    `json:"embedder"`
	Dimension    int       `json:"dimension"`
	ChunkCount   int       `json:"chunk_count"`
	BuiltAt      time.Time `json:"built_at"`
}

type IndexedChunk struct {
	Seq    int       `json:"seq"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

type ScoredChunk struct {
	Seq   int     `json:"seq"`
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}
