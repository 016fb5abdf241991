package policy

import (
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultSeparator    = "\n\n"
)

// Splitter cuts a document on Separator and greedily merges the pieces into
// chunks of at most ChunkSize characters. Consecutive chunks share trailing
// pieces totalling at most ChunkOverlap characters.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separator    string
}

func NewSplitter(size, overlap int) Splitter {
	s := Splitter{ChunkSize: size, ChunkOverlap: overlap, Separator: DefaultSeparator}
	if s.ChunkSize <= 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		s.ChunkOverlap = 0
	}
	return s
}

func (s Splitter) Split(text string) []string {
	sep := s.Separator
	if sep == "" {
		sep = DefaultSeparator
	}
	sepLen := utf8.RuneCountInString(sep)

	var pieces []string
	for _, p := range strings.Split(text, sep) {
		if strings.TrimSpace(p) != "" {
			pieces = append(pieces, p)
		}
	}

	var (
		chunks  []string
		current []string
		total   int
	)
	joinedLen := func(extra int) int {
		if len(current) == 0 {
			return total + extra
		}
		return total + extra + sepLen
	}

	for _, piece := range pieces {
		pieceLen := utf8.RuneCountInString(piece)

		if joinedLen(pieceLen) > s.ChunkSize && len(current) > 0 {
			if total > s.ChunkSize {
				log.Warn().Int("length", total).Int("chunk_size", s.ChunkSize).Msg("policy chunk exceeds chunk size")
			}
			if chunk := joinPieces(current, sep); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for len(current) > 0 && (total > s.ChunkOverlap || joinedLen(pieceLen) > s.ChunkSize) {
				total -= utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}

		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, piece)
		total += pieceLen
	}

	if chunk := joinPieces(current, sep); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func joinPieces(pieces []string, sep string) string {
	return strings.TrimSpace(strings.Join(pieces, sep))
}
