package service

import (
	"strings"

	"github.com/parley-labs/parley/internal/domain"
)

// ChunkConfig controls how knowledge text is split for embedding. Bounds
// are word counts; overlap carries trailing context into the next chunk.
type ChunkConfig struct {
	MinWords     int
	MaxWords     int
	OverlapWords int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MinWords:     500,
		MaxWords:     800,
		OverlapWords: 100,
	}
}

// ChunkText splits text into overlapping word-bounded chunks aligned to
// sentence boundaries where possible. Empty or whitespace-only input
// yields no chunks; input at or under MaxWords yields a single chunk of
// the whitespace-normalized text.
func ChunkText(text string, cfg ChunkConfig) []domain.KnowledgeChunk {
	if cfg.MaxWords <= 0 {
		cfg = DefaultChunkConfig()
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	if len(words) <= cfg.MaxWords {
		return []domain.KnowledgeChunk{{Text: strings.Join(words, " "), Ordinal: 0}}
	}

	chunks := make([]domain.KnowledgeChunk, 0, 8)
	start := 0
	for start < len(words) {
		end := start + cfg.MaxWords
		if end > len(words) {
			end = len(words)
		}

		if end < len(words) {
			// Scan backward for a sentence-ending word, but never below
			// MinWords into the chunk.
			floor := start + cfg.MinWords
			for i := end - 1; i >= floor; i-- {
				if endsSentence(words[i]) {
					end = i + 1
					break
				}
			}
		}

		chunks = append(chunks, domain.KnowledgeChunk{
			Text:    strings.Join(words[start:end], " "),
			Ordinal: len(chunks),
		})

		if end >= len(words) {
			break
		}

		// Always advance at least one word so the loop terminates even
		// when OverlapWords >= the chunk length near the tail.
		next := end - cfg.OverlapWords
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

func endsSentence(word string) bool {
	switch {
	case strings.HasSuffix(word, "."), strings.HasSuffix(word, "!"), strings.HasSuffix(word, "?"):
		return true
	}
	return false
}
