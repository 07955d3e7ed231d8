package service

import (
	"strings"
	"unicode"
)

// ChunkConfig controls how extracted document text is cut into passages.
// Lengths are in runes. MaxChunks <= 0 means unbounded.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultChunkConfig matches the passage size the retrieval thresholds were tuned for.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  1000,
		MinChars:  250,
		Overlap:   128,
		MaxChunks: 0,
	}
}

// Chunker splits text into overlapping passages. The output depends only on
// the input text and the config, so re-ingesting identical text yields
// identical boundaries.
type Chunker struct {
	cfg ChunkConfig
}

func NewChunker(cfg ChunkConfig) *Chunker {
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.Overlap >= cfg.MaxChars {
		cfg.Overlap = cfg.MaxChars / 4
	}
	if cfg.MinChars > cfg.MaxChars {
		cfg.MinChars = cfg.MaxChars / 2
	}
	return &Chunker{cfg: cfg}
}

func (c *Chunker) Split(text string) []string {
	return chunkText(text, c.cfg)
}

func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, len(runes)/cfg.MaxChars+1)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := min(start+cfg.MaxChars, len(runes))
		if end < len(runes) {
			end = backToSpace(runes, start, end, cfg.MinChars)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		next := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			next = skipToWordStart(runes, end-cfg.Overlap, end)
		}
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// backToSpace moves end left to the nearest whitespace, but not below start+minChars.
func backToSpace(runes []rune, start, end, minChars int) int {
	floor := start + minChars
	if floor > end {
		floor = start
	}
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

// skipToWordStart advances from into the next word so overlaps never begin mid-word.
func skipToWordStart(runes []rune, from, limit int) int {
	i := from
	for i < limit && i > 0 && !unicode.IsSpace(runes[i-1]) {
		i++
	}
	if i >= limit {
		return from
	}
	return i
}
