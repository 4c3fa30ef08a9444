// Package index persists ingested documents and serves the two search
// back-ends of the engine: BM25 keyword search over an inverted index and
// brute-force cosine search over embedding vectors. Both sit in a single
// BoltDB file so one document commits atomically.
package index

import "time"

// Document is an ingested document. Immutable once stored.
type Document struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"` // filename, or "pasted-text" for raw text
	IngestedAt time.Time `json:"ingested_at"`
	ChunkCount int       `json:"chunk_count"`
}

// Chunk is the unit of embedding and retrieval. Text is a verbatim span of
// the owning document's extracted text; Page is the page it came from, 0 if
// the source has no pages.
type Chunk struct {
	ID      string   `json:"id"`
	DocID   string   `json:"doc_id"`
	Ordinal int      `json:"ordinal"`
	Text    string   `json:"text"`
	Page    int      `json:"page,omitempty"`
	Tokens  []string `json:"tokens"`
}

// SearchResult is one ranked hit from either back-end.
type SearchResult struct {
	ChunkID string
	Score   float64
}

// Stats holds corpus-level counters used by BM25 scoring.
type Stats struct {
	TotalDocs   int `json:"total_docs"`
	TotalChunks int `json:"total_chunks"`
	TotalTokens int `json:"total_tokens"`
}

// AvgChunkLen returns the mean chunk length in tokens.
func (s Stats) AvgChunkLen() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(s.TotalTokens) / float64(s.TotalChunks)
}
