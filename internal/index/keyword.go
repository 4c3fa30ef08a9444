package index

import (
	"math"
	"sort"

	"go.etcd.io/bbolt"
)

// SearchKeyword runs BM25 over the inverted index and returns the top k
// chunks by lexical relevance. An empty index yields an empty, non-error
// result.
func (s *Store) SearchKeyword(query string, k int) ([]SearchResult, error) {
	queryTokens := s.tokenizer.Tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	var results []SearchResult
	err := s.db.View(func(tx *bbolt.Tx) error {
		stats, err := readStats(tx)
		if err != nil {
			return err
		}
		if stats.TotalChunks == 0 {
			return nil
		}

		N := float64(stats.TotalChunks)
		avgDl := stats.AvgChunkLen()

		scores := make(map[string]float64)
		lengths := make(map[string]int)

		for _, term := range queryTokens {
			postings := readPostings(tx, term)
			if len(postings) == 0 {
				continue
			}

			n := float64(len(postings))
			idf := math.Log((N-n+0.5)/(n+0.5) + 1)

			for _, p := range postings {
				dl, ok := lengths[p.chunkID]
				if !ok {
					var chunk Chunk
					if err := readChunk(tx, p.chunkID, &chunk); err != nil {
						continue
					}
					dl = len(chunk.Tokens)
					lengths[p.chunkID] = dl
				}

				tf := float64(p.tf)
				norm := tf + s.k1*(1-s.b+s.b*float64(dl)/avgDl)
				scores[p.chunkID] += idf * (tf * (s.k1 + 1)) / norm
			}
		}

		results = make([]SearchResult, 0, len(scores))
		for id, score := range scores {
			results = append(results, SearchResult{ChunkID: id, Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
