package index

import (
	"fmt"
	"math"
	"sort"
)

// SearchVector returns the top k chunks by cosine similarity to the query
// vector. Brute force over the in-memory cache; fine for the corpus sizes
// this service handles. An empty index yields an empty, non-error result.
func (s *Store) SearchVector(query []float32, k int) ([]SearchResult, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(query))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.vectors) == 0 {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(s.vectors))
	for id, vec := range s.vectors {
		results = append(results, SearchResult{
			ChunkID: id,
			Score:   cosineSimilarity(query, vec),
		})
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

// VectorCount returns the number of indexed vectors.
func (s *Store) VectorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
