// Package provider holds the external capability contracts the engine
// depends on — embedding, reranking and answer generation — and HTTP clients
// for them. The engine only sees the interfaces, so providers are swappable
// and tests run against in-process fakes.
package provider

import (
	"context"
	"fmt"
)

// Embedder maps texts to fixed-length dense vectors. The same embedder must
// serve ingestion and queries so both live in one embedding space.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int
}

// Reranker scores query-document pairs with a model independent of the
// fusion score.
type Reranker interface {
	// Rerank returns results sorted by relevance, highest first. Index
	// refers back to the input documents slice.
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)
}

// RerankResult is one rescored document.
type RerankResult struct {
	Index int     // position in the input slice
	Score float64 // relevance, higher is better
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RetryableError indicates a transient upstream failure (rate limit, 5xx)
// that is worth retrying with backoff.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
