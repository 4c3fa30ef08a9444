package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dgallion1/ragserve/internal/index"
	"github.com/dgallion1/ragserve/internal/provider"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmbedder returns a fixed vector per text, or fails every call.
type fakeEmbedder struct {
	dim   int
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := f.vec
		if v == nil {
			v = make([]float32, f.dim)
			v[0] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

// fakeSearchIndex serves canned search results and chunks.
type fakeSearchIndex struct {
	dense     []index.SearchResult
	sparse    []index.SearchResult
	denseErr  error
	sparseErr error
	chunks    map[string]index.Chunk
	docs      map[string]index.Document
}

func (f *fakeSearchIndex) SearchVector(_ []float32, k int) ([]index.SearchResult, error) {
	if f.denseErr != nil {
		return nil, f.denseErr
	}
	return truncateResults(f.dense, k), nil
}

func (f *fakeSearchIndex) SearchKeyword(_ string, k int) ([]index.SearchResult, error) {
	if f.sparseErr != nil {
		return nil, f.sparseErr
	}
	return truncateResults(f.sparse, k), nil
}

func (f *fakeSearchIndex) GetChunk(id string) (index.Chunk, error) {
	c, ok := f.chunks[id]
	if !ok {
		return index.Chunk{}, errors.New("chunk not found: " + id)
	}
	return c, nil
}

func (f *fakeSearchIndex) GetDocument(id string) (index.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return index.Document{}, errors.New("document not found: " + id)
	}
	return d, nil
}

func truncateResults(rs []index.SearchResult, k int) []index.SearchResult {
	if len(rs) > k {
		return rs[:k]
	}
	return rs
}

// newFakeIndex builds an index where chunk c<i> belongs to document doc1.
func newFakeIndex(t *testing.T, texts map[string]string) *fakeSearchIndex {
	t.Helper()
	f := &fakeSearchIndex{
		chunks: make(map[string]index.Chunk),
		docs: map[string]index.Document{
			"doc1": {ID: "doc1", Source: "guide.md", ChunkCount: len(texts)},
		},
	}
	for id, text := range texts {
		f.chunks[id] = index.Chunk{ID: id, DocID: "doc1", Text: text}
	}
	return f
}

type fakeReranker struct {
	results []provider.RerankResult
	err     error
	calls   int
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, _ []string) ([]provider.RerankResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeGenerator struct {
	response string
	err      error
	calls    int
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}
