package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/ragserve/internal/index"
	"github.com/dgallion1/ragserve/internal/provider"
	"github.com/dgallion1/ragserve/internal/ragerr"
)

// SearchIndex is the slice of the index store the retriever needs. Tests
// substitute fakes to exercise back-end failures.
type SearchIndex interface {
	SearchVector(query []float32, k int) ([]index.SearchResult, error)
	SearchKeyword(query string, k int) ([]index.SearchResult, error)
	GetChunk(id string) (index.Chunk, error)
	GetDocument(id string) (index.Document, error)
}

// Candidate is one retrieved chunk with its per-source ranks and scores.
// Rank -1 means the chunk did not appear in that source's top list.
type Candidate struct {
	Chunk       index.Chunk
	Source      string // owning document's source name
	DenseRank   int
	SparseRank  int
	DenseScore  float64
	SparseScore float64
	Fused       float64
	RerankScore float64 // set by the orchestrator when reranking succeeds
}

// Retrieval is the outcome of hybrid search for one query.
type Retrieval struct {
	Candidates []Candidate
	Degraded   bool   // one back-end was unavailable
	LostSource string // "dense" or "sparse" when degraded
}

// RetrieveConfig tunes hybrid retrieval.
type RetrieveConfig struct {
	TopK         int           // fused candidates kept
	RRFConstant  int           // reciprocal-rank fusion constant, typically 60
	EmbedTimeout time.Duration // query embedding ceiling
}

// Retriever runs dense and sparse search concurrently and fuses the ranked
// lists with reciprocal-rank fusion. Results are deterministic for a fixed
// index and query: ties break by dense rank, then chunk ID.
type Retriever struct {
	idx      SearchIndex
	embedder provider.Embedder
	cfg      RetrieveConfig
	log      *slog.Logger
}

func NewRetriever(idx SearchIndex, embedder provider.Embedder, cfg RetrieveConfig, log *slog.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 20
	}
	if cfg.RRFConstant <= 0 {
		cfg.RRFConstant = 60
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 30 * time.Second
	}
	return &Retriever{idx: idx, embedder: embedder, cfg: cfg, log: log}
}

// EmbedQuery embeds the query text in the same embedding space the indexed
// chunks live in.
func (r *Retriever) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancel()

	vecs, err := r.embedder.Embed(callCtx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, errors.New("embedder returned no vector for query")
	}
	return vecs[0], nil
}

// Search runs both back-ends and fuses their rankings. A nil queryVec means
// query embedding failed; dense search is then unavailable and the result
// degrades to sparse-only. If both back-ends are unavailable the turn fails
// with a retrieval-unavailable error. An empty index is a valid empty result,
// not an error.
func (r *Retriever) Search(ctx context.Context, query string, queryVec []float32) (*Retrieval, error) {
	var (
		dense, sparse       []index.SearchResult
		denseErr, sparseErr error
	)
	if queryVec == nil {
		denseErr = errors.New("query embedding unavailable")
	}

	// Both searches are read-only and independent; run them concurrently.
	// Errors are collected, not propagated, so one side failing never
	// cancels the other.
	var g errgroup.Group
	if denseErr == nil {
		g.Go(func() error {
			dense, denseErr = r.idx.SearchVector(queryVec, r.cfg.TopK)
			return nil
		})
	}
	g.Go(func() error {
		sparse, sparseErr = r.idx.SearchKeyword(query, r.cfg.TopK)
		return nil
	})
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if denseErr != nil && sparseErr != nil {
		return nil, ragerr.Wrap(ragerr.KindRetrievalUnavailable, errors.Join(denseErr, sparseErr),
			"both search back-ends unavailable")
	}

	ret := &Retrieval{}
	switch {
	case denseErr != nil:
		ret.Degraded = true
		ret.LostSource = "dense"
		r.log.Warn("dense search unavailable, degrading to keyword-only", "error", denseErr)
	case sparseErr != nil:
		ret.Degraded = true
		ret.LostSource = "sparse"
		r.log.Warn("keyword search unavailable, degrading to dense-only", "error", sparseErr)
	}

	ret.Candidates = r.fuse(dense, sparse)
	if len(ret.Candidates) > r.cfg.TopK {
		ret.Candidates = ret.Candidates[:r.cfg.TopK]
	}
	return ret, nil
}

// fuse combines the two ranked lists with reciprocal-rank fusion: a
// candidate's fused score is the sum of 1/(C + rank + 1) over every list it
// appears in. Candidates absent from a list contribute nothing from it.
func (r *Retriever) fuse(dense, sparse []index.SearchResult) []Candidate {
	byID := make(map[string]*Candidate)

	lookup := func(id string) *Candidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &Candidate{DenseRank: -1, SparseRank: -1}
		byID[id] = c
		return c
	}

	c0 := float64(r.cfg.RRFConstant)
	for rank, res := range dense {
		c := lookup(res.ChunkID)
		c.DenseRank = rank
		c.DenseScore = res.Score
		c.Fused += 1 / (c0 + float64(rank) + 1)
	}
	for rank, res := range sparse {
		c := lookup(res.ChunkID)
		c.SparseRank = rank
		c.SparseScore = res.Score
		c.Fused += 1 / (c0 + float64(rank) + 1)
	}

	fused := make([]Candidate, 0, len(byID))
	for id, c := range byID {
		chunk, err := r.idx.GetChunk(id)
		if err != nil {
			r.log.Warn("fused candidate has no stored chunk, dropping", "chunk_id", id, "error", err)
			continue
		}
		c.Chunk = chunk
		if doc, err := r.idx.GetDocument(chunk.DocID); err == nil {
			c.Source = doc.Source
		}
		fused = append(fused, *c)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.Fused != b.Fused {
			return a.Fused > b.Fused
		}
		if a.DenseRank != b.DenseRank {
			if a.DenseRank == -1 {
				return false
			}
			if b.DenseRank == -1 {
				return true
			}
			return a.DenseRank < b.DenseRank
		}
		return a.Chunk.ID < b.Chunk.ID
	})
	return fused
}
