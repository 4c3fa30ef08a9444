package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/ragserve/internal/provider"
	"github.com/dgallion1/ragserve/internal/ragerr"
)

// TurnState tracks where a chat turn is in its pipeline. A turn is terminal
// on the first success (done) or first unrecoverable failure (error).
type TurnState string

const (
	StateReceived   TurnState = "received"
	StateEmbedding  TurnState = "embedding"
	StateRetrieving TurnState = "retrieving"
	StateReranking  TurnState = "reranking"
	StateGenerating TurnState = "generating"
	StateDone       TurnState = "done"
	StateError      TurnState = "error"
)

// Citation is one grounded quote in an answer. Text is always a verbatim
// substring of a chunk retrieved for the same turn.
type Citation struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Page   int    `json:"page,omitempty"`
}

// Turn is the result of one chat query. Stateless across turns.
type Turn struct {
	Query          string
	State          TurnState
	Answer         string
	Citations      []Citation
	ProcessingTime float64 // wall-clock seconds, received to terminal
	Reranked       bool    // false when the reranker failed and fused order was used
	Degraded       bool    // true when one search back-end was unavailable
}

// ChatConfig tunes the chat pipeline.
type ChatConfig struct {
	TopN            int           // passages handed to the generator
	RerankTimeout   time.Duration // reranker call ceiling, failure degrades
	GenerateTimeout time.Duration // per-generation-call ceiling
	MaxRetries      int           // generation attempts before GenerationError
}

// NoResultsAnswer is returned without calling the generator when retrieval
// finds nothing; generating from an empty context invites fabrication.
const NoResultsAnswer = "I couldn't find anything relevant in the indexed documents. Try ingesting a document first."

// Orchestrator drives a chat turn end to end: embed, hybrid retrieve,
// rerank, generate, extract citations.
type Orchestrator struct {
	retriever *Retriever
	reranker  provider.Reranker
	generator provider.Generator
	cfg       ChatConfig
	log       *slog.Logger
}

func NewOrchestrator(retriever *Retriever, reranker provider.Reranker, generator provider.Generator, cfg ChatConfig, log *slog.Logger) *Orchestrator {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if cfg.RerankTimeout <= 0 {
		cfg.RerankTimeout = 15 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Orchestrator{
		retriever: retriever,
		reranker:  reranker,
		generator: generator,
		cfg:       cfg,
		log:       log,
	}
}

// Chat answers one query. On error the returned turn is in the error state
// with its processing time set; the error kind decides the response status.
func (o *Orchestrator) Chat(ctx context.Context, query string) (*Turn, error) {
	start := time.Now()
	turn := &Turn{Query: query, State: StateReceived}

	finish := func(state TurnState) {
		turn.State = state
		turn.ProcessingTime = time.Since(start).Seconds()
	}

	// Embed the query. Failure here is not terminal: retrieval degrades to
	// keyword-only.
	turn.State = StateEmbedding
	queryVec, err := o.retriever.EmbedQuery(ctx, query)
	if err != nil {
		o.log.Warn("query embedding failed", "error", err)
		queryVec = nil
	}

	turn.State = StateRetrieving
	ret, err := o.retriever.Search(ctx, query, queryVec)
	if err != nil {
		finish(StateError)
		return turn, err
	}
	turn.Degraded = ret.Degraded

	if len(ret.Candidates) == 0 {
		turn.Answer = NoResultsAnswer
		finish(StateDone)
		return turn, nil
	}

	turn.State = StateReranking
	final := o.rerank(ctx, query, ret.Candidates, turn)

	turn.State = StateGenerating
	var raw string
	err = withRetries(ctx, o.cfg.MaxRetries, o.cfg.GenerateTimeout, func(callCtx context.Context) error {
		var genErr error
		raw, genErr = o.generator.Generate(callCtx, buildAnswerPrompt(query, final))
		return genErr
	})
	if err != nil {
		finish(StateError)
		return turn, ragerr.Wrap(ragerr.KindGeneration, err, "answer generation failed")
	}

	turn.Answer, turn.Citations = parseGeneration(raw, final)
	finish(StateDone)

	o.log.Info("chat turn complete",
		"candidates", len(ret.Candidates),
		"passages", len(final),
		"citations", len(turn.Citations),
		"reranked", turn.Reranked,
		"degraded", turn.Degraded,
		"seconds", turn.ProcessingTime,
	)
	return turn, nil
}

// rerank rescores candidates with the external reranker. The rerank score is
// authoritative once present; on any failure the fused order stands and the
// turn is marked as not reranked — rerank failure never fails the turn.
func (o *Orchestrator) rerank(ctx context.Context, query string, cands []Candidate, turn *Turn) []Candidate {
	topN := min(o.cfg.TopN, len(cands))

	if o.reranker == nil {
		return cands[:topN]
	}

	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = c.Chunk.Text
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.RerankTimeout)
	defer cancel()

	results, err := o.reranker.Rerank(callCtx, query, texts)
	if err != nil {
		o.log.Warn("rerank failed, falling back to fused order", "error", err)
		return cands[:topN]
	}

	reranked := make([]Candidate, 0, topN)
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(cands) {
			continue
		}
		c := cands[res.Index]
		c.RerankScore = res.Score
		reranked = append(reranked, c)
		if len(reranked) == topN {
			break
		}
	}
	if len(reranked) == 0 {
		return cands[:topN]
	}
	turn.Reranked = true
	return reranked
}
