// Package engine drives the two workflows behind the API: document ingestion
// (parse, chunk, embed, commit) and chat turns (retrieve, rerank, generate,
// cite). External capabilities enter through the provider interfaces.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/ragserve/internal/chunker"
	"github.com/dgallion1/ragserve/internal/doctree"
	"github.com/dgallion1/ragserve/internal/index"
	"github.com/dgallion1/ragserve/internal/parser"
	"github.com/dgallion1/ragserve/internal/provider"
	"github.com/dgallion1/ragserve/internal/ragerr"
)

// PastedTextSource is the document source name for raw text ingests.
const PastedTextSource = "pasted-text"

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	Chunking         chunker.Config
	EmbedBatchSize   int           // texts per embedding call
	EmbedConcurrency int           // concurrent embedding calls per document
	EmbedTimeout     time.Duration // per-call ceiling
	MaxRetries       int           // attempts per embedding call
}

// Ingestor runs the per-document ingestion pipeline. Ingestion is
// all-or-nothing: a document either commits with every chunk embedded and
// indexed, or leaves the indices untouched.
type Ingestor struct {
	store    *index.Store
	embedder provider.Embedder
	cfg      IngestConfig
	log      *slog.Logger
}

func NewIngestor(store *index.Store, embedder provider.Embedder, cfg IngestConfig, log *slog.Logger) *Ingestor {
	if cfg.Chunking == (chunker.Config{}) {
		cfg.Chunking = chunker.DefaultConfig()
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 4
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Ingestor{store: store, embedder: embedder, cfg: cfg, log: log}
}

// Summary reports the outcome of one ingestion.
type Summary struct {
	DocID      string
	Source     string
	ChunkCount int
}

// Message renders the summary for the ingest response.
func (s Summary) Message() string {
	return fmt.Sprintf("Ingested %q: %d chunks indexed (document %s).", s.Source, s.ChunkCount, s.DocID)
}

// IngestFile ingests an uploaded file, routing it through the parser for its
// extension.
func (ing *Ingestor) IngestFile(ctx context.Context, filename string, data []byte) (Summary, error) {
	p, err := parser.ForFile(filename)
	if err != nil {
		return Summary{}, err
	}
	tree, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return Summary{}, fmt.Errorf("parse %s: %w", filename, err)
	}
	return ing.ingestTree(ctx, filename, tree)
}

// IngestText ingests pasted raw text.
func (ing *Ingestor) IngestText(ctx context.Context, text string) (Summary, error) {
	if strings.TrimSpace(text) == "" {
		return Summary{}, ragerr.New(ragerr.KindEmptyDocument, "pasted text is empty")
	}
	p := &parser.TextParser{}
	tree, err := p.Parse(strings.NewReader(text), PastedTextSource)
	if err != nil {
		return Summary{}, fmt.Errorf("parse text: %w", err)
	}
	return ing.ingestTree(ctx, PastedTextSource, tree)
}

func (ing *Ingestor) ingestTree(ctx context.Context, source string, tree *doctree.DocTree) (Summary, error) {
	drafts, err := chunker.ChunkTree(tree, ing.cfg.Chunking)
	if err != nil {
		return Summary{}, err
	}

	docID := uuid.NewString()
	tok := ing.store.Tokenizer()

	chunks := make([]index.Chunk, len(drafts))
	texts := make([]string, len(drafts))
	for i, d := range drafts {
		chunks[i] = index.Chunk{
			ID:      fmt.Sprintf("%s:%04d", docID, d.Index),
			DocID:   docID,
			Ordinal: d.Index,
			Text:    d.Text,
			Page:    d.Page,
			Tokens:  tok.Tokenize(d.Text),
		}
		texts[i] = d.Text
	}

	vectors, err := ing.embedAll(ctx, texts)
	if err != nil {
		// No partial writes happened; previously committed documents are
		// untouched.
		return Summary{}, fmt.Errorf("embed document %q: %w", source, err)
	}

	doc := index.Document{
		ID:         docID,
		Source:     source,
		IngestedAt: time.Now().UTC(),
		ChunkCount: len(chunks),
	}
	if err := ing.store.CommitDocument(doc, chunks, vectors); err != nil {
		return Summary{}, fmt.Errorf("commit document %q: %w", source, err)
	}

	ing.log.Info("document ingested",
		"doc_id", docID,
		"source", source,
		"chunks", len(chunks),
	)
	return Summary{DocID: docID, Source: source, ChunkCount: len(chunks)}, nil
}

// embedAll embeds all chunk texts in batches with bounded concurrency. Any
// batch failing after retries fails the whole document.
func (ing *Ingestor) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.cfg.EmbedConcurrency)

	for start := 0; start < len(texts); start += ing.cfg.EmbedBatchSize {
		end := min(start+ing.cfg.EmbedBatchSize, len(texts))
		g.Go(func() error {
			return withRetries(gctx, ing.cfg.MaxRetries, ing.cfg.EmbedTimeout, func(callCtx context.Context) error {
				batch, err := ing.embedder.Embed(callCtx, texts[start:end])
				if err != nil {
					return err
				}
				if len(batch) != end-start {
					return fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), end-start)
				}
				copy(vectors[start:end], batch)
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
