package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/ragserve/internal/index"
	"github.com/dgallion1/ragserve/internal/ragerr"
)

func openEngineStore(t *testing.T, dim int) *index.Store {
	t.Helper()
	s, err := index.Open(filepath.Join(t.TempDir(), "index.db"), index.Options{Dimension: dim})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIngestText_IndexesAndSearches(t *testing.T) {
	store := openEngineStore(t, 3)
	ing := NewIngestor(store, &fakeEmbedder{dim: 3}, IngestConfig{}, discardLogger())

	summary, err := ing.IngestText(context.Background(), "The capital of France is Paris. The Seine flows through it.")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if summary.Source != PastedTextSource {
		t.Errorf("expected source %q, got %q", PastedTextSource, summary.Source)
	}
	if summary.ChunkCount < 1 {
		t.Errorf("expected at least one chunk, got %d", summary.ChunkCount)
	}
	if !strings.Contains(summary.Message(), PastedTextSource) {
		t.Errorf("summary message should name the source, got %q", summary.Message())
	}

	doc, err := store.GetDocument(summary.DocID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.ChunkCount != summary.ChunkCount {
		t.Errorf("document chunk count %d does not match summary %d", doc.ChunkCount, summary.ChunkCount)
	}

	results, err := store.SearchKeyword("capital France", 5)
	if err != nil {
		t.Fatalf("keyword search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("ingested text is not keyword-searchable")
	}
	chunk, err := store.GetChunk(results[0].ChunkID)
	if err != nil {
		t.Fatalf("get chunk: %v", err)
	}
	if chunk.DocID != summary.DocID {
		t.Errorf("search hit belongs to %s, expected %s", chunk.DocID, summary.DocID)
	}
}

func TestIngestText_EmptyInput(t *testing.T) {
	store := openEngineStore(t, 3)
	ing := NewIngestor(store, &fakeEmbedder{dim: 3}, IngestConfig{}, discardLogger())

	_, err := ing.IngestText(context.Background(), "   \n\t ")
	if err == nil {
		t.Fatal("expected error for empty text")
	}
	if ragerr.KindOf(err) != ragerr.KindEmptyDocument {
		t.Errorf("expected empty-document error, got %v", err)
	}
}

func TestIngestFile_UnsupportedExtension(t *testing.T) {
	store := openEngineStore(t, 3)
	ing := NewIngestor(store, &fakeEmbedder{dim: 3}, IngestConfig{}, discardLogger())

	_, err := ing.IngestFile(context.Background(), "photo.png", []byte("not really a png"))
	if err == nil {
		t.Fatal("expected error for unsupported extension")
	}
	if ragerr.KindOf(err) != ragerr.KindUnsupportedFormat {
		t.Errorf("expected unsupported-format error, got %v", err)
	}
}

func TestIngestFile_MarkdownEndToEnd(t *testing.T) {
	store := openEngineStore(t, 3)
	ing := NewIngestor(store, &fakeEmbedder{dim: 3}, IngestConfig{}, discardLogger())

	md := "# Operations\n\nFailover promotes the standby within thirty seconds.\n"
	summary, err := ing.IngestFile(context.Background(), "runbook.md", []byte(md))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if summary.Source != "runbook.md" {
		t.Errorf("expected source runbook.md, got %q", summary.Source)
	}

	results, err := store.SearchKeyword("failover standby", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("markdown content is not searchable after ingest")
	}
}

func TestIngest_EmbedFailureLeavesIndexUntouched(t *testing.T) {
	store := openEngineStore(t, 3)
	failing := &fakeEmbedder{dim: 3, err: errors.New("embedding service down")}
	ing := NewIngestor(store, failing, IngestConfig{MaxRetries: 1}, discardLogger())

	_, err := ing.IngestText(context.Background(), "This document will fail to embed.")
	if err == nil {
		t.Fatal("expected ingest to fail")
	}

	stats, statErr := store.Stats()
	if statErr != nil {
		t.Fatalf("stats: %v", statErr)
	}
	if stats.TotalDocs != 0 || stats.TotalChunks != 0 {
		t.Errorf("failed ingest left partial state: %+v", stats)
	}
	if store.VectorCount() != 0 {
		t.Errorf("failed ingest left %d vectors", store.VectorCount())
	}
}

func TestIngest_MultipleDocumentsAccumulate(t *testing.T) {
	store := openEngineStore(t, 3)
	ing := NewIngestor(store, &fakeEmbedder{dim: 3}, IngestConfig{}, discardLogger())

	if _, err := ing.IngestText(context.Background(), "First document about databases."); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := ing.IngestText(context.Background(), "Second document about networking."); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalDocs != 2 {
		t.Errorf("expected 2 documents, got %d", stats.TotalDocs)
	}
}
