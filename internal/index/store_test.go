package index

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"), Options{Dimension: dim})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testChunk(s *Store, id, docID, text string, ordinal int) Chunk {
	return Chunk{
		ID:      id,
		DocID:   docID,
		Ordinal: ordinal,
		Text:    text,
		Tokens:  s.Tokenizer().Tokenize(text),
	}
}

func TestOpen_RequiresDimension(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "index.db"), Options{})
	if err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestCommitDocument_Roundtrip(t *testing.T) {
	s := openTestStore(t, 3)

	doc := Document{ID: "doc1", Source: "guide.md", IngestedAt: time.Now().UTC(), ChunkCount: 2}
	chunks := []Chunk{
		testChunk(s, "doc1:0000", "doc1", "Postgres replication uses write ahead logs.", 0),
		testChunk(s, "doc1:0001", "doc1", "Backups run nightly from the standby.", 1),
	}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}}

	if err := s.CommitDocument(doc, chunks, vectors); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := s.GetChunk("doc1:0001")
	if err != nil {
		t.Fatalf("get chunk: %v", err)
	}
	if got.Text != chunks[1].Text {
		t.Errorf("chunk text mismatch: %q", got.Text)
	}
	if got.DocID != "doc1" {
		t.Errorf("chunk doc ID mismatch: %q", got.DocID)
	}

	gotDoc, err := s.GetDocument("doc1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if gotDoc.Source != "guide.md" {
		t.Errorf("document source mismatch: %q", gotDoc.Source)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalDocs != 1 || stats.TotalChunks != 2 {
		t.Errorf("stats mismatch: %+v", stats)
	}
	if s.VectorCount() != 2 {
		t.Errorf("expected 2 vectors, got %d", s.VectorCount())
	}
}

func TestCommitDocument_RejectsMismatchedVectors(t *testing.T) {
	s := openTestStore(t, 3)

	doc := Document{ID: "doc1", Source: "a.txt"}
	chunks := []Chunk{testChunk(s, "doc1:0000", "doc1", "some text here", 0)}

	if err := s.CommitDocument(doc, chunks, nil); err == nil {
		t.Error("expected error for missing vectors")
	}
	if err := s.CommitDocument(doc, chunks, [][]float32{{1, 0}}); err == nil {
		t.Error("expected error for wrong dimension")
	}

	// Nothing became visible.
	if s.VectorCount() != 0 {
		t.Errorf("expected empty vector cache, got %d", s.VectorCount())
	}
	if _, err := s.GetDocument("doc1"); err == nil {
		t.Error("expected document to be absent after failed commits")
	}
	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalDocs != 0 || stats.TotalChunks != 0 {
		t.Errorf("stats changed by failed commit: %+v", stats)
	}
}

func TestStore_VectorsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path, Options{Dimension: 2})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	doc := Document{ID: "doc1", Source: "a.txt", ChunkCount: 1}
	chunks := []Chunk{testChunk(s, "doc1:0000", "doc1", "persistent vectors", 0)}
	if err := s.CommitDocument(doc, chunks, [][]float32{{0.6, 0.8}}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path, Options{Dimension: 2})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.VectorCount() != 1 {
		t.Fatalf("expected 1 vector after reopen, got %d", reopened.VectorCount())
	}
	results, err := reopened.SearchVector([]float32{0.6, 0.8}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "doc1:0000" {
		t.Errorf("unexpected search results after reopen: %+v", results)
	}
}
