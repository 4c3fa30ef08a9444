package index

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

var (
	bucketDocuments = []byte("documents")
	bucketChunks    = []byte("chunks")
	bucketPostings  = []byte("postings")
	bucketVectors   = []byte("vectors")
	bucketStats     = []byte("stats")
	keyCorpusStats  = []byte("corpus")
)

// Store is the BoltDB-backed document, keyword and vector index. Writes are
// append-only: a document and all its chunks, postings and vectors commit in
// one transaction, so queries see either none or all of a document.
type Store struct {
	db        *bbolt.DB
	tokenizer *Tokenizer
	dimension int

	// BM25 parameters.
	k1 float64
	b  float64

	// In-memory vector cache for fast brute-force search. Refreshed only
	// after a document's transaction commits.
	mu      sync.RWMutex
	vectors map[string][]float32
}

// Options tunes the store. Zero values fall back to standard defaults.
type Options struct {
	Dimension int     // embedding dimension, required
	K1        float64 // BM25 term-frequency saturation, default 1.2
	B         float64 // BM25 length normalization, default 0.75
}

// Open opens (or creates) the index database at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", opts.Dimension)
	}
	if opts.K1 <= 0 {
		opts.K1 = 1.2
	}
	if opts.B <= 0 {
		opts.B = 0.75
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocuments, bucketChunks, bucketPostings, bucketVectors, bucketStats} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:        db,
		tokenizer: NewTokenizer(),
		dimension: opts.Dimension,
		k1:        opts.K1,
		b:         opts.B,
		vectors:   make(map[string][]float32),
	}
	if err := s.loadVectors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load vectors: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Tokenizer exposes the store's tokenizer so chunks are tokenized the same
// way at ingest time and query time.
func (s *Store) Tokenizer() *Tokenizer { return s.tokenizer }

func (s *Store) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var vec []float32
			if err := json.Unmarshal(v, &vec); err != nil {
				return nil // skip corrupted entries
			}
			s.vectors[string(k)] = vec
			return nil
		})
	})
}

// CommitDocument writes a document, its chunks, postings and vectors in a
// single transaction. Nothing becomes visible to searches unless the whole
// document commits.
func (s *Store) CommitDocument(doc Document, chunks []Chunk, vectors [][]float32) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("have %d chunks but %d vectors", len(chunks), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != s.dimension {
			return fmt.Errorf("chunk %d: vector dimension mismatch: expected %d, got %d", i, s.dimension, len(vec))
		}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		docData, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketDocuments).Put([]byte(doc.ID), docData); err != nil {
			return err
		}

		chunkBucket := tx.Bucket(bucketChunks)
		postingBucket := tx.Bucket(bucketPostings)
		vectorBucket := tx.Bucket(bucketVectors)

		totalTokens := 0
		for i, chunk := range chunks {
			chunkData, err := json.Marshal(chunk)
			if err != nil {
				return err
			}
			if err := chunkBucket.Put([]byte(chunk.ID), chunkData); err != nil {
				return err
			}

			tf := make(map[string]int)
			for _, term := range chunk.Tokens {
				tf[term]++
			}
			for term, count := range tf {
				var buf [binary.MaxVarintLen64]byte
				n := binary.PutUvarint(buf[:], uint64(count))
				if err := postingBucket.Put(postingKey(term, chunk.ID), buf[:n]); err != nil {
					return err
				}
			}
			totalTokens += len(chunk.Tokens)

			vecData, err := json.Marshal(vectors[i])
			if err != nil {
				return err
			}
			if err := vectorBucket.Put([]byte(chunk.ID), vecData); err != nil {
				return err
			}
		}

		stats, err := readStats(tx)
		if err != nil {
			return err
		}
		stats.TotalDocs++
		stats.TotalChunks += len(chunks)
		stats.TotalTokens += totalTokens
		return writeStats(tx, stats)
	})
	if err != nil {
		return err
	}

	// The document is durable; now make its vectors searchable.
	s.mu.Lock()
	for i, chunk := range chunks {
		s.vectors[chunk.ID] = vectors[i]
	}
	s.mu.Unlock()
	return nil
}

// GetChunk returns a stored chunk by ID.
func (s *Store) GetChunk(id string) (Chunk, error) {
	var chunk Chunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		return readChunk(tx, id, &chunk)
	})
	return chunk, err
}

// GetDocument returns a stored document by ID.
func (s *Store) GetDocument(id string) (Document, error) {
	var doc Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document not found: %s", id)
		}
		return json.Unmarshal(data, &doc)
	})
	return doc, err
}

// Stats returns corpus-level counters.
func (s *Store) Stats() (Stats, error) {
	var stats Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		stats, err = readStats(tx)
		return err
	})
	return stats, err
}

func readChunk(tx *bbolt.Tx, id string, out *Chunk) error {
	data := tx.Bucket(bucketChunks).Get([]byte(id))
	if data == nil {
		return fmt.Errorf("chunk not found: %s", id)
	}
	return json.Unmarshal(data, out)
}

func readStats(tx *bbolt.Tx) (Stats, error) {
	var stats Stats
	data := tx.Bucket(bucketStats).Get(keyCorpusStats)
	if data == nil {
		return stats, nil
	}
	err := json.Unmarshal(data, &stats)
	return stats, err
}

func writeStats(tx *bbolt.Tx, stats Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketStats).Put(keyCorpusStats, data)
}

// postingKey builds the composite key term\x00chunkID. Terms never contain
// NUL (the tokenizer only emits letters and digits), so the prefix scan for a
// term cannot collide with another term.
func postingKey(term, chunkID string) []byte {
	key := make([]byte, 0, len(term)+1+len(chunkID))
	key = append(key, term...)
	key = append(key, 0)
	key = append(key, chunkID...)
	return key
}

func postingPrefix(term string) []byte {
	return append([]byte(term), 0)
}

type posting struct {
	chunkID string
	tf      int
}

func readPostings(tx *bbolt.Tx, term string) []posting {
	var out []posting
	c := tx.Bucket(bucketPostings).Cursor()
	prefix := postingPrefix(term)
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		tf, n := binary.Uvarint(v)
		if n <= 0 {
			continue
		}
		out = append(out, posting{chunkID: string(k[len(prefix):]), tf: int(tf)})
	}
	return out
}
