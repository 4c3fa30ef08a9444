// Package chunker splits parsed documents into overlapping, citation-safe
// text segments. Chunks never split inside a sentence, and every chunk is a
// verbatim substring of the document node it was cut from.
package chunker

import (
	"strings"

	"github.com/dgallion1/ragserve/internal/doctree"
	"github.com/dgallion1/ragserve/internal/ragerr"
)

// Config controls chunking behavior.
type Config struct {
	ChunkSize    int // Target chunk size in tokens.
	ChunkOverlap int // Overlap between consecutive chunks in tokens.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    400,
		ChunkOverlap: 60,
	}
}

// Validate rejects parameter combinations the splitter cannot honor.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return ragerr.New(ragerr.KindConfiguration, "chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return ragerr.New(ragerr.KindConfiguration,
			"chunk overlap must be non-negative and less than chunk size, got overlap=%d size=%d",
			c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// ChunkTree walks a DocTree and produces ordered chunk drafts. Page numbers
// and heading breadcrumbs are carried from the source nodes. Documents with
// no extractable text yield an empty-document error.
func ChunkTree(tree *doctree.DocTree, cfg Config) ([]doctree.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var chunks []doctree.Chunk
	tree.Walk(func(node *doctree.DocNode, breadcrumb []string) {
		if strings.TrimSpace(node.Text) == "" {
			return
		}
		for _, part := range splitNode(node.Text, cfg) {
			chunks = append(chunks, doctree.Chunk{
				Text:       part,
				Index:      len(chunks),
				Breadcrumb: append([]string{}, breadcrumb...),
				Page:       node.Page,
			})
		}
	})

	if len(chunks) == 0 {
		return nil, ragerr.New(ragerr.KindEmptyDocument, "document %q has no extractable text", tree.Title)
	}
	return chunks, nil
}

// splitNode cuts one node's text into chunks of roughly ChunkSize tokens.
// Cuts happen only at sentence boundaries; consecutive chunks share the
// trailing sentences worth about ChunkOverlap tokens. Each returned part is
// text[start:end] for some boundary pair, trimmed of edge whitespace.
func splitNode(text string, cfg Config) []string {
	if EstimateTokens(text) <= cfg.ChunkSize {
		return []string{strings.TrimSpace(text)}
	}

	spans := sentenceSpans(text)
	tokens := make([]int, len(spans))
	for i, sp := range spans {
		tokens[i] = EstimateTokens(text[sp.start:sp.end])
	}

	var parts []string
	i := 0
	for i < len(spans) {
		// Extend the chunk sentence by sentence. A single oversized sentence
		// still goes out whole.
		j := i
		total := tokens[i]
		for j+1 < len(spans) && total+tokens[j+1] <= cfg.ChunkSize {
			j++
			total += tokens[j]
		}

		part := strings.TrimSpace(text[spans[i].start : spans[j].end])
		if part != "" {
			parts = append(parts, part)
		}

		next := j + 1
		if next >= len(spans) {
			break
		}

		// Back up over the chunk tail to build the overlap, but always make
		// forward progress.
		k := next
		acc := 0
		for k-1 > i {
			if acc+tokens[k-1] > cfg.ChunkOverlap {
				break
			}
			acc += tokens[k-1]
			k--
		}
		i = k
	}

	return parts
}

type span struct {
	start, end int
}

// sentenceSpans tiles text with sentence spans: every byte belongs to exactly
// one span, and span ends fall after sentence terminators or paragraph breaks.
func sentenceSpans(text string) []span {
	var spans []span
	start := 0

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			j := i + 1
			for j < len(text) && (text[j] == '"' || text[j] == '\'' || text[j] == ')') {
				j++
			}
			if j < len(text) && !isSpace(text[j]) {
				continue // abbreviation or decimal, not a boundary
			}
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			spans = append(spans, span{start, j})
			start = j
			i = j - 1
		case '\n':
			if i+1 >= len(text) || text[i+1] != '\n' || i < start {
				continue
			}
			j := i
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j > start {
				spans = append(spans, span{start, j})
				start = j
				i = j - 1
			}
		}
	}

	if start < len(text) {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}
