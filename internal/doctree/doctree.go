package doctree

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page (0 if the format has no pages)
	Children []*DocNode // Subsections
}

// Chunk is a sized text segment ready for embedding and indexing.
// Text is always a verbatim substring of the node it was cut from, so a
// citation quoting it can be traced back to the source document.
type Chunk struct {
	Text       string   // Chunk text content
	Index      int      // Sequence number within document
	Breadcrumb []string // Heading hierarchy, e.g. ["Results", "Revenue"]
	Page       int      // Source page (0 if N/A)
}

// Walk visits every node in depth-first document order.
func (t *DocTree) Walk(fn func(node *DocNode, breadcrumb []string)) {
	for _, child := range t.Children {
		walkNode(child, nil, fn)
	}
}

func walkNode(node *DocNode, breadcrumb []string, fn func(*DocNode, []string)) {
	bc := breadcrumb
	if node.Title != "" {
		bc = append(append([]string{}, breadcrumb...), node.Title)
	}
	fn(node, bc)
	for _, child := range node.Children {
		walkNode(child, bc, fn)
	}
}

// Text returns all node text joined in document order. Used to decide whether
// a document has any extractable content at all.
func (t *DocTree) Text() string {
	var out string
	t.Walk(func(n *DocNode, _ []string) {
		if n.Text == "" {
			return
		}
		if out != "" {
			out += "\n\n"
		}
		out += n.Text
	})
	return out
}
