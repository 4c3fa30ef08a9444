package parser

import (
	"strings"

	"github.com/dgallion1/ragserve/internal/doctree"
)

// sectionBuilder assembles a DocTree from a linear stream of headings and
// text blocks, nesting sections by heading level. Shared by the markdown,
// HTML and DOCX parsers.
type sectionBuilder struct {
	root  *doctree.DocNode
	stack []sectionEntry
	text  strings.Builder
}

type sectionEntry struct {
	node  *doctree.DocNode
	level int
}

func newSectionBuilder(title string) *sectionBuilder {
	root := &doctree.DocNode{Title: title}
	return &sectionBuilder{
		root:  root,
		stack: []sectionEntry{{node: root, level: 0}},
	}
}

// Heading closes the current text block and opens a new section at the given
// level, popping the stack until a shallower parent is found.
func (b *sectionBuilder) Heading(level int, title string) {
	b.flush()
	node := &doctree.DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, node)
	b.stack = append(b.stack, sectionEntry{node: node, level: level})
}

// Text appends a text block to the current section.
func (b *sectionBuilder) Text(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if b.text.Len() > 0 {
		b.text.WriteString("\n\n")
	}
	b.text.WriteString(t)
}

func (b *sectionBuilder) flush() {
	t := strings.TrimSpace(b.text.String())
	if t != "" {
		top := b.stack[len(b.stack)-1].node
		if top.Text != "" {
			top.Text += "\n\n" + t
		} else {
			top.Text = t
		}
	}
	b.text.Reset()
}

// Tree finalizes the builder into a DocTree. Documents without any headings
// collapse into a single text node.
func (b *sectionBuilder) Tree(title string) *doctree.DocTree {
	b.flush()
	tree := &doctree.DocTree{Title: title, Children: b.root.Children}
	if len(tree.Children) == 0 && b.root.Text != "" {
		tree.Children = []*doctree.DocNode{{Text: b.root.Text}}
	}
	return tree
}
