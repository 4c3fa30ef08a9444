package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/ragserve/internal/doctree"
)

// PDFParser handles PDF files. Each PDF page becomes one DocNode carrying its
// page number, which the chunker propagates into chunks for citation fidelity.
type PDFParser struct{}

func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "ragserve-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	pages, err := extractPDFPages(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	tree := &doctree.DocTree{
		Title: strings.TrimSuffix(filename, ".pdf"),
	}

	for _, pg := range pages {
		text := strings.TrimSpace(pg.text)
		if text == "" {
			continue
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			Text: text,
			Page: pg.number,
		})
	}

	return tree, nil
}

type pdfPage struct {
	number int
	text   string
}

func extractPDFPages(path string) ([]pdfPage, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []pdfPage
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, pdfPage{number: i, text: text})
	}
	return pages, nil
}
