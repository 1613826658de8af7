// Package document loads PDF text and splits it into overlapping passages.
package document

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// Page is the extracted plain text of one PDF page.
type Page struct {
	Number int
	Text   string
}

// LoadPDF extracts the plain text of every page of the PDF at path.
// Any failure to open or parse the file is reported as domain.ErrDocumentLoad.
func LoadPDF(path string) (pages []Page, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = domain.Wrap(domain.ErrDocumentLoad, fmt.Errorf("%s: %v", path, r))
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrDocumentLoad, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, domain.Wrap(domain.ErrDocumentLoad, err)
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, domain.Wrap(domain.ErrDocumentLoad, fmt.Errorf("%s: %w", path, err))
	}

	numPages := reader.NumPage()
	pages = make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, domain.Wrap(domain.ErrDocumentLoad, fmt.Errorf("%s page %d: %w", path, i, err))
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}

	return pages, nil
}
