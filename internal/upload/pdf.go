package upload

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

func checkPDFPages(path string, maxPages int) error {
	pages, err := PDFPageCount(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if pages > maxPages {
		return fmt.Errorf("%w: %d pages, limit is %d", ErrTooManyPages, pages, maxPages)
	}
	return nil
}

// PDFPageCount opens the PDF at path and returns its number of pages.
func PDFPageCount(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.NumPage(), nil
}
