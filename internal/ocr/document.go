package ocr

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/xcalificator/grader/internal/model"
)

// RasterDPI is the resolution scanned PDF pages are rendered at.
const RasterDPI = 200

// DocumentReader reads multi-page documents.
type DocumentReader interface {
	// PageTexts returns the embedded text of every page.
	PageTexts(data []byte) ([]string, error)
	// RenderPages rasterizes every page at dpi.
	RenderPages(data []byte, dpi float64) ([]image.Image, error)
}

// FitzReader reads PDF documents with MuPDF.
type FitzReader struct{}

func (FitzReader) PageTexts(data []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: open document: %w", model.ErrUnsupportedUpload, err)
	}
	defer doc.Close()

	texts := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("extract text of page %d: %w", i+1, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

func (FitzReader) RenderPages(data []byte, dpi float64) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: open document: %w", model.ErrUnsupportedUpload, err)
	}
	defer doc.Close()

	pages := make([]image.Image, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}
