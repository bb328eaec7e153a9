// Package ocr turns uploaded exam scans and documents into text and parses
// that text into numbered question/answer pairs.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/xcalificator/grader/internal/model"
)

type uploadKind int

const (
	kindUnsupported uploadKind = iota
	kindImage
	kindPDF
)

// Pipeline extracts text from uploads and parses it.
type Pipeline struct {
	recognizer Recognizer
	documents  DocumentReader
	maxDim     int
}

// NewPipeline returns a pipeline recognizing images with r and reading PDF
// documents with d. maxDim bounds preprocessed images; zero means
// DefaultMaxImageDim.
func NewPipeline(r Recognizer, d DocumentReader, maxDim int) *Pipeline {
	if maxDim <= 0 {
		maxDim = DefaultMaxImageDim
	}
	return &Pipeline{recognizer: r, documents: d, maxDim: maxDim}
}

// Process extracts the text of an upload. PDF documents with embedded text
// are read directly and reported as printed; scanned PDF documents and
// images go through preprocessing and recognition and are reported as
// handwritten.
func (p *Pipeline) Process(ctx context.Context, f model.UploadedFile) (*model.Extraction, error) {
	var (
		ext *model.Extraction
		err error
	)
	switch classify(f) {
	case kindPDF:
		ext, err = p.processPDF(ctx, f.Data)
	case kindImage:
		ext, err = p.processImage(ctx, f.Data)
	default:
		return nil, fmt.Errorf("%w: %s (%s)", model.ErrUnsupportedUpload, f.Filename, f.ContentType)
	}
	if err != nil {
		return nil, err
	}
	ext.Questions = ParseText(ext.ExtractedText)
	slog.Info("upload processed", "file", f.Filename, "writing_type", ext.WritingType,
		"chars", len(ext.ExtractedText), "questions", len(ext.Questions))
	return ext, nil
}

func (p *Pipeline) processImage(ctx context.Context, data []byte) (*model.Extraction, error) {
	png, err := Preprocess(data, p.maxDim)
	if err != nil {
		return nil, err
	}
	text, err := p.recognizer.Recognize(ctx, png)
	if err != nil {
		return nil, err
	}
	return &model.Extraction{ExtractedText: text, WritingType: model.WritingHandwritten, ProcessedImage: png}, nil
}

func (p *Pipeline) processPDF(ctx context.Context, data []byte) (*model.Extraction, error) {
	texts, err := p.documents.PageTexts(data)
	if err != nil {
		return nil, err
	}
	text := strings.Join(texts, "\n")
	if strings.TrimSpace(text) != "" {
		return &model.Extraction{ExtractedText: text, WritingType: model.WritingPrinted}, nil
	}

	slog.Debug("document has no embedded text, recognizing rendered pages", "pages", len(texts))
	pages, err := p.documents.RenderPages(data, RasterDPI)
	if err != nil {
		return nil, err
	}
	ext := &model.Extraction{WritingType: model.WritingHandwritten}
	pageTexts := make([]string, 0, len(pages))
	for i, page := range pages {
		png, err := preprocessImage(page, p.maxDim)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		if i == 0 {
			ext.ProcessedImage = png
		}
		pageText, err := p.recognizer.Recognize(ctx, png)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		pageTexts = append(pageTexts, pageText)
	}
	ext.ExtractedText = strings.Join(pageTexts, "\n")
	return ext, nil
}

// classify decides how to read an upload from its content, falling back to
// the declared content type and the file extension.
func classify(f model.UploadedFile) uploadKind {
	if bytes.HasPrefix(f.Data, []byte("%PDF-")) {
		return kindPDF
	}
	switch http.DetectContentType(f.Data) {
	case "image/jpeg", "image/png", "image/webp":
		return kindImage
	case "application/pdf":
		return kindPDF
	}
	switch strings.ToLower(f.ContentType) {
	case "application/pdf":
		return kindPDF
	case "image/jpeg", "image/png", "image/webp":
		return kindImage
	}
	switch strings.ToLower(filepath.Ext(f.Filename)) {
	case ".pdf":
		return kindPDF
	case ".jpg", ".jpeg", ".png", ".webp":
		return kindImage
	}
	return kindUnsupported
}
