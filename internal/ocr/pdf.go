package ocr

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/lahirugmg/business-cost-tracker/constants"
)

// extractPDF reads the embedded text layer page by page. Scanned PDFs carry no
// text layer, so a whitespace-only result falls back to rasterizing each page
// and running it through tesseract.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) (ExtractionResult, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return ExtractionResult{SourceType: constants.SourcePDF}, fmt.Errorf("opening pdf: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		pages = e.cfg.MaxPages
	}

	var b strings.Builder
	var warns []string
	for n := 0; n < pages; n++ {
		txt, err := doc.Text(n)
		if err != nil {
			warns = append(warns, fmt.Sprintf("page %d text: %v", n+1, err))
			continue
		}
		b.WriteString(txt)
		b.WriteString("\n")
	}

	if text := Normalize(b.String()); text != "" {
		return ExtractionResult{
			Text:       text,
			Pages:      pages,
			SourceType: constants.SourcePDF,
			Method:     "pdf-text",
			Language:   e.cfg.TesseractLang,
			Warnings:   warns,
			Confidence: 1.0,
		}, nil
	}

	e.logger.Info("ocr.pdf.no_text_layer", "pages", pages)
	res, err := e.ocrPDF(ctx, doc, pages)
	res.Warnings = append(warns, res.Warnings...)
	return res, err
}

func (e *Extractor) ocrPDF(ctx context.Context, doc *fitz.Document, pages int) (ExtractionResult, error) {
	tmpDir, err := os.MkdirTemp("", "bct-ocr-*")
	if err != nil {
		return ExtractionResult{SourceType: constants.SourcePDF}, err
	}
	defer os.RemoveAll(tmpDir)

	var b strings.Builder
	var warns []string
	rendered := 0
	for n := 0; n < pages; n++ {
		if err := ctx.Err(); err != nil {
			return ExtractionResult{SourceType: constants.SourcePDF, Warnings: warns}, err
		}
		img, err := doc.ImageDPI(n, float64(e.cfg.DPI))
		if err != nil {
			warns = append(warns, fmt.Sprintf("page %d render: %v", n+1, err))
			continue
		}
		path := filepath.Join(tmpDir, fmt.Sprintf("page-%03d.png", n+1))
		f, err := os.Create(path)
		if err != nil {
			warns = append(warns, fmt.Sprintf("page %d: %v", n+1, err))
			continue
		}
		encErr := png.Encode(f, img)
		if closeErr := f.Close(); encErr == nil {
			encErr = closeErr
		}
		if encErr != nil {
			warns = append(warns, fmt.Sprintf("page %d encode: %v", n+1, encErr))
			continue
		}
		rendered++

		txt, w, err := e.tesseractOCR(ctx, path)
		warns = append(warns, w...)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(txt)
	}
	if rendered == 0 {
		return ExtractionResult{SourceType: constants.SourcePDF, Warnings: warns}, fmt.Errorf("no pages rendered")
	}

	text := Normalize(b.String())
	return ExtractionResult{
		Text:       text,
		Pages:      pages,
		SourceType: constants.SourcePDF,
		Method:     "pdf-ocr",
		Language:   e.cfg.TesseractLang,
		Warnings:   warns,
		Confidence: heuristicConfidence(text),
	}, nil
}
