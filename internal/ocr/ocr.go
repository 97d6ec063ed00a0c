// Package ocr turns uploaded receipt documents into plain text. PDFs are read
// from their embedded text layer first and rasterized for OCR only when that
// layer is empty; images go straight to tesseract.
package ocr

import (
	"context"
	"log/slog"
	"time"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit
}

type ExtractionResult struct {
	Text       string
	Pages      int
	SourceType string // constants.SourcePDF | constants.SourceImage
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// Extract picks a strategy based on the file extension.
func (e *Extractor) Extract(ctx context.Context, data []byte, ext string) (ExtractionResult, error) {
	start := time.Now()
	ext = constants.NormalizeExt(ext)
	e.logger.Debug("ocr.extract.start", "ext", ext, "bytes", len(data))

	switch constants.MapExtToSource(ext) {
	case constants.SourcePDF:
		res, err := e.extractPDF(ctx, data)
		res.Duration = time.Since(start)
		return res, err
	case constants.SourceImage:
		res, err := e.extractImage(ctx, data, ext)
		res.Duration = time.Since(start)
		return res, err
	default:
		e.logger.Error("ocr.extract.unsupported", "ext", ext)
		return ExtractionResult{}, common.UnsupportedFormatError(ext)
	}
}
