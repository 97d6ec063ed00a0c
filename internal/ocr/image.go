package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lahirugmg/business-cost-tracker/constants"
)

func (e *Extractor) extractImage(ctx context.Context, data []byte, ext string) (ExtractionResult, error) {
	tmpDir, err := os.MkdirTemp("", "bct-ocr-*")
	if err != nil {
		return ExtractionResult{SourceType: constants.SourceImage}, err
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "input."+constants.NormalizeExt(ext))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return ExtractionResult{SourceType: constants.SourceImage}, err
	}

	txt, warns, err := e.tesseractOCR(ctx, path)
	if err != nil {
		return ExtractionResult{SourceType: constants.SourceImage, Warnings: warns}, err
	}
	txt = Normalize(txt)

	// Blend the measured word confidence with the text-shape heuristic,
	// weighting the measurement higher when tesseract reports one.
	var conf float32
	heurConf := heuristicConfidence(txt)
	if ocrConf, w, err := e.tesseractTSVConfidence(ctx, path); err != nil {
		warns = append(warns, err.Error())
		conf = heurConf
	} else {
		warns = append(warns, w...)
		if ocrConf > 0 {
			conf = 0.7*ocrConf + 0.3*heurConf
		} else {
			conf = heurConf
		}
	}
	if conf > 1.0 {
		conf = 1.0
	}

	return ExtractionResult{
		Text:       txt,
		Pages:      1,
		SourceType: constants.SourceImage,
		Method:     "image-ocr",
		Language:   e.cfg.TesseractLang,
		Warnings:   warns,
		Confidence: conf,
	}, nil
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string) (string, []string, error) {
	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.TesseractLang)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}
	txt := reBoxNoise.ReplaceAllString(string(out), "")
	return txt, nil, nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (e *Extractor) tesseractTSVConfidence(ctx context.Context, path string) (float32, []string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.TesseractLang, "tsv")
	if err != nil {
		return 0, []string{string(errb)}, fmt.Errorf("tesseract tsv: %w", err)
	}

	// Word rows carry conf in column 11; -1 marks structural rows.
	var sum, n float64
	for i, ln := range strings.Split(string(out), "\n") {
		if i == 0 || len(ln) == 0 {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil, nil
	}
	mean := sum / n // 0..100
	return float32(mean / 100.0), nil, nil
}
