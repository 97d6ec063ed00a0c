package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
)

// DirectoryIngestor walks a folder and submits every matching receipt file
// through the processing pipeline.
type DirectoryIngestor struct {
	submit SubmitFunc
	logger *slog.Logger
}

func NewDirectoryIngestor(submit SubmitFunc, logger *slog.Logger) *DirectoryIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectoryIngestor{submit: submit, logger: logger}
}

// IngestDirectory walks root, skips hidden entries, and submits each file with
// an allowed extension. Per-file failures are recorded and the walk continues.
func (di *DirectoryIngestor) IngestDirectory(ctx context.Context, userID uuid.UUID, root string) ([]FileOutcome, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.InvalidInputError("root path is required")
	}

	var results []FileOutcome
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileOutcome{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !constants.IsAllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		data, err := os.ReadFile(path)
		if err != nil {
			results = append(results, FileOutcome{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		receiptID, dedup, err := di.submit(ctx, userID, filepath.Base(path), data)
		if err != nil {
			di.logger.Warn("directory ingest: file failed", "path", path, "error", err)
			results = append(results, FileOutcome{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}

		results = append(results, FileOutcome{
			SourcePath:   path,
			ReceiptID:    receiptID.String(),
			Deduplicated: dedup,
		})
		stats.Succeeded++
		if dedup {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk %s: %w", root, err)
	}

	di.logger.Info("directory ingest finished", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched,
		"succeeded", stats.Succeeded, "deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
