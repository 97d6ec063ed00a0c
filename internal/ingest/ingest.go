// Package ingest owns the upload surface: writing incoming receipt files into
// the upload directory and discovering files on disk for batch and watch modes.
package ingest

import (
	"context"

	"github.com/google/uuid"
)

// StoredFile describes one upload written to disk.
type StoredFile struct {
	Path       string
	StoredName string
	Ext        string // normalized, without the dot
	Hash       []byte // sha256 of the contents
	Size       int64
}

// FileOutcome is the per-file result of a directory ingest.
type FileOutcome struct {
	SourcePath   string
	ReceiptID    string
	Deduplicated bool
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// SubmitFunc runs one file through the processing pipeline and reports the
// created (or deduplicated) receipt.
type SubmitFunc func(ctx context.Context, userID uuid.UUID, filename string, data []byte) (receiptID uuid.UUID, deduplicated bool, err error)
