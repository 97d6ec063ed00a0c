package ingest

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/lahirugmg/business-cost-tracker/constants"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
)

// Store writes uploads under <baseDir>/receipts with collision-free names.
type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(baseDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Join(baseDir, "receipts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the directory uploads are written to.
func (s *Store) Dir() string {
	return s.dir
}

// SaveUpload validates the extension, hashes the contents and writes the file
// under a fresh uuid name. Unsupported formats are rejected before anything
// touches disk.
func (s *Store) SaveUpload(userID uuid.UUID, originalFilename string, data []byte) (StoredFile, error) {
	ext := constants.NormalizeExt(filepath.Ext(originalFilename))
	if !constants.IsAllowedExt(ext) {
		return StoredFile{}, common.UnsupportedFormatError(ext)
	}

	sum := sha256.Sum256(data)
	storedName := uuid.New().String() + "." + ext
	path := filepath.Join(s.dir, storedName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Error("failed to save upload", "user_id", userID, "filename", originalFilename, "error", err)
		return StoredFile{}, fmt.Errorf("save upload: %w", err)
	}

	s.logger.Debug("upload stored", "user_id", userID, "stored_name", storedName, "bytes", len(data))
	return StoredFile{
		Path:       path,
		StoredName: storedName,
		Ext:        ext,
		Hash:       sum[:],
		Size:       int64(len(data)),
	}, nil
}
