package voting

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileStore owns the on-disk representation of the voting document: a single
// JSON file rewritten wholesale on every mutation. Callers are expected to
// serialize access; FileStore itself performs no locking.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore constructs a store persisting to the given path.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Load reads the persisted document. A missing file yields the default
// document; an unreadable or corrupt file also falls back to the default but
// is logged, since losing state silently would mask operational problems.
func (s *FileStore) Load() *Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("vote document unreadable, starting from defaults",
				zap.String("path", s.path), zap.Error(err))
		}
		return DefaultDocument()
	}

	// Decode on top of the defaults so fields absent from older documents
	// keep their default values, matching the document's evolution history.
	doc := DefaultDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		s.logger.Warn("vote document corrupt, starting from defaults",
			zap.String("path", s.path), zap.Error(err))
		return DefaultDocument()
	}
	doc.normalize()
	return doc
}

// Save atomically replaces the persisted document: the new contents are
// written to a temporary file in the same directory, synced, and renamed over
// the live path so a crash mid-write never leaves a half-written document.
func (s *FileStore) Save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vote document: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp vote document: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write vote document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync vote document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp vote document: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod vote document: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace vote document: %w", err)
	}
	return nil
}

// Path returns the file path backing this store.
func (s *FileStore) Path() string {
	return s.path
}
