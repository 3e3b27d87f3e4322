package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/smukkama/helmet-monitor/internal/reading"
)

// FileStore keeps the whole collection as one JSON array on disk. Every
// append rewrites the file through a temp file and rename, so readers see
// either the old or the new array and never a partial write.
//
// FileStore itself is not safe for concurrent appends; wrap it with Serialize.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// OpenFile opens the collection at path, creating an empty array if the file
// does not exist yet
func OpenFile(path string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &FileStore{path: path, logger: logger}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(path, []byte("[]")); err != nil {
			return nil, fmt.Errorf("failed to initialise store: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}

	return s, nil
}

// Path returns the location of the JSON file
func (s *FileStore) Path() string {
	return s.path
}

// Append adds r to the end of the collection
func (s *FileStore) Append(ctx context.Context, r reading.Reading) error {
	existing := s.load()
	existing = append(existing, r)

	payload, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode collection: %w", ErrWrite, err)
	}

	if err := writeAtomic(s.path, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

// ReadAll returns the stored readings. A malformed file reads as empty.
func (s *FileStore) ReadAll(ctx context.Context) ([]reading.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load(), nil
}

// Close is a no-op; the file is not held open between calls
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() []reading.Reading {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.logger.Warn("store unreadable, treating as empty", zap.String("path", s.path), zap.Error(err))
		return []reading.Reading{}
	}

	var readings []reading.Reading
	if err := json.Unmarshal(data, &readings); err != nil {
		s.logger.Warn("store malformed, treating as empty", zap.String("path", s.path), zap.Error(err))
		return []reading.Reading{}
	}
	if readings == nil {
		return []reading.Reading{}
	}

	return readings
}

func writeAtomic(path string, payload []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(payload); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
