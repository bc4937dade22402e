package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hranalytics/explaind/internal/api"
)

// FileStore keeps the cached explanation in a single JSON file. Reads and
// writes are unlocked: concurrent writers race last-write-wins, and a reader
// that sees a torn file gets a cache miss.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the cached explanation, or (nil, nil) when the file is
// missing, corrupt, unparsable or past its TTL.
func (f *FileStore) Load(ctx context.Context) (*api.GlobalExplanation, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, nil // missing or unreadable: cache miss
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, nil // corrupt: cache miss
	}

	if entry.Expired(time.Now()) {
		return nil, nil
	}

	return entry.Explanation, nil
}

// Save writes the explanation with the current timestamp.
func (f *FileStore) Save(ctx context.Context, explanation *api.GlobalExplanation) error {
	data, err := json.MarshalIndent(NewEntry(explanation), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// Clear removes the cache file. A missing file is not an error.
func (f *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error {
	return nil
}
