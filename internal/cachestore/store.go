// Package cachestore persists the global explanation across requests.
//
// Caching is best-effort: a load can only produce a hit or a miss, never a
// failure the caller must handle, and a failed save is logged and dropped.
// The default backend is a single JSON file read and written without locking;
// a torn read degrades to a miss. Memory, Redis and Postgres backends provide
// the same contract with atomic writes.
package cachestore

import (
	"context"
	"time"

	"github.com/hranalytics/explaind/internal/api"
)

// TTL is the validity window of a cached global explanation, measured from
// save time with wall-clock comparison at load.
const TTL = 7 * 24 * time.Hour

// Store is the key-value contract behind the explanation cache.
type Store interface {
	// Load returns the cached explanation, or (nil, nil) on a miss. Expired,
	// missing and corrupt entries are all misses.
	Load(ctx context.Context) (*api.GlobalExplanation, error)

	// Save persists the explanation stamped with the current time.
	Save(ctx context.Context, explanation *api.GlobalExplanation) error

	// Clear removes the cached entry. Used by the admin tooling.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Entry is the persisted envelope: an ISO-8601 timestamp plus the payload.
type Entry struct {
	Timestamp   string                 `json:"timestamp"`
	Explanation *api.GlobalExplanation `json:"explanation"`
}

// NewEntry wraps an explanation with the current timestamp.
func NewEntry(explanation *api.GlobalExplanation) *Entry {
	return &Entry{
		Timestamp:   time.Now().Format(time.RFC3339),
		Explanation: explanation,
	}
}

// Expired reports whether the entry's validity window has passed. An
// unparsable timestamp counts as expired.
func (e *Entry) Expired(now time.Time) bool {
	if e == nil || e.Explanation == nil {
		return true
	}
	ts, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return true
	}
	return now.Sub(ts) > TTL
}
