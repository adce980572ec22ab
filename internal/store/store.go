// Package store persists per-document feature vectors. Random access is
// served from an in-memory map rebuilt from the stream on open; sequential
// full-corpus access goes through the append-only binary stream, which is the
// durable form of the data.
package store

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// Store maps document IDs to their feature vectors. Writes go through a
// single-writer discipline: Add serialises behind a mutex and appends to the
// stream, while concurrent readers scan the already-flushed stream snapshot.
// Records are immutable once added; there is no update or delete.
type Store struct {
	mu      sync.RWMutex
	path    string
	writer  *StreamWriter
	vectors map[uint32][]uint32
	dates   map[uint32]uint32
	logger  *slog.Logger
}

// Open replays the stream at path into memory and prepares it for appends.
// A truncated trailing record is tolerated and ignored.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		vectors: make(map[uint32][]uint32),
		dates:   make(map[uint32]uint32),
		logger:  slog.Default().With("component", "feature-store"),
	}
	sr, err := OpenStream(path)
	if err == nil {
		defer sr.Close()
		for {
			rec, err := sr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("replaying feature stream: %w", err)
			}
			s.vectors[rec.DocID] = rec.Features
			s.dates[rec.DocID] = rec.Date
		}
	}
	s.writer, err = OpenStreamWriter(path)
	if err != nil {
		return nil, err
	}
	s.logger.Info("feature store opened", "path", path, "documents", len(s.vectors))
	return s, nil
}

// Add registers a new document. Feature IDs are sorted before encoding, so
// callers need not pre-sort. Duplicate document IDs are rejected.
func (s *Store) Add(docID, date uint32, features []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vectors[docID]; ok {
		return fmt.Errorf("doc %d: %w", docID, apperrors.ErrDocumentExists)
	}
	sorted := make([]uint32, len(features))
	copy(sorted, features)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if err := s.writer.Append(Record{DocID: docID, Date: date, Features: sorted}); err != nil {
		return err
	}
	s.vectors[docID] = sorted
	s.dates[docID] = date
	return nil
}

// Get returns the feature vector of a document. The returned slice is shared
// and must not be modified.
func (s *Store) Get(docID uint32) ([]uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.vectors[docID]
	if !ok {
		return nil, fmt.Errorf("doc %d: %w", docID, apperrors.ErrDocumentNotFound)
	}
	return vec, nil
}

// Date returns the YYYYMMDD date of a document.
func (s *Store) Date(docID uint32) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	date, ok := s.dates[docID]
	if !ok {
		return 0, fmt.Errorf("doc %d: %w", docID, apperrors.ErrDocumentNotFound)
	}
	return date, nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// DocIDs returns all document IDs in ascending order.
func (s *Store) DocIDs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint32, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// StreamPath returns the path of the underlying stream file, for scanners
// that read the flushed snapshot directly.
func (s *Store) StreamPath() string {
	return s.path
}

// Flush makes all appended records visible to stream readers.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Sync()
}

// Close flushes and closes the stream writer.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}
