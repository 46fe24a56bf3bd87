// Package memory provides an in-memory implementation of
// storage.TranscriptStore. Transcripts are lost when the process exits.
// Optional LRU eviction limits the number of sessions kept.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rhuss/plauder/pkg/api"
	"github.com/rhuss/plauder/pkg/debug"
	"github.com/rhuss/plauder/pkg/storage"
)

// entry holds one session transcript and its metadata.
type entry struct {
	deployment string
	createdAt  time.Time
	messages   []api.Message
	lruElem    *list.Element // position in LRU list
}

// Store is an in-memory TranscriptStore with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

// Ensure Store implements storage.TranscriptStore at compile time.
var _ storage.TranscriptStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the least recently used session is
// evicted when the limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// CreateSession registers an empty transcript.
func (s *Store) CreateSession(_ context.Context, id, deployment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return storage.ErrConflict
	}

	// Evict if at capacity.
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	s.entries[id] = &entry{
		deployment: deployment,
		createdAt:  time.Now(),
		lruElem:    s.lruList.PushFront(id),
	}
	return nil
}

// AppendMessage adds a message to the end of a transcript.
func (s *Store) AppendMessage(_ context.Context, sessionID string, msg api.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return storage.ErrNotFound
	}
	e.messages = append(e.messages, msg)
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// LoadMessages returns a copy of a transcript.
func (s *Store) LoadMessages(_ context.Context, sessionID string) ([]api.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)

	out := make([]api.Message, len(e.messages))
	copy(out, e.messages)
	return out, nil
}

// Len returns the number of sessions held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used session.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}

	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)

	debug.Log(debug.CategoryStorage, "evicted session", "id", id)
}
