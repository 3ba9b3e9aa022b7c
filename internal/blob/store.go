// Package blob keeps displayable image resources addressable by handle until
// they are explicitly released, the way object URLs work for an image element.
package blob

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownHandle is returned for handles that were never created or are
// already released.
var ErrUnknownHandle = errors.New("blob: unknown handle")

// Handle identifies a live resource. The zero value is never issued.
type Handle string

const scheme = "blob:"

type entry struct {
	data []byte
	mime string
}

// Stats counts store activity.
type Stats struct {
	Created  uint64 `json:"created"`
	Released uint64 `json:"released"`
	Live     int    `json:"live"`
}

// Store is safe for concurrent use. The rendering surface resolves handles
// from its decode goroutine while the pump creates and releases them.
type Store struct {
	mu       sync.Mutex
	blobs    map[Handle]entry
	created  uint64
	released uint64
}

func NewStore() *Store {
	return &Store{blobs: make(map[Handle]entry)}
}

// Create registers data under a fresh handle. data is not copied.
func (s *Store) Create(data []byte, mime string) Handle {
	h := Handle(scheme + uuid.NewString())

	s.mu.Lock()
	s.blobs[h] = entry{data: data, mime: mime}
	s.created++
	s.mu.Unlock()

	return h
}

// Resolve returns the bytes and content type behind h.
func (s *Store) Resolve(h Handle) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.blobs[h]
	if !ok {
		return nil, "", ErrUnknownHandle
	}
	return e.data, e.mime, nil
}

// Release drops h. Releasing twice reports ErrUnknownHandle.
func (s *Store) Release(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[h]; !ok {
		return ErrUnknownHandle
	}
	delete(s.blobs, h)
	s.released++
	return nil
}

// Live is the number of handles created and not yet released.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Created: s.created, Released: s.released, Live: len(s.blobs)}
}
