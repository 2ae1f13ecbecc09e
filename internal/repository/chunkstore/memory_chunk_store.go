package chunkstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

type memoryChunk struct {
	headers map[string]string
	data    []byte
}

// MemoryStore keeps chunks in memory. It backs local runs and tests and can
// simulate a node that is down.
type MemoryStore struct {
	mu        sync.RWMutex
	serviceID string
	chunks    map[string]memoryChunk
	fault     error
}

// NewMemoryStore creates an empty in-memory node
func NewMemoryStore(serviceID string) *MemoryStore {
	return &MemoryStore{
		serviceID: serviceID,
		chunks:    make(map[string]memoryChunk),
	}
}

func (s *MemoryStore) ServiceID() string { return s.serviceID }

func (s *MemoryStore) StorageType() string { return string(MemoryType) }

// SetFault makes every operation fail with err until cleared with nil.
func (s *MemoryStore) SetFault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

// Put stores a chunk
func (s *MemoryStore) Put(_ context.Context, chunkID string, headers map[string]string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read chunk body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("chunk %s: got %d bytes, expected %d", chunkID, len(data), size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return s.fault
	}
	s.chunks[chunkID] = memoryChunk{headers: copyHeaders(headers), data: data}
	return nil
}

// Get returns a chunk and its headers
func (s *MemoryStore) Get(_ context.Context, chunkID string) (map[string]string, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fault != nil {
		return nil, nil, s.fault
	}
	c, ok := s.chunks[chunkID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s on %s", apperrors.ErrChunkNotFound, chunkID, s.serviceID)
	}
	return copyHeaders(c.headers), io.NopCloser(bytes.NewReader(c.data)), nil
}

// Head returns the headers of a chunk
func (s *MemoryStore) Head(_ context.Context, chunkID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fault != nil {
		return nil, s.fault
	}
	c, ok := s.chunks[chunkID]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", apperrors.ErrChunkNotFound, chunkID, s.serviceID)
	}
	return copyHeaders(c.headers), nil
}

// Delete removes a chunk
func (s *MemoryStore) Delete(_ context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fault != nil {
		return s.fault
	}
	if _, ok := s.chunks[chunkID]; !ok {
		return fmt.Errorf("%w: %s on %s", apperrors.ErrChunkNotFound, chunkID, s.serviceID)
	}
	delete(s.chunks, chunkID)
	return nil
}

// Raw returns the stored bytes of a chunk.
func (s *MemoryStore) Raw(chunkID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[chunkID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), c.data...), true
}

// Corrupt overwrites stored bytes in place, keeping the headers.
func (s *MemoryStore) Corrupt(chunkID string, fn func(data []byte)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[chunkID]
	if !ok {
		return false
	}
	fn(c.data)
	return true
}

// Len returns the number of chunks held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
