package chunkstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
	"github.com/zzenonn/zblob/internal/storagemethod"
)

// Router speaks the chunk node protocol over registered nodes, resolving the
// node of a chunk from the service id in its URL.
type Router struct {
	mu     sync.RWMutex
	stores map[string]Store
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{stores: make(map[string]Store)}
}

// Register adds a node
func (r *Router) Register(store Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stores[store.ServiceID()]; exists {
		return fmt.Errorf("node %s already registered", store.ServiceID())
	}
	r.stores[store.ServiceID()] = store
	return nil
}

// Store returns the node of a service id
func (r *Router) Store(serviceID string) (Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, ok := r.stores[serviceID]
	if !ok {
		return nil, fmt.Errorf("no node registered for service %s", serviceID)
	}
	return store, nil
}

// ServiceIDs returns the registered service ids, sorted
func (r *Router) ServiceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Router) resolve(url string) (Store, string, error) {
	serviceID, chunkID, err := domain.ParseChunkURL(url)
	if err != nil {
		return nil, "", err
	}
	store, err := r.Store(serviceID)
	if err != nil {
		return nil, "", err
	}
	return store, chunkID, nil
}

// Head returns the parsed headers of a chunk
func (r *Router) Head(ctx context.Context, url string) (domain.ChunkHeaders, error) {
	store, chunkID, err := r.resolve(url)
	if err != nil {
		return domain.ChunkHeaders{}, err
	}
	raw, err := store.Head(ctx, chunkID)
	if err != nil {
		return domain.ChunkHeaders{}, err
	}
	return domain.HeadersFromMap(raw)
}

// Get returns the parsed headers and the payload stream of a chunk
func (r *Router) Get(ctx context.Context, url string) (domain.ChunkHeaders, io.ReadCloser, error) {
	store, chunkID, err := r.resolve(url)
	if err != nil {
		return domain.ChunkHeaders{}, nil, err
	}
	raw, body, err := store.Get(ctx, chunkID)
	if err != nil {
		return domain.ChunkHeaders{}, nil, err
	}
	headers, err := domain.HeadersFromMap(raw)
	if err != nil {
		body.Close()
		return domain.ChunkHeaders{}, nil, err
	}
	return headers, body, nil
}

// Put writes a chunk. The body is hashed on the way with checksumAlgo and
// must match headers.ChunkHash; on mismatch the written chunk is removed and
// ErrChecksumMismatch returned. A negative size streams in chunked mode.
func (r *Router) Put(ctx context.Context, url string, headers domain.ChunkHeaders, body io.Reader, size int64, checksumAlgo string) error {
	store, chunkID, err := r.resolve(url)
	if err != nil {
		return err
	}
	if headers.ChunkID != chunkID {
		return fmt.Errorf("chunk id header %s does not match url %s", headers.ChunkID, url)
	}
	hasher, err := storagemethod.NewHasherFor(checksumAlgo)
	if err != nil {
		return err
	}

	counter := &countingReader{r: io.TeeReader(body, hasher)}
	if err := store.Put(ctx, chunkID, headers.ToMap(), counter, size); err != nil {
		return err
	}

	sum := storagemethod.FormatSum(hasher)
	if sum != headers.ChunkHash || (size >= 0 && counter.n != size) {
		log.WithFields(log.Fields{
			"url":      url,
			"expected": headers.ChunkHash,
			"got":      sum,
		}).Warn("Checksum mismatch on chunk write, removing it")
		if err := store.Delete(ctx, chunkID); err != nil {
			log.Warnf("Failed to remove bad chunk %s: %v", url, err)
		}
		return fmt.Errorf("%w: %s", apperrors.ErrChecksumMismatch, url)
	}
	return nil
}

// Delete removes a chunk
func (r *Router) Delete(ctx context.Context, url string) error {
	store, chunkID, err := r.resolve(url)
	if err != nil {
		return err
	}
	return store.Delete(ctx, chunkID)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
