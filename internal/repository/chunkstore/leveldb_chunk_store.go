package chunkstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	ds "github.com/ipfs/go-datastore"
	leveldb "github.com/ipfs/go-ds-leveldb"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// LevelDBChunkStore is a chunk node on a local LevelDB volume.
type LevelDBChunkStore struct {
	store     *leveldb.Datastore
	serviceID string
	path      string
}

// NewLevelDBChunkStore opens (or creates) a volume at path
func NewLevelDBChunkStore(serviceID, path string) (*LevelDBChunkStore, error) {
	store, err := leveldb.NewDatastore(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume %s: %w", path, err)
	}
	return &LevelDBChunkStore{store: store, serviceID: serviceID, path: path}, nil
}

func (s *LevelDBChunkStore) ServiceID() string { return s.serviceID }

func (s *LevelDBChunkStore) StorageType() string { return string(LevelDBType) }

// Close releases the volume
func (s *LevelDBChunkStore) Close() error {
	return s.store.Close()
}

func dataKey(chunkID string) ds.Key {
	return ds.NewKey(chunkKey(chunkID)).ChildString("data")
}

func headersKey(chunkID string) ds.Key {
	return ds.NewKey(chunkKey(chunkID)).ChildString("headers")
}

// Put writes payload and headers in one batch
func (s *LevelDBChunkStore) Put(ctx context.Context, chunkID string, headers map[string]string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read chunk body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("chunk %s: got %d bytes, expected %d", chunkID, len(data), size)
	}
	rawHeaders, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk headers: %w", err)
	}

	batch, err := s.store.Batch(ctx)
	if err != nil {
		return err
	}
	if err := batch.Put(ctx, dataKey(chunkID), data); err != nil {
		return err
	}
	if err := batch.Put(ctx, headersKey(chunkID), rawHeaders); err != nil {
		return err
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to write chunk %s to %s: %w", chunkID, s.path, err)
	}
	return nil
}

// Get reads a chunk
func (s *LevelDBChunkStore) Get(ctx context.Context, chunkID string) (map[string]string, io.ReadCloser, error) {
	headers, err := s.Head(ctx, chunkID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.store.Get(ctx, dataKey(chunkID))
	if err != nil {
		return nil, nil, s.mapError(chunkID, err)
	}
	return headers, io.NopCloser(bytes.NewReader(data)), nil
}

// Head reads the chunk headers
func (s *LevelDBChunkStore) Head(ctx context.Context, chunkID string) (map[string]string, error) {
	raw, err := s.store.Get(ctx, headersKey(chunkID))
	if err != nil {
		return nil, s.mapError(chunkID, err)
	}
	headers := make(map[string]string)
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil, fmt.Errorf("corrupt headers for chunk %s: %w", chunkID, err)
	}
	return headers, nil
}

// Delete removes a chunk
func (s *LevelDBChunkStore) Delete(ctx context.Context, chunkID string) error {
	found, err := s.store.Has(ctx, headersKey(chunkID))
	if err != nil {
		return s.mapError(chunkID, err)
	}
	if !found {
		return fmt.Errorf("%w: %s in %s", apperrors.ErrChunkNotFound, chunkID, s.path)
	}

	batch, err := s.store.Batch(ctx)
	if err != nil {
		return err
	}
	if err := batch.Delete(ctx, dataKey(chunkID)); err != nil {
		return err
	}
	if err := batch.Delete(ctx, headersKey(chunkID)); err != nil {
		return err
	}
	return batch.Commit(ctx)
}

func (s *LevelDBChunkStore) mapError(chunkID string, err error) error {
	if errors.Is(err, ds.ErrNotFound) {
		return fmt.Errorf("%w: %s in %s", apperrors.ErrChunkNotFound, chunkID, s.path)
	}
	return fmt.Errorf("%s chunk %s: %w", s.path, chunkID, err)
}
