// Package chunkstore provides chunk storage node implementations and the
// client speaking the node protocol (HEAD/GET/PUT/DELETE of a chunk plus its
// header set).
package chunkstore

import (
	"context"
	"io"
)

// Store is one chunk storage node.
//
// Headers are the wire header map (see domain.HeaderKeys). A negative size on
// Put means the length is unknown and the body is streamed in chunked mode.
// Missing chunks are reported with apperrors.ErrChunkNotFound.
type Store interface {
	Put(ctx context.Context, chunkID string, headers map[string]string, r io.Reader, size int64) error
	Get(ctx context.Context, chunkID string) (map[string]string, io.ReadCloser, error)
	Head(ctx context.Context, chunkID string) (map[string]string, error)
	Delete(ctx context.Context, chunkID string) error
	ServiceID() string
	StorageType() string
}

// StoreType represents the backend of a storage node
type StoreType string

const (
	S3Type      StoreType = "s3"
	GCSType     StoreType = "gcs"
	LevelDBType StoreType = "leveldb"
	MemoryType  StoreType = "mem"
)

// chunkKey spreads chunks over 4096 prefixes like a volume does.
func chunkKey(chunkID string) string {
	if len(chunkID) < 3 {
		return "chunks/" + chunkID
	}
	return "chunks/" + chunkID[:3] + "/" + chunkID
}
