package domain

import (
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// Header keys stored with every chunk. Case-sensitive.
const (
	HeaderChunkID     = "chunk_id"
	HeaderChunkSize   = "chunk_size"
	HeaderChunkHash   = "chunk_hash"
	HeaderChunkPos    = "chunk_pos"
	HeaderContentID   = "content_id"
	HeaderContentPath = "content_path"
	HeaderContainerID = "container_id"
	HeaderFullPath    = "full_path"
	HeaderChunkMtime  = "chunk_mtime"
	HeaderOioVersion  = "oio_version"
)

// OioVersion is the chunk format version written by this code.
const OioVersion = "4.2"

// HeaderKeys lists the full header set.
var HeaderKeys = []string{
	HeaderChunkID, HeaderChunkSize, HeaderChunkHash, HeaderChunkPos, HeaderContentID,
	HeaderContentPath, HeaderContainerID, HeaderFullPath, HeaderChunkMtime, HeaderOioVersion,
}

// ChunkHeaders - provenance and integrity attributes of a physical chunk
type ChunkHeaders struct {
	ChunkID     string
	ChunkSize   int64
	ChunkHash   string
	ChunkPos    string
	ContentID   string
	ContentPath string
	ContainerID string
	FullPath    string
	ChunkMtime  int64
	OioVersion  string
}

// NewChunkHeaders builds the header set for a chunk of meta.
func NewChunkHeaders(meta ContentMeta, c Chunk, now time.Time) ChunkHeaders {
	return ChunkHeaders{
		ChunkID:     c.ID,
		ChunkSize:   c.Size,
		ChunkHash:   c.Checksum,
		ChunkPos:    c.Pos,
		ContentID:   meta.ContentID,
		ContentPath: meta.Name,
		ContainerID: meta.ContainerID,
		FullPath:    meta.Fullpath().String(),
		ChunkMtime:  now.Unix(),
		OioVersion:  OioVersion,
	}
}

// ToMap renders the headers with their wire keys.
func (h ChunkHeaders) ToMap() map[string]string {
	return map[string]string{
		HeaderChunkID:     h.ChunkID,
		HeaderChunkSize:   strconv.FormatInt(h.ChunkSize, 10),
		HeaderChunkHash:   h.ChunkHash,
		HeaderChunkPos:    h.ChunkPos,
		HeaderContentID:   h.ContentID,
		HeaderContentPath: h.ContentPath,
		HeaderContainerID: h.ContainerID,
		HeaderFullPath:    h.FullPath,
		HeaderChunkMtime:  strconv.FormatInt(h.ChunkMtime, 10),
		HeaderOioVersion:  h.OioVersion,
	}
}

// HeadersFromMap parses a wire header map. Every key must be present.
func HeadersFromMap(m map[string]string) (ChunkHeaders, error) {
	for _, k := range HeaderKeys {
		if _, ok := m[k]; !ok {
			return ChunkHeaders{}, fmt.Errorf("%w: missing chunk header %q", apperrors.ErrMalformedHeaders, k)
		}
	}
	size, err := strconv.ParseInt(m[HeaderChunkSize], 10, 64)
	if err != nil {
		return ChunkHeaders{}, fmt.Errorf("%w: invalid %s: %v", apperrors.ErrMalformedHeaders, HeaderChunkSize, err)
	}
	mtime, err := strconv.ParseInt(m[HeaderChunkMtime], 10, 64)
	if err != nil {
		return ChunkHeaders{}, fmt.Errorf("%w: invalid %s: %v", apperrors.ErrMalformedHeaders, HeaderChunkMtime, err)
	}
	return ChunkHeaders{
		ChunkID:     m[HeaderChunkID],
		ChunkSize:   size,
		ChunkHash:   m[HeaderChunkHash],
		ChunkPos:    m[HeaderChunkPos],
		ContentID:   m[HeaderContentID],
		ContentPath: m[HeaderContentPath],
		ContainerID: m[HeaderContainerID],
		FullPath:    m[HeaderFullPath],
		ChunkMtime:  mtime,
		OioVersion:  m[HeaderOioVersion],
	}, nil
}
