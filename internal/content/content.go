// Package content reads, writes and repairs the chunks of one object version.
//
// A content is loaded once through the Factory, which picks the variant from
// the storage method of the content:
//
//   - PlainContent: every metachunk is held by nb_copy identical copies.
//   - ECContent: every metachunk is split into k data and m parity fragments.
//
// Callers only use the Content interface. Rebuilding a chunk runs the same
// steps for both variants: locate the chunk in the metadata, gather sources,
// copy or reconstruct the bytes, verify them against the recorded checksum,
// place and write a new chunk, then swap it into the chunk list with a
// compare-and-swap on chunks_version.
package content

import (
	"context"
	"io"
	"time"

	"github.com/zzenonn/zblob/internal/domain"
	"github.com/zzenonn/zblob/internal/placement"
	"github.com/zzenonn/zblob/internal/storagemethod"
)

// MetadataService is the authoritative store of containers, contents and
// chunk lists.
type MetadataService interface {
	ContainerInfo(ctx context.Context, containerID string) (domain.Container, error)
	GetContent(ctx context.Context, containerID, contentID string) (domain.ContentMeta, domain.ChunkList, error)
	CreateContent(ctx context.Context, meta domain.ContentMeta, chunks domain.ChunkList) error
	// UpdateChunks replaces the chunk list if chunks_version still equals
	// meta.ChunksVersion, failing with ErrConflict otherwise.
	UpdateChunks(ctx context.Context, meta domain.ContentMeta, chunks domain.ChunkList) error
}

// ChunkClient speaks the chunk node protocol.
type ChunkClient interface {
	Head(ctx context.Context, url string) (domain.ChunkHeaders, error)
	Get(ctx context.Context, url string) (domain.ChunkHeaders, io.ReadCloser, error)
	Put(ctx context.Context, url string, headers domain.ChunkHeaders, body io.Reader, size int64, checksumAlgo string) error
	Delete(ctx context.Context, url string) error
}

// Placer finds destinations for new chunks.
type Placer interface {
	Spare(ctx context.Context, req placement.SpareRequest) ([]domain.Location, error)
}

// Timeouts bound every blocking call. Zero means no limit.
type Timeouts struct {
	Metadata   time.Duration
	SourceRead time.Duration
	Write      time.Duration
}

// Deps are the collaborators shared by every content.
type Deps struct {
	Metadata MetadataService
	Client   ChunkClient
	Placer   Placer
	Timeouts Timeouts
	// SpareAttempts is how many destinations a rebuild tries before giving up.
	SpareAttempts int
	// Now stamps chunk_mtime and versions. Defaults to time.Now.
	Now func() time.Time
}

// RebuildOptions tune a single chunk rebuild.
type RebuildOptions struct {
	// ServiceID picks which copy of a replicated chunk is broken, since
	// copies share their chunk id.
	ServiceID string
	// AllowSameRawx lets the new chunk land on the node of the broken one.
	AllowSameRawx bool
	// ReadAllAvailableSources reads every EC fragment and tolerates
	// fragments whose preamble is damaged.
	ReadAllAvailableSources bool
}

// Content is one object version and its chunks.
type Content interface {
	Meta() domain.ContentMeta
	Chunks() domain.ChunkList
	StorageMethod() storagemethod.StorageMethod
	// Create writes src, which must hold exactly Meta().Length bytes, and
	// commits the chunk list.
	Create(ctx context.Context, src io.Reader) error
	// Fetch streams the object in metachunk order.
	Fetch(ctx context.Context) *Stream
	// RebuildChunk repairs one chunk and returns the number of bytes written.
	RebuildChunk(ctx context.Context, chunkID string, opts RebuildOptions) (int64, error)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
