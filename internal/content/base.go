package content

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
	"github.com/zzenonn/zblob/internal/fullpath"
	"github.com/zzenonn/zblob/internal/placement"
	"github.com/zzenonn/zblob/internal/storagemethod"
)

const defaultSpareAttempts = 3

// pendingChunk is a chunk to write along with its stored bytes.
type pendingChunk struct {
	chunk domain.Chunk
	body  []byte
}

// variant is what PlainContent and ECContent specialize.
type variant interface {
	// encode turns one metachunk into the stored bodies of its chunks, in
	// sub-position order. Replicated copies share one body.
	encode(metaPos int, data []byte) ([][]byte, error)
	// readMetachunk returns the payload of one metachunk.
	readMetachunk(ctx context.Context, metaPos int, chunks domain.ChunkList) ([]byte, error)
	// rebuildBody returns the stored bytes of the broken chunk, copied or
	// reconstructed from its siblings.
	rebuildBody(ctx context.Context, broken domain.Chunk, siblings domain.ChunkList, opts RebuildOptions) ([]byte, error)
}

type base struct {
	meta   domain.ContentMeta
	chunks domain.ChunkList
	sm     storagemethod.StorageMethod
	deps   Deps
	impl   variant
}

func newBase(meta domain.ContentMeta, chunks domain.ChunkList, sm storagemethod.StorageMethod, deps Deps) *base {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SpareAttempts <= 0 {
		deps.SpareAttempts = defaultSpareAttempts
	}
	return &base{meta: meta, chunks: chunks, sm: sm, deps: deps}
}

func (b *base) Meta() domain.ContentMeta { return b.meta }

func (b *base) Chunks() domain.ChunkList { return append(domain.ChunkList(nil), b.chunks...) }

func (b *base) StorageMethod() storagemethod.StorageMethod { return b.sm }

func (b *base) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"container_id": b.meta.ContainerID,
		"content_id":   b.meta.ContentID,
		"policy":       b.meta.Policy,
	})
}

// chunkPos is the position of chunk sub of a metachunk. Chunk ids derive from
// it, so replicated copies share one id.
func (b *base) chunkPos(metaPos, sub int) string {
	if b.sm.IsEC() {
		return domain.FormatPos(metaPos, sub)
	}
	return domain.FormatPos(metaPos, -1)
}

// Create implements Content.
func (b *base) Create(ctx context.Context, src io.Reader) error {
	if err := b.checkContainer(ctx); err != nil {
		return err
	}

	logger := b.logger()
	hasher := md5.New()
	count := domain.MetachunkCount(b.meta.Length, b.meta.ChunkSize)
	var chunks domain.ChunkList

	for pos := 0; pos < count; pos++ {
		size := domain.MetachunkSize(b.meta.Length, b.meta.ChunkSize, pos)
		data := make([]byte, size)
		if _, err := io.ReadFull(src, data); err != nil {
			return fmt.Errorf("failed to read metachunk %d: %w", pos, err)
		}
		hasher.Write(data)

		written, err := b.writeMetachunk(ctx, pos, data)
		if err != nil {
			return err
		}
		chunks = append(chunks, written...)
		logger.WithField("pos", pos).Debugf("Metachunk written to %d chunks", len(written))
	}

	var extra [1]byte
	if n, _ := src.Read(extra[:]); n > 0 {
		return fmt.Errorf("source is longer than %d bytes", b.meta.Length)
	}

	b.meta.Hash = strings.ToUpper(hex.EncodeToString(hasher.Sum(nil)))
	b.meta.ChunksVersion = 0

	mctx, cancel := withTimeout(ctx, b.deps.Timeouts.Metadata)
	defer cancel()
	if err := b.deps.Metadata.CreateContent(mctx, b.meta, chunks); err != nil {
		return fmt.Errorf("failed to commit content: %w", err)
	}
	b.chunks = chunks

	logger.WithFields(log.Fields{
		"length": b.meta.Length,
		"chunks": len(chunks),
	}).Info("Content created")
	return nil
}

// writeMetachunk places and writes every chunk of one metachunk. All of them
// must succeed.
func (b *base) writeMetachunk(ctx context.Context, pos int, data []byte) (domain.ChunkList, error) {
	bodies, err := b.impl.encode(pos, data)
	if err != nil {
		return nil, err
	}

	locations, err := b.deps.Placer.Spare(ctx, placement.SpareRequest{
		Count:  len(bodies),
		Policy: b.meta.Policy,
	})
	if err != nil {
		return nil, err
	}

	pending := make([]pendingChunk, len(bodies))
	for i, body := range bodies {
		id := domain.ComputeChunkID(b.meta.ContainerID, b.meta.Name, b.meta.Version, b.chunkPos(pos, i), b.meta.Policy)
		pending[i] = pendingChunk{
			chunk: domain.Chunk{
				ID:       id,
				URL:      domain.ChunkURL(locations[i].ServiceID, id),
				Pos:      b.chunkPos(pos, i),
				Size:     int64(len(body)),
				Checksum: b.sm.Checksum(body),
			},
			body: body,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pending {
		p := p
		g.Go(func() error {
			return b.writeChunk(gctx, p)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.NewKindError(fmt.Sprintf("metachunk %d: write quorum not reached", pos), err, apperrors.ErrUnrecoverableContent)
	}

	out := make(domain.ChunkList, len(pending))
	for i, p := range pending {
		out[i] = p.chunk
	}
	return out, nil
}

func (b *base) writeChunk(ctx context.Context, p pendingChunk) error {
	wctx, cancel := withTimeout(ctx, b.deps.Timeouts.Write)
	defer cancel()

	headers := domain.NewChunkHeaders(b.meta, p.chunk, b.deps.Now())
	return b.deps.Client.Put(wctx, p.chunk.URL, headers, bytes.NewReader(p.body), p.chunk.Size, b.sm.ChecksumAlgorithm)
}

// Fetch implements Content.
func (b *base) Fetch(ctx context.Context) *Stream {
	metachunks := make(map[int]domain.ChunkList)
	for _, mc := range b.chunks.Metachunks() {
		metachunks[mc.Pos] = mc.Chunks
	}
	count := domain.MetachunkCount(b.meta.Length, b.meta.ChunkSize)

	return newStream(ctx, count, func(ctx context.Context, pos int) ([]byte, error) {
		chunks, ok := metachunks[pos]
		if !ok {
			return nil, apperrors.Unrecoverable("content %s: no chunk at position %d", b.meta.ContentID, pos)
		}
		data, err := b.impl.readMetachunk(ctx, pos, chunks)
		if err != nil {
			return nil, err
		}
		if want := domain.MetachunkSize(b.meta.Length, b.meta.ChunkSize, pos); int64(len(data)) != want {
			return nil, apperrors.VerifyFailed("metachunk %d: got %d bytes, expected %d", pos, len(data), want)
		}
		return data, nil
	})
}

// readChunk downloads a chunk under the source read timeout.
func (b *base) readChunk(ctx context.Context, c domain.Chunk) (domain.ChunkHeaders, []byte, error) {
	rctx, cancel := withTimeout(ctx, b.deps.Timeouts.SourceRead)
	defer cancel()

	headers, body, err := b.deps.Client.Get(rctx, c.URL)
	if err != nil {
		return domain.ChunkHeaders{}, nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return domain.ChunkHeaders{}, nil, fmt.Errorf("failed to read %s: %w", c.URL, err)
	}
	return headers, data, nil
}

// checkHeaders verifies that a chunk read from a node belongs to this content
// at the expected position.
func (b *base) checkHeaders(c domain.Chunk, h domain.ChunkHeaders) error {
	if err := fullpath.Matches(h.FullPath, b.meta.Fullpath()); err != nil {
		return apperrors.NewKindError(c.URL, err, apperrors.ErrVerifyFailed, apperrors.ErrUnrecoverableContent)
	}
	if h.ChunkID != c.ID || h.ChunkPos != c.Pos || h.ContentID != b.meta.ContentID {
		return apperrors.VerifyFailed("%s: headers describe chunk %s at %s of %s", c.URL, h.ChunkID, h.ChunkPos, h.ContentID)
	}
	return nil
}

// checkData verifies stored bytes against the chunk record.
func (b *base) checkData(c domain.Chunk, data []byte) error {
	if int64(len(data)) != c.Size {
		return apperrors.VerifyFailed("%s: %d bytes, expected %d", c.URL, len(data), c.Size)
	}
	if sum := b.sm.Checksum(data); sum != c.Checksum {
		return apperrors.VerifyFailed("%s: checksum %s, expected %s", c.URL, sum, c.Checksum)
	}
	return nil
}

func (b *base) checkContainer(ctx context.Context) error {
	mctx, cancel := withTimeout(ctx, b.deps.Timeouts.Metadata)
	defer cancel()

	container, err := b.deps.Metadata.ContainerInfo(mctx, b.meta.ContainerID)
	if err != nil {
		return err
	}
	if container.Status != domain.ContainerEnabled {
		return fmt.Errorf("%w: %s is %s", apperrors.ErrFrozenContainer, b.meta.ContainerID, container.Status)
	}
	return nil
}

// RebuildChunk implements Content.
func (b *base) RebuildChunk(ctx context.Context, chunkID string, opts RebuildOptions) (int64, error) {
	logger := b.logger().WithField("chunk_id", chunkID)

	// LOCATE_METADATA
	broken, err := b.locate(ctx, chunkID, opts.ServiceID)
	if err != nil {
		return 0, err
	}
	logger = logger.WithField("url", broken.URL)
	if err := b.checkContainer(ctx); err != nil {
		return 0, err
	}
	siblings := b.chunks.Filter(broken.MetaPos(), "", "").Exclude(broken.URL)

	// GATHER_SOURCES + RECONSTRUCT or DIRECT_COPY
	body, err := b.impl.rebuildBody(ctx, broken, siblings, opts)
	if err != nil {
		logger.WithError(err).Warn("No usable source for rebuild")
		return 0, err
	}

	// VERIFY
	if err := b.checkData(broken, body); err != nil {
		logger.WithError(err).Warn("Rebuilt chunk does not match its record")
		return 0, err
	}

	// PLACE + WRITE
	rebuilt, err := b.placeAndWrite(ctx, broken, siblings, body, opts)
	if err != nil {
		return 0, err
	}

	// COMMIT_METADATA
	if err := b.commit(ctx, broken, rebuilt); err != nil {
		logger.WithError(err).Warn("Rebuilt chunk left orphaned")
		return 0, err
	}

	logger.WithFields(log.Fields{
		"new_url": rebuilt.URL,
		"bytes":   rebuilt.Size,
	}).Info("Chunk rebuilt")
	return rebuilt.Size, nil
}

// locate finds the chunk record to rebuild. Copies of a replicated metachunk
// share their id: serviceID picks one, otherwise the first copy that fails a
// HEAD probe is taken, falling back to the first copy.
func (b *base) locate(ctx context.Context, chunkID, serviceID string) (domain.Chunk, error) {
	candidates := b.chunks.Filter(-1, serviceID, chunkID)
	if len(candidates) == 0 {
		return domain.Chunk{}, fmt.Errorf("%w: %s in content %s", apperrors.ErrOrphanChunk, chunkID, b.meta.ContentID)
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	for _, c := range candidates {
		hctx, cancel := withTimeout(ctx, b.deps.Timeouts.SourceRead)
		h, err := b.deps.Client.Head(hctx, c.URL)
		cancel()
		if err != nil || b.checkHeaders(c, h) != nil {
			return c, nil
		}
	}
	first, _ := candidates.One()
	return first, nil
}

// placeAndWrite writes body to a freshly placed location, moving on to
// another one when a destination fails.
func (b *base) placeAndWrite(ctx context.Context, broken domain.Chunk, siblings domain.ChunkList, body []byte, opts RebuildOptions) (domain.Chunk, error) {
	req := placement.SpareRequest{
		Known:  siblings.Locations(),
		Count:  1,
		Policy: b.meta.Policy,
	}
	if !opts.AllowSameRawx {
		req.Excluded = []domain.Location{broken.Location()}
		req.AvoidSameNodeAs = broken.Host()
	}

	var lastErr error
	for attempt := 0; attempt < b.deps.SpareAttempts; attempt++ {
		locations, err := b.deps.Placer.Spare(ctx, req)
		if err != nil {
			return domain.Chunk{}, err
		}
		loc := locations[0]

		rebuilt := broken
		rebuilt.URL = domain.ChunkURL(loc.ServiceID, broken.ID)
		err = b.writeChunk(ctx, pendingChunk{chunk: rebuilt, body: body})
		if err == nil {
			return rebuilt, nil
		}
		if errors.Is(err, context.Canceled) {
			return domain.Chunk{}, err
		}

		b.logger().WithFields(log.Fields{
			"chunk_id": broken.ID,
			"url":      rebuilt.URL,
			"attempt":  attempt + 1,
		}).WithError(err).Warn("Failed to write rebuilt chunk")
		lastErr = err
		req.Excluded = append(req.Excluded, loc)
	}
	return domain.Chunk{}, apperrors.NewKindError(
		fmt.Sprintf("no destination accepted chunk %s after %d attempts", broken.ID, b.deps.SpareAttempts),
		lastErr, apperrors.ErrPlacementExhausted)
}

// commit swaps the broken record for the rebuilt one.
func (b *base) commit(ctx context.Context, broken, rebuilt domain.Chunk) error {
	updated := make(domain.ChunkList, 0, len(b.chunks))
	for _, c := range b.chunks {
		if c.URL == broken.URL {
			updated = append(updated, rebuilt)
			continue
		}
		updated = append(updated, c)
	}

	mctx, cancel := withTimeout(ctx, b.deps.Timeouts.Metadata)
	defer cancel()
	if err := b.deps.Metadata.UpdateChunks(mctx, b.meta, updated); err != nil {
		return err
	}
	b.meta.ChunksVersion++
	b.chunks = updated
	return nil
}
