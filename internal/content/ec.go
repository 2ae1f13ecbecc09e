package content

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zzenonn/zblob/internal/domain"
	"github.com/zzenonn/zblob/internal/ec"
	apperrors "github.com/zzenonn/zblob/internal/errors"
	"github.com/zzenonn/zblob/internal/storagemethod"
)

// ECContent is a content stored as erasure-coded fragments.
type ECContent struct {
	*base
	codec *ec.Codec
}

// NewECContent wraps loaded metadata into an erasure-coded content.
func NewECContent(meta domain.ContentMeta, chunks domain.ChunkList, sm storagemethod.StorageMethod, deps Deps) (*ECContent, error) {
	codec, err := ec.NewCodec(sm)
	if err != nil {
		return nil, err
	}
	c := &ECContent{base: newBase(meta, chunks, sm, deps), codec: codec}
	c.impl = c
	return c, nil
}

func (c *ECContent) encode(_ int, data []byte) ([][]byte, error) {
	fragments, err := c.codec.Encode(data)
	if err != nil {
		return nil, &apperrors.ECDriverError{Reason: err.Error()}
	}
	return fragments, nil
}

// fragment is the outcome of reading one stored fragment.
type fragment struct {
	chunk   domain.Chunk
	payload []byte
	err     error
	// suspect fragments failed validation but their payload was salvaged.
	suspect bool
}

// readFragment downloads a fragment and validates it: headers, checksum,
// then preamble. A transport failure is reported as such in ioErr so
// callers can tell an unreachable source from a corrupt one. A header set
// that does not parse is corrupt, not unreachable.
func (c *ECContent) readFragment(ctx context.Context, chunk domain.Chunk) (f fragment, ioErr bool) {
	f.chunk = chunk
	headers, raw, err := c.readChunk(ctx, chunk)
	if errors.Is(err, apperrors.ErrMalformedHeaders) {
		f.err = apperrors.NewKindError(chunk.URL, err, apperrors.ErrVerifyFailed, apperrors.ErrUnrecoverableContent)
		return f, false
	}
	if err != nil {
		f.err = err
		return f, true
	}
	if err := c.checkHeaders(chunk, headers); err != nil {
		f.err = err
		return f, false
	}

	checksumErr := c.checkData(chunk, raw)
	pre, payload, err := ec.Parse(raw)
	if err == nil && pre.Index != chunk.SubPos() {
		err = fmt.Errorf("%w: preamble index %d at position %s", ec.ErrBadPreamble, pre.Index, chunk.Pos)
	}
	if err == nil && (pre.K != c.codec.K() || pre.M != c.codec.M()) {
		err = fmt.Errorf("%w: preamble says k=%d m=%d", ec.ErrBadPreamble, pre.K, pre.M)
	}
	switch {
	case err != nil:
		f.err = err
		// A damaged preamble does not mean a damaged payload.
		if errors.Is(err, ec.ErrBadPreamble) {
			if salvaged, ok := ec.Salvage(raw); ok {
				f.payload = salvaged
				f.suspect = true
			}
		}
	case checksumErr != nil:
		f.err = checksumErr
		f.payload = payload
		f.suspect = true
	default:
		f.payload = payload
	}
	return f, false
}

// readMetachunk decodes a metachunk from the first k fragments that read
// back intact, in index order.
func (c *ECContent) readMetachunk(ctx context.Context, metaPos int, chunks domain.ChunkList) ([]byte, error) {
	payloads := make(map[int][]byte)
	failures := make(map[int]error)
	for _, chunk := range chunks {
		if len(payloads) == c.codec.K() {
			break
		}
		f, _ := c.readFragment(ctx, chunk)
		if f.err != nil || f.suspect {
			failures[chunk.SubPos()] = f.err
			continue
		}
		payloads[chunk.SubPos()] = f.payload
	}
	if len(payloads) < c.codec.K() {
		return nil, &apperrors.ECDriverError{
			Reason:   fmt.Sprintf("metachunk %d: %d valid fragments, %d needed", metaPos, len(payloads), c.codec.K()),
			Failures: failures,
		}
	}

	size := domain.MetachunkSize(c.meta.Length, c.meta.ChunkSize, metaPos)
	return c.codec.Decode(payloads, size)
}

// rebuildBody reconstructs the broken fragment and frames it again.
func (c *ECContent) rebuildBody(ctx context.Context, broken domain.Chunk, siblings domain.ChunkList, opts RebuildOptions) ([]byte, error) {
	siblings = append(domain.ChunkList(nil), siblings...)
	siblings.SortBySubPos()

	var (
		payload []byte
		err     error
	)
	if opts.ReadAllAvailableSources {
		payload, err = c.reconstructFromAll(ctx, broken, siblings)
	} else {
		payload, err = c.reconstructFast(ctx, broken, siblings)
	}
	if err != nil {
		return nil, err
	}

	size := domain.MetachunkSize(c.meta.Length, c.meta.ChunkSize, broken.MetaPos())
	return ec.Frame(broken.SubPos(), c.codec.K(), c.codec.M(), size, payload), nil
}

// reconstructFast reads fragments in index order until k are held. A source
// that cannot be read is skipped, but a fragment that reads back corrupt
// stops the rebuild.
func (c *ECContent) reconstructFast(ctx context.Context, broken domain.Chunk, siblings domain.ChunkList) ([]byte, error) {
	payloads := make(map[int][]byte)
	failures := make(map[int]error)

	for _, chunk := range siblings {
		if len(payloads) == c.codec.K() {
			break
		}
		f, ioErr := c.readFragment(ctx, chunk)
		idx := chunk.SubPos()
		if ioErr {
			c.logger().WithFields(log.Fields{"url": chunk.URL}).WithError(f.err).Warn("Fragment unreachable")
			failures[idx] = f.err
			continue
		}
		if f.err != nil {
			failures[idx] = f.err
			return nil, &apperrors.ECDriverError{
				Reason:   fmt.Sprintf("invalid fragment %s", chunk.Pos),
				Failures: failures,
			}
		}
		payloads[idx] = f.payload
	}

	if len(payloads) < c.codec.K() {
		return nil, &apperrors.ECDriverError{
			Reason:   fmt.Sprintf("%d fragments available to rebuild %s, %d needed", len(payloads), broken.Pos, c.codec.K()),
			Failures: failures,
		}
	}
	return c.codec.Reconstruct(payloads, broken.SubPos())
}

// reconstructFromAll reads every fragment concurrently. Valid fragments are
// used first; suspect ones fill in only when fewer than k are valid.
func (c *ECContent) reconstructFromAll(ctx context.Context, broken domain.Chunk, siblings domain.ChunkList) ([]byte, error) {
	results := make([]fragment, len(siblings))
	var g errgroup.Group
	for i, chunk := range siblings {
		i, chunk := i, chunk
		g.Go(func() error {
			results[i], _ = c.readFragment(ctx, chunk)
			return nil
		})
	}
	_ = g.Wait()

	payloads := make(map[int][]byte)
	failures := make(map[int]error)
	var suspects []fragment
	for _, f := range results {
		idx := f.chunk.SubPos()
		switch {
		case f.err == nil:
			payloads[idx] = f.payload
		case f.suspect:
			failures[idx] = f.err
			suspects = append(suspects, f)
		default:
			failures[idx] = f.err
		}
	}

	for _, s := range suspects {
		if len(payloads) >= c.codec.K() {
			break
		}
		c.logger().WithFields(log.Fields{"url": s.chunk.URL}).WithError(s.err).Warn("Using salvaged fragment payload")
		payloads[s.chunk.SubPos()] = s.payload
	}

	if len(payloads) < c.codec.K() {
		return nil, &apperrors.ECDriverError{
			Reason:   fmt.Sprintf("%d usable fragments to rebuild %s, %d needed", len(payloads), broken.Pos, c.codec.K()),
			Failures: failures,
		}
	}
	return c.codec.Reconstruct(payloads, broken.SubPos())
}
