package content

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
	"github.com/zzenonn/zblob/internal/storagemethod"
)

// PlainContent is a content stored as identical copies.
type PlainContent struct {
	*base
}

// NewPlainContent wraps loaded metadata into a replicated content.
func NewPlainContent(meta domain.ContentMeta, chunks domain.ChunkList, sm storagemethod.StorageMethod, deps Deps) *PlainContent {
	c := &PlainContent{base: newBase(meta, chunks, sm, deps)}
	c.impl = c
	return c
}

func (c *PlainContent) encode(_ int, data []byte) ([][]byte, error) {
	bodies := make([][]byte, c.sm.NbCopy)
	for i := range bodies {
		bodies[i] = data
	}
	return bodies, nil
}

// readMetachunk returns the first copy that reads back intact.
func (c *PlainContent) readMetachunk(ctx context.Context, metaPos int, chunks domain.ChunkList) ([]byte, error) {
	data, err := c.firstHealthyCopy(ctx, chunks)
	if err != nil {
		return nil, apperrors.NewKindError(
			"metachunk "+domain.FormatPos(metaPos, -1)+": no healthy copy", err, apperrors.ErrUnrecoverableContent)
	}
	return data, nil
}

// rebuildBody copies any other healthy copy of the metachunk.
func (c *PlainContent) rebuildBody(ctx context.Context, broken domain.Chunk, siblings domain.ChunkList, _ RebuildOptions) ([]byte, error) {
	if len(siblings) == 0 {
		return nil, apperrors.Unrecoverable("chunk %s has no other copy", broken.URL)
	}
	data, err := c.firstHealthyCopy(ctx, siblings)
	if err != nil {
		return nil, apperrors.NewKindError("no healthy copy of "+broken.URL, err, apperrors.ErrUnrecoverableContent)
	}
	return data, nil
}

// firstHealthyCopy returns the bytes of the first copy that reads, carries
// this content's headers and matches its checksum. It returns the last
// failure when none does.
func (c *PlainContent) firstHealthyCopy(ctx context.Context, copies domain.ChunkList) ([]byte, error) {
	var lastErr error
	for _, chunk := range copies {
		headers, data, err := c.readChunk(ctx, chunk)
		if err == nil {
			err = c.checkHeaders(chunk, headers)
		}
		if err == nil {
			err = c.checkData(chunk, data)
		}
		if err != nil {
			c.logger().WithFields(log.Fields{"url": chunk.URL}).WithError(err).Warn("Copy unusable")
			lastErr = err
			continue
		}
		return data, nil
	}
	return nil, lastErr
}
