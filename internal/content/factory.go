package content

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zzenonn/zblob/internal/domain"
	"github.com/zzenonn/zblob/internal/storagemethod"
)

// Factory loads contents and instantiates the variant matching their
// storage method.
type Factory struct {
	deps      Deps
	policies  *storagemethod.Policies
	chunkSize int64
}

// NewFactory creates a factory. chunkSize is the default metachunk size of
// new contents.
func NewFactory(deps Deps, policies *storagemethod.Policies, chunkSize int64) *Factory {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Factory{deps: deps, policies: policies, chunkSize: chunkSize}
}

// New prepares a content of length bytes under policy. Nothing is written
// until Create is called.
func (f *Factory) New(ctx context.Context, containerID, name string, length int64, policy string) (Content, error) {
	if length < 0 {
		return nil, fmt.Errorf("invalid content length %d", length)
	}
	chunkMethod, err := f.policies.ChunkMethod(policy)
	if err != nil {
		return nil, err
	}
	sm, err := storagemethod.Resolve(chunkMethod)
	if err != nil {
		return nil, err
	}

	mctx, cancel := withTimeout(ctx, f.deps.Timeouts.Metadata)
	defer cancel()
	container, err := f.deps.Metadata.ContainerInfo(mctx, containerID)
	if err != nil {
		return nil, err
	}

	chunkSize := f.chunkSize
	if sm.MinChunkSize > chunkSize {
		chunkSize = sm.MinChunkSize
	}

	meta := domain.ContentMeta{
		ContainerID: containerID,
		ContentID:   strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")),
		Account:     container.Account,
		Container:   container.Name,
		Name:        name,
		Version:     strconv.FormatInt(f.deps.Now().UnixMicro(), 10),
		Length:      length,
		Policy:      strings.ToUpper(policy),
		ChunkMethod: chunkMethod,
		ChunkSize:   chunkSize,
	}
	return f.instantiate(meta, nil, sm)
}

// Get loads an existing content.
func (f *Factory) Get(ctx context.Context, containerID, contentID string) (Content, error) {
	mctx, cancel := withTimeout(ctx, f.deps.Timeouts.Metadata)
	defer cancel()

	meta, chunks, err := f.deps.Metadata.GetContent(mctx, containerID, contentID)
	if err != nil {
		return nil, err
	}
	sm, err := storagemethod.Resolve(meta.ChunkMethod)
	if err != nil {
		return nil, err
	}
	return f.instantiate(meta, chunks, sm)
}

func (f *Factory) instantiate(meta domain.ContentMeta, chunks domain.ChunkList, sm storagemethod.StorageMethod) (Content, error) {
	if sm.IsEC() {
		c, err := NewECContent(meta, chunks, sm, f.deps)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return NewPlainContent(meta, chunks, sm, f.deps), nil
}
