// Package memory provides an in-process metadata service with the same
// semantics as the DynamoDB one, for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
)

type contentKey struct {
	containerID string
	contentID   string
}

type contentRecord struct {
	meta   domain.ContentMeta
	chunks domain.ChunkList
}

// MetadataRepository keeps containers and contents in maps.
type MetadataRepository struct {
	mu         sync.RWMutex
	containers map[string]domain.Container
	contents   map[contentKey]contentRecord
}

func NewMetadataRepository() *MetadataRepository {
	return &MetadataRepository{
		containers: make(map[string]domain.Container),
		contents:   make(map[contentKey]contentRecord),
	}
}

func (r *MetadataRepository) CreateContainer(_ context.Context, container domain.Container) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.containers[container.ContainerID]; ok {
		return fmt.Errorf("container %s already exists", container.ContainerID)
	}
	r.containers[container.ContainerID] = container
	return nil
}

func (r *MetadataRepository) ContainerInfo(_ context.Context, containerID string) (domain.Container, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.containers[containerID]
	if !ok {
		return domain.Container{}, fmt.Errorf("%w: %s", apperrors.ErrContainerNotFound, containerID)
	}
	return c, nil
}

func (r *MetadataRepository) SetContainerStatus(_ context.Context, containerID string, status domain.ContainerStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[containerID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrContainerNotFound, containerID)
	}
	c.Status = status
	r.containers[containerID] = c
	return nil
}

func (r *MetadataRepository) GetContent(_ context.Context, containerID, contentID string) (domain.ContentMeta, domain.ChunkList, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.contents[contentKey{containerID, contentID}]
	if !ok {
		return domain.ContentMeta{}, nil, fmt.Errorf("%w: %s/%s", apperrors.ErrContentNotFound, containerID, contentID)
	}
	return rec.meta, append(domain.ChunkList(nil), rec.chunks...), nil
}

func (r *MetadataRepository) CreateContent(_ context.Context, meta domain.ContentMeta, chunks domain.ChunkList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkEnabled(meta.ContainerID); err != nil {
		return err
	}
	key := contentKey{meta.ContainerID, meta.ContentID}
	if _, ok := r.contents[key]; ok {
		return fmt.Errorf("%w: %s/%s", apperrors.ErrContentExists, meta.ContainerID, meta.ContentID)
	}
	r.contents[key] = contentRecord{meta: meta, chunks: append(domain.ChunkList(nil), chunks...)}
	return nil
}

// UpdateChunks swaps the chunk list if chunks_version still equals
// meta.ChunksVersion.
func (r *MetadataRepository) UpdateChunks(_ context.Context, meta domain.ContentMeta, chunks domain.ChunkList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkEnabled(meta.ContainerID); err != nil {
		return err
	}
	key := contentKey{meta.ContainerID, meta.ContentID}
	rec, ok := r.contents[key]
	if !ok || rec.meta.ChunksVersion != meta.ChunksVersion {
		return fmt.Errorf("%w: %s expected chunks_version %d", apperrors.ErrConflict, meta.ContentID, meta.ChunksVersion)
	}
	rec.meta.ChunksVersion++
	rec.chunks = append(domain.ChunkList(nil), chunks...)
	r.contents[key] = rec
	return nil
}

func (r *MetadataRepository) checkEnabled(containerID string) error {
	c, ok := r.containers[containerID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrContainerNotFound, containerID)
	}
	if c.Status != domain.ContainerEnabled {
		return fmt.Errorf("%w: %s", apperrors.ErrFrozenContainer, containerID)
	}
	return nil
}
