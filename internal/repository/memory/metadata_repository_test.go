package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
)

func TestUpdateChunksCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMetadataRepository()
	require.NoError(t, repo.CreateContainer(ctx, domain.Container{ContainerID: "C", Status: domain.ContainerEnabled}))

	meta := domain.ContentMeta{ContainerID: "C", ContentID: "X"}
	require.NoError(t, repo.CreateContent(ctx, meta, domain.ChunkList{{ID: "A", URL: "http://s1/A", Pos: "0"}}))
	assert.ErrorIs(t, repo.CreateContent(ctx, meta, nil), apperrors.ErrContentExists)

	loaded, _, err := repo.GetContent(ctx, "C", "X")
	require.NoError(t, err)

	newChunks := domain.ChunkList{{ID: "A", URL: "http://s2/A", Pos: "0"}}
	require.NoError(t, repo.UpdateChunks(ctx, loaded, newChunks))

	// A second writer holding the old version loses.
	assert.ErrorIs(t, repo.UpdateChunks(ctx, loaded, domain.ChunkList{}), apperrors.ErrConflict)

	after, chunks, err := repo.GetContent(ctx, "C", "X")
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.ChunksVersion)
	assert.Equal(t, newChunks, chunks)
}

func TestFrozenContainerRejectsWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMetadataRepository()
	require.NoError(t, repo.CreateContainer(ctx, domain.Container{ContainerID: "C", Status: domain.ContainerEnabled}))
	meta := domain.ContentMeta{ContainerID: "C", ContentID: "X"}
	require.NoError(t, repo.CreateContent(ctx, meta, nil))

	require.NoError(t, repo.SetContainerStatus(ctx, "C", domain.ContainerFrozen))
	assert.ErrorIs(t, repo.UpdateChunks(ctx, meta, nil), apperrors.ErrFrozenContainer)
	assert.ErrorIs(t, repo.CreateContent(ctx, domain.ContentMeta{ContainerID: "C", ContentID: "Y"}, nil), apperrors.ErrFrozenContainer)

	_, _, err := repo.GetContent(ctx, "C", "missing")
	assert.ErrorIs(t, err, apperrors.ErrContentNotFound)
	assert.ErrorIs(t, repo.SetContainerStatus(ctx, "nope", domain.ContainerEnabled), apperrors.ErrContainerNotFound)
}
