package chunkstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
	"github.com/zzenonn/zblob/internal/storagemethod"
)

func testHeaders(t *testing.T, serviceID string, data []byte) (string, domain.ChunkHeaders) {
	t.Helper()
	meta := domain.ContentMeta{
		ContainerID: "C0FFEE",
		ContentID:   "ABCDEF0123",
		Account:     "acct",
		Container:   "bucket",
		Name:        "dir/object name",
		Version:     "1700000000000000",
	}
	id := domain.ComputeChunkID(meta.ContainerID, meta.Name, meta.Version, "0", "SINGLE")
	chunk := domain.Chunk{
		ID:       id,
		URL:      domain.ChunkURL(serviceID, id),
		Pos:      "0",
		Size:     int64(len(data)),
		Checksum: storagemethod.StorageMethod{ChecksumAlgorithm: "md5"}.Checksum(data),
	}
	return chunk.URL, domain.NewChunkHeaders(meta, chunk, time.Unix(1700000000, 0))
}

func TestParseNodeURL(t *testing.T) {
	tests := []struct {
		in       string
		wantType StoreType
		wantName string
		wantErr  bool
	}{
		{"s3://my-bucket", S3Type, "my-bucket", false},
		{"gs://my-bucket", GCSType, "my-bucket", false},
		{"leveldb:///var/lib/zblob/vol1", LevelDBType, "/var/lib/zblob/vol1", false},
		{"mem://rawx-1", MemoryType, "rawx-1", false},
		{"s3:other", S3Type, "other", false},
		{"gs:other", GCSType, "other", false},
		{"plain-bucket", S3Type, "plain-bucket", false},
		{"ftp://nope", "", "", true},
		{"s3://", "", "", true},
		{"", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg, err := ParseNodeURL("rawx-1", tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, cfg.Type)
			assert.Equal(t, tt.wantName, cfg.Name)
			assert.Equal(t, "rawx-1", cfg.ServiceID)
		})
	}
}

func TestStoreFactoryReusesMemoryNodes(t *testing.T) {
	f := &StoreFactory{memory: make(map[string]*MemoryStore)}

	a, err := f.CreateStore(NodeConfig{ServiceID: "rawx-1", Type: MemoryType, Name: "a"})
	require.NoError(t, err)
	b, err := f.CreateStore(NodeConfig{ServiceID: "rawx-1", Type: MemoryType, Name: "a"})
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = f.CreateStore(NodeConfig{ServiceID: "rawx-2", Type: GCSType, Name: "b"})
	assert.Error(t, err)

	_, err = f.CreateStore(NodeConfig{Type: MemoryType, Name: "c"})
	assert.Error(t, err)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("rawx-1")

	require.NoError(t, store.Put(ctx, "ID1", map[string]string{"k": "v"}, bytes.NewReader([]byte("hello")), 5))

	headers, body, err := store.Get(ctx, "ID1")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "v", headers["k"])

	assert.Error(t, store.Put(ctx, "ID2", nil, bytes.NewReader([]byte("hello")), 4))

	require.NoError(t, store.Delete(ctx, "ID1"))
	_, err = store.Head(ctx, "ID1")
	assert.True(t, errors.Is(err, apperrors.ErrChunkNotFound))

	down := errors.New("connection refused")
	store.SetFault(down)
	_, err = store.Head(ctx, "ID1")
	assert.ErrorIs(t, err, down)
}

func TestLevelDBChunkStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLevelDBChunkStore("rawx-db", filepath.Join(t.TempDir(), "vol"))
	require.NoError(t, err)
	defer store.Close()

	data := []byte("some chunk payload")
	headers := map[string]string{domain.HeaderChunkID: "ABC123", "x": "y"}

	require.NoError(t, store.Put(ctx, "ABC123", headers, bytes.NewReader(data), -1))

	got, err := store.Head(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, headers, got)

	_, body, err := store.Get(ctx, "ABC123")
	require.NoError(t, err)
	read, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, data, read)

	require.NoError(t, store.Delete(ctx, "ABC123"))
	_, _, err = store.Get(ctx, "ABC123")
	assert.ErrorIs(t, err, apperrors.ErrChunkNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "ABC123"), apperrors.ErrChunkNotFound)
}

func TestRouterPutGetHead(t *testing.T) {
	ctx := context.Background()
	router := NewRouter()
	store := NewMemoryStore("rawx-1")
	require.NoError(t, router.Register(store))
	assert.Error(t, router.Register(store))

	data := []byte("chunk data")
	url, headers := testHeaders(t, "rawx-1", data)

	require.NoError(t, router.Put(ctx, url, headers, bytes.NewReader(data), int64(len(data)), "md5"))

	head, err := router.Head(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, headers, head)

	got, body, err := router.Get(ctx, url)
	require.NoError(t, err)
	defer body.Close()
	read, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, data, read)
	assert.Equal(t, headers.FullPath, got.FullPath)

	assert.Equal(t, []string{"rawx-1"}, router.ServiceIDs())
}

func TestRouterPutChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	router := NewRouter()
	store := NewMemoryStore("rawx-1")
	require.NoError(t, router.Register(store))

	data := []byte("chunk data")
	url, headers := testHeaders(t, "rawx-1", data)

	err := router.Put(ctx, url, headers, bytes.NewReader([]byte("other data")), -1, "md5")
	assert.ErrorIs(t, err, apperrors.ErrChecksumMismatch)
	assert.Equal(t, 0, store.Len())
}

func TestRouterUnknownService(t *testing.T) {
	router := NewRouter()
	_, err := router.Head(context.Background(), domain.ChunkURL("ghost", "ABC"))
	assert.Error(t, err)

	_, err = router.Head(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestRouterHeadMissingHeaders(t *testing.T) {
	ctx := context.Background()
	router := NewRouter()
	store := NewMemoryStore("rawx-1")
	require.NoError(t, router.Register(store))
	require.NoError(t, store.Put(ctx, "ABC", map[string]string{"chunk_id": "ABC"}, bytes.NewReader(nil), 0))

	_, err := router.Head(ctx, domain.ChunkURL("rawx-1", "ABC"))
	assert.ErrorIs(t, err, apperrors.ErrMalformedHeaders)

	_, _, err = router.Get(ctx, domain.ChunkURL("rawx-1", "ABC"))
	assert.ErrorIs(t, err, apperrors.ErrMalformedHeaders)
}
