package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

func testChunks() ChunkList {
	return ChunkList{
		{ID: "A", URL: ChunkURL("rawx-1", "A"), Pos: "0"},
		{ID: "A", URL: ChunkURL("rawx-2", "A"), Pos: "0"},
		{ID: "B", URL: ChunkURL("rawx-2", "B"), Pos: "1"},
		{ID: "B", URL: ChunkURL("rawx-3", "B"), Pos: "1"},
	}
}

func TestChunkHost(t *testing.T) {
	c := Chunk{URL: "http://rawx-7/0123ABCD"}
	assert.Equal(t, "rawx-7", c.Host())
	assert.Equal(t, "", Chunk{URL: "::bad"}.Host())
}

func TestParsePos(t *testing.T) {
	tests := []struct {
		pos     string
		meta    int
		sub     int
		wantErr bool
	}{
		{"0", 0, -1, false},
		{"12", 12, -1, false},
		{"3.0", 3, 0, false},
		{"3.8", 3, 8, false},
		{"", 0, -1, true},
		{"-1", 0, -1, true},
		{"1.x", 0, -1, true},
	}
	for _, tt := range tests {
		meta, sub, err := ParsePos(tt.pos)
		if tt.wantErr {
			assert.Error(t, err, tt.pos)
			continue
		}
		require.NoError(t, err, tt.pos)
		assert.Equal(t, tt.meta, meta)
		assert.Equal(t, tt.sub, sub)
		assert.Equal(t, tt.pos, FormatPos(meta, sub))
	}
}

func TestChunkListFilter(t *testing.T) {
	chunks := testChunks()

	assert.Len(t, chunks.Filter(0, "", ""), 2)
	assert.Len(t, chunks.Filter(-1, "rawx-2", ""), 2)
	assert.Len(t, chunks.Filter(1, "rawx-2", "B"), 1)
	assert.Empty(t, chunks.Filter(0, "rawx-3", ""))
	assert.Len(t, chunks.Exclude(ChunkURL("rawx-1", "A")), 3)
}

func TestMetachunks(t *testing.T) {
	chunks := ChunkList{
		{ID: "C", URL: ChunkURL("n3", "C"), Pos: "1.2"},
		{ID: "A", URL: ChunkURL("n1", "A"), Pos: "0.1"},
		{ID: "B", URL: ChunkURL("n2", "B"), Pos: "0.0"},
	}
	mcs := chunks.Metachunks()
	require.Len(t, mcs, 2)
	assert.Equal(t, 0, mcs[0].Pos)
	assert.Equal(t, "0.0", mcs[0].Chunks[0].Pos)
	assert.Equal(t, "0.1", mcs[0].Chunks[1].Pos)
	assert.Equal(t, []string{"n3"}, mcs[1].Hosts())
}

func TestMetachunkCount(t *testing.T) {
	const cs = 1024
	tests := []struct {
		length int64
		want   int
	}{
		{0, 1},
		{1, 1},
		{cs, 1},
		{cs + 1, 2},
		{2 * cs, 2},
		{6294503, 6147},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MetachunkCount(tt.length, cs), "length %d", tt.length)
	}
	assert.Equal(t, int64(1), MetachunkSize(cs+1, cs, 1))
	assert.Equal(t, int64(cs), MetachunkSize(cs+1, cs, 0))
	assert.Equal(t, int64(0), MetachunkSize(0, cs, 0))
}

func TestComputeChunkIDIsDeterministic(t *testing.T) {
	a := ComputeChunkID("CID", "obj", "1", "0", "TWOCOPIES")
	b := ComputeChunkID("CID", "obj", "1", "0", "TWOCOPIES")
	c := ComputeChunkID("CID", "obj", "1", "1", "TWOCOPIES")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestHeadersFromMap(t *testing.T) {
	meta := ContentMeta{
		ContainerID: "CID", ContentID: "ID", Account: "acct", Container: "ct",
		Name: "dir/obj", Version: "5",
	}
	h := NewChunkHeaders(meta, Chunk{ID: "X", Pos: "0.1", Size: 9, Checksum: "AB"}, time.Unix(100, 0))
	m := h.ToMap()
	assert.Len(t, m, len(HeaderKeys))
	assert.Equal(t, "acct/ct/dir%2Fobj/5/ID", m[HeaderFullPath])

	parsed, err := HeadersFromMap(m)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	m[HeaderChunkSize] = "nine"
	_, err = HeadersFromMap(m)
	assert.ErrorIs(t, err, apperrors.ErrMalformedHeaders)

	delete(m, HeaderOioVersion)
	_, err = HeadersFromMap(m)
	assert.ErrorIs(t, err, apperrors.ErrMalformedHeaders)
}
