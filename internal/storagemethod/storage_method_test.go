package storagemethod

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		chunkMethod string
		want        StorageMethod
	}{
		{
			name:        "plain default copy",
			chunkMethod: "plain/",
			want:        StorageMethod{Type: Replicated, NbCopy: 1, ChecksumAlgorithm: "md5"},
		},
		{
			name:        "plain three copies",
			chunkMethod: "plain/nb_copy=3",
			want:        StorageMethod{Type: Replicated, NbCopy: 3, ChecksumAlgorithm: "md5"},
		},
		{
			name:        "plain with checksum and min size",
			chunkMethod: "plain/nb_copy=2,cca=blake3,min_chunk_size=4096",
			want:        StorageMethod{Type: Replicated, NbCopy: 2, ChecksumAlgorithm: "blake3", MinChunkSize: 4096},
		},
		{
			name:        "ec vandermonde",
			chunkMethod: "ec/algo=liberasurecode_rs_vand,k=6,m=3",
			want:        StorageMethod{Type: Erasure, K: 6, M: 3, Algorithm: "liberasurecode_rs_vand", Matrix: Vandermonde, ChecksumAlgorithm: "md5"},
		},
		{
			name:        "ec cauchy",
			chunkMethod: "ec/algo=isa_l_rs_cauchy,k=4,m=2,cca=sha256",
			want:        StorageMethod{Type: Erasure, K: 4, M: 2, Algorithm: "isa_l_rs_cauchy", Matrix: Cauchy, ChecksumAlgorithm: "sha256"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.chunkMethod)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveUnsupported(t *testing.T) {
	for _, cm := range []string{
		"",
		"raid/level=5",
		"plain/nb_copy=0",
		"plain/nb_copy=two",
		"plain/cca=crc32",
		"ec/algo=unknown,k=6,m=3",
		"ec/algo=rs_vand,k=6",
		"ec/algo=rs_vand,k=200,m=100",
		"plain/nb_copy",
	} {
		_, err := Resolve(cm)
		assert.ErrorIs(t, err, apperrors.ErrUnsupportedPolicy, cm)
	}
}

func TestExpectedChunkCount(t *testing.T) {
	plain, err := Resolve("plain/nb_copy=2")
	require.NoError(t, err)
	assert.Equal(t, 2, plain.ExpectedChunkCount())
	assert.False(t, plain.IsEC())

	ec, err := Resolve("ec/algo=rs_vand,k=6,m=3")
	require.NoError(t, err)
	assert.Equal(t, 9, ec.ExpectedChunkCount())
	assert.True(t, ec.IsEC())
}

func TestStringResolvesBack(t *testing.T) {
	for _, cm := range []string{
		"plain/nb_copy=3,cca=xxhash",
		"ec/algo=rs_cauchy,k=4,m=2,min_chunk_size=1024",
	} {
		sm, err := Resolve(cm)
		require.NoError(t, err)
		again, err := Resolve(sm.String())
		require.NoError(t, err)
		assert.Equal(t, sm, again)
	}
}

func TestChecksumAlgorithms(t *testing.T) {
	data := []byte("hello")
	tests := []struct {
		algo string
		want string
	}{
		{"md5", "5D41402ABC4B2A76B9719D911017C592"},
		{"sha256", "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824"},
	}
	for _, tt := range tests {
		sm := StorageMethod{ChecksumAlgorithm: tt.algo}
		assert.Equal(t, tt.want, sm.Checksum(data), tt.algo)
	}

	for _, algo := range []string{"crc64", "xxhash", "blake3"} {
		sm := StorageMethod{ChecksumAlgorithm: algo}
		a := sm.Checksum(data)
		assert.NotEmpty(t, a)
		assert.Equal(t, a, sm.Checksum(data))
		assert.NotEqual(t, a, sm.Checksum([]byte("hellO")))
	}
}

func TestPolicies(t *testing.T) {
	p, err := NewPolicies(map[string]string{"ec42": "ec/algo=rs_vand,k=4,m=2"})
	require.NoError(t, err)

	sm, err := p.Lookup("TWOCOPIES")
	require.NoError(t, err)
	assert.Equal(t, 2, sm.NbCopy)

	sm, err = p.Lookup("EC42")
	require.NoError(t, err)
	assert.Equal(t, 6, sm.ExpectedChunkCount())

	_, err = p.Lookup("NOPE")
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedPolicy)

	assert.Contains(t, p.Names(), "SINGLE")

	_, err = NewPolicies(map[string]string{"broken": "ec/algo=rs_vand"})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedPolicy)
}
