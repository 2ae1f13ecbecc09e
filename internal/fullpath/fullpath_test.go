package fullpath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		fp   Fullpath
	}{
		{"plain names", Fullpath{"acct", "photos", "cat.jpg", "1700000000000000", "0A1B2C3D"}},
		{"separators in name", Fullpath{"acct", "a/b", "dir/sub/obj.txt", "1", "ABCDEF"}},
		{"percent and spaces", Fullpath{"my account", "100%", "a b%20c", "42", "00"}},
		{"unicode", Fullpath{"compte", "conteneur", "été/ünïcode", "7", "FF"}},
		{"empty path", Fullpath{"acct", "ct", "", "1", "01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.fp.Account, tt.fp.Container, tt.fp.Path, tt.fp.Version, tt.fp.ContentID)
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.fp, decoded)
			assert.Equal(t, encoded, decoded.String())
		})
	}
}

func TestEncodeKeepsOpaqueTokens(t *testing.T) {
	encoded := Encode("acct", "ct", "obj", "1700000000000001", "9F86D081884C7D65")
	assert.Equal(t, "acct/ct/obj/1700000000000001/9F86D081884C7D65", encoded)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too few segments", "acct/ct/obj/1"},
		{"too many segments", "acct/ct/obj/extra/1/ID"},
		{"bad escape", "acct/ct/obj%zz/1/ID"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrMalformedFullpath))
		})
	}
}

func TestMatches(t *testing.T) {
	want := Fullpath{"acct", "ct", "obj", "1", "ID"}

	assert.NoError(t, Matches(want.String(), want))

	other := want
	other.Version = "2"
	err := Matches(other.String(), want)
	assert.ErrorIs(t, err, apperrors.ErrVerifyFailed)

	err = Matches("garbage", want)
	assert.ErrorIs(t, err, apperrors.ErrMalformedFullpath)
}
