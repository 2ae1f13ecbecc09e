// Package fullpath encodes the provenance string stored with every chunk.
//
// A fullpath binds a physical chunk to the object version owning it:
//
//	account/container/path/version/content_id
//
// Each segment is path-escaped, so separators inside names never change the
// segment count. Version and content id are opaque tokens.
package fullpath

import (
	"fmt"
	"net/url"
	"strings"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

const segments = 5

// Fullpath is the decoded form of a chunk's full_path header.
type Fullpath struct {
	Account   string
	Container string
	Path      string
	Version   string
	ContentID string
}

// Encode joins the five provenance fields into the canonical string.
func Encode(account, container, path, version, contentID string) string {
	return strings.Join([]string{
		url.PathEscape(account),
		url.PathEscape(container),
		url.PathEscape(path),
		url.PathEscape(version),
		url.PathEscape(contentID),
	}, "/")
}

// String re-encodes f.
func (f Fullpath) String() string {
	return Encode(f.Account, f.Container, f.Path, f.Version, f.ContentID)
}

// Decode splits and unescapes a fullpath string.
func Decode(s string) (Fullpath, error) {
	parts := strings.Split(s, "/")
	if len(parts) != segments {
		return Fullpath{}, fmt.Errorf("%w: expected %d segments, got %d", apperrors.ErrMalformedFullpath, segments, len(parts))
	}

	fields := make([]string, segments)
	for i, part := range parts {
		v, err := url.PathUnescape(part)
		if err != nil {
			return Fullpath{}, fmt.Errorf("%w: segment %d: %v", apperrors.ErrMalformedFullpath, i, err)
		}
		fields[i] = v
	}

	return Fullpath{
		Account:   fields[0],
		Container: fields[1],
		Path:      fields[2],
		Version:   fields[3],
		ContentID: fields[4],
	}, nil
}

// Matches decodes s and reports whether it designates the same object
// version as want. A malformed string is returned as an error.
func Matches(s string, want Fullpath) error {
	got, err := Decode(s)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: chunk belongs to %q, expected %q", apperrors.ErrVerifyFailed, s, want.String())
	}
	return nil
}
