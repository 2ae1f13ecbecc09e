// Package storagemethod resolves chunk methods into replication or erasure
// coding profiles.
//
// A chunk method is written "<type>/<k=v>[,<k=v>...]":
//
//	plain/nb_copy=3
//	ec/algo=liberasurecode_rs_vand,k=6,m=3,cca=blake3
package storagemethod

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// Type tells which content variant serves a storage method.
type Type int

const (
	Replicated Type = iota
	Erasure
)

func (t Type) String() string {
	switch t {
	case Replicated:
		return "plain"
	case Erasure:
		return "ec"
	default:
		return "unknown"
	}
}

// Matrix selects the Reed-Solomon coding matrix.
type Matrix int

const (
	Vandermonde Matrix = iota
	Cauchy
)

// ecAlgorithms maps accepted algorithm names to a coding matrix.
var ecAlgorithms = map[string]Matrix{
	"rs_vand":                Vandermonde,
	"isa_l_rs_vand":          Vandermonde,
	"jerasure_rs_vand":       Vandermonde,
	"liberasurecode_rs_vand": Vandermonde,
	"rs_cauchy":              Cauchy,
	"isa_l_rs_cauchy":        Cauchy,
	"jerasure_rs_cauchy":     Cauchy,
}

// StorageMethod is an immutable per-policy descriptor.
type StorageMethod struct {
	Type              Type
	NbCopy            int
	K                 int
	M                 int
	Algorithm         string
	Matrix            Matrix
	ChecksumAlgorithm string
	MinChunkSize      int64
}

// ExpectedChunkCount is the number of chunks every metachunk must have.
func (s StorageMethod) ExpectedChunkCount() int {
	if s.Type == Erasure {
		return s.K + s.M
	}
	return s.NbCopy
}

// IsEC reports whether contents use erasure coding.
func (s StorageMethod) IsEC() bool {
	return s.Type == Erasure
}

// Resolve parses a chunk method string.
func Resolve(chunkMethod string) (StorageMethod, error) {
	kind, rawParams, _ := strings.Cut(strings.TrimSpace(chunkMethod), "/")
	params, err := parseParams(rawParams)
	if err != nil {
		return StorageMethod{}, fmt.Errorf("%w: %q: %v", apperrors.ErrUnsupportedPolicy, chunkMethod, err)
	}

	sm := StorageMethod{ChecksumAlgorithm: DefaultChecksumAlgorithm}
	if cca, ok := params["cca"]; ok {
		if _, err := newHasher(cca); err != nil {
			return StorageMethod{}, fmt.Errorf("%w: %q: %v", apperrors.ErrUnsupportedPolicy, chunkMethod, err)
		}
		sm.ChecksumAlgorithm = cca
	}
	if v, ok := params["min_chunk_size"]; ok {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil || size < 0 {
			return StorageMethod{}, fmt.Errorf("%w: %q: invalid min_chunk_size", apperrors.ErrUnsupportedPolicy, chunkMethod)
		}
		sm.MinChunkSize = size
	}

	switch kind {
	case "plain":
		sm.Type = Replicated
		sm.NbCopy = 1
		if v, ok := params["nb_copy"]; ok {
			n, err := positiveInt(v)
			if err != nil {
				return StorageMethod{}, fmt.Errorf("%w: %q: nb_copy: %v", apperrors.ErrUnsupportedPolicy, chunkMethod, err)
			}
			sm.NbCopy = n
		}
	case "ec":
		sm.Type = Erasure
		sm.Algorithm = params["algo"]
		matrix, ok := ecAlgorithms[sm.Algorithm]
		if !ok {
			return StorageMethod{}, fmt.Errorf("%w: %q: unknown ec algorithm %q", apperrors.ErrUnsupportedPolicy, chunkMethod, sm.Algorithm)
		}
		sm.Matrix = matrix
		if sm.K, err = positiveInt(params["k"]); err != nil {
			return StorageMethod{}, fmt.Errorf("%w: %q: k: %v", apperrors.ErrUnsupportedPolicy, chunkMethod, err)
		}
		if sm.M, err = positiveInt(params["m"]); err != nil {
			return StorageMethod{}, fmt.Errorf("%w: %q: m: %v", apperrors.ErrUnsupportedPolicy, chunkMethod, err)
		}
		// reedsolomon caps the total shard count at 256
		if sm.K+sm.M > 256 {
			return StorageMethod{}, fmt.Errorf("%w: %q: k+m exceeds 256", apperrors.ErrUnsupportedPolicy, chunkMethod)
		}
	default:
		return StorageMethod{}, fmt.Errorf("%w: unknown type %q", apperrors.ErrUnsupportedPolicy, kind)
	}

	return sm, nil
}

// String renders the storage method back into a chunk method.
func (s StorageMethod) String() string {
	var b strings.Builder
	if s.Type == Erasure {
		fmt.Fprintf(&b, "ec/algo=%s,k=%d,m=%d", s.Algorithm, s.K, s.M)
	} else {
		fmt.Fprintf(&b, "plain/nb_copy=%d", s.NbCopy)
	}
	fmt.Fprintf(&b, ",cca=%s", s.ChecksumAlgorithm)
	if s.MinChunkSize > 0 {
		fmt.Fprintf(&b, ",min_chunk_size=%d", s.MinChunkSize)
	}
	return b.String()
}

func parseParams(raw string) (map[string]string, error) {
	params := make(map[string]string)
	if raw == "" {
		return params, nil
	}
	for _, kv := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q", kv)
		}
		params[k] = strings.TrimSpace(v)
	}
	return params, nil
}

func positiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", v)
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
