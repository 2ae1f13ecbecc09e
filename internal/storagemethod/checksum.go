package storagemethod

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc64"
	"strings"

	"github.com/cespare/xxhash/v2"
	"lukechampine.com/blake3"
)

// DefaultChecksumAlgorithm is used when a chunk method has no cca parameter.
const DefaultChecksumAlgorithm = "md5"

var crc64Table = crc64.MakeTable(crc64.ISO)

func newHasher(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "md5":
		return md5.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "crc64":
		return crc64.New(crc64Table), nil
	case "xxhash", "xxh64":
		return xxhash.New(), nil
	case "blake3":
		return blake3.New(32, nil), nil
	default:
		return nil, fmt.Errorf("unknown checksum algorithm %q", algorithm)
	}
}

// NewHasher returns a fresh hasher for the chunk checksum algorithm.
func (s StorageMethod) NewHasher() hash.Hash {
	h, err := newHasher(s.ChecksumAlgorithm)
	if err != nil {
		// Resolve already validated the algorithm
		panic(err)
	}
	return h
}

// Checksum hashes data with the chunk checksum algorithm.
func (s StorageMethod) Checksum(data []byte) string {
	h := s.NewHasher()
	h.Write(data)
	return FormatSum(h)
}

// FormatSum renders a hash the way chunk checksums are stored.
func FormatSum(h hash.Hash) string {
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// NewHasherFor returns a hasher for an algorithm name, for callers that only
// know the algorithm.
func NewHasherFor(algorithm string) (hash.Hash, error) {
	return newHasher(algorithm)
}
