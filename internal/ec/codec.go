// Package ec wraps Reed-Solomon coding of metachunks into framed fragments.
package ec

import (
	"bytes"
	"fmt"

	"github.com/klauspost/reedsolomon"
	log "github.com/sirupsen/logrus"

	apperrors "github.com/zzenonn/zblob/internal/errors"
	"github.com/zzenonn/zblob/internal/storagemethod"
)

// Codec encodes metachunks into k data and m parity fragments.
type Codec struct {
	k, m int
	enc  reedsolomon.Encoder
}

// NewCodec builds a codec for an erasure storage method.
func NewCodec(sm storagemethod.StorageMethod) (*Codec, error) {
	if !sm.IsEC() {
		return nil, fmt.Errorf("%w: %s is not erasure coded", apperrors.ErrUnsupportedPolicy, sm)
	}
	var opts []reedsolomon.Option
	if sm.Matrix == storagemethod.Cauchy {
		opts = append(opts, reedsolomon.WithCauchyMatrix())
	}
	enc, err := reedsolomon.New(sm.K, sm.M, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnsupportedPolicy, err)
	}
	return &Codec{k: sm.K, m: sm.M, enc: enc}, nil
}

func (c *Codec) K() int { return c.k }

func (c *Codec) M() int { return c.m }

// Encode splits a metachunk into k+m framed fragments.
func (c *Codec) Encode(data []byte) ([][]byte, error) {
	total := c.k + c.m
	shards := make([][]byte, total)

	if len(data) == 0 {
		for i := range shards {
			shards[i] = []byte{}
		}
	} else {
		var err error
		shards, err = c.enc.Split(data)
		if err != nil {
			return nil, err
		}
		if err := c.enc.Encode(shards); err != nil {
			return nil, err
		}
	}

	framed := make([][]byte, total)
	for i, shard := range shards {
		framed[i] = Frame(i, c.k, c.m, int64(len(data)), shard)
	}
	return framed, nil
}

// Decode rebuilds a metachunk of size bytes from fragment payloads keyed by index.
func (c *Codec) Decode(payloads map[int][]byte, size int64) ([]byte, error) {
	shards, err := c.shards(payloads)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	if err := c.enc.ReconstructData(shards); err != nil {
		return nil, &apperrors.ECDriverError{Reason: err.Error()}
	}

	var buf bytes.Buffer
	if err := c.enc.Join(&buf, shards, int(size)); err != nil {
		return nil, &apperrors.ECDriverError{Reason: err.Error()}
	}
	return buf.Bytes(), nil
}

// Reconstruct recomputes the payload of fragment target.
func (c *Codec) Reconstruct(payloads map[int][]byte, target int) ([]byte, error) {
	if target < 0 || target >= c.k+c.m {
		return nil, &apperrors.ECDriverError{Reason: fmt.Sprintf("fragment index %d out of range", target)}
	}
	shards, err := c.shards(payloads)
	if err != nil {
		return nil, err
	}
	shards[target] = nil
	if emptyShards(shards) {
		return []byte{}, nil
	}

	if err := c.enc.Reconstruct(shards); err != nil {
		return nil, &apperrors.ECDriverError{Reason: err.Error()}
	}
	return shards[target], nil
}

// Verify reports whether a complete fragment set is consistent.
func (c *Codec) Verify(payloads map[int][]byte) (bool, error) {
	shards, err := c.shards(payloads)
	if err != nil {
		return false, err
	}
	for _, s := range shards {
		if s == nil {
			return false, &apperrors.ECDriverError{Reason: "verification needs every fragment"}
		}
	}
	if emptyShards(shards) {
		return true, nil
	}
	return c.enc.Verify(shards)
}

func (c *Codec) shards(payloads map[int][]byte) ([][]byte, error) {
	shards := make([][]byte, c.k+c.m)
	size := -1
	present := 0
	for idx, p := range payloads {
		if idx < 0 || idx >= len(shards) {
			return nil, &apperrors.ECDriverError{Reason: fmt.Sprintf("fragment index %d out of range", idx)}
		}
		if size >= 0 && len(p) != size {
			return nil, &apperrors.ECDriverError{Reason: "fragments have different sizes"}
		}
		size = len(p)
		// reedsolomon treats empty slices as missing and may reuse their capacity
		shards[idx] = append(make([]byte, 0, len(p)), p...)
		present++
	}
	if present < c.k {
		log.Debugf("ec: %d fragments available, %d needed", present, c.k)
		return nil, &apperrors.ECDriverError{Reason: fmt.Sprintf("%d fragments available, %d needed", present, c.k)}
	}
	return shards, nil
}

func emptyShards(shards [][]byte) bool {
	for _, s := range shards {
		if len(s) > 0 {
			return false
		}
	}
	return true
}
