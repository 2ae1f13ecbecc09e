package ec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// PreambleSize is the length of the header framing every stored fragment.
const PreambleSize = 32

var preambleMagic = [4]byte{'Z', 'B', 'E', 'C'}

const preambleVersion = 1

var (
	// ErrBadPreamble means the fragment framing is damaged. The payload may still be intact.
	ErrBadPreamble = errors.New("bad fragment preamble")
	// ErrBadPayload means the payload does not match the checksum in a valid preamble.
	ErrBadPayload = errors.New("bad fragment payload")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Preamble describes one stored fragment.
//
//	0..4   magic "ZBEC"
//	4      format version
//	5      fragment index
//	6      k
//	7      m
//	8..16  metachunk size
//	16..24 payload size
//	24..28 payload CRC32-C
//	28..32 CRC32-C of bytes 0..28
type Preamble struct {
	Index        int
	K            int
	M            int
	MetachunkLen int64
	PayloadLen   int64
	PayloadCRC   uint32
}

// Frame prepends a preamble to a fragment payload.
func Frame(index, k, m int, metachunkLen int64, payload []byte) []byte {
	out := make([]byte, PreambleSize+len(payload))
	copy(out[0:4], preambleMagic[:])
	out[4] = preambleVersion
	out[5] = byte(index)
	out[6] = byte(k)
	out[7] = byte(m)
	binary.BigEndian.PutUint64(out[8:16], uint64(metachunkLen))
	binary.BigEndian.PutUint64(out[16:24], uint64(len(payload)))
	binary.BigEndian.PutUint32(out[24:28], crc32.Checksum(payload, castagnoli))
	binary.BigEndian.PutUint32(out[28:32], crc32.Checksum(out[0:28], castagnoli))
	copy(out[PreambleSize:], payload)
	return out
}

// Parse validates a stored fragment and returns its preamble and payload.
func Parse(raw []byte) (Preamble, []byte, error) {
	if len(raw) < PreambleSize {
		return Preamble{}, nil, fmt.Errorf("%w: fragment is %d bytes", ErrBadPreamble, len(raw))
	}
	head := raw[:PreambleSize]
	if [4]byte(head[0:4]) != preambleMagic {
		return Preamble{}, nil, fmt.Errorf("%w: bad magic", ErrBadPreamble)
	}
	if crc32.Checksum(head[0:28], castagnoli) != binary.BigEndian.Uint32(head[28:32]) {
		return Preamble{}, nil, fmt.Errorf("%w: header checksum mismatch", ErrBadPreamble)
	}
	if head[4] != preambleVersion {
		return Preamble{}, nil, fmt.Errorf("%w: unknown version %d", ErrBadPreamble, head[4])
	}

	p := Preamble{
		Index:        int(head[5]),
		K:            int(head[6]),
		M:            int(head[7]),
		MetachunkLen: int64(binary.BigEndian.Uint64(head[8:16])),
		PayloadLen:   int64(binary.BigEndian.Uint64(head[16:24])),
		PayloadCRC:   binary.BigEndian.Uint32(head[24:28]),
	}
	payload := raw[PreambleSize:]
	if int64(len(payload)) != p.PayloadLen {
		return Preamble{}, nil, fmt.Errorf("%w: payload is %d bytes, preamble says %d", ErrBadPayload, len(payload), p.PayloadLen)
	}
	if crc32.Checksum(payload, castagnoli) != p.PayloadCRC {
		return Preamble{}, nil, fmt.Errorf("%w: payload checksum mismatch", ErrBadPayload)
	}
	return p, payload, nil
}

// Salvage returns the payload of a fragment without trusting its preamble.
func Salvage(raw []byte) ([]byte, bool) {
	if len(raw) < PreambleSize {
		return nil, false
	}
	return raw[PreambleSize:], true
}
