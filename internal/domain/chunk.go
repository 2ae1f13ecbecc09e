package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Chunk - one physical copy (or EC fragment) of one metachunk
type Chunk struct {
	ID       string `json:"id" dynamodbav:"id"`
	URL      string `json:"url" dynamodbav:"url"`
	Pos      string `json:"pos" dynamodbav:"pos"`
	Size     int64  `json:"size" dynamodbav:"size"`
	Checksum string `json:"hash" dynamodbav:"hash"` // Upper-case hex, algorithm from the storage method
}

// ChunkURL builds the address of a chunk on a storage node.
func ChunkURL(serviceID, chunkID string) string {
	return "http://" + serviceID + "/" + chunkID
}

// ParseChunkURL splits a chunk URL into service id and chunk id.
func ParseChunkURL(raw string) (serviceID, chunkID string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid chunk url %q: %w", raw, err)
	}
	chunkID = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || chunkID == "" || strings.Contains(chunkID, "/") {
		return "", "", fmt.Errorf("invalid chunk url %q", raw)
	}
	return u.Host, chunkID, nil
}

// Host returns the service id of the node holding the chunk.
func (c Chunk) Host() string {
	host, _, err := ParseChunkURL(c.URL)
	if err != nil {
		return ""
	}
	return host
}

// Location returns where the chunk lives.
func (c Chunk) Location() Location {
	return Location{ServiceID: c.Host()}
}

// MetaPos is the metachunk index encoded in Pos.
func (c Chunk) MetaPos() int {
	p, _, _ := ParsePos(c.Pos)
	return p
}

// SubPos is the EC fragment index encoded in Pos, or -1 for replicated chunks.
func (c Chunk) SubPos() int {
	_, s, _ := ParsePos(c.Pos)
	return s
}

// FormatPos encodes a chunk position. sub < 0 means a replicated chunk.
func FormatPos(metaPos, sub int) string {
	if sub < 0 {
		return strconv.Itoa(metaPos)
	}
	return strconv.Itoa(metaPos) + "." + strconv.Itoa(sub)
}

// ParsePos decodes "N" or "N.I".
func ParsePos(pos string) (metaPos, sub int, err error) {
	head, tail, hasSub := strings.Cut(pos, ".")
	metaPos, err = strconv.Atoi(head)
	if err != nil || metaPos < 0 {
		return 0, -1, fmt.Errorf("invalid chunk position %q", pos)
	}
	if !hasSub {
		return metaPos, -1, nil
	}
	sub, err = strconv.Atoi(tail)
	if err != nil || sub < 0 {
		return 0, -1, fmt.Errorf("invalid chunk position %q", pos)
	}
	return metaPos, sub, nil
}

// ChunkList is an ordered collection of chunks with filtering helpers.
type ChunkList []Chunk

// Filter returns the chunks matching every non-empty criterion.
// metaPos < 0 matches any position.
func (l ChunkList) Filter(metaPos int, host, id string) ChunkList {
	var out ChunkList
	for _, c := range l {
		if metaPos >= 0 && c.MetaPos() != metaPos {
			continue
		}
		if host != "" && c.Host() != host {
			continue
		}
		if id != "" && c.ID != id {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Exclude returns the list without chunks at the given URL.
func (l ChunkList) Exclude(url string) ChunkList {
	var out ChunkList
	for _, c := range l {
		if c.URL != url {
			out = append(out, c)
		}
	}
	return out
}

// Positions returns the distinct metachunk positions, sorted.
func (l ChunkList) Positions() []int {
	seen := make(map[int]struct{})
	var out []int
	for _, c := range l {
		p := c.MetaPos()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Metachunks groups chunks by metachunk position, in position order.
func (l ChunkList) Metachunks() []Metachunk {
	groups := make(map[int]ChunkList)
	for _, c := range l {
		groups[c.MetaPos()] = append(groups[c.MetaPos()], c)
	}
	out := make([]Metachunk, 0, len(groups))
	for _, p := range l.Positions() {
		chunks := groups[p]
		chunks.SortBySubPos()
		out = append(out, Metachunk{Pos: p, Chunks: chunks})
	}
	return out
}

// ByPos returns the chunks of metachunk pos.
func (l ChunkList) ByPos(metaPos int) ChunkList {
	return l.Filter(metaPos, "", "")
}

// Hosts returns the distinct hosts of the list, in order.
func (l ChunkList) Hosts() []string {
	return Metachunk{Chunks: l}.Hosts()
}

// One returns the first chunk, if any.
func (l ChunkList) One() (Chunk, bool) {
	if len(l) == 0 {
		return Chunk{}, false
	}
	return l[0], true
}

// Locations returns the locations of all chunks.
func (l ChunkList) Locations() []Location {
	out := make([]Location, 0, len(l))
	for _, c := range l {
		out = append(out, c.Location())
	}
	return out
}

// SortBySubPos orders EC fragments by index; replicated copies keep their order.
func (l ChunkList) SortBySubPos() {
	sort.SliceStable(l, func(i, j int) bool {
		return l[i].SubPos() < l[j].SubPos()
	})
}

// Metachunk - the chunks sharing one position
type Metachunk struct {
	Pos    int
	Chunks ChunkList
}

// Hosts returns the distinct hosts holding a chunk of the metachunk.
func (m Metachunk) Hosts() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range m.Chunks {
		h := c.Host()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// MetachunkCount returns how many metachunks an object of length bytes has.
// An empty object still has one.
func MetachunkCount(length, chunkSize int64) int {
	if length <= 0 || chunkSize <= 0 {
		return 1
	}
	return int((length + chunkSize - 1) / chunkSize)
}

// MetachunkSize returns the payload size of metachunk pos.
func MetachunkSize(length, chunkSize int64, pos int) int64 {
	if chunkSize <= 0 {
		return length
	}
	remaining := length - int64(pos)*chunkSize
	switch {
	case remaining <= 0:
		return 0
	case remaining < chunkSize:
		return remaining
	default:
		return chunkSize
	}
}

// ComputeChunkID derives a chunk id from the object version and position.
// Every copy of a replicated metachunk gets the same id, and a rebuilt chunk
// reuses the id of the chunk it replaces.
func ComputeChunkID(containerID, path, version, pos, policy string) string {
	h := sha256.New()
	for _, part := range []string{containerID, path, version, pos, policy} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}
