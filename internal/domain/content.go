package domain

import "github.com/zzenonn/zblob/internal/fullpath"

// ContainerStatus mirrors the container database status.
type ContainerStatus string

const (
	ContainerEnabled  ContainerStatus = "ENABLED"
	ContainerFrozen   ContainerStatus = "FROZEN"
	ContainerDisabled ContainerStatus = "DISABLED"
)

// Container - the owner of contents
type Container struct {
	ContainerID string          `json:"container_id" dynamodbav:"container_id"` // Partition Key
	Account     string          `json:"account" dynamodbav:"account"`
	Name        string          `json:"name" dynamodbav:"name"`
	Status      ContainerStatus `json:"status" dynamodbav:"status"`
}

// ContentMeta - one version of one object
type ContentMeta struct {
	ContainerID   string `json:"container_id" dynamodbav:"container_id"` // Partition Key
	ContentID     string `json:"content_id" dynamodbav:"content_id"`     // Sort Key
	Account       string `json:"account" dynamodbav:"account"`
	Container     string `json:"container" dynamodbav:"container"`
	Name          string `json:"name" dynamodbav:"name"`
	Version       string `json:"version" dynamodbav:"version"`
	Length        int64  `json:"length" dynamodbav:"length"`
	Policy        string `json:"policy" dynamodbav:"policy"`
	ChunkMethod   string `json:"chunk_method" dynamodbav:"chunk_method"`
	ChunkSize     int64  `json:"chunk_size" dynamodbav:"chunk_size"`
	Hash          string `json:"hash" dynamodbav:"hash"` // MD5 of the whole object
	ChunksVersion int64  `json:"chunks_version" dynamodbav:"chunks_version"`
}

// Fullpath returns the provenance every chunk of the content must carry.
func (m ContentMeta) Fullpath() fullpath.Fullpath {
	return fullpath.Fullpath{
		Account:   m.Account,
		Container: m.Container,
		Path:      m.Name,
		Version:   m.Version,
		ContentID: m.ContentID,
	}
}

// RebuildTask - one unit of repair work
type RebuildTask struct {
	Namespace   string `json:"namespace"`
	ContainerID string `json:"container_id"`
	ContentID   string `json:"content_id"`
	ChunkID     string `json:"chunk_id"`
}

// Valid reports whether every field is set.
func (t RebuildTask) Valid() bool {
	return t.Namespace != "" && t.ContainerID != "" && t.ContentID != "" && t.ChunkID != ""
}
