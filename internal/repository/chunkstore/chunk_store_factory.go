package chunkstore

import (
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NodeConfig describes one storage node
type NodeConfig struct {
	ServiceID string
	Type      StoreType
	// Name is the bucket name, or the volume path for LevelDB nodes
	Name string
	Rack string
}

// StoreFactory creates chunk node instances
type StoreFactory struct {
	awsConfig aws.Config
	gcsClient *storage.Client
	memory    map[string]*MemoryStore
}

// NewStoreFactory creates a new factory. gcsClient may be nil when no GCS node is configured.
func NewStoreFactory(awsConfig aws.Config, gcsClient *storage.Client) *StoreFactory {
	return &StoreFactory{
		awsConfig: awsConfig,
		gcsClient: gcsClient,
		memory:    make(map[string]*MemoryStore),
	}
}

// CreateStore creates a node based on its configuration
func (f *StoreFactory) CreateStore(config NodeConfig) (Store, error) {
	if config.ServiceID == "" {
		return nil, fmt.Errorf("node %s has no service id", config.Name)
	}
	switch config.Type {
	case S3Type:
		client := s3.NewFromConfig(f.awsConfig)
		return NewS3ChunkStore(client, config.ServiceID, config.Name), nil
	case GCSType:
		if f.gcsClient == nil {
			return nil, fmt.Errorf("GCS client not configured")
		}
		return NewGCSChunkStore(f.gcsClient, config.ServiceID, config.Name), nil
	case LevelDBType:
		return NewLevelDBChunkStore(config.ServiceID, config.Name)
	case MemoryType:
		if store, ok := f.memory[config.ServiceID]; ok {
			return store, nil
		}
		store := NewMemoryStore(config.ServiceID)
		f.memory[config.ServiceID] = store
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported node type: %s", config.Type)
	}
}

// ParseNodeURL parses a node address.
// Formats: "s3://bucket", "gs://bucket", "leveldb:///var/lib/zblob/vol1", "mem://name",
// "s3:bucket", or "bucket" (defaults to S3)
func ParseNodeURL(serviceID, nodeURL string) (NodeConfig, error) {
	nodeURL = strings.TrimSpace(nodeURL)

	// Handle URI format (s3://, gs://, leveldb://, mem://)
	if strings.Contains(nodeURL, "://") {
		parts := strings.SplitN(nodeURL, "://", 2)
		scheme := strings.ToLower(strings.TrimSpace(parts[0]))
		name := strings.TrimSpace(parts[1])

		if name == "" {
			return NodeConfig{}, fmt.Errorf("node name cannot be empty in %q", nodeURL)
		}

		var storeType StoreType
		switch scheme {
		case "s3":
			storeType = S3Type
		case "gs":
			storeType = GCSType
		case "leveldb":
			storeType = LevelDBType
		case "mem":
			storeType = MemoryType
		default:
			return NodeConfig{}, fmt.Errorf("unsupported scheme: %s", scheme)
		}

		return NodeConfig{ServiceID: serviceID, Type: storeType, Name: name}, nil
	}

	// Handle colon format (s3:bucket-name)
	parts := strings.SplitN(nodeURL, ":", 2)
	if len(parts) != 2 {
		if nodeURL == "" {
			return NodeConfig{}, fmt.Errorf("node address cannot be empty")
		}
		return NodeConfig{ServiceID: serviceID, Type: S3Type, Name: nodeURL}, nil
	}

	storeType := StoreType(strings.ToLower(strings.TrimSpace(parts[0])))
	if storeType == "gs" {
		storeType = GCSType
	}
	name := strings.TrimSpace(parts[1])
	if name == "" {
		return NodeConfig{}, fmt.Errorf("node name cannot be empty in %q", nodeURL)
	}

	return NodeConfig{ServiceID: serviceID, Type: storeType, Name: name}, nil
}

// Addr renders the node address back into URI form
func (c NodeConfig) Addr() string {
	scheme := string(c.Type)
	if c.Type == GCSType {
		scheme = "gs"
	}
	return scheme + "://" + c.Name
}
