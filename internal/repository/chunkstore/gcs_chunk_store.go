package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	log "github.com/sirupsen/logrus"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// GCSChunkStore is a chunk node backed by a Google Cloud Storage bucket
type GCSChunkStore struct {
	client     *storage.Client
	serviceID  string
	bucketName string
}

// NewGCSChunkStore creates a chunk node on a GCS bucket
func NewGCSChunkStore(client *storage.Client, serviceID, bucketName string) *GCSChunkStore {
	return &GCSChunkStore{
		client:     client,
		serviceID:  serviceID,
		bucketName: bucketName,
	}
}

// ServiceID returns the node id
func (r *GCSChunkStore) ServiceID() string {
	return r.serviceID
}

// StorageType returns the node backend
func (r *GCSChunkStore) StorageType() string {
	return string(GCSType)
}

// Put uploads a chunk. A known size is sent in a single request, an unknown
// one with resumable chunked uploads.
func (r *GCSChunkStore) Put(ctx context.Context, chunkID string, headers map[string]string, reader io.Reader, size int64) error {
	obj := r.client.Bucket(r.bucketName).Object(chunkKey(chunkID))

	writer := obj.NewWriter(ctx)
	writer.Metadata = headers
	if size >= 0 {
		writer.ChunkSize = 0
	}

	log.Debugf("Uploading chunk to GCS: gs://%s/%s", r.bucketName, chunkKey(chunkID))
	if _, err := io.Copy(writer, reader); err != nil {
		writer.Close()
		return fmt.Errorf("failed to upload chunk %s to GCS: %w", chunkID, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to upload chunk %s to GCS: %w", chunkID, err)
	}
	return nil
}

// Get downloads a chunk from GCS
func (r *GCSChunkStore) Get(ctx context.Context, chunkID string) (map[string]string, io.ReadCloser, error) {
	obj := r.client.Bucket(r.bucketName).Object(chunkKey(chunkID))

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, nil, r.mapError(chunkID, err)
	}
	reader, err := obj.Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		return nil, nil, r.mapError(chunkID, err)
	}
	return attrs.Metadata, reader, nil
}

// Head returns the chunk headers
func (r *GCSChunkStore) Head(ctx context.Context, chunkID string) (map[string]string, error) {
	attrs, err := r.client.Bucket(r.bucketName).Object(chunkKey(chunkID)).Attrs(ctx)
	if err != nil {
		return nil, r.mapError(chunkID, err)
	}
	return attrs.Metadata, nil
}

// Delete deletes a chunk from GCS
func (r *GCSChunkStore) Delete(ctx context.Context, chunkID string) error {
	if err := r.client.Bucket(r.bucketName).Object(chunkKey(chunkID)).Delete(ctx); err != nil {
		return r.mapError(chunkID, err)
	}
	return nil
}

func (r *GCSChunkStore) mapError(chunkID string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s in gs://%s", apperrors.ErrChunkNotFound, chunkID, r.bucketName)
	}
	return fmt.Errorf("gs://%s chunk %s: %w", r.bucketName, chunkID, err)
}
