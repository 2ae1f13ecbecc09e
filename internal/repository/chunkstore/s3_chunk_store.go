package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	log "github.com/sirupsen/logrus"

	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// S3API is the part of the S3 client used by S3ChunkStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3ChunkStore is a chunk node backed by an S3 bucket. Chunk headers are
// stored as object metadata.
type S3ChunkStore struct {
	client     S3API
	uploader   *manager.Uploader
	serviceID  string
	bucketName string
}

// NewS3ChunkStore initializes a chunk node on a bucket. The uploader serves
// chunked writes of unknown length and may be nil when the client is not a
// full *s3.Client.
func NewS3ChunkStore(client S3API, serviceID, bucketName string) *S3ChunkStore {
	store := &S3ChunkStore{
		client:     client,
		serviceID:  serviceID,
		bucketName: bucketName,
	}
	if c, ok := client.(*s3.Client); ok {
		store.uploader = manager.NewUploader(c)
	}
	return store
}

// ServiceID returns the node id.
func (r *S3ChunkStore) ServiceID() string {
	return r.serviceID
}

// StorageType returns the node backend.
func (r *S3ChunkStore) StorageType() string {
	return string(S3Type)
}

// Put uploads a chunk. Known sizes go through a single PutObject, unknown
// sizes through the multipart uploader.
func (r *S3ChunkStore) Put(ctx context.Context, chunkID string, headers map[string]string, reader io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket:   aws.String(r.bucketName),
		Key:      aws.String(chunkKey(chunkID)),
		Body:     reader,
		Metadata: headers,
	}

	if size >= 0 {
		input.ContentLength = aws.Int64(size)
		if _, err := r.client.PutObject(ctx, input); err != nil {
			return fmt.Errorf("failed to put chunk %s to s3://%s: %w", chunkID, r.bucketName, err)
		}
		return nil
	}

	if r.uploader == nil {
		return fmt.Errorf("chunked upload not supported on s3://%s", r.bucketName)
	}
	log.Debugf("Chunked upload of %s to s3://%s", chunkID, r.bucketName)
	if _, err := r.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload chunk %s to s3://%s: %w", chunkID, r.bucketName, err)
	}
	return nil
}

// Get downloads a chunk
func (r *S3ChunkStore) Get(ctx context.Context, chunkID string) (map[string]string, io.ReadCloser, error) {
	result, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(chunkKey(chunkID)),
	})
	if err != nil {
		return nil, nil, r.mapError(chunkID, err)
	}
	return result.Metadata, result.Body, nil
}

// Head returns chunk headers without the payload
func (r *S3ChunkStore) Head(ctx context.Context, chunkID string) (map[string]string, error) {
	result, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(chunkKey(chunkID)),
	})
	if err != nil {
		return nil, r.mapError(chunkID, err)
	}
	return result.Metadata, nil
}

// Delete removes a chunk. S3 deletes are idempotent, so existence is
// checked first to report missing chunks.
func (r *S3ChunkStore) Delete(ctx context.Context, chunkID string) error {
	if _, err := r.Head(ctx, chunkID); err != nil {
		return err
	}
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucketName),
		Key:    aws.String(chunkKey(chunkID)),
	})
	if err != nil {
		return r.mapError(chunkID, err)
	}
	return nil
}

func (r *S3ChunkStore) mapError(chunkID string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s in s3://%s", apperrors.ErrChunkNotFound, chunkID, r.bucketName)
		}
	}
	return fmt.Errorf("s3://%s chunk %s: %w", r.bucketName, chunkID, err)
}
