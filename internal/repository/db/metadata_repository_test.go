package db

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// mockDynamoDB is a func-field mock of the DynamoDB client.
type mockDynamoDB struct {
	getItemFunc            func(ctx context.Context, params *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItemFunc            func(ctx context.Context, params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	updateItemFunc         func(ctx context.Context, params *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	transactWriteItemsFunc func(ctx context.Context, params *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error)
}

func (m *mockDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return m.getItemFunc(ctx, params)
}

func (m *mockDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return m.putItemFunc(ctx, params)
}

func (m *mockDynamoDB) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return m.updateItemFunc(ctx, params)
}

func (m *mockDynamoDB) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	return m.transactWriteItemsFunc(ctx, params)
}

func sampleContent() (domain.ContentMeta, domain.ChunkList) {
	meta := domain.ContentMeta{
		ContainerID:   "CID",
		ContentID:     "0123ABCD",
		Account:       "acct",
		Container:     "bucket",
		Name:          "a/b",
		Version:       "1700000000000000",
		Length:        10,
		Policy:        "TWOCOPIES",
		ChunkMethod:   "plain/nb_copy=2",
		ChunkSize:     1024,
		Hash:          "HASH",
		ChunksVersion: 3,
	}
	chunks := domain.ChunkList{
		{ID: "X", URL: domain.ChunkURL("rawx-1", "X"), Pos: "0", Size: 10, Checksum: "AB"},
		{ID: "X", URL: domain.ChunkURL("rawx-2", "X"), Pos: "0", Size: 10, Checksum: "AB"},
	}
	return meta, chunks
}

func TestGetContentRoundTrip(t *testing.T) {
	meta, chunks := sampleContent()
	item, err := attributevalue.MarshalMap(contentItem{ContentMeta: meta, Chunks: chunks})
	require.NoError(t, err)

	client := &mockDynamoDB{
		getItemFunc: func(_ context.Context, params *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			assert.Equal(t, "contents", aws.ToString(params.TableName))
			return &dynamodb.GetItemOutput{Item: item}, nil
		},
	}
	repo := NewMetadataRepository(client, "containers", "contents")

	gotMeta, gotChunks, err := repo.GetContent(context.Background(), "CID", "0123ABCD")
	require.NoError(t, err)
	assert.Equal(t, meta, gotMeta)
	assert.Equal(t, chunks, gotChunks)
}

func TestGetContentNotFound(t *testing.T) {
	client := &mockDynamoDB{
		getItemFunc: func(_ context.Context, _ *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	}
	repo := NewMetadataRepository(client, "containers", "contents")

	_, _, err := repo.GetContent(context.Background(), "CID", "missing")
	assert.ErrorIs(t, err, apperrors.ErrContentNotFound)

	_, err = repo.ContainerInfo(context.Background(), "CID")
	assert.ErrorIs(t, err, apperrors.ErrContainerNotFound)
}

func TestCreateContent(t *testing.T) {
	meta, chunks := sampleContent()

	tests := []struct {
		name    string
		status  domain.ContainerStatus
		putErr  error
		wantErr error
	}{
		{name: "enabled", status: domain.ContainerEnabled},
		{name: "frozen", status: domain.ContainerFrozen, wantErr: apperrors.ErrFrozenContainer},
		{name: "exists", status: domain.ContainerEnabled, putErr: &types.ConditionalCheckFailedException{}, wantErr: apperrors.ErrContentExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			containerItem, err := attributevalue.MarshalMap(domain.Container{ContainerID: "CID", Status: tt.status})
			require.NoError(t, err)

			var put *dynamodb.PutItemInput
			client := &mockDynamoDB{
				getItemFunc: func(_ context.Context, _ *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
					return &dynamodb.GetItemOutput{Item: containerItem}, nil
				},
				putItemFunc: func(_ context.Context, params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
					put = params
					return &dynamodb.PutItemOutput{}, tt.putErr
				},
			}
			repo := NewMetadataRepository(client, "containers", "contents")

			err = repo.CreateContent(context.Background(), meta, chunks)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, put)
			assert.Equal(t, "attribute_not_exists(content_id)", aws.ToString(put.ConditionExpression))

			var stored contentItem
			require.NoError(t, attributevalue.UnmarshalMap(put.Item, &stored))
			assert.Equal(t, meta, stored.ContentMeta)
			assert.Len(t, stored.Chunks, 2)
		})
	}
}

func TestUpdateChunksCancellation(t *testing.T) {
	meta, chunks := sampleContent()
	failed := types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
	none := types.CancellationReason{Code: aws.String("None")}

	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "committed"},
		{name: "frozen", err: &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{failed, none}}, wantErr: apperrors.ErrFrozenContainer},
		{name: "conflict", err: &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{none, failed}}, wantErr: apperrors.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockDynamoDB{
				transactWriteItemsFunc: func(_ context.Context, params *dynamodb.TransactWriteItemsInput) (*dynamodb.TransactWriteItemsOutput, error) {
					require.Len(t, params.TransactItems, 2)
					update := params.TransactItems[1].Update
					require.NotNil(t, update)
					assert.Equal(t, &types.AttributeValueMemberN{Value: "3"}, update.ExpressionAttributeValues[":expected"])
					assert.Equal(t, &types.AttributeValueMemberN{Value: "4"}, update.ExpressionAttributeValues[":next"])
					return &dynamodb.TransactWriteItemsOutput{}, tt.err
				},
			}
			repo := NewMetadataRepository(client, "containers", "contents")

			err := repo.UpdateChunks(context.Background(), meta, chunks)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSetContainerStatusMissing(t *testing.T) {
	client := &mockDynamoDB{
		updateItemFunc: func(_ context.Context, _ *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			return nil, &types.ConditionalCheckFailedException{}
		},
	}
	repo := NewMetadataRepository(client, "containers", "contents")

	err := repo.SetContainerStatus(context.Background(), "CID", domain.ContainerFrozen)
	assert.True(t, errors.Is(err, apperrors.ErrContainerNotFound))
}
