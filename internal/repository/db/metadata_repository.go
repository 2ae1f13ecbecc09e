package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zblob/internal/domain"
	apperrors "github.com/zzenonn/zblob/internal/errors"
)

// DynamoDBAPI is the part of the DynamoDB client the repository uses
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// contentItem is the stored form of a content: its metadata and chunk list
type contentItem struct {
	domain.ContentMeta
	Chunks []domain.Chunk `dynamodbav:"chunks"`
}

// MetadataRepository manages containers and contents in DynamoDB.
type MetadataRepository struct {
	client          DynamoDBAPI
	containersTable string
	contentsTable   string
}

// NewMetadataRepository initializes a new MetadataRepository.
func NewMetadataRepository(client DynamoDBAPI, containersTable, contentsTable string) *MetadataRepository {
	return &MetadataRepository{
		client:          client,
		containersTable: containersTable,
		contentsTable:   contentsTable,
	}
}

// CreateContainer registers a container. It fails if the id is taken.
func (repo *MetadataRepository) CreateContainer(ctx context.Context, container domain.Container) error {
	item, err := attributevalue.MarshalMap(container)
	if err != nil {
		return fmt.Errorf("failed to marshal container: %w", err)
	}

	_, err = repo.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(repo.containersTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(container_id)"),
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("container %s already exists", container.ContainerID)
	}
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	return nil
}

// ContainerInfo returns a container by id.
func (repo *MetadataRepository) ContainerInfo(ctx context.Context, containerID string) (domain.Container, error) {
	result, err := repo.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(repo.containersTable),
		Key:            containerKey(containerID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Container{}, fmt.Errorf("failed to get container: %w", err)
	}

	if result.Item == nil {
		return domain.Container{}, fmt.Errorf("%w: %s", apperrors.ErrContainerNotFound, containerID)
	}

	var container domain.Container
	if err := attributevalue.UnmarshalMap(result.Item, &container); err != nil {
		return domain.Container{}, fmt.Errorf("failed to unmarshal container: %w", err)
	}
	return container, nil
}

// SetContainerStatus changes the status of an existing container.
func (repo *MetadataRepository) SetContainerStatus(ctx context.Context, containerID string, status domain.ContainerStatus) error {
	_, err := repo.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(repo.containersTable),
		Key:                 containerKey(containerID),
		UpdateExpression:    aws.String("SET #status = :status"),
		ConditionExpression: aws.String("attribute_exists(container_id)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: %s", apperrors.ErrContainerNotFound, containerID)
	}
	if err != nil {
		return fmt.Errorf("failed to update container status: %w", err)
	}
	return nil
}

// GetContent returns a content and its chunk list.
func (repo *MetadataRepository) GetContent(ctx context.Context, containerID, contentID string) (domain.ContentMeta, domain.ChunkList, error) {
	result, err := repo.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(repo.contentsTable),
		Key:            contentKey(containerID, contentID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.ContentMeta{}, nil, fmt.Errorf("failed to get content: %w", err)
	}

	if result.Item == nil {
		return domain.ContentMeta{}, nil, fmt.Errorf("%w: %s/%s", apperrors.ErrContentNotFound, containerID, contentID)
	}

	var item contentItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return domain.ContentMeta{}, nil, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	return item.ContentMeta, domain.ChunkList(item.Chunks), nil
}

// CreateContent stores a new content with its chunk list. The container must
// exist and not be frozen.
func (repo *MetadataRepository) CreateContent(ctx context.Context, meta domain.ContentMeta, chunks domain.ChunkList) error {
	container, err := repo.ContainerInfo(ctx, meta.ContainerID)
	if err != nil {
		return err
	}
	if container.Status != domain.ContainerEnabled {
		return fmt.Errorf("%w: %s", apperrors.ErrFrozenContainer, meta.ContainerID)
	}

	item, err := attributevalue.MarshalMap(contentItem{ContentMeta: meta, Chunks: chunks})
	if err != nil {
		return fmt.Errorf("failed to marshal content: %w", err)
	}

	_, err = repo.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(repo.contentsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(content_id)"),
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: %s/%s", apperrors.ErrContentExists, meta.ContainerID, meta.ContentID)
	}
	if err != nil {
		return fmt.Errorf("failed to create content: %w", err)
	}
	return nil
}

// UpdateChunks replaces the chunk list of a content if its chunks_version
// still equals meta.ChunksVersion, and bumps the version. The write is one
// transaction that also checks the container is enabled.
func (repo *MetadataRepository) UpdateChunks(ctx context.Context, meta domain.ContentMeta, chunks domain.ChunkList) error {
	chunksAV, err := attributevalue.Marshal([]domain.Chunk(chunks))
	if err != nil {
		return fmt.Errorf("failed to marshal chunks: %w", err)
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				ConditionCheck: &types.ConditionCheck{
					TableName:           aws.String(repo.containersTable),
					Key:                 containerKey(meta.ContainerID),
					ConditionExpression: aws.String("#status = :enabled"),
					ExpressionAttributeNames: map[string]string{
						"#status": "status",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":enabled": &types.AttributeValueMemberS{Value: string(domain.ContainerEnabled)},
					},
				},
			},
			{
				Update: &types.Update{
					TableName:           aws.String(repo.contentsTable),
					Key:                 contentKey(meta.ContainerID, meta.ContentID),
					UpdateExpression:    aws.String("SET chunks = :chunks, chunks_version = :next"),
					ConditionExpression: aws.String("chunks_version = :expected"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":chunks":   chunksAV,
						":next":     &types.AttributeValueMemberN{Value: fmt.Sprint(meta.ChunksVersion + 1)},
						":expected": &types.AttributeValueMemberN{Value: fmt.Sprint(meta.ChunksVersion)},
					},
				},
			},
		},
	}

	_, err = repo.client.TransactWriteItems(ctx, input)
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		return repo.cancellationError(meta, canceled)
	}
	if err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}

	log.WithFields(log.Fields{
		"content_id":     meta.ContentID,
		"chunks_version": meta.ChunksVersion + 1,
	}).Debug("Chunk list updated")
	return nil
}

// cancellationError maps the per-item reasons of a canceled transaction.
// Reason 0 is the container check, reason 1 the content update.
func (repo *MetadataRepository) cancellationError(meta domain.ContentMeta, canceled *types.TransactionCanceledException) error {
	reasons := canceled.CancellationReasons
	failed := func(i int) bool {
		return i < len(reasons) && aws.ToString(reasons[i].Code) == "ConditionalCheckFailed"
	}
	switch {
	case failed(0):
		return fmt.Errorf("%w: %s", apperrors.ErrFrozenContainer, meta.ContainerID)
	case failed(1):
		return fmt.Errorf("%w: %s expected chunks_version %d", apperrors.ErrConflict, meta.ContentID, meta.ChunksVersion)
	default:
		return fmt.Errorf("failed to update chunks: %w", canceled)
	}
}

func containerKey(containerID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"container_id": &types.AttributeValueMemberS{Value: containerID},
	}
}

func contentKey(containerID, contentID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"container_id": &types.AttributeValueMemberS{Value: containerID},
		"content_id":   &types.AttributeValueMemberS{Value: contentID},
	}
}
