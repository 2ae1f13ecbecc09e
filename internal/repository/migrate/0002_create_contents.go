package migrate

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	ContentsTableName = "contents"
	ContentsVersion   = "20250901000100_contents_table"
)

// CreateContentsTable holds content metadata and chunk lists, one item per
// content version.
type CreateContentsTable struct {
	Prefix string
}

func (m *CreateContentsTable) Version() string {
	return ContentsVersion
}

func (m *CreateContentsTable) TableName() string {
	return m.Prefix + ContentsTableName
}

func (m *CreateContentsTable) Up(ctx context.Context, client TableAPI) error {
	return createTable(ctx, client, &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("container_id"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("content_id"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("container_id"),
				KeyType:       types.KeyTypeHash, // Partition Key
			},
			{
				AttributeName: aws.String("content_id"),
				KeyType:       types.KeyTypeRange, // Sort Key
			},
		},
		TableName:   aws.String(m.TableName()),
		BillingMode: types.BillingModePayPerRequest,
		Tags:        tags(),
	})
}

func (m *CreateContentsTable) Down(ctx context.Context, client TableAPI) error {
	return dropTable(ctx, client, m.TableName())
}
