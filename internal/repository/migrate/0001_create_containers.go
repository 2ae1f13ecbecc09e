package migrate

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	ContainersTableName = "containers"
	ContainersVersion   = "20250901000000_containers_table"
)

type CreateContainersTable struct {
	Prefix string
}

func (m *CreateContainersTable) Version() string {
	return ContainersVersion
}

func (m *CreateContainersTable) TableName() string {
	return m.Prefix + ContainersTableName
}

func (m *CreateContainersTable) Up(ctx context.Context, client TableAPI) error {
	return createTable(ctx, client, &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("container_id"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("container_id"),
				KeyType:       types.KeyTypeHash, // Partition Key
			},
		},
		TableName:   aws.String(m.TableName()),
		BillingMode: types.BillingModePayPerRequest,
		Tags:        tags(),
	})
}

func (m *CreateContainersTable) Down(ctx context.Context, client TableAPI) error {
	return dropTable(ctx, client, m.TableName())
}
