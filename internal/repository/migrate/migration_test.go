package migrate

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTables keeps table names in memory; created tables are active at once.
type fakeTables struct {
	tables  map[string]bool
	created []string
	dropped []string
}

func (f *fakeTables) CreateTable(_ context.Context, params *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	name := aws.ToString(params.TableName)
	f.tables[name] = true
	f.created = append(f.created, name)
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeTables) DeleteTable(_ context.Context, params *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	name := aws.ToString(params.TableName)
	delete(f.tables, name)
	f.dropped = append(f.dropped, name)
	return &dynamodb.DeleteTableOutput{}, nil
}

func (f *fakeTables) DescribeTable(_ context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	name := aws.ToString(params.TableName)
	if !f.tables[name] {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: params.TableName, TableStatus: types.TableStatusActive},
	}, nil
}

func TestUpSkipsExistingTables(t *testing.T) {
	client := &fakeTables{tables: map[string]bool{"test-containers": true}}

	require.NoError(t, Up(context.Background(), client, All("test-")))
	assert.Equal(t, []string{"test-contents"}, client.created)

	require.NoError(t, Up(context.Background(), client, All("test-")))
	assert.Len(t, client.created, 1)
}

func TestDownDropsInReverseOrder(t *testing.T) {
	client := &fakeTables{tables: map[string]bool{"containers": true, "contents": true}}

	require.NoError(t, Down(context.Background(), client, All("")))
	assert.Equal(t, []string{"contents", "containers"}, client.dropped)
	assert.Empty(t, client.tables)
}
