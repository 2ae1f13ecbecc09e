package db

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zblob/internal/placement"
)

// mockTagging is a func-field mock of the tagging client.
type mockTagging struct {
	getResourcesFunc func(ctx context.Context, params *resourcegroupstaggingapi.GetResourcesInput) (*resourcegroupstaggingapi.GetResourcesOutput, error)
}

func (m *mockTagging) GetResources(ctx context.Context, params *resourcegroupstaggingapi.GetResourcesInput, optFns ...func(*resourcegroupstaggingapi.Options)) (*resourcegroupstaggingapi.GetResourcesOutput, error) {
	return m.getResourcesFunc(ctx, params)
}

func TestNodeDirectoryUsesTaggingClient(t *testing.T) {
	calls := 0
	d := &DynamoDb{TablePrefix: "zblob-", TaggingClient: &mockTagging{
		getResourcesFunc: func(_ context.Context, params *resourcegroupstaggingapi.GetResourcesInput) (*resourcegroupstaggingapi.GetResourcesOutput, error) {
			calls++
			require.Len(t, params.TagFilters, 1)
			assert.Equal(t, placement.ResourceTagRole, aws.ToString(params.TagFilters[0].Key))
			assert.Equal(t, []string{placement.RoleRawx}, params.TagFilters[0].Values)
			return &resourcegroupstaggingapi.GetResourcesOutput{
				ResourceTagMappingList: []types.ResourceTagMapping{
					{
						ResourceARN: aws.String("arn:aws:s3:::chunks-a"),
						Tags:        []types.Tag{{Key: aws.String(placement.ResourceTagServiceID), Value: aws.String("rawx-a")}},
					},
				},
			}, nil
		},
	}}

	services, err := d.NodeDirectory().List(context.Background(), placement.RoleRawx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "rawx-a", services[0].ServiceID())
	assert.Equal(t, "s3://chunks-a", services[0].Addr)
	assert.Equal(t, 1, calls)
}

func TestNewDatabaseBuildsClients(t *testing.T) {
	d, err := NewDatabase(aws.Config{Region: "us-east-1"}, "zblob-")
	require.NoError(t, err)
	assert.NotNil(t, d.Client)
	assert.NotNil(t, d.TaggingClient)
	assert.NotNil(t, d.NodeDirectory())
}
