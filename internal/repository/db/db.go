package db

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zblob/internal/placement"
	"github.com/zzenonn/zblob/internal/repository/migrate"
)

// DynamoDb bundles the AWS clients of the metadata plane: DynamoDB for
// containers and contents, the tagging API for chunk node discovery.
type DynamoDb struct {
	Client        *dynamodb.Client
	TaggingClient placement.TaggingAPI
	TablePrefix   string
}

func NewDatabase(awsConfig aws.Config, tablePrefix string) (*DynamoDb, error) {
	client := dynamodb.NewFromConfig(awsConfig)
	if client == nil {
		log.Fatal("Failed to create DynamoDB client")
	}

	taggingClient := resourcegroupstaggingapi.NewFromConfig(awsConfig)
	if taggingClient == nil {
		log.Fatal("Failed to create Resource Groups Tagging API client")
	}

	return &DynamoDb{
		Client:        client,
		TaggingClient: taggingClient,
		TablePrefix:   tablePrefix,
	}, nil
}

// MigrateDb creates the containers and contents tables
func (d *DynamoDb) MigrateDb(ctx context.Context) error {
	return migrate.Up(ctx, d.Client, migrate.All(d.TablePrefix))
}

// MigrateDown drops the tables created by MigrateDb
func (d *DynamoDb) MigrateDown(ctx context.Context) error {
	return migrate.Down(ctx, d.Client, migrate.All(d.TablePrefix))
}

// MetadataRepository returns the metadata service backed by this database
func (d *DynamoDb) MetadataRepository() *MetadataRepository {
	return NewMetadataRepository(d.Client, d.TablePrefix+migrate.ContainersTableName, d.TablePrefix+migrate.ContentsTableName)
}

// NodeDirectory discovers chunk nodes from the resource tags of S3 buckets
func (d *DynamoDb) NodeDirectory() *placement.TaggedDirectory {
	return placement.NewTaggedDirectory(d.TaggingClient)
}
