package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"
)

// TableAPI is the part of the DynamoDB client migrations need
type TableAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Migration creates or drops one table
type Migration interface {
	Version() string
	TableName() string
	Up(ctx context.Context, client TableAPI) error
	Down(ctx context.Context, client TableAPI) error
}

// TableWaitTimeout bounds how long Up waits for a table to become active
var TableWaitTimeout = 5 * time.Minute

// All returns the migrations in apply order, with table names under prefix
func All(prefix string) []Migration {
	return []Migration{
		&CreateContainersTable{Prefix: prefix},
		&CreateContentsTable{Prefix: prefix},
	}
}

// Up applies every migration. Tables that already exist are skipped.
func Up(ctx context.Context, client TableAPI, migrations []Migration) error {
	for _, m := range migrations {
		exists, err := tableExists(ctx, client, m.TableName())
		if err != nil {
			return err
		}
		if exists {
			log.Debugf("Table %s already exists, skipping %s", m.TableName(), m.Version())
			continue
		}
		log.Infof("Applying migration %s", m.Version())
		if err := m.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Version(), err)
		}
	}
	return nil
}

// Down rolls back every migration in reverse order
func Down(ctx context.Context, client TableAPI, migrations []Migration) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		exists, err := tableExists(ctx, client, m.TableName())
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		log.Infof("Rolling back migration %s", m.Version())
		if err := m.Down(ctx, client); err != nil {
			return fmt.Errorf("rollback of %s failed: %w", m.Version(), err)
		}
	}
	return nil
}

func tableExists(ctx context.Context, client TableAPI, name string) (bool, error) {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err == nil {
		return true, nil
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to describe table %s: %w", name, err)
}

func createTable(ctx context.Context, client TableAPI, input *dynamodb.CreateTableInput) error {
	if _, err := client.CreateTable(ctx, input); err != nil {
		return err
	}

	// Wait for table to become active
	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: input.TableName,
	}, TableWaitTimeout)
}

func dropTable(ctx context.Context, client TableAPI, name string) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(name)})
	return err
}

func tags() []types.Tag {
	return []types.Tag{
		{
			Key:   aws.String("Purpose"),
			Value: aws.String("BlobDurabilityMetadata"),
		},
	}
}
