package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/zblob/internal/config"
	"github.com/zzenonn/zblob/internal/content"
	"github.com/zzenonn/zblob/internal/logging"
	"github.com/zzenonn/zblob/internal/placement"
	"github.com/zzenonn/zblob/internal/repository/chunkstore"
	"github.com/zzenonn/zblob/internal/repository/db"
	"github.com/zzenonn/zblob/internal/storagemethod"
)

var (
	cfg        *config.Config
	configPath string

	dynamoDb *db.DynamoDb
	metadata *db.MetadataRepository
	router   *chunkstore.Router
	contents *content.Factory
)

var rootCmd = &cobra.Command{
	Use:   "zblob",
	Short: "Chunked blob storage with replication and erasure coding",
	Long:  "A CLI to store contents as replicated or erasure-coded chunks across storage nodes, and to rebuild lost chunks",
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml")
	rootCmd.PersistentFlags().String("log_level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("namespace", "", "Namespace of the storage cluster")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize and migrate the database",
	Run: func(cmd *cobra.Command, args []string) {
		if err := dynamoDb.MigrateDb(context.Background()); err != nil {
			fmt.Printf("Failed to migrate the database: %v\n", err)
			return
		}

		fmt.Println("Database initialized and migrated successfully")
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back database migrations",
	Run: func(cmd *cobra.Command, args []string) {
		if err := dynamoDb.MigrateDown(context.Background()); err != nil {
			fmt.Printf("Failed to roll back migrations: %v\n", err)
			return
		}

		fmt.Println("Database migrations rolled back successfully")
	},
}

func initConfig() {
	var err error
	cfg, err = config.LoadConfig(configPath, rootCmd)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logging.InitLogger(cfg)

	dynamoDb, err = db.NewDatabase(cfg.AwsConfig, cfg.DynamoDBTablePrefix)
	if err != nil {
		log.Fatalf("Failed to connect to the database: %v", err)
	}
	metadata = dynamoDb.MetadataRepository()

	policies, err := storagemethod.NewPolicies(cfg.StoragePolicies)
	if err != nil {
		log.Fatalf("Invalid storage policies: %v", err)
	}

	router = chunkstore.NewRouter()
	directory, err := buildDirectory(context.Background(), chunkstore.NewStoreFactory(cfg.AwsConfig, cfg.GcsClient))
	if err != nil {
		log.Fatalf("Failed to set up storage nodes: %v", err)
	}

	selector := placement.NewSelector(placement.NewRoundRobinAllocator(directory, policies))
	contents = content.NewFactory(content.Deps{
		Metadata: metadata,
		Client:   router,
		Placer:   selector,
		Timeouts: content.Timeouts{
			Metadata:   cfg.Timeouts.Metadata,
			SourceRead: cfg.Timeouts.SourceRead,
			Write:      cfg.Timeouts.Write,
		},
		SpareAttempts: cfg.SpareAttempts,
	}, policies, cfg.ChunkSize)
}

// buildDirectory registers every configured or discovered node with the
// router and returns the placement directory listing them.
func buildDirectory(ctx context.Context, factory *chunkstore.StoreFactory) (*placement.StaticDirectory, error) {
	nodes, err := cfg.StoreNodes()
	if err != nil {
		return nil, err
	}

	if cfg.DiscoverTag {
		services, err := dynamoDb.NodeDirectory().List(ctx, placement.RoleRawx)
		if err != nil {
			return nil, err
		}
		for _, svc := range services {
			if _, ok := cfg.Nodes[svc.ServiceID()]; ok {
				continue
			}
			node, err := chunkstore.ParseNodeURL(svc.ServiceID(), svc.Addr)
			if err != nil {
				return nil, fmt.Errorf("discovered node %s: %w", svc.ServiceID(), err)
			}
			node.Rack = svc.Tags[placement.TagRack]
			nodes = append(nodes, node)
		}
	}

	directory := placement.NewStaticDirectory()
	for _, node := range nodes {
		store, err := factory.CreateStore(node)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.ServiceID, err)
		}
		if err := router.Register(store); err != nil {
			return nil, err
		}
		err = directory.Register(placement.RoleRawx, placement.ServiceInfo{
			Addr: node.Addr(),
			Tags: map[string]string{
				placement.TagServiceID: node.ServiceID,
				placement.TagVolume:    node.Name,
				placement.TagRack:      node.Rack,
			},
		})
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"service_id": node.ServiceID, "addr": node.Addr()}).Debug("Storage node registered")
	}

	return directory, nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(downCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
