package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zzenonn/zblob/internal/repository/chunkstore"
)

// NodeConfig is one chunk node entry of the configuration
type NodeConfig struct {
	URL  string `yaml:"url" json:"url"`
	Rack string `yaml:"rack" json:"rack"`
}

// RebuilderConfig tunes the rebuild workers
type RebuilderConfig struct {
	Workers                 int    `yaml:"workers"`
	AllowSameRawx           bool   `yaml:"allow_same_rawx"`
	ReadAllAvailableSources bool   `yaml:"read_all_available_sources"`
	ServiceID               string `yaml:"service_id"`
}

// Timeouts bounds every remote call
type Timeouts struct {
	Metadata   time.Duration `yaml:"metadata"`
	SourceRead time.Duration `yaml:"source_read"`
	Write      time.Duration `yaml:"write"`
}

// Config holds the application configuration
type Config struct {
	LogLevel  string `yaml:"log_level"`
	Namespace string `yaml:"namespace"`
	ChunkSize int64  `yaml:"chunk_size"`
	// StoragePolicies adds or overrides named policies: name -> chunk method
	StoragePolicies map[string]string `yaml:"storage_policies"`
	// Nodes maps a service id to its chunk node
	Nodes map[string]NodeConfig `yaml:"nodes"`
	// NodesSSMParameter names a Parameter Store entry holding more nodes as JSON
	NodesSSMParameter string `yaml:"nodes_ssm_parameter"`
	// DiscoverTag enables discovery of S3 bucket nodes through resource tags
	DiscoverTag         bool            `yaml:"discover_tag"`
	DynamoDBTablePrefix string          `yaml:"dynamodb_table_prefix"`
	Rebuilder           RebuilderConfig `yaml:"rebuilder"`
	Timeouts            Timeouts        `yaml:"timeouts"`
	SpareAttempts       int             `yaml:"spare_attempts"`
	MetricsAddr         string          `yaml:"metrics_addr"`
	// AwsConfig: AWS SDK uses a shared configuration object that contains
	// credentials, region, retry policies, etc. S3 nodes, DynamoDB, SSM and
	// the tagging API are all created from this single config.
	AwsConfig aws.Config
	// GcsClient is only created when a gs:// node is configured.
	GcsClient *storage.Client
}

// SSMAPI is the part of the SSM client used to load nodes
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadConfig loads configuration from config.yaml, environment variables, or CLI flags
// Priority: CLI flags > Environment variables > config.yaml > defaults
func LoadConfig(configPath string, rootCmd *cobra.Command) (*Config, error) {
	if err := setupViper(configPath, rootCmd); err != nil {
		return nil, err
	}

	cfg, err := fromViper()
	if err != nil {
		return nil, err
	}

	awsConfig, err := loadAWSConfig()
	if err != nil {
		return nil, err
	}
	cfg.AwsConfig = awsConfig

	if cfg.NodesSSMParameter != "" {
		nodes, err := LoadNodesFromSSM(context.Background(), ssm.NewFromConfig(awsConfig), cfg.NodesSSMParameter)
		if err != nil {
			return nil, err
		}
		cfg.MergeNodes(nodes)
	}

	if cfg.hasGCSNodes() {
		gcsClient, err := loadGCSClient()
		if err != nil {
			return nil, err
		}
		cfg.GcsClient = gcsClient
	}

	return cfg, nil
}

// setupViper configures Viper with defaults, paths, and bindings
func setupViper(configPath string, rootCmd *cobra.Command) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	setDefaults()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if rootCmd != nil {
		if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("namespace", "ZBLOB")
	viper.SetDefault("chunk_size", 1048576)
	viper.SetDefault("dynamodb_table_prefix", "zblob-")
	viper.SetDefault("rebuilder.workers", 4)
	viper.SetDefault("rebuilder.allow_same_rawx", false)
	viper.SetDefault("rebuilder.read_all_available_sources", false)
	viper.SetDefault("timeouts.metadata", "5s")
	viper.SetDefault("timeouts.source_read", "30s")
	viper.SetDefault("timeouts.write", "60s")
	viper.SetDefault("spare_attempts", 3)
}

// fromViper builds a Config from the current Viper state
func fromViper() (*Config, error) {
	cfg := &Config{
		LogLevel:            viper.GetString("log_level"),
		Namespace:           viper.GetString("namespace"),
		ChunkSize:           viper.GetInt64("chunk_size"),
		StoragePolicies:     viper.GetStringMapString("storage_policies"),
		Nodes:               parseNodes(),
		NodesSSMParameter:   viper.GetString("nodes_ssm_parameter"),
		DiscoverTag:         viper.GetBool("discover_tag"),
		DynamoDBTablePrefix: viper.GetString("dynamodb_table_prefix"),
		Rebuilder: RebuilderConfig{
			Workers:                 viper.GetInt("rebuilder.workers"),
			AllowSameRawx:           viper.GetBool("rebuilder.allow_same_rawx"),
			ReadAllAvailableSources: viper.GetBool("rebuilder.read_all_available_sources"),
			ServiceID:               viper.GetString("rebuilder.service_id"),
		},
		Timeouts: Timeouts{
			Metadata:   viper.GetDuration("timeouts.metadata"),
			SourceRead: viper.GetDuration("timeouts.source_read"),
			Write:      viper.GetDuration("timeouts.write"),
		},
		SpareAttempts: viper.GetInt("spare_attempts"),
		MetricsAddr:   viper.GetString("metrics_addr"),
	}

	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk_size must be positive, got %d", cfg.ChunkSize)
	}
	return cfg, nil
}

// loadAWSConfig loads AWS SDK configuration
func loadAWSConfig() (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %v", err)
	}
	return cfg, nil
}

// loadGCSClient loads Google Cloud Storage client
func loadGCSClient() (*storage.Client, error) {
	client, err := storage.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("unable to create GCS client: %v", err)
	}
	return client, nil
}

// parseNodes parses node configuration from Viper.
// Viper lower-cases map keys, so service ids are case-insensitive.
func parseNodes() map[string]NodeConfig {
	nodes := make(map[string]NodeConfig)
	nodesRaw := viper.GetStringMap("nodes")

	for serviceID, value := range nodesRaw {
		switch v := value.(type) {
		case map[string]interface{}:
			nodes[serviceID] = NodeConfig{
				URL:  getString(v, "url", ""),
				Rack: getString(v, "rack", ""),
			}
		case string:
			nodes[serviceID] = NodeConfig{URL: v}
		}
	}

	return nodes
}

// LoadNodesFromSSM reads a JSON object of service id -> {url, rack} from Parameter Store
func LoadNodesFromSSM(ctx context.Context, client SSMAPI, name string) (map[string]NodeConfig, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter %s: %w", name, err)
	}
	if out.Parameter == nil {
		return nil, fmt.Errorf("parameter %s has no value", name)
	}

	var nodes map[string]NodeConfig
	if err := json.Unmarshal([]byte(aws.ToString(out.Parameter.Value)), &nodes); err != nil {
		return nil, fmt.Errorf("parameter %s is not a node map: %w", name, err)
	}
	return nodes, nil
}

// MergeNodes adds nodes to the configuration. Statically configured nodes win.
func (c *Config) MergeNodes(nodes map[string]NodeConfig) {
	if c.Nodes == nil {
		c.Nodes = make(map[string]NodeConfig)
	}
	for serviceID, node := range nodes {
		if _, exists := c.Nodes[serviceID]; exists {
			log.WithField("service_id", serviceID).Debug("Node already configured, ignoring remote entry")
			continue
		}
		c.Nodes[serviceID] = node
	}
}

// StoreNodes returns the configured nodes sorted by service id
func (c *Config) StoreNodes() ([]chunkstore.NodeConfig, error) {
	serviceIDs := make([]string, 0, len(c.Nodes))
	for serviceID := range c.Nodes {
		serviceIDs = append(serviceIDs, serviceID)
	}
	sort.Strings(serviceIDs)

	nodes := make([]chunkstore.NodeConfig, 0, len(serviceIDs))
	for _, serviceID := range serviceIDs {
		node, err := chunkstore.ParseNodeURL(serviceID, c.Nodes[serviceID].URL)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", serviceID, err)
		}
		node.Rack = c.Nodes[serviceID].Rack
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (c *Config) hasGCSNodes() bool {
	nodes, err := c.StoreNodes()
	if err != nil {
		return false
	}
	for _, node := range nodes {
		if node.Type == chunkstore.GCSType {
			return true
		}
	}
	return false
}

// SetConfigValue sets a configuration value (used for CLI flags)
func SetConfigValue(key string, value interface{}) {
	viper.Set(key, value)
}

// getString safely extracts string value from map with default
func getString(m map[string]interface{}, key, defaultValue string) string {
	if value, exists := m[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}
