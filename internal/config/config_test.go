package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zblob/internal/repository/chunkstore"
)

type mockSSM struct {
	getParameterFunc func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

func (m *mockSSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return m.getParameterFunc(ctx, params, optFns...)
}

const testConfig = `
log_level: debug
namespace: OPENIO
chunk_size: 2048
storage_policies:
  ec21: ec/algo=liberasurecode_rs_vand,k=2,m=1
nodes:
  rawx-1:
    url: s3://bucket-one
    rack: r1
  rawx-2:
    url: leveldb:///var/lib/zblob/vol2
    rack: r2
  rawx-3: mem://scratch
rebuilder:
  workers: 8
  read_all_available_sources: true
timeouts:
  source_read: 2s
`

func loadTestConfig(t *testing.T, content string) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, setupViper(path, nil))

	cfg, err := fromViper()
	require.NoError(t, err)
	return cfg
}

func TestFromViper(t *testing.T) {
	cfg := loadTestConfig(t, testConfig)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "OPENIO", cfg.Namespace)
	assert.Equal(t, int64(2048), cfg.ChunkSize)
	assert.Equal(t, "ec/algo=liberasurecode_rs_vand,k=2,m=1", cfg.StoragePolicies["ec21"])
	assert.Equal(t, NodeConfig{URL: "s3://bucket-one", Rack: "r1"}, cfg.Nodes["rawx-1"])
	assert.Equal(t, NodeConfig{URL: "mem://scratch"}, cfg.Nodes["rawx-3"])
	assert.Equal(t, 8, cfg.Rebuilder.Workers)
	assert.True(t, cfg.Rebuilder.ReadAllAvailableSources)
	assert.False(t, cfg.Rebuilder.AllowSameRawx)
	assert.Equal(t, 2*time.Second, cfg.Timeouts.SourceRead)

	// defaults
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Metadata)
	assert.Equal(t, 3, cfg.SpareAttempts)
	assert.Equal(t, "zblob-", cfg.DynamoDBTablePrefix)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("REBUILDER_WORKERS", "2")
	t.Setenv("NAMESPACE", "OTHER")
	cfg := loadTestConfig(t, testConfig)

	assert.Equal(t, 2, cfg.Rebuilder.Workers)
	assert.Equal(t, "OTHER", cfg.Namespace)
}

func TestFromViperRejectsBadChunkSize(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: 0\n"), 0o600))
	require.NoError(t, setupViper(path, nil))

	_, err := fromViper()
	assert.Error(t, err)
}

func TestStoreNodes(t *testing.T) {
	cfg := loadTestConfig(t, testConfig)

	nodes, err := cfg.StoreNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.Equal(t, chunkstore.NodeConfig{ServiceID: "rawx-1", Type: chunkstore.S3Type, Name: "bucket-one", Rack: "r1"}, nodes[0])
	assert.Equal(t, chunkstore.LevelDBType, nodes[1].Type)
	assert.Equal(t, "/var/lib/zblob/vol2", nodes[1].Name)
	assert.Equal(t, chunkstore.MemoryType, nodes[2].Type)
	assert.False(t, cfg.hasGCSNodes())

	cfg.Nodes["rawx-4"] = NodeConfig{URL: "gs://bucket-four"}
	assert.True(t, cfg.hasGCSNodes())

	cfg.Nodes["rawx-5"] = NodeConfig{URL: "ftp://nope"}
	_, err = cfg.StoreNodes()
	assert.Error(t, err)
}

func TestLoadNodesFromSSM(t *testing.T) {
	client := &mockSSM{getParameterFunc: func(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
		assert.Equal(t, "/zblob/nodes", aws.ToString(params.Name))
		assert.True(t, aws.ToBool(params.WithDecryption))
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{
			Value: aws.String(`{"rawx-1":{"url":"s3://other","rack":"x"},"rawx-9":{"url":"gs://remote","rack":"r9"}}`),
		}}, nil
	}}

	nodes, err := LoadNodesFromSSM(context.Background(), client, "/zblob/nodes")
	require.NoError(t, err)
	assert.Equal(t, NodeConfig{URL: "gs://remote", Rack: "r9"}, nodes["rawx-9"])

	cfg := loadTestConfig(t, testConfig)
	cfg.MergeNodes(nodes)
	assert.Equal(t, "s3://bucket-one", cfg.Nodes["rawx-1"].URL)
	assert.Equal(t, "gs://remote", cfg.Nodes["rawx-9"].URL)
	assert.True(t, cfg.hasGCSNodes())
}

func TestLoadNodesFromSSMErrors(t *testing.T) {
	failing := &mockSSM{getParameterFunc: func(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
		return nil, errors.New("access denied")
	}}
	_, err := LoadNodesFromSSM(context.Background(), failing, "/zblob/nodes")
	assert.ErrorContains(t, err, "access denied")

	garbage := &mockSSM{getParameterFunc: func(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String("[1,2]")}}, nil
	}}
	_, err = LoadNodesFromSSM(context.Background(), garbage, "/zblob/nodes")
	assert.Error(t, err)
}
