package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "varint", cfg.Store.Codec)
	assert.Equal(t, int64(10_000_000), cfg.Index.MaxTermVector)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: bolt
  table: flights
index:
  maxTermVector: 32000
bolt:
  path: /tmp/flights.db
`), 0o600))

	t.Setenv("KVX_STORE_TABLE", "airports")
	t.Setenv("KVX_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendBolt, cfg.Store.Backend)
	assert.Equal(t, "airports", cfg.Store.Table)
	assert.Equal(t, int64(32000), cfg.Index.MaxTermVector)
	assert.Equal(t, "/tmp/flights.db", cfg.Bolt.Path)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "varint", cfg.Store.Codec, "unset keys keep defaults")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"KVX_STORE_BACKEND": "cassandra"}},
		{"zero threshold", map[string]string{"KVX_INDEX_MAX_TERM_VECTOR": "0"}},
		{"negative rate limit", map[string]string{"KVX_SERVER_RATE_LIMIT": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadDevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)
	assert.Equal(t, BackendBolt, cfg.Store.Backend)
	assert.Equal(t, "flights", cfg.Store.Table)
	assert.Equal(t, 50.0, cfg.Server.RateLimit)
	assert.Equal(t, 100, cfg.Server.RateBurst)
	assert.Equal(t, "document-ingest", cfg.Kafka.Topics.DocumentIngest)
}
