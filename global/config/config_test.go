package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"PPRealtime/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node_id: edge-a
server:
  addr: ":9000"
realtime:
  send_queue: 32
  ping_interval: 5s
  pong_wait: 15s
jwt:
  secret: from-file
mongo:
  uri: mongodb://db:27017
  database: rt
nats:
  enabled: true
  servers: ["nats://n1:4222"]
`), 0o600))

	t.Setenv("RT_JWT_SECRET", "from-env")
	t.Setenv("RT_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "edge-a", cfg.NodeID)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 32, cfg.Realtime.SendQueue)
	assert.Equal(t, 5*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "rt", cfg.Mongo.Database)
	assert.Equal(t, []string{"nats://n1:4222"}, cfg.Nats.Servers)
	assert.Equal(t, "rt.broadcast", cfg.Nats.Subject, "defaults survive partial yaml")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "/socket", cfg.Realtime.Path)
}

func TestLoadMissingSecret(t *testing.T) {
	t.Setenv("RT_JWT_SECRET", "")
	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *AppConfig)
		ok     bool
	}{
		{"defaults with secret", func(c *AppConfig) {}, true},
		{"ping not below pong", func(c *AppConfig) { c.Realtime.PingInterval = c.Realtime.PongWait }, false},
		{"zero send queue", func(c *AppConfig) { c.Realtime.SendQueue = 0 }, false},
		{"bad path", func(c *AppConfig) { c.Realtime.Path = "socket" }, false},
		{"kafka enabled without topic", func(c *AppConfig) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }, false},
		{"unknown compression", func(c *AppConfig) { c.Kafka.Compression = "brotli" }, false},
		{"redis enabled without addr", func(c *AppConfig) { c.Redis.Enabled = true; c.Redis.Addr = "" }, false},
		{"mongo without database", func(c *AppConfig) { c.Mongo.Database = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.JWT.Secret = "s"
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errs.ErrValidation)
			}
		})
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	err := Parse([]byte("server: [unterminated"), Default())
	assert.ErrorIs(t, err, errs.ErrValidation)
}
