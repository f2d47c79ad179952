package config

import (
	"os"
	"time"

	"PPRealtime/data/database/mgo/mongoutil"
	"PPRealtime/logger"
	"PPRealtime/tools/errs"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	NodeID  string `yaml:"node_id"`  // identifies this process in the NATS relay
	NodeNum int64  `yaml:"node_num"` // snowflake node number

	Server   ServerConfig     `yaml:"server"`
	Realtime RealtimeConfig   `yaml:"realtime"`
	JWT      JWTConfig        `yaml:"jwt"`
	Mongo    mongoutil.Config `yaml:"mongo"`
	Redis    RedisConfig      `yaml:"redis"`
	Nats     NatsConfig       `yaml:"nats"`
	Kafka    KafkaConfig      `yaml:"kafka"`
	Log      logger.Options   `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	GinMode         string        `yaml:"gin_mode"`
}

type RealtimeConfig struct {
	Path             string        `yaml:"path"`
	SendQueue        int           `yaml:"send_queue"`
	WriteWait        time.Duration `yaml:"write_wait"`
	PongWait         time.Duration `yaml:"pong_wait"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Alg    string        `yaml:"alg"`
	TTL    time.Duration `yaml:"ttl"`
	Leeway time.Duration `yaml:"leeway"`
}

type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	PresenceTTL time.Duration `yaml:"presence_ttl"`
}

type NatsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Servers []string `yaml:"servers"`
	Subject string   `yaml:"subject"`
	Name    string   `yaml:"name"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	ClientID    string   `yaml:"client_id"`
	Compression string   `yaml:"compression"` // none|gzip|snappy|lz4|zstd
	Retries     int      `yaml:"retries"`
}

// Load reads path (optional), fills defaults, applies RT_* overrides and validates.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.WrapMsg(err, "read config file", "path", path)
		}
		if err := Parse(raw, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse overlays YAML onto cfg; keys absent from raw keep their current value.
func Parse(raw []byte, cfg *AppConfig) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return errs.ErrValidation.WrapMsg("invalid config yaml", "err", err.Error())
	}
	return nil
}
