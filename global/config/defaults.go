package config

import (
	"os"
	"time"

	"PPRealtime/data/database/mgo/mongoutil"
	"PPRealtime/logger"
	"PPRealtime/tools"
)

func Default() *AppConfig {
	host, _ := os.Hostname()
	if host == "" {
		host = "node-1"
	}
	return &AppConfig{
		NodeID:  host,
		NodeNum: 1,
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			GinMode:         "release",
		},
		Realtime: RealtimeConfig{
			Path:             "/socket",
			SendQueue:        256,
			WriteWait:        10 * time.Second,
			PongWait:         60 * time.Second,
			PingInterval:     25 * time.Second,
			MaxMessageBytes:  64 << 10,
			HandshakeTimeout: 10 * time.Second,
		},
		JWT: JWTConfig{
			Alg: "HS256",
			TTL: 7 * 24 * time.Hour,
		},
		Mongo: mongoutil.Config{
			Uri:         "mongodb://127.0.0.1:27017",
			Database:    "chat",
			MaxPoolSize: 100,
			MaxRetry:    3,
			Timeout:     5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:        "127.0.0.1:6379",
			PoolSize:    20,
			PresenceTTL: 2 * time.Minute,
		},
		Nats: NatsConfig{
			Servers: []string{"nats://127.0.0.1:4222"},
			Subject: "rt.broadcast",
			Name:    "pp-realtime",
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"127.0.0.1:9092"},
			Topic:       "chat.events",
			ClientID:    "pp-realtime",
			Compression: "snappy",
			Retries:     3,
		},
		Log: logger.Options{
			Level:    "info",
			Format:   "console",
			MaxSizeM: 100,
			MaxFiles: 7,
			MaxAgeD:  14,
		},
	}
}

func applyEnv(c *AppConfig) {
	c.NodeID = tools.GetEnv("RT_NODE_ID", c.NodeID)
	c.NodeNum = int64(tools.GetEnvInt("RT_NODE_NUM", int(c.NodeNum)))

	c.Server.Addr = tools.GetEnv("RT_HTTP_ADDR", c.Server.Addr)
	c.Server.GinMode = tools.GetEnv("RT_GIN_MODE", c.Server.GinMode)

	c.Realtime.SendQueue = tools.GetEnvInt("RT_SEND_QUEUE", c.Realtime.SendQueue)
	c.Realtime.PingInterval = tools.GetEnvDuration("RT_PING_INTERVAL", c.Realtime.PingInterval)
	c.Realtime.PongWait = tools.GetEnvDuration("RT_PONG_WAIT", c.Realtime.PongWait)
	c.Realtime.AllowedOrigins = tools.GetEnvList("RT_ALLOWED_ORIGINS", c.Realtime.AllowedOrigins)

	c.JWT.Secret = tools.GetEnv("RT_JWT_SECRET", c.JWT.Secret)
	c.JWT.TTL = tools.GetEnvDuration("RT_JWT_TTL", c.JWT.TTL)

	c.Mongo.Uri = tools.GetEnv("RT_MONGO_URI", c.Mongo.Uri)
	c.Mongo.Database = tools.GetEnv("RT_MONGO_DATABASE", c.Mongo.Database)

	c.Redis.Enabled = tools.GetEnvBool("RT_REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = tools.GetEnv("RT_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = tools.GetEnv("RT_REDIS_PASSWORD", c.Redis.Password)

	c.Nats.Enabled = tools.GetEnvBool("RT_NATS_ENABLED", c.Nats.Enabled)
	c.Nats.Servers = tools.GetEnvList("RT_NATS_SERVERS", c.Nats.Servers)

	c.Kafka.Enabled = tools.GetEnvBool("RT_KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = tools.GetEnvList("RT_KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = tools.GetEnv("RT_KAFKA_TOPIC", c.Kafka.Topic)

	c.Log.Level = tools.GetEnv("RT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = tools.GetEnv("RT_LOG_FORMAT", c.Log.Format)
	c.Log.File = tools.GetEnv("RT_LOG_FILE", c.Log.File)
}
