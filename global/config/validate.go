package config

import (
	"strings"

	"PPRealtime/tools/errs"
)

func (c *AppConfig) Validate() error {
	if c.NodeID == "" {
		return errs.ErrValidation.WrapMsg("node_id is required")
	}
	if c.Server.Addr == "" {
		return errs.ErrValidation.WrapMsg("server.addr is required")
	}
	if !strings.HasPrefix(c.Realtime.Path, "/") {
		return errs.ErrValidation.WrapMsg("realtime.path must start with /", "path", c.Realtime.Path)
	}
	if c.Realtime.SendQueue <= 0 {
		return errs.ErrValidation.WrapMsg("realtime.send_queue must be positive", "send_queue", c.Realtime.SendQueue)
	}
	if c.Realtime.PingInterval <= 0 || c.Realtime.PingInterval >= c.Realtime.PongWait {
		return errs.ErrValidation.WrapMsg("realtime.ping_interval must be positive and below pong_wait",
			"ping_interval", c.Realtime.PingInterval, "pong_wait", c.Realtime.PongWait)
	}
	if c.JWT.Secret == "" {
		return errs.ErrValidation.WrapMsg("jwt.secret is required (RT_JWT_SECRET)")
	}
	if err := c.Mongo.ValidateAndSetDefaults(); err != nil {
		return errs.ErrValidation.Wrap(err, "section", "mongo")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errs.ErrValidation.WrapMsg("redis.addr is required when redis is enabled")
	}
	if c.Nats.Enabled && (len(c.Nats.Servers) == 0 || c.Nats.Subject == "") {
		return errs.ErrValidation.WrapMsg("nats.servers and nats.subject are required when nats is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errs.ErrValidation.WrapMsg("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	switch c.Kafka.Compression {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return errs.ErrValidation.WrapMsg("unknown kafka.compression", "compression", c.Kafka.Compression)
	}
	return nil
}
