package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// Config describes the chat event topic and how to produce to it.
type Config struct {
	Brokers           []string
	Topic             string
	ClientID          string
	Compression       string // none/gzip/snappy/lz4/zstd
	Retries           int
	Partitions        int32
	ReplicationFactor int16
	Version           sarama.KafkaVersion
}

func (c Config) withDefaults() Config {
	if c.Retries <= 0 {
		c.Retries = 1
	}
	if c.Partitions <= 0 {
		c.Partitions = 8
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
	if c.Version == (sarama.KafkaVersion{}) {
		c.Version = sarama.V2_1_0_0
	}
	return c
}

// BuildConfig returns the sarama config for the async event producer.
func BuildConfig(c Config) *sarama.Config {
	c = c.withDefaults()
	cfg := sarama.NewConfig()
	cfg.Version = c.Version
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = c.Retries
	// one conversation maps to one partition, keeping per-conversation order
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Producer.Compression = compressionCodec(c.Compression)

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}

func compressionCodec(name string) sarama.CompressionCodec {
	switch strings.ToLower(name) {
	case "gzip":
		return sarama.CompressionGZIP
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	default:
		return sarama.CompressionNone
	}
}
