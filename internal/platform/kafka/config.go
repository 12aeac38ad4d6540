package kafka

import (
	"time"

	"ekyc/internal/platform/config"
)

// ProducerConfig holds configuration for the Kafka producer.
type ProducerConfig struct {
	Brokers         string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// DefaultProducerConfig returns sensible defaults for production use.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 30 * time.Second,
	}
}

// ProducerConfigFrom overlays the process configuration on the defaults.
func ProducerConfigFrom(cfg config.Kafka) ProducerConfig {
	out := DefaultProducerConfig()
	out.Brokers = cfg.Brokers
	if cfg.Acks != "" {
		out.Acks = cfg.Acks
	}
	if cfg.Retries > 0 {
		out.Retries = cfg.Retries
	}
	if cfg.DeliveryTimeout > 0 {
		out.DeliveryTimeout = cfg.DeliveryTimeout
	}
	return out
}
