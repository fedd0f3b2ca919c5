// Package messaging connects roomba nodes to a message bus.
//
// This package handles:
//   - MQTT (paho) or Kafka (kafka-go) transport behind one Client
//   - Topic naming per robot namespace
//   - The Bridge between controllers, the arena registry and the bus
package messaging

import (
	"fmt"
	"time"
)

// Backend names.
const (
	BackendMQTT  = "mqtt"
	BackendKafka = "kafka"
	BackendNone  = "none"
)

// Config holds messaging configuration.
type Config struct {
	// Backend selects the transport: "mqtt", "kafka" or "none".
	Backend string `yaml:"backend" json:"backend"`

	// Prefix is prepended to every topic.
	// Default: "roomba"
	Prefix string `yaml:"prefix" json:"prefix"`

	// ClientID identifies this node to the broker. Also the Kafka consumer group.
	ClientID string `yaml:"client_id" json:"client_id"`

	MQTT  MQTTConfig  `yaml:"mqtt" json:"mqtt"`
	Kafka KafkaConfig `yaml:"kafka" json:"kafka"`

	// ConnectTimeout bounds the initial broker connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`

	// OutboxSize is the number of outbound messages buffered before dropping.
	OutboxSize int `yaml:"outbox_size" json:"outbox_size"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username,omitempty"`
	Password string `yaml:"password" json:"-"`
	QoS      byte   `yaml:"qos" json:"qos"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:  BackendNone,
		Prefix:   "roomba",
		ClientID: "roomba-node",
		MQTT: MQTTConfig{
			Broker: "localhost",
			Port:   1883,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
		},
		ConnectTimeout: 10 * time.Second,
		OutboxSize:     256,
	}
}

// Enabled reports whether a transport is configured.
func (c *Config) Enabled() bool {
	return c.Backend != "" && c.Backend != BackendNone
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendNone:
		return nil
	case BackendMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker is required")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt port out of range: %d", c.MQTT.Port)
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("at least one kafka broker is required")
		}
	default:
		return fmt.Errorf("backend must be 'mqtt', 'kafka' or 'none', got '%s'", c.Backend)
	}
	if c.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	return nil
}
