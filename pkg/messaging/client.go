package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
)

// Handler receives one inbound message. key is empty on MQTT.
type Handler func(topic, key string, payload []byte)

// Transport is what the Bridge needs from a message bus.
type Transport interface {
	Publish(topic, key string, payload []byte) error
	Subscribe(topic string, handler Handler) error
	Close()
}

// ErrNotConnected is returned when publishing before Connect.
var ErrNotConnected = errors.New("messaging: not connected")

// Client is the unified messaging client (MQTT or Kafka).
type Client struct {
	cfg    Config
	logger *slog.Logger
	topics *Topics

	mu       sync.RWMutex
	mqttConn mqtt.Client
	kafkaW   *kafkago.Writer
	readers  []*kafkago.Reader
	cancel   context.CancelFunc
	ctx      context.Context

	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
}

// NewClient creates a messaging client. Call Connect to reach the broker.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid messaging config: %w", err)
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("messaging backend disabled")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		logger: logger.With("backend", cfg.Backend),
		topics: NewTopics(cfg.Prefix, cfg.Backend),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Topics returns the topic helper for this backend.
func (c *Client) Topics() *Topics { return c.topics }

// Connect establishes the messaging connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.cfg.Backend {
	case BackendMQTT:
		return c.connectMQTT(ctx)
	case BackendKafka:
		return c.connectKafka()
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
}

func (c *Client) connectMQTT(ctx context.Context) error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.logger.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			c.logger.Info("mqtt connected", "broker", broker)
		})
	if c.cfg.MQTT.Username != "" {
		opts.SetUsername(c.cfg.MQTT.Username)
		opts.SetPassword(c.cfg.MQTT.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqttConn = client
	return nil
}

func (c *Client) connectKafka() error {
	c.kafkaW = &kafkago.Writer{
		Addr:                   kafkago.TCP(c.cfg.Kafka.Brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	c.logger.Info("kafka writer ready", "brokers", c.cfg.Kafka.Brokers)
	return nil
}

// Publish sends a message. On Kafka key selects the partition.
func (c *Client) Publish(topic, key string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.cfg.Backend {
	case BackendMQTT:
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return ErrNotConnected
		}
		token := c.mqttConn.Publish(topic, c.cfg.MQTT.QoS, false, payload)
		if !token.WaitTimeout(c.cfg.ConnectTimeout) {
			return fmt.Errorf("mqtt publish %s: timeout", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
	case BackendKafka:
		if c.kafkaW == nil {
			return ErrNotConnected
		}
		msg := kafkago.Message{Topic: topic, Value: payload}
		if key != "" {
			msg.Key = []byte(key)
		}
		if err := c.kafkaW.WriteMessages(c.ctx, msg); err != nil {
			return fmt.Errorf("kafka publish %s: %w", topic, err)
		}
	default:
		return fmt.Errorf("unknown backend: %s", c.cfg.Backend)
	}
	c.messagesSent.Add(1)
	return nil
}

// Subscribe registers a handler for messages on topic. MQTT topics may use
// the "+" wildcard.
func (c *Client) Subscribe(topic string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.cfg.Backend {
	case BackendMQTT:
		if c.mqttConn == nil {
			return ErrNotConnected
		}
		token := c.mqttConn.Subscribe(topic, c.cfg.MQTT.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			c.messagesReceived.Add(1)
			handler(msg.Topic(), "", msg.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
		}
	case BackendKafka:
		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: c.cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: c.cfg.ClientID,
		})
		c.readers = append(c.readers, reader)
		go c.readKafka(reader, topic, handler)
	default:
		return fmt.Errorf("unknown backend: %s", c.cfg.Backend)
	}
	c.logger.Debug("subscribed", "topic", topic)
	return nil
}

func (c *Client) readKafka(reader *kafkago.Reader, topic string, handler Handler) {
	for {
		msg, err := reader.ReadMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("kafka read stopped", "topic", topic, "error", err)
			}
			return
		}
		c.messagesReceived.Add(1)
		handler(msg.Topic, string(msg.Key), msg.Value)
	}
}

// IsConnected returns whether the messaging client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.cfg.Backend {
	case BackendMQTT:
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case BackendKafka:
		return c.kafkaW != nil
	default:
		return false
	}
}

// Stats returns message counters.
func (c *Client) Stats() (sent, received int64) {
	return c.messagesSent.Load(), c.messagesReceived.Load()
}

// Close shuts down the messaging connection.
func (c *Client) Close() {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(1000)
		c.mqttConn = nil
	}
	if c.kafkaW != nil {
		c.kafkaW.Close()
		c.kafkaW = nil
	}
	for _, r := range c.readers {
		r.Close()
	}
	c.readers = nil
}

// Ensure Client implements Transport
var _ Transport = (*Client)(nil)
