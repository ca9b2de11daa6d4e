// Package messaging publishes line events to an MQTT broker or a Kafka
// cluster.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"lineflow/config"
)

var ErrNotConnected = errors.New("messaging: not connected")

const publishTimeout = 5 * time.Second

type backend interface {
	publish(topic string, data []byte) error
	connected() bool
	close() error
}

type Client struct {
	mu      sync.RWMutex
	cfg     config.MessagingConfig
	backend backend
}

func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{cfg: *cfg}
}

// Connect opens the configured backend. The "none" backend connects to
// nothing and silently discards publishes.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		return nil
	}
	b, err := dial(&c.cfg)
	if err != nil {
		return err
	}
	c.backend = b
	return nil
}

func dial(cfg *config.MessagingConfig) (backend, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "mqtt":
		return dialMQTT(&cfg.MQTT)
	case "kafka":
		return newKafka(&cfg.Kafka)
	default:
		return nil, fmt.Errorf("unsupported messaging backend: %s", cfg.Backend)
	}
}

func (c *Client) Backend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cfg.Backend == "" {
		return "none"
	}
	return c.cfg.Backend
}

func (c *Client) TopicPrefix() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.TopicPrefix
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend != nil && c.backend.connected()
}

func (c *Client) Publish(topic string, data []byte) error {
	c.mu.RLock()
	b, disabled := c.backend, c.cfg.Backend == "" || c.cfg.Backend == "none"
	c.mu.RUnlock()
	if disabled {
		return nil
	}
	if b == nil || !b.connected() {
		return ErrNotConnected
	}
	return b.publish(topic, data)
}

// PublishEnvelope encodes env and publishes it.
func (c *Client) PublishEnvelope(topic string, env *Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return c.Publish(topic, data)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return nil
	}
	err := c.backend.close()
	c.backend = nil
	return err
}

// Reconfigure closes the current backend and connects with cfg.
func (c *Client) Reconfigure(cfg *config.MessagingConfig) error {
	if err := c.Close(); err != nil {
		log.Printf("messaging: close before reconfigure: %v", err)
	}
	c.mu.Lock()
	c.cfg = *cfg
	c.mu.Unlock()
	return c.Connect()
}

type mqttBackend struct {
	client mqtt.Client
}

func dialMQTT(cfg *config.MQTTConfig) (*mqttBackend, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("messaging: mqtt connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &mqttBackend{client: client}, nil
}

func (m *mqttBackend) publish(topic string, data []byte) error {
	token := m.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	return token.Error()
}

func (m *mqttBackend) connected() bool { return m.client.IsConnected() }

func (m *mqttBackend) close() error {
	m.client.Disconnect(250)
	return nil
}

type kafkaBackend struct {
	writer *kafka.Writer
}

func newKafka(cfg *config.KafkaConfig) (*kafkaBackend, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	return &kafkaBackend{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}}, nil
}

// Kafka topics cannot contain '/', so the MQTT-style path is flattened.
func kafkaTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func (k *kafkaBackend) publish(topic string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return k.writer.WriteMessages(ctx, kafka.Message{Topic: kafkaTopic(topic), Value: data})
}

func (k *kafkaBackend) connected() bool { return true }

func (k *kafkaBackend) close() error { return k.writer.Close() }
