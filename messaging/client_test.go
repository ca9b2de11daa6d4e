package messaging

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineflow/config"
)

type fakeBackend struct {
	mu     sync.Mutex
	up     bool
	sent   map[string][][]byte
	closed bool
	err    error
}

func (f *fakeBackend) publish(topic string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.sent == nil {
		f.sent = make(map[string][][]byte)
	}
	f.sent[topic] = append(f.sent[topic], data)
	return nil
}

func (f *fakeBackend) connected() bool { return f.up }

func (f *fakeBackend) close() error {
	f.closed = true
	return nil
}

func TestNoneBackendDiscards(t *testing.T) {
	c := NewClient(&config.MessagingConfig{Backend: "none"})
	require.NoError(t, c.Connect())
	assert.False(t, c.IsConnected())
	assert.Equal(t, "none", c.Backend())
	assert.NoError(t, c.Publish("a/b", []byte("x")))
	assert.NoError(t, c.Close())
}

func TestPublishRequiresConnection(t *testing.T) {
	c := NewClient(&config.MessagingConfig{Backend: "mqtt"})
	assert.ErrorIs(t, c.Publish("a/b", []byte("x")), ErrNotConnected)

	fb := &fakeBackend{}
	c.backend = fb
	assert.ErrorIs(t, c.Publish("a/b", []byte("x")), ErrNotConnected)

	fb.up = true
	assert.True(t, c.IsConnected())
	require.NoError(t, c.Publish("a/b", []byte("x")))
	assert.Len(t, fb.sent["a/b"], 1)

	fb.err = errors.New("broker gone")
	assert.EqualError(t, c.Publish("a/b", nil), "broker gone")

	require.NoError(t, c.Close())
	assert.True(t, fb.closed)
	assert.False(t, c.IsConnected())
}

func TestPublishEnvelope(t *testing.T) {
	c := NewClient(&config.MessagingConfig{Backend: "kafka", TopicPrefix: "lf"})
	fb := &fakeBackend{up: true}
	c.backend = fb

	env, err := NewEnvelope(KindStock, "engine", "L1", map[string]int{"P1": 3})
	require.NoError(t, err)
	topic := Topic(c.TopicPrefix(), "L1", KindStock)
	require.NoError(t, c.PublishEnvelope(topic, env))

	require.Len(t, fb.sent["lf/L1/stock"], 1)
	got, err := Decode(fb.sent["lf/L1/stock"][0])
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, KindStock, got.Kind)
	assert.Equal(t, "L1", got.LineID)
	var payload map[string]int
	require.NoError(t, got.DecodePayload(&payload))
	assert.Equal(t, 3, payload["P1"])
}

func TestDecodeRejectsMissingKind(t *testing.T) {
	_, err := Decode([]byte(`{"id":"x"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "lineflow/L1/diff", Topic("lineflow", "L1", KindDiff))
	assert.Equal(t, "L1/alert", Topic("", "L1", KindAlert))
	assert.Equal(t, "lineflow.L1.diff", kafkaTopic("lineflow/L1/diff"))
}

func TestDialErrors(t *testing.T) {
	_, err := dial(&config.MessagingConfig{Backend: "amqp"})
	assert.Error(t, err)
	_, err = dial(&config.MessagingConfig{Backend: "kafka"})
	assert.Error(t, err)

	c := NewClient(&config.MessagingConfig{Backend: "none"})
	require.NoError(t, c.Reconfigure(&config.MessagingConfig{Backend: "kafka", Kafka: config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}}}))
	assert.True(t, c.IsConnected())
	assert.Equal(t, "kafka", c.Backend())
	require.NoError(t, c.Close())
}
