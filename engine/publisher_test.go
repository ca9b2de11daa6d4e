package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineflow/messaging"
)

// gatedBroker blocks every publish until release is closed.
type gatedBroker struct {
	release chan struct{}

	mu     sync.Mutex
	topics []string
}

func (b *gatedBroker) PublishEnvelope(topic string, env *messaging.Envelope) error {
	<-b.release
	b.mu.Lock()
	b.topics = append(b.topics, topic)
	b.mu.Unlock()
	return nil
}

func (b *gatedBroker) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.topics...)
}

func TestPublisherNeverBlocksOnSlowBroker(t *testing.T) {
	broker := &gatedBroker{release: make(chan struct{})}
	p := newPublisher(broker, 2, quiet)
	env, err := messaging.NewEnvelope(messaging.KindStock, "f1", "L1", map[string]int{"stock": 1})
	require.NoError(t, err)

	require.NoError(t, p.submit("t1", env))
	// t1 is held by the broker; t2 and t3 fill the queue.
	require.Eventually(t, func() bool { return len(p.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.submit("t2", env))
	require.NoError(t, p.submit("t3", env))

	start := time.Now()
	assert.ErrorIs(t, p.submit("t4", env), errPublishQueueFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(broker.release)
	assert.True(t, p.stop(time.Second))
	assert.Equal(t, []string{"t1", "t2", "t3"}, broker.published())
	assert.ErrorIs(t, p.submit("t5", env), messaging.ErrNotConnected)
	assert.True(t, p.stop(time.Second))
}

func TestPublisherStopTimesOut(t *testing.T) {
	broker := &gatedBroker{release: make(chan struct{})}
	p := newPublisher(broker, 1, quiet)
	env, err := messaging.NewEnvelope(messaging.KindOrder, "f1", "L1", nil)
	require.NoError(t, err)
	require.NoError(t, p.submit("t1", env))

	assert.False(t, p.stop(20*time.Millisecond))
	close(broker.release)
	assert.True(t, p.stop(time.Second))
}
