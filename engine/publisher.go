package engine

import (
	"errors"
	"sync"
	"time"

	"lineflow/messaging"
)

var errPublishQueueFull = errors.New("publish queue full")

const publishQueueSize = 1024

type envelopePublisher interface {
	PublishEnvelope(topic string, env *messaging.Envelope) error
}

type outgoing struct {
	topic string
	env   *messaging.Envelope
}

// publisher sends envelopes from a single goroutine, in submission order.
// Submit never blocks; a full queue drops the message.
type publisher struct {
	client envelopePublisher
	logFn  LogFunc

	mu     sync.Mutex
	closed bool
	queue  chan outgoing
	done   chan struct{}
}

func newPublisher(client envelopePublisher, size int, logFn LogFunc) *publisher {
	p := &publisher{
		client: client,
		logFn:  logFn,
		queue:  make(chan outgoing, size),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.client.PublishEnvelope(msg.topic, msg.env); err != nil && !errors.Is(err, messaging.ErrNotConnected) {
			p.logFn("engine: publish %s: %v", msg.topic, err)
		}
	}
}

func (p *publisher) submit(topic string, env *messaging.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return messaging.ErrNotConnected
	}
	select {
	case p.queue <- outgoing{topic: topic, env: env}:
		return nil
	default:
		return errPublishQueueFull
	}
}

// stop refuses new messages and waits up to timeout for the queue to drain.
func (p *publisher) stop(timeout time.Duration) bool {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
