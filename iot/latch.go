package iot

import (
	"context"
	"log"
	"sync"
	"time"
)

// DetectionLatch counts trigger detections per post so a production run
// can wait for "piece N has reached post P". The Nth detection seen at a
// post is matched to piece N.
type DetectionLatch struct {
	timeout time.Duration
	logFn   LogFunc

	mu      sync.Mutex
	counts  map[int]int
	changed chan struct{}

	cancel func()
	done   chan struct{}
}

// NewDetectionLatch subscribes to hub. A zero gating timeout waits
// indefinitely; otherwise a wait that exceeds it is logged and released.
func NewDetectionLatch(hub *Hub, gatingTimeout time.Duration, logFn LogFunc) *DetectionLatch {
	if logFn == nil {
		logFn = log.Printf
	}
	ch, cancel := hub.Subscribe(256)
	l := &DetectionLatch{
		timeout: gatingTimeout,
		logFn:   logFn,
		counts:  make(map[int]int),
		changed: make(chan struct{}),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.consume(ch)
	return l
}

func (l *DetectionLatch) consume(ch <-chan Event) {
	defer close(l.done)
	for evt := range ch {
		if evt.Kind != EventCriticalAlert || evt.Critical == nil || evt.Critical.PostIndex <= 0 {
			continue
		}
		l.Signal(evt.Critical.PostIndex)
	}
}

// Signal records one detection at postIndex and wakes waiters.
func (l *DetectionLatch) Signal(postIndex int) {
	l.mu.Lock()
	l.counts[postIndex]++
	close(l.changed)
	l.changed = make(chan struct{})
	l.mu.Unlock()
}

// Count returns how many detections were seen at postIndex since the last Reset.
func (l *DetectionLatch) Count(postIndex int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[postIndex]
}

// Reset clears all counters, normally at the start of a run.
func (l *DetectionLatch) Reset() {
	l.mu.Lock()
	l.counts = make(map[int]int)
	l.mu.Unlock()
}

// Wait blocks until piece has been detected at postIndex. It returns the
// context error when ctx ends first, and nil after logging when the gating
// timeout expires.
func (l *DetectionLatch) Wait(ctx context.Context, postIndex int, postCode string, piece int) error {
	var expired <-chan time.Time
	if l.timeout > 0 {
		t := time.NewTimer(l.timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		l.mu.Lock()
		n := l.counts[postIndex]
		changed := l.changed
		l.mu.Unlock()
		if n >= piece {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			l.logFn("iot: gating timeout at post %d (%s) for piece %d, proceeding", postIndex, postCode, piece)
			return nil
		case <-changed:
		}
	}
}

// Close stops consuming events.
func (l *DetectionLatch) Close() {
	l.cancel()
	<-l.done
}
