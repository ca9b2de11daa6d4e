package iot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatchWaitsForNthDetection(t *testing.T) {
	hub := NewHub()
	l := NewDetectionLatch(hub, 0, t.Logf)
	defer l.Close()

	done := make(chan error, 1)
	go func() { done <- l.Wait(context.Background(), 2, "P2", 2) }()

	detect := func(idx int) {
		hub.Publish(Event{Kind: EventCriticalAlert, Critical: &CriticalAlert{PostIndex: idx}})
	}
	detect(2)
	detect(1)
	require.Eventually(t, func() bool { return l.Count(2) == 1 }, time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("released after the first detection")
	case <-time.After(50 * time.Millisecond):
	}

	detect(2)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("wait not released")
	}
}

func TestLatchIgnoresUntaggedAlerts(t *testing.T) {
	hub := NewHub()
	l := NewDetectionLatch(hub, 0, t.Logf)
	defer l.Close()

	hub.Publish(Event{Kind: EventCriticalAlert, Critical: &CriticalAlert{SensorID: "P1-temperature"}})
	hub.Publish(Event{Kind: EventLog, Log: &LogEntry{Message: "x"}})
	l.Signal(1)
	require.Eventually(t, func() bool { return l.Count(1) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, l.Count(0))

	l.Reset()
	assert.Equal(t, 0, l.Count(1))
}

func TestLatchGatingTimeoutProceeds(t *testing.T) {
	var logged []string
	l := NewDetectionLatch(NewHub(), 20*time.Millisecond, func(format string, args ...any) {
		logged = append(logged, format)
	})
	defer l.Close()

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), 1, "P1", 1))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Len(t, logged, 1)
}

func TestLatchCancellation(t *testing.T) {
	l := NewDetectionLatch(NewHub(), 0, t.Logf)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx, 3, "P3", 1), context.DeadlineExceeded)
}
