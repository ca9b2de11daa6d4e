package iot

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"lineflow/sensor"
)

type EventKind int

const (
	EventSensorReading EventKind = iota + 1
	EventRobotState
	EventLog
	EventCriticalAlert
)

func (k EventKind) String() string {
	switch k {
	case EventSensorReading:
		return "sensor_reading"
	case EventRobotState:
		return "robot_state"
	case EventLog:
		return "log"
	case EventCriticalAlert:
		return "critical_alert"
	}
	return "unknown"
}

// Event is one notification from a provider. Exactly one of the payload
// fields is set, according to Kind.
type Event struct {
	Kind     EventKind
	Source   string
	At       time.Time
	Reading  *sensor.Reading
	Robot    *Robot
	Log      *LogEntry
	Critical *CriticalAlert
}

type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// CriticalAlert is raised for critical readings and for trigger detections.
// PostIndex is 1-based and zero when unknown.
type CriticalAlert struct {
	SensorID  string  `json:"sensor_id"`
	PostCode  string  `json:"post_code"`
	PostIndex int     `json:"post_index"`
	Message   string  `json:"message"`
	Value     float64 `json:"value"`
}

// Hub fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Int64
	closed  bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The
// returned cancel func unregisters and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was slow.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

func (h *Hub) publishLog(source, level, format string, args ...any) {
	h.Publish(Event{Kind: EventLog, Source: source, Log: &LogEntry{Level: level, Message: fmt.Sprintf(format, args...)}})
}
