package iot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"lineflow/sensor"
)

// HybridProvider combines a primary provider, which can act on commands,
// with a secondary one. Events from both are forwarded into one hub.
type HybridProvider struct {
	primary   Provider
	secondary Provider
	hub       *Hub
	logFn     LogFunc

	mu      sync.Mutex
	cancels []func()
	wg      sync.WaitGroup
}

func NewHybridProvider(primary, secondary Provider, logFn LogFunc) *HybridProvider {
	if logFn == nil {
		logFn = log.Printf
	}
	return &HybridProvider{primary: primary, secondary: secondary, hub: NewHub(), logFn: logFn}
}

func (h *HybridProvider) Name() string {
	return fmt.Sprintf("hybrid(%s+%s)", h.primary.Name(), h.secondary.Name())
}

func (h *HybridProvider) Events() *Hub { return h.hub }

func (h *HybridProvider) Primary() Provider   { return h.primary }
func (h *HybridProvider) Secondary() Provider { return h.secondary }

// Connect starts forwarding and connects both providers. It fails only
// when neither side connects.
func (h *HybridProvider) Connect(ctx context.Context) error {
	h.mu.Lock()
	if h.cancels == nil {
		h.forward(h.primary.Events())
		h.forward(h.secondary.Events())
	}
	h.mu.Unlock()

	errP := h.primary.Connect(ctx)
	if errP != nil {
		h.logFn("iot: hybrid primary %s connect: %v", h.primary.Name(), errP)
	}
	errS := h.secondary.Connect(ctx)
	if errS != nil {
		h.logFn("iot: hybrid secondary %s connect: %v", h.secondary.Name(), errS)
	}
	if errP != nil && errS != nil {
		return errors.Join(errP, errS)
	}
	return nil
}

// forward copies events from src into the hybrid hub. Caller holds h.mu.
func (h *HybridProvider) forward(src *Hub) {
	ch, cancel := src.Subscribe(256)
	h.cancels = append(h.cancels, cancel)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for evt := range ch {
			h.hub.Publish(evt)
		}
	}()
}

func (h *HybridProvider) Disconnect() error {
	err := errors.Join(h.primary.Disconnect(), h.secondary.Disconnect())

	h.mu.Lock()
	cancels := h.cancels
	h.cancels = nil
	h.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	h.wg.Wait()
	return err
}

func (h *HybridProvider) IsConnected() bool {
	return h.primary.IsConnected() || h.secondary.IsConnected()
}

func (h *HybridProvider) ReadSensor(id string) (sensor.Reading, bool) {
	if r, ok := h.primary.ReadSensor(id); ok {
		return r, true
	}
	return h.secondary.ReadSensor(id)
}

func (h *HybridProvider) SendRobotCommand(robotID string, cmd Command, target string) error {
	return h.primary.SendRobotCommand(robotID, cmd, target)
}

func (h *HybridProvider) ListSensors() []SensorInfo {
	return MergeSensors(h.primary.ListSensors(), h.secondary.ListSensors())
}

func (h *HybridProvider) ListRobots() []Robot {
	return h.primary.ListRobots()
}

func (h *HybridProvider) SetThreshold(id string, warn, crit float64) error {
	return h.primary.SetThreshold(id, warn, crit)
}
