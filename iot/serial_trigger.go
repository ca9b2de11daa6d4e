package iot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"lineflow/protocol"
	"lineflow/sensor"
	"lineflow/serialline"
)

// SerialTriggerProvider listens to presence triggers on a serial channel.
// It is input-only: sensor and robot calls do nothing, but AGV
// instructions can still be written with SendInstruction.
type SerialTriggerProvider struct {
	ch      *serialline.Channel
	dec     *protocol.Decoder
	route   []string
	newline string
	hub     *Hub
	logFn   LogFunc
	now     func() time.Time

	register sync.Once

	mu         sync.Mutex
	lastByPost map[int]sensor.Reading
	detections int
}

func NewSerialTriggerProvider(ch *serialline.Channel, route []string, newline string, logFn LogFunc) *SerialTriggerProvider {
	if logFn == nil {
		logFn = log.Printf
	}
	if newline == "" {
		newline = "\n"
	}
	p := &SerialTriggerProvider{
		ch:         ch,
		dec:        protocol.NewDecoder(len(route)),
		route:      append([]string(nil), route...),
		newline:    newline,
		hub:        NewHub(),
		logFn:      logFn,
		now:        time.Now,
		lastByPost: make(map[int]sensor.Reading),
	}
	p.dec.DebugLog = func(format string, args ...any) {
		p.hub.publishLog(p.Name(), "debug", format, args...)
	}
	return p
}

func (p *SerialTriggerProvider) Name() string { return "serial" }
func (p *SerialTriggerProvider) Events() *Hub { return p.hub }

func (p *SerialTriggerProvider) Connect(ctx context.Context) error {
	p.register.Do(func() { p.ch.OnLine(p.HandleLine) })
	if err := p.ch.Open(ctx); err != nil {
		p.hub.publishLog(p.Name(), "error", "connect: %v", err)
		return err
	}
	p.hub.publishLog(p.Name(), "info", "serial trigger connected")
	return nil
}

func (p *SerialTriggerProvider) Disconnect() error {
	err := p.ch.Close()
	p.hub.publishLog(p.Name(), "info", "serial trigger disconnected")
	return err
}

func (p *SerialTriggerProvider) IsConnected() bool { return p.ch.IsOpen() }

// HandleLine decodes one inbound line and publishes a detection when it
// carries one.
func (p *SerialTriggerProvider) HandleLine(line string) {
	det, ok := p.dec.Decode(line)
	if !ok {
		return
	}
	code := p.postCode(det.Post)
	now := p.now()
	r := sensor.Reading{
		SensorID:  triggerSensorID(det.Post),
		PostCode:  code,
		Type:      sensor.TypePresence,
		Value:     1,
		Min:       0,
		Max:       1,
		Level:     sensor.LevelCritical,
		Timestamp: now,
	}

	p.mu.Lock()
	p.lastByPost[det.Post] = r
	p.detections++
	p.mu.Unlock()

	p.hub.Publish(Event{Kind: EventSensorReading, Source: p.Name(), At: now, Reading: &r})
	p.hub.Publish(Event{Kind: EventCriticalAlert, Source: p.Name(), At: now, Critical: &CriticalAlert{
		SensorID:  r.SensorID,
		PostCode:  code,
		PostIndex: det.Post,
		Message:   fmt.Sprintf("piece detected at post %d (%s)", det.Post, code),
		Value:     1,
	}})
}

// SendInstruction encodes ins and writes it to the AGV over the channel.
func (p *SerialTriggerProvider) SendInstruction(ins protocol.Instruction) error {
	data, err := protocol.Encode(ins, p.newline)
	if err != nil {
		return fmt.Errorf("encode instruction: %w", err)
	}
	if err := p.ch.Send(data); err != nil {
		return err
	}
	p.hub.publishLog(p.Name(), "info", "agv instruction sent: %s", data[:len(data)-len(p.newline)])
	return nil
}

// Detections returns how many detections were decoded since creation.
func (p *SerialTriggerProvider) Detections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detections
}

func (p *SerialTriggerProvider) ReadSensor(string) (sensor.Reading, bool) {
	return sensor.Reading{}, false
}

func (p *SerialTriggerProvider) SendRobotCommand(string, Command, string) error {
	return ErrInputOnly
}

func (p *SerialTriggerProvider) ListSensors() []SensorInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SensorInfo, 0, len(p.route))
	for i, code := range p.route {
		info := SensorInfo{
			ID:         triggerSensorID(i + 1),
			PostCode:   code,
			Type:       sensor.TypePresence,
			Thresholds: sensor.DefaultThresholds[sensor.TypePresence],
			Source:     p.Name(),
		}
		if r, ok := p.lastByPost[i+1]; ok {
			info.Last = &r
		}
		out = append(out, info)
	}
	return out
}

func (p *SerialTriggerProvider) ListRobots() []Robot { return nil }

func (p *SerialTriggerProvider) SetThreshold(string, float64, float64) error {
	return ErrInputOnly
}

func (p *SerialTriggerProvider) postCode(idx int) string {
	if idx >= 1 && idx <= len(p.route) {
		return p.route[idx-1]
	}
	return fmt.Sprintf("P%d", idx)
}

func triggerSensorID(idx int) string {
	return fmt.Sprintf("trigger-%d", idx)
}
