package iot

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"lineflow/sensor"
)

type simSensor struct {
	info SensorInfo
	last *sensor.Reading
}

// SimulationProvider backs every call with an in-memory sensor simulator
// and robot model. Connect starts a tick loop that samples all sensors and
// advances the robots.
type SimulationProvider struct {
	sim   *sensor.Simulator
	hub   *Hub
	tick  time.Duration
	logFn LogFunc

	mu      sync.Mutex
	sensors map[string]*simSensor
	order   []string
	robots  map[string]*Robot

	stopChan  chan struct{}
	wg        sync.WaitGroup
	connected bool
}

type SimulationConfig struct {
	Posts  []string
	Types  []sensor.Type
	Robots []string
	Tick   time.Duration
	Seed   int64
}

func NewSimulationProvider(cfg SimulationConfig, logFn LogFunc) *SimulationProvider {
	if logFn == nil {
		logFn = log.Printf
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 2 * time.Second
	}
	types := cfg.Types
	if len(types) == 0 {
		types = sensor.MonitoredTypes
	}
	p := &SimulationProvider{
		sim:     sensor.NewSimulator(cfg.Seed),
		hub:     NewHub(),
		tick:    cfg.Tick,
		logFn:   logFn,
		sensors: make(map[string]*simSensor),
		robots:  make(map[string]*Robot),
	}
	for _, post := range cfg.Posts {
		for _, typ := range types {
			id := sensor.SensorID(post, typ)
			p.sensors[id] = &simSensor{info: SensorInfo{
				ID:         id,
				PostCode:   post,
				Type:       typ,
				Thresholds: sensor.DefaultThresholds[typ],
				Source:     "simulation",
			}}
			p.order = append(p.order, id)
		}
	}
	for _, id := range cfg.Robots {
		home := "home"
		if len(cfg.Posts) > 0 {
			home = cfg.Posts[0]
		}
		p.robots[id] = &Robot{ID: id, State: RobotIdle, Position: home, Battery: 100}
	}
	return p
}

func (p *SimulationProvider) Name() string { return "simulation" }
func (p *SimulationProvider) Events() *Hub { return p.hub }

// Simulator exposes the underlying sensor simulator.
func (p *SimulationProvider) Simulator() *sensor.Simulator { return p.sim }

func (p *SimulationProvider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.connected = true
	p.stopChan = make(chan struct{})
	p.wg.Add(1)
	go p.tickLoop(p.stopChan)
	p.logFn("iot: simulation connected (%d sensors, %d robots)", len(p.sensors), len(p.robots))
	p.hub.publishLog(p.Name(), "info", "simulation connected")
	return nil
}

func (p *SimulationProvider) Disconnect() error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil
	}
	p.connected = false
	close(p.stopChan)
	p.mu.Unlock()
	p.wg.Wait()
	p.hub.publishLog(p.Name(), "info", "simulation disconnected")
	return nil
}

func (p *SimulationProvider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *SimulationProvider) tickLoop(stop <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Tick()
		}
	}
}

// Tick samples every sensor and advances every robot once.
func (p *SimulationProvider) Tick() {
	p.mu.Lock()
	ids := append([]string(nil), p.order...)
	p.mu.Unlock()
	for _, id := range ids {
		p.ReadSensor(id)
	}

	p.mu.Lock()
	var changed []Robot
	for _, id := range p.robotIDs() {
		r := p.robots[id]
		if r.step(0.25) {
			changed = append(changed, *r)
		}
	}
	p.mu.Unlock()
	for i := range changed {
		p.hub.Publish(Event{Kind: EventRobotState, Source: p.Name(), Robot: &changed[i]})
	}
}

func (p *SimulationProvider) ReadSensor(id string) (sensor.Reading, bool) {
	p.mu.Lock()
	s, ok := p.sensors[id]
	if !ok {
		p.mu.Unlock()
		return sensor.Reading{}, false
	}
	info := s.info
	p.mu.Unlock()

	r := p.sim.Next(info.PostCode, info.Type, info.Thresholds)

	p.mu.Lock()
	s.last = &r
	p.mu.Unlock()

	p.publishReading(r)
	return r, true
}

// InjectAnomaly publishes an out-of-band reading for sensor id.
func (p *SimulationProvider) InjectAnomaly(id string) (sensor.Reading, error) {
	p.mu.Lock()
	s, ok := p.sensors[id]
	if !ok {
		p.mu.Unlock()
		return sensor.Reading{}, fmt.Errorf("%w: %s", ErrUnknownSensor, id)
	}
	info := s.info
	p.mu.Unlock()

	r := p.sim.InjectAnomaly(info.PostCode, info.Type, info.Thresholds)
	p.mu.Lock()
	s.last = &r
	p.mu.Unlock()
	p.publishReading(r)
	return r, nil
}

func (p *SimulationProvider) publishReading(r sensor.Reading) {
	p.hub.Publish(Event{Kind: EventSensorReading, Source: p.Name(), At: r.Timestamp, Reading: &r})
	if r.Level.AtLeastCritical() {
		p.hub.Publish(Event{Kind: EventCriticalAlert, Source: p.Name(), At: r.Timestamp, Critical: &CriticalAlert{
			SensorID: r.SensorID,
			PostCode: r.PostCode,
			Message:  fmt.Sprintf("%s %s at %.2f%s (%s)", r.PostCode, r.Type, r.Value, r.Unit, r.Level),
			Value:    r.Value,
		}})
	}
}

func (p *SimulationProvider) SendRobotCommand(robotID string, cmd Command, target string) error {
	p.mu.Lock()
	r, ok := p.robots[robotID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownRobot, robotID)
	}
	if err := r.apply(cmd, target); err != nil {
		p.mu.Unlock()
		return err
	}
	snapshot := *r
	p.mu.Unlock()

	p.hub.Publish(Event{Kind: EventRobotState, Source: p.Name(), Robot: &snapshot})
	p.hub.publishLog(p.Name(), "info", "robot %s: %s %s", robotID, cmd, target)
	return nil
}

func (p *SimulationProvider) ListSensors() []SensorInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SensorInfo, 0, len(p.order))
	for _, id := range p.order {
		s := p.sensors[id]
		info := s.info
		if s.last != nil {
			last := *s.last
			info.Last = &last
		}
		out = append(out, info)
	}
	return out
}

func (p *SimulationProvider) ListRobots() []Robot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Robot, 0, len(p.robots))
	for _, id := range p.robotIDs() {
		out = append(out, *p.robots[id])
	}
	return out
}

func (p *SimulationProvider) SetThreshold(id string, warn, crit float64) error {
	if warn > 0 && crit > 0 && warn > crit {
		return fmt.Errorf("%w: threshold %s: warn %.2f above crit %.2f", ErrInvalidCommand, id, warn, crit)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sensors[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSensor, id)
	}
	s.info.Thresholds.Warn = warn
	s.info.Thresholds.Crit = crit
	return nil
}

// robotIDs returns robot ids in stable order. Caller holds p.mu.
func (p *SimulationProvider) robotIDs() []string {
	ids := make([]string, 0, len(p.robots))
	for id := range p.robots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
