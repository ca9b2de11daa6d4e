package realtime

import (
	"math/rand"
	"sync"
	"time"

	"lineflow/sensor"
)

// SimulatorSource samples every monitored sensor type of a post.
type SimulatorSource struct {
	Sim   *sensor.Simulator
	Types []sensor.Type
}

func (s SimulatorSource) Batch(post string) []sensor.Reading {
	return s.Sim.Batch(post, s.Types...)
}

// SimulatedProduction produces plausible per-post counters when no real
// run is feeding the line.
type SimulatedProduction struct {
	mu       sync.Mutex
	rng      *rand.Rand
	produced map[string]int
	defects  map[string]int
	now      func() time.Time
}

func NewSimulatedProduction(seed int64) *SimulatedProduction {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedProduction{
		rng:      rand.New(rand.NewSource(seed)),
		produced: make(map[string]int),
		defects:  make(map[string]int),
		now:      time.Now,
	}
}

func (p *SimulatedProduction) Update(lineID, post string) ProductionUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := lineID + "/" + post
	made := 1 + p.rng.Intn(4)
	p.produced[key] += made
	if p.rng.Float64() < 0.05 {
		p.defects[key]++
	}
	return ProductionUpdate{
		PostCode:   post,
		Produced:   p.produced[key],
		Defects:    p.defects[key],
		Efficiency: round1(70 + p.rng.Float64()*30),
		At:         p.now(),
	}
}
