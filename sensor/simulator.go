package sensor

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	noiseRatio          = 0.02
	snapBackProbability = 0.10
	anomalyProbability  = 0.01
)

type key struct {
	post string
	typ  Type
}

// Simulator produces plausible readings as a bounded random walk around
// the last value of each (post, type) pair.
type Simulator struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last map[key]float64
	now  func() time.Time
}

// NewSimulator returns a simulator seeded with seed. A zero seed uses the clock.
func NewSimulator(seed int64) *Simulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		rng:  rand.New(rand.NewSource(seed)),
		last: make(map[key]float64),
		now:  time.Now,
	}
}

// SetClock overrides the timestamp source.
func (s *Simulator) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// gaussian draws a standard normal sample with the Box-Muller transform.
func (s *Simulator) gaussian() float64 {
	u1 := s.rng.Float64()
	for u1 == 0 {
		u1 = s.rng.Float64()
	}
	u2 := s.rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Next returns the next reading for the pair.
func (s *Simulator) Next(post string, typ Type, th Thresholds) Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{post, typ}
	prev, ok := s.last[k]
	if !ok {
		prev = th.Normal
	}

	value := prev + s.gaussian()*noiseRatio*th.Range()
	switch p := s.rng.Float64(); {
	case p < anomalyProbability:
		value = th.Max + th.Range()*(0.15+s.rng.Float64()*0.25)
	case p < anomalyProbability+snapBackProbability:
		value = th.Normal
	}
	s.last[k] = value

	return s.reading(post, typ, th, value, Classify(value, th))
}

// InjectAnomaly forces an out-of-band value for alert pipeline testing.
// The reading is always tagged Emergency; the random walk is not disturbed.
func (s *Simulator) InjectAnomaly(post string, typ Type, th Thresholds) Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	value := th.Max + th.Range()*(0.35+s.rng.Float64()*0.25)
	return s.reading(post, typ, th, value, LevelEmergency)
}

// Batch returns one fresh reading per type for post, using default thresholds.
func (s *Simulator) Batch(post string, types ...Type) []Reading {
	if len(types) == 0 {
		types = MonitoredTypes
	}
	out := make([]Reading, 0, len(types))
	for _, typ := range types {
		out = append(out, s.Next(post, typ, DefaultThresholds[typ]))
	}
	return out
}

// Last returns the remembered value of a pair.
func (s *Simulator) Last(post string, typ Type) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.last[key{post, typ}]
	return v, ok
}

// Float64 exposes the simulator's random source to sibling simulations.
func (s *Simulator) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Simulator) reading(post string, typ Type, th Thresholds, value float64, level Level) Reading {
	return Reading{
		SensorID:  SensorID(post, typ),
		PostCode:  post,
		Type:      typ,
		Value:     value,
		Unit:      th.Unit,
		Min:       th.Min,
		Max:       th.Max,
		Level:     level,
		Timestamp: s.now(),
	}
}
