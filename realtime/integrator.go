// Package realtime composes sensor readings, production progress, health
// scores and alerts into per-line snapshots and diffs consecutive ones.
package realtime

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"lineflow/alerts"
	"lineflow/health"
	"lineflow/sensor"
)

type LogFunc func(format string, args ...any)

type SensorSource interface {
	Batch(post string) []sensor.Reading
}

type ProductionSource interface {
	Update(lineID, post string) ProductionUpdate
}

type MaintenanceSource interface {
	Records(post string) ([]health.MaintenanceRecord, error)
}

// Line identifies the posts that make up one production line.
type Line struct {
	ID    string
	Posts []string
}

type Config struct {
	Sensors             SensorSource
	Production          ProductionSource
	Maintenance         MaintenanceSource
	Alerts              *alerts.Manager
	Health              *health.Engine
	IncidentProbability float64
	Seed                int64
	LogFunc             LogFunc
}

type Integrator struct {
	cfg   Config
	logFn LogFunc
	now   func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	prev    map[string]*Snapshot
	windows map[string]*sensorWindow
}

func New(cfg Config) *Integrator {
	if cfg.Alerts == nil {
		cfg.Alerts = alerts.NewManager()
	}
	if cfg.Health == nil {
		cfg.Health = health.NewEngine(0)
	}
	if cfg.Production == nil {
		cfg.Production = NewSimulatedProduction(cfg.Seed)
	}
	logFn := cfg.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Integrator{
		cfg:     cfg,
		logFn:   logFn,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(seed)),
		prev:    make(map[string]*Snapshot),
		windows: make(map[string]*sensorWindow),
	}
}

func (in *Integrator) SetClock(now func() time.Time) { in.now = now }

func (in *Integrator) Alerts() *alerts.Manager { return in.cfg.Alerts }

// Tick builds a snapshot of line, diffs it against the previous one and
// stores it as the new previous.
func (in *Integrator) Tick(line Line) (Snapshot, Diff) {
	now := in.now()
	snap := Snapshot{
		LineID:     line.ID,
		At:         now,
		Posts:      append([]string(nil), line.Posts...),
		Readings:   make(map[string][]sensor.Reading, len(line.Posts)),
		Production: make(map[string]ProductionUpdate, len(line.Posts)),
		Health:     make(map[string]health.Score, len(line.Posts)),
	}

	for _, post := range line.Posts {
		var batch []sensor.Reading
		if in.cfg.Sensors != nil {
			batch = in.cfg.Sensors.Batch(post)
		}
		snap.Readings[post] = batch
		snap.Production[post] = in.cfg.Production.Update(line.ID, post)

		var records []health.MaintenanceRecord
		if in.cfg.Maintenance != nil {
			recs, err := in.cfg.Maintenance.Records(post)
			if err != nil {
				in.logFn("realtime: maintenance records for %s: %v", post, err)
			}
			records = recs
		}

		score := in.cfg.Health.ScoreCounts(post, records, in.remember(post, batch, now))
		snap.Health[post] = score

		ev := in.cfg.Alerts.Evaluate(alerts.Input{PostID: post, Score: score, Records: records, Readings: batch})
		snap.Alerts = append(snap.Alerts, ev.Alerts...)

		if inc, ok := in.maybeIncident(post, now); ok {
			snap.Incidents = append(snap.Incidents, inc)
		}
	}
	snap.Metrics = computeMetrics(&snap)

	in.mu.Lock()
	prev := in.prev[line.ID]
	in.prev[line.ID] = &snap
	in.mu.Unlock()
	return snap, Compare(prev, snap)
}

// Previous returns the last snapshot built for lineID.
func (in *Integrator) Previous(lineID string) (Snapshot, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	s, ok := in.prev[lineID]
	if !ok {
		return Snapshot{}, false
	}
	return *s, true
}

// remember adds batch to the post's sensor window and returns the counts
// still inside it.
func (in *Integrator) remember(post string, batch []sensor.Reading, now time.Time) health.SensorCounts {
	in.mu.Lock()
	defer in.mu.Unlock()
	w, ok := in.windows[post]
	if !ok {
		w = &sensorWindow{}
		in.windows[post] = w
	}
	w.add(batch)
	w.prune(now.Add(-health.SensorWindow))
	return w.counts()
}

// SensorCounts returns the tallied sensor window of post as of now.
func (in *Integrator) SensorCounts(post string) health.SensorCounts {
	in.mu.Lock()
	defer in.mu.Unlock()
	w, ok := in.windows[post]
	if !ok {
		return health.SensorCounts{}
	}
	w.prune(in.now().Add(-health.SensorWindow))
	return w.counts()
}

var incidentKinds = []struct {
	kind, description string
	severity          alerts.Severity
}{
	{"jam", "material jam on conveyor", alerts.SeverityHigh},
	{"tool_wear", "tool wear above tolerance", alerts.SeverityMedium},
	{"power_dip", "power dip detected", alerts.SeverityHigh},
	{"quality_drift", "dimension drift on last pieces", alerts.SeverityMedium},
	{"emergency_stop", "emergency stop pressed", alerts.SeverityCritical},
}

func (in *Integrator) maybeIncident(post string, now time.Time) (Incident, bool) {
	if in.cfg.IncidentProbability <= 0 {
		return Incident{}, false
	}
	in.mu.Lock()
	hit := in.rng.Float64() < in.cfg.IncidentProbability
	k := incidentKinds[in.rng.Intn(len(incidentKinds))]
	in.mu.Unlock()
	if !hit {
		return Incident{}, false
	}
	return Incident{
		ID:          uuid.NewString(),
		PostCode:    post,
		Kind:        k.kind,
		Description: fmt.Sprintf("%s: %s", post, k.description),
		Severity:    k.severity,
		At:          now,
	}, true
}

// Run ticks line every interval until ctx is done, handing each snapshot
// and diff to sink.
func (in *Integrator) Run(ctx context.Context, line Line, interval time.Duration, sink func(Snapshot, Diff)) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		snap, diff := in.Tick(line)
		if sink != nil {
			sink(snap, diff)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
