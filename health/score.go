// Package health scores post equipment condition from maintenance history
// and recent sensor readings.
package health

import (
	"fmt"
	"math"
	"time"

	"lineflow/sensor"
)

const (
	weightRecency    = 0.40
	weightCompletion = 0.35
	weightSensor     = 0.25

	neutralCompletion = 50.0
	neutralSensor     = 75.0

	DefaultOptimalInterval = 14 * 24 * time.Hour
	SensorWindow           = 7 * 24 * time.Hour
)

type Band int

const (
	BandGood Band = iota
	BandWarning
	BandScheduled
	BandCritical
)

// BandFor maps a score to its status band.
func BandFor(score float64) Band {
	switch {
	case score >= 85:
		return BandGood
	case score >= 70:
		return BandWarning
	case score >= 50:
		return BandScheduled
	}
	return BandCritical
}

func (b Band) String() string {
	switch b {
	case BandGood:
		return "good"
	case BandWarning:
		return "warning"
	case BandScheduled:
		return "scheduled"
	case BandCritical:
		return "critical"
	}
	panic(fmt.Sprintf("health: unreachable band %d", int(b)))
}

func (b Band) Color() string {
	switch b {
	case BandGood:
		return "green"
	case BandWarning:
		return "yellow"
	case BandScheduled:
		return "orange"
	case BandCritical:
		return "red"
	}
	panic(fmt.Sprintf("health: unreachable band %d", int(b)))
}

func (b Band) Icon() string {
	switch b {
	case BandGood:
		return "check-circle"
	case BandWarning:
		return "alert-triangle"
	case BandScheduled:
		return "calendar"
	case BandCritical:
		return "x-octagon"
	}
	panic(fmt.Sprintf("health: unreachable band %d", int(b)))
}

func (b Band) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

type Score struct {
	PostID     string    `json:"post_id"`
	Value      float64   `json:"value"`
	Recency    float64   `json:"recency"`
	Completion float64   `json:"completion"`
	Sensor     float64   `json:"sensor"`
	Band       Band      `json:"band"`
	Color      string    `json:"color"`
	Icon       string    `json:"icon"`
	ComputedAt time.Time `json:"computed_at"`
}

// Engine computes health scores. The zero value is not usable; use NewEngine.
type Engine struct {
	optimal time.Duration
	now     func() time.Time
}

// NewEngine returns an engine using the given optimal maintenance
// interval, or the 14 day default when it is not positive.
func NewEngine(optimal time.Duration) *Engine {
	if optimal <= 0 {
		optimal = DefaultOptimalInterval
	}
	return &Engine{optimal: optimal, now: time.Now}
}

func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) OptimalInterval() time.Duration { return e.optimal }

func (e *Engine) Score(postID string, records []MaintenanceRecord, readings []sensor.Reading) Score {
	return e.ScoreCounts(postID, records, CountReadings(readings, e.now().Add(-SensorWindow)))
}

// ScoreCounts scores a post whose sensor window is already tallied.
func (e *Engine) ScoreCounts(postID string, records []MaintenanceRecord, counts SensorCounts) Score {
	now := e.now()
	s := Score{
		PostID:     postID,
		Recency:    e.recency(records, now),
		Completion: completion(records),
		Sensor:     sensorScore(counts),
		ComputedAt: now,
	}
	s.Value = clamp(weightRecency*s.Recency + weightCompletion*s.Completion + weightSensor*s.Sensor)
	s.Band = BandFor(s.Value)
	s.Color = s.Band.Color()
	s.Icon = s.Band.Icon()
	return s
}

// SensorCounts tallies readings by level. Emergency counts as Critical.
type SensorCounts struct {
	Total    int `json:"total"`
	Info     int `json:"info"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

func (c *SensorCounts) Add(level sensor.Level) {
	c.Total++
	switch level {
	case sensor.LevelCritical, sensor.LevelEmergency:
		c.Critical++
	case sensor.LevelWarning:
		c.Warning++
	case sensor.LevelInfo:
		c.Info++
	}
}

func (c *SensorCounts) Merge(o SensorCounts) {
	c.Total += o.Total
	c.Info += o.Info
	c.Warning += o.Warning
	c.Critical += o.Critical
}

// CountReadings tallies the readings taken at or after since.
func CountReadings(readings []sensor.Reading, since time.Time) SensorCounts {
	var c SensorCounts
	for _, r := range sensor.Within(readings, since) {
		c.Add(r.Level)
	}
	return c
}

// recency decays linearly from 100 at the last completed maintenance to 0
// at twice the optimal interval.
func (e *Engine) recency(records []MaintenanceRecord, now time.Time) float64 {
	last, ok := lastCompleted(records)
	if !ok {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed < 0 {
		elapsed = 0
	}
	return clamp(100 * (1 - float64(elapsed)/float64(2*e.optimal)))
}

func completion(records []MaintenanceRecord) float64 {
	if len(records) == 0 {
		return neutralCompletion
	}
	var done, overdue int
	for _, r := range records {
		switch r.Status {
		case MaintenanceCompleted:
			done++
		case MaintenanceOverdue:
			overdue++
		}
	}
	v := float64(done)/float64(len(records))*100 - 10*float64(overdue)
	return math.Max(0, v)
}

func sensorScore(c SensorCounts) float64 {
	if c.Total == 0 {
		return neutralSensor
	}
	v := 100 - float64(15*c.Critical+5*c.Warning+c.Info)
	return math.Max(0, v)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
