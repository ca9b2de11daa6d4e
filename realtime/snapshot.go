package realtime

import (
	"fmt"
	"math"
	"time"

	"lineflow/alerts"
	"lineflow/health"
	"lineflow/sensor"
)

type LineStatus int

const (
	LineExcellent LineStatus = iota
	LineGood
	LineWarning
	LineCritical
)

// StatusFor maps an average health score to a line status.
func StatusFor(avgHealth float64) LineStatus {
	switch {
	case avgHealth >= 85:
		return LineExcellent
	case avgHealth >= 70:
		return LineGood
	case avgHealth >= 50:
		return LineWarning
	}
	return LineCritical
}

func (s LineStatus) String() string {
	switch s {
	case LineExcellent:
		return "excellent"
	case LineGood:
		return "good"
	case LineWarning:
		return "warning"
	case LineCritical:
		return "critical"
	}
	panic(fmt.Sprintf("realtime: unreachable line status %d", int(s)))
}

func (s LineStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ProductionUpdate is the production state of one post at one tick.
// Efficiency is a percentage.
type ProductionUpdate struct {
	PostCode   string    `json:"post_code"`
	Produced   int       `json:"produced"`
	Defects    int       `json:"defects"`
	Efficiency float64   `json:"efficiency"`
	Stock      int       `json:"stock"`
	At         time.Time `json:"at"`
}

type Incident struct {
	ID          string          `json:"id"`
	PostCode    string          `json:"post_code"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Severity    alerts.Severity `json:"severity"`
	At          time.Time       `json:"at"`
}

type LineMetrics struct {
	AvgHealth      float64    `json:"avg_health"`
	AvgEfficiency  float64    `json:"avg_efficiency"`
	TotalProduced  int        `json:"total_produced"`
	TotalDefects   int        `json:"total_defects"`
	QualityRate    float64    `json:"quality_rate"`
	CriticalAlerts int        `json:"critical_alerts"`
	Status         LineStatus `json:"status"`
}

// Snapshot is the state of one line at one instant. It is not modified
// after Tick returns it.
type Snapshot struct {
	LineID     string                      `json:"line_id"`
	At         time.Time                   `json:"at"`
	Posts      []string                    `json:"posts"`
	Readings   map[string][]sensor.Reading `json:"readings"`
	Production map[string]ProductionUpdate `json:"production"`
	Health     map[string]health.Score     `json:"health"`
	Alerts     []alerts.Alert              `json:"alerts"`
	Incidents  []Incident                  `json:"incidents"`
	Metrics    LineMetrics                 `json:"metrics"`
}

func computeMetrics(s *Snapshot) LineMetrics {
	var m LineMetrics
	if len(s.Posts) == 0 {
		m.QualityRate = 100
		m.Status = LineCritical
		return m
	}
	var healthSum, effSum float64
	for _, post := range s.Posts {
		healthSum += s.Health[post].Value
		p := s.Production[post]
		effSum += p.Efficiency
		m.TotalProduced += p.Produced
		m.TotalDefects += p.Defects
	}
	n := float64(len(s.Posts))
	m.AvgHealth = round1(healthSum / n)
	m.AvgEfficiency = round1(effSum / n)
	m.QualityRate = 100
	if m.TotalProduced > 0 {
		m.QualityRate = round1(float64(m.TotalProduced-m.TotalDefects) / float64(m.TotalProduced) * 100)
	}
	for _, a := range s.Alerts {
		if a.Severity == alerts.SeverityCritical {
			m.CriticalAlerts++
		}
	}
	m.Status = StatusFor(m.AvgHealth)
	return m
}

type HealthChange struct {
	PostCode string  `json:"post_code"`
	Previous float64 `json:"previous"`
	Current  float64 `json:"current"`
}

type ProductionChange struct {
	PostCode           string  `json:"post_code"`
	PreviousEfficiency float64 `json:"previous_efficiency"`
	CurrentEfficiency  float64 `json:"current_efficiency"`
}

// Diff lists what changed between two snapshots of a line.
type Diff struct {
	LineID            string             `json:"line_id"`
	At                time.Time          `json:"at"`
	HealthChanges     []HealthChange     `json:"health_changes"`
	NewAlerts         []alerts.Alert     `json:"new_alerts"`
	ProductionChanges []ProductionChange `json:"production_changes"`
	IncidentDelta     int                `json:"incident_delta"`
	HasChanges        bool               `json:"has_changes"`
}

// Compare diffs cur against prev. A nil prev treats everything in cur as new.
func Compare(prev *Snapshot, cur Snapshot) Diff {
	d := Diff{LineID: cur.LineID, At: cur.At}
	if prev == nil {
		prev = &Snapshot{}
	}

	for _, post := range cur.Posts {
		now, ok := cur.Health[post]
		if !ok {
			continue
		}
		before, had := prev.Health[post]
		if !had || math.Abs(now.Value-before.Value) >= 1 {
			d.HealthChanges = append(d.HealthChanges, HealthChange{PostCode: post, Previous: before.Value, Current: now.Value})
		}
	}

	type alertKey struct{ post, title string }
	seen := make(map[alertKey]bool, len(prev.Alerts))
	for _, a := range prev.Alerts {
		seen[alertKey{a.PostID, a.Title}] = true
	}
	for _, a := range cur.Alerts {
		if !seen[alertKey{a.PostID, a.Title}] {
			d.NewAlerts = append(d.NewAlerts, a)
		}
	}

	for _, post := range cur.Posts {
		now, ok := cur.Production[post]
		if !ok {
			continue
		}
		before, had := prev.Production[post]
		if !had || math.Abs(now.Efficiency-before.Efficiency) >= 5 {
			d.ProductionChanges = append(d.ProductionChanges, ProductionChange{
				PostCode:           post,
				PreviousEfficiency: before.Efficiency,
				CurrentEfficiency:  now.Efficiency,
			})
		}
	}

	d.IncidentDelta = len(cur.Incidents) - len(prev.Incidents)
	d.HasChanges = len(d.HealthChanges) > 0 || len(d.NewAlerts) > 0 || len(d.ProductionChanges) > 0 || d.IncidentDelta != 0
	return d
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
