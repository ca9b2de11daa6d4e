// Package alerts turns health scores, maintenance schedules and sensor
// readings into a prioritized, de-duplicated maintenance alert list.
package alerts

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lineflow/health"
	"lineflow/sensor"
)

var (
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidTransition = errors.New("invalid alert transition")
)

type Type string

const (
	TypeHealthCritical     Type = "health_critical"
	TypeHealthDegraded     Type = "health_degraded"
	TypeHealthWarning      Type = "health_warning"
	TypeMaintenanceOverdue Type = "maintenance_overdue"
	TypeSensorCritical     Type = "sensor_critical"
)

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	panic(fmt.Sprintf("alerts: unreachable severity %d", int(s)))
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseSeverity accepts the String form of a severity.
func ParseSeverity(v string) (Severity, error) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		if s.String() == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", v)
}

type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

func (s Status) open() bool { return s == StatusActive || s == StatusAcknowledged }

type Alert struct {
	ID             string      `json:"id"`
	PostID         string      `json:"post_id"`
	Type           Type        `json:"type"`
	Severity       Severity    `json:"severity"`
	Title          string      `json:"title"`
	Message        string      `json:"message"`
	RequiredAction string      `json:"required_action"`
	DueDate        time.Time   `json:"due_date"`
	Status         Status      `json:"status"`
	Band           health.Band `json:"band"`
	CreatedAt      time.Time   `json:"created_at"`
	AcknowledgedAt time.Time   `json:"acknowledged_at,omitzero"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty"`
	ResolvedAt     time.Time   `json:"resolved_at,omitzero"`
}

type key struct {
	post string
	typ  Type
	band health.Band
}

func (a *Alert) key() key { return key{a.PostID, a.Type, a.Band} }

// Input is everything known about one post at evaluation time.
type Input struct {
	PostID   string
	Score    health.Score
	Records  []health.MaintenanceRecord
	Readings []sensor.Reading
}

// Evaluation lists the open alerts matching the conditions found for a
// post; Created is the subset that did not exist before.
type Evaluation struct {
	Alerts  []Alert
	Created []Alert
}

// Manager owns the alert list of one process or test fixture.
type Manager struct {
	mu     sync.Mutex
	alerts []*Alert
	byID   map[string]*Alert
	now    func() time.Time
	newID  func() string
}

func NewManager() *Manager {
	return &Manager{
		byID:  make(map[string]*Alert),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Evaluate derives the alerts for one post and records the new ones.
func (m *Manager) Evaluate(in Input) Evaluation {
	now := m.now()
	band := in.Score.Band
	var candidates []Alert

	switch {
	case in.Score.Value < 50:
		candidates = append(candidates, Alert{
			Type:           TypeHealthCritical,
			Severity:       SeverityCritical,
			Title:          "Immediate maintenance required",
			Message:        fmt.Sprintf("Health score of %s is %.1f", in.PostID, in.Score.Value),
			RequiredAction: "Stop and service the equipment immediately",
			DueDate:        now.Add(4 * time.Hour),
		})
	case in.Score.Value < 70:
		candidates = append(candidates, Alert{
			Type:           TypeHealthDegraded,
			Severity:       SeverityHigh,
			Title:          "Plan maintenance within 48h",
			Message:        fmt.Sprintf("Health score of %s is %.1f", in.PostID, in.Score.Value),
			RequiredAction: "Schedule preventive maintenance within 48 hours",
			DueDate:        now.Add(48 * time.Hour),
		})
	case in.Score.Value < 85:
		candidates = append(candidates, Alert{
			Type:           TypeHealthWarning,
			Severity:       SeverityMedium,
			Title:          "Inspect within 7 days",
			Message:        fmt.Sprintf("Health score of %s is %.1f", in.PostID, in.Score.Value),
			RequiredAction: "Inspect the equipment within 7 days",
			DueDate:        now.Add(7 * 24 * time.Hour),
		})
	}

	if latest, ok := health.LatestRecord(in.Records); ok && latest.Status == health.MaintenanceOverdue {
		days := latest.DaysOverdue(now)
		candidates = append(candidates, Alert{
			Type:           TypeMaintenanceOverdue,
			Severity:       SeverityCritical,
			Title:          "Maintenance overdue",
			Message:        fmt.Sprintf("Maintenance of %s is %d days overdue", in.PostID, days),
			RequiredAction: "Carry out the overdue maintenance",
			DueDate:        now,
		})
	}

	for _, r := range sensor.Within(in.Readings, now.Add(-24*time.Hour)) {
		if !r.Level.AtLeastCritical() {
			continue
		}
		candidates = append(candidates, Alert{
			Type:           TypeSensorCritical,
			Severity:       SeverityCritical,
			Title:          "Critical sensor reading",
			Message:        fmt.Sprintf("%s %s reading %.2f%s outside [%.2f, %.2f]", r.SensorID, r.Type, r.Value, r.Unit, r.Min, r.Max),
			RequiredAction: "Check the sensor and the monitored equipment",
			DueDate:        now.Add(time.Hour),
		})
		break
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var ev Evaluation
	for _, c := range candidates {
		c.PostID = in.PostID
		c.Band = band
		if existing := m.findOpen(c.key()); existing != nil {
			ev.Alerts = append(ev.Alerts, *existing)
			continue
		}
		c.ID = m.newID()
		c.Status = StatusActive
		c.CreatedAt = now
		a := c
		m.alerts = append(m.alerts, &a)
		m.byID[a.ID] = &a
		ev.Alerts = append(ev.Alerts, a)
		ev.Created = append(ev.Created, a)
	}
	return ev
}

// findOpen returns the open alert with key k. Caller holds m.mu.
func (m *Manager) findOpen(k key) *Alert {
	for _, a := range m.alerts {
		if a.Status.open() && a.key() == k {
			return a
		}
	}
	return nil
}

// Acknowledge moves an active alert to Acknowledged.
func (m *Manager) Acknowledge(id, by string) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	if a.Status != StatusActive {
		return Alert{}, fmt.Errorf("%w: acknowledge %s alert", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusAcknowledged
	a.AcknowledgedAt = m.now()
	a.AcknowledgedBy = by
	return *a, nil
}

// Resolve closes an active or acknowledged alert.
func (m *Manager) Resolve(id string) (Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	if !a.Status.open() {
		return Alert{}, fmt.Errorf("%w: resolve %s alert", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusResolved
	a.ResolvedAt = m.now()
	return *a, nil
}

func (m *Manager) Get(id string) (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// CountsBySeverity counts open alerts per severity.
func (m *Manager) CountsBySeverity() map[Severity]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Severity]int)
	for _, a := range m.alerts {
		if a.Status.open() {
			out[a.Severity]++
		}
	}
	return out
}

// Filter selects alerts; zero fields match everything.
type Filter struct {
	PostID   string
	Severity *Severity
	Status   Status
}

func (f Filter) match(a *Alert) bool {
	if f.PostID != "" && a.PostID != f.PostID {
		return false
	}
	if f.Severity != nil && a.Severity != *f.Severity {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

// Filter returns matching alerts, most severe first, then oldest first.
func (m *Manager) Filter(f Filter) []Alert {
	m.mu.Lock()
	var out []Alert
	for _, a := range m.alerts {
		if f.match(a) {
			out = append(out, *a)
		}
	}
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) Active() []Alert {
	return m.Filter(Filter{Status: StatusActive})
}

func (m *Manager) All() []Alert {
	return m.Filter(Filter{})
}
