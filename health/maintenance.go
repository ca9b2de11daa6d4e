package health

import (
	"fmt"
	"time"
)

type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "scheduled"
	MaintenanceInProgress MaintenanceStatus = "in_progress"
	MaintenanceCompleted  MaintenanceStatus = "completed"
	MaintenanceOverdue    MaintenanceStatus = "overdue"
	MaintenanceCancelled  MaintenanceStatus = "cancelled"
)

// ParseMaintenanceStatus validates a stored status value.
func ParseMaintenanceStatus(s string) (MaintenanceStatus, error) {
	switch st := MaintenanceStatus(s); st {
	case MaintenanceScheduled, MaintenanceInProgress, MaintenanceCompleted, MaintenanceOverdue, MaintenanceCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown maintenance status %q", s)
}

// MaintenanceRecord is one scheduled maintenance task for a post.
// CompletedDate is zero until the task is completed.
type MaintenanceRecord struct {
	ID                int64             `json:"id"`
	PostID            string            `json:"post_id"`
	Status            MaintenanceStatus `json:"status"`
	ScheduledDate     time.Time         `json:"scheduled_date"`
	CompletedDate     time.Time         `json:"completed_date,omitzero"`
	EstimatedDuration time.Duration     `json:"estimated_duration"`
}

// CompletedAt returns the completion time of a completed record.
func (r MaintenanceRecord) CompletedAt() (time.Time, bool) {
	if r.Status != MaintenanceCompleted || r.CompletedDate.IsZero() {
		return time.Time{}, false
	}
	return r.CompletedDate, true
}

// DaysOverdue returns whole days between the scheduled date and now, or 0
// when the task is not overdue.
func (r MaintenanceRecord) DaysOverdue(now time.Time) int {
	if r.Status != MaintenanceOverdue || !now.After(r.ScheduledDate) {
		return 0
	}
	return int(now.Sub(r.ScheduledDate).Hours() / 24)
}

// LatestRecord returns the record with the most recent scheduled date.
func LatestRecord(records []MaintenanceRecord) (MaintenanceRecord, bool) {
	if len(records) == 0 {
		return MaintenanceRecord{}, false
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.ScheduledDate.After(latest.ScheduledDate) {
			latest = r
		}
	}
	return latest, true
}

// lastCompleted returns the most recent completion time among records.
func lastCompleted(records []MaintenanceRecord) (time.Time, bool) {
	var last time.Time
	found := false
	for _, r := range records {
		at, ok := r.CompletedAt()
		if !ok {
			continue
		}
		if !found || at.After(last) {
			last = at
			found = true
		}
	}
	return last, found
}
