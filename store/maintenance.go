package store

import (
	"database/sql"
	"fmt"
	"time"

	"lineflow/health"
)

func (db *DB) CreateMaintenance(rec *health.MaintenanceRecord) error {
	id, err := db.insertID(`INSERT INTO maintenance_schedules (post_code, status, scheduled_date, completed_date, estimated_minutes) VALUES (?, ?, ?, ?, ?)`,
		rec.PostID, string(rec.Status), formatTime(rec.ScheduledDate), nullTime(rec.CompletedDate), int64(rec.EstimatedDuration/time.Minute))
	if err != nil {
		return fmt.Errorf("create maintenance for %s: %w", rec.PostID, err)
	}
	rec.ID = id
	return nil
}

// ListMaintenance returns the maintenance history of a post, oldest first.
func (db *DB) ListMaintenance(postCode string) ([]health.MaintenanceRecord, error) {
	rows, err := db.Query(db.Q(`SELECT id, post_code, status, scheduled_date, completed_date, estimated_minutes
		FROM maintenance_schedules WHERE post_code = ? ORDER BY scheduled_date, id`), postCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []health.MaintenanceRecord
	for rows.Next() {
		var r health.MaintenanceRecord
		var status, scheduled string
		var completed sql.NullString
		var minutes int64
		if err := rows.Scan(&r.ID, &r.PostID, &status, &scheduled, &completed, &minutes); err != nil {
			return nil, err
		}
		st, err := health.ParseMaintenanceStatus(status)
		if err != nil {
			return nil, fmt.Errorf("maintenance %d: %w", r.ID, err)
		}
		r.Status = st
		r.ScheduledDate = parseTime(scheduled)
		if completed.Valid {
			r.CompletedDate = parseTime(completed.String)
		}
		r.EstimatedDuration = time.Duration(minutes) * time.Minute
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompleteMaintenance marks a task completed at the given time.
func (db *DB) CompleteMaintenance(id int64, at time.Time) error {
	return db.setMaintenance(id, health.MaintenanceCompleted, at)
}

func (db *DB) UpdateMaintenanceStatus(id int64, status health.MaintenanceStatus) error {
	return db.setMaintenance(id, status, time.Time{})
}

func (db *DB) setMaintenance(id int64, status health.MaintenanceStatus, completed time.Time) error {
	res, err := db.Exec(db.Q(`UPDATE maintenance_schedules SET status = ?, completed_date = ? WHERE id = ?`),
		string(status), nullTime(completed), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("maintenance %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkOverdue flags scheduled tasks whose date has passed and returns how many changed.
func (db *DB) MarkOverdue(now time.Time) (int64, error) {
	res, err := db.Exec(db.Q(`UPDATE maintenance_schedules SET status = ? WHERE status = ? AND scheduled_date < ?`),
		string(health.MaintenanceOverdue), string(health.MaintenanceScheduled), formatTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
