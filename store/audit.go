package store

import "time"

type AuditEntry struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

func (db *DB) AppendAudit(entityType, entityID, action, detail, actor string) error {
	_, err := db.Exec(db.Q(`INSERT INTO audit_log (entity_type, entity_id, action, detail, actor, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		entityType, entityID, action, detail, actor, db.stamp())
	return err
}

// ListAudit returns the newest entries first. An empty entityType lists all.
func (db *DB) ListAudit(entityType string, limit int) ([]*AuditEntry, error) {
	query := `SELECT id, entity_type, entity_id, action, detail, actor, created_at FROM audit_log`
	args := []any{}
	if entityType != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	return db.queryAudit(query, args...)
}

// ListAuditFor returns the trail of one entity, oldest first.
func (db *DB) ListAuditFor(entityType, entityID string) ([]*AuditEntry, error) {
	return db.queryAudit(`SELECT id, entity_type, entity_id, action, detail, actor, created_at FROM audit_log
		WHERE entity_type = ? AND entity_id = ? ORDER BY id`, entityType, entityID)
}

func (db *DB) queryAudit(query string, args ...any) ([]*AuditEntry, error) {
	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.Detail, &e.Actor, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
