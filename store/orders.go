package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Order statuses.
const (
	OrderRunning   = "running"
	OrderCompleted = "completed"
	OrderCancelled = "cancelled"
	OrderFailed    = "failed"
)

type Order struct {
	ID        string    `json:"id"`
	LineID    string    `json:"line_id"`
	Quantity  int       `json:"quantity"`
	Finished  int       `json:"finished"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
}

func (db *DB) CreateOrder(o *Order) error {
	if o.StartedAt.IsZero() {
		o.StartedAt = db.now()
	}
	if o.Status == "" {
		o.Status = OrderRunning
	}
	_, err := db.Exec(db.Q(`INSERT INTO orders (id, line_id, quantity, finished, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`),
		o.ID, o.LineID, o.Quantity, o.Finished, o.Status, formatTime(o.StartedAt))
	return err
}

// FinishOrder records the outcome of an order.
func (db *DB) FinishOrder(id string, finished int, status, detail string) error {
	res, err := db.Exec(db.Q(`UPDATE orders SET finished = ?, status = ?, detail = ?, ended_at = ? WHERE id = ?`),
		finished, status, detail, db.stamp(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return nil
}

const orderColumns = `id, line_id, quantity, finished, status, detail, started_at, ended_at`

func scanOrder(sc interface{ Scan(...any) error }) (*Order, error) {
	var o Order
	var started string
	var ended sql.NullString
	if err := sc.Scan(&o.ID, &o.LineID, &o.Quantity, &o.Finished, &o.Status, &o.Detail, &started, &ended); err != nil {
		return nil, err
	}
	o.StartedAt = parseTime(started)
	if ended.Valid {
		o.EndedAt = parseTime(ended.String)
	}
	return &o, nil
}

func (db *DB) GetOrder(id string) (*Order, error) {
	o, err := scanOrder(db.QueryRow(db.Q(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o, err
}

// ListOrders returns the most recent orders first.
func (db *DB) ListOrders(limit int) ([]*Order, error) {
	rows, err := db.Query(db.Q(`SELECT `+orderColumns+` FROM orders ORDER BY started_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
