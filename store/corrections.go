package store

import "time"

// StockCorrection records a manual change of a post's stock.
type StockCorrection struct {
	ID        int64     `json:"id"`
	PostCode  string    `json:"post_code"`
	Before    int       `json:"before"`
	After     int       `json:"after"`
	Reason    string    `json:"reason"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

func (db *DB) CreateCorrection(c *StockCorrection) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = db.now()
	}
	id, err := db.insertID(`INSERT INTO stock_corrections (post_code, before_qty, after_qty, reason, actor, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.PostCode, c.Before, c.After, c.Reason, c.Actor, formatTime(c.CreatedAt))
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func (db *DB) ListCorrections(limit int) ([]*StockCorrection, error) {
	rows, err := db.Query(db.Q(`SELECT id, post_code, before_qty, after_qty, reason, actor, created_at FROM stock_corrections ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var corrections []*StockCorrection
	for rows.Next() {
		var c StockCorrection
		var createdAt string
		if err := rows.Scan(&c.ID, &c.PostCode, &c.Before, &c.After, &c.Reason, &c.Actor, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		corrections = append(corrections, &c)
	}
	return corrections, rows.Err()
}
