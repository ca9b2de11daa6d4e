package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Post struct {
	Code      string        `json:"code"`
	LineID    string        `json:"line_id"`
	Position  int           `json:"position"`
	Capacity  int           `json:"capacity"`
	Stock     int           `json:"stock"`
	TU        time.Duration `json:"tu"`
	UpdatedAt time.Time     `json:"updated_at"`
}

const postColumns = `code, line_id, position, capacity, stock, tu_ms, updated_at`

func scanPost(sc interface{ Scan(...any) error }) (*Post, error) {
	var p Post
	var tuMS int64
	var updated string
	if err := sc.Scan(&p.Code, &p.LineID, &p.Position, &p.Capacity, &p.Stock, &tuMS, &updated); err != nil {
		return nil, err
	}
	p.TU = time.Duration(tuMS) * time.Millisecond
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// UpsertPost inserts p or replaces the stored configuration of p.Code.
func (db *DB) UpsertPost(p *Post) error {
	_, err := db.Exec(db.Q(`INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET line_id = excluded.line_id, position = excluded.position,
		capacity = excluded.capacity, stock = excluded.stock, tu_ms = excluded.tu_ms, updated_at = excluded.updated_at`),
		p.Code, p.LineID, p.Position, p.Capacity, p.Stock, p.TU.Milliseconds(), db.stamp())
	return err
}

// SeedPosts inserts posts that are not stored yet and leaves existing rows alone.
func (db *DB) SeedPosts(posts []*Post) (int, error) {
	added := 0
	for _, p := range posts {
		res, err := db.Exec(db.Q(`INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (code) DO NOTHING`),
			p.Code, p.LineID, p.Position, p.Capacity, p.Stock, p.TU.Milliseconds(), db.stamp())
		if err != nil {
			return added, fmt.Errorf("seed post %s: %w", p.Code, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added++
		}
	}
	return added, nil
}

func (db *DB) GetPost(code string) (*Post, error) {
	p, err := scanPost(db.QueryRow(db.Q(`SELECT `+postColumns+` FROM posts WHERE code = ?`), code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", code, ErrNotFound)
	}
	return p, err
}

// ListPosts returns the posts of a line in route order.
func (db *DB) ListPosts(lineID string) ([]*Post, error) {
	rows, err := db.Query(db.Q(`SELECT `+postColumns+` FROM posts WHERE line_id = ? ORDER BY position, code`), lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (db *DB) UpdatePostStock(code string, stock int) error {
	res, err := db.Exec(db.Q(`UPDATE posts SET stock = ?, updated_at = ? WHERE code = ?`), stock, db.stamp(), code)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("post %s: %w", code, ErrNotFound)
	}
	return nil
}
