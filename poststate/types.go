package poststate

import "time"

// PostState is the live view of a post: configuration plus current stock.
type PostState struct {
	Code      string        `json:"code"`
	LineID    string        `json:"line_id"`
	Position  int           `json:"position"`
	Capacity  int           `json:"capacity"`
	Stock     int           `json:"stock"`
	TU        time.Duration `json:"tu"`
	UpdatedAt time.Time     `json:"updated_at"`
}
