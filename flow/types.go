package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidOrder  = errors.New("invalid production order")
	ErrEmptyRoute    = errors.New("route has no posts")
	ErrRunInProgress = errors.New("a run is already in progress")
	ErrUnknownPost   = errors.New("unknown post")
	ErrNegativeStock = errors.New("stock cannot be negative")
)

type LogFunc func(format string, args ...any)

// Post is one workstation of the line.
type Post struct {
	Code     string        `json:"code"`
	Position int           `json:"position"`
	Capacity int           `json:"capacity"`
	Stock    int           `json:"stock"`
	TU       time.Duration `json:"tu"`
}

// NewRoute trims and de-duplicates codes, keeping first occurrences.
func NewRoute(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

type PieceState int

const (
	PieceAwaitingDetection PieceState = iota
	PieceDetected
	PieceProcessing
	PieceTransiting
	PieceFinished
)

func (s PieceState) String() string {
	switch s {
	case PieceAwaitingDetection:
		return "awaiting_detection"
	case PieceDetected:
		return "detected"
	case PieceProcessing:
		return "processing"
	case PieceTransiting:
		return "transiting"
	case PieceFinished:
		return "finished"
	}
	panic(fmt.Sprintf("flow: unreachable piece state %d", int(s)))
}

func (s PieceState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// PieceStatus is where a piece is in its journey.
type PieceStatus struct {
	Piece int        `json:"piece"`
	State PieceState `json:"state"`
	Post  string     `json:"post"`
}

type ThresholdKind int

const (
	ThresholdLow ThresholdKind = iota
	ThresholdOut
)

func (k ThresholdKind) String() string {
	switch k {
	case ThresholdLow:
		return "low"
	case ThresholdOut:
		return "out"
	}
	panic(fmt.Sprintf("flow: unreachable threshold kind %d", int(k)))
}

func (k ThresholdKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// DetectionFunc blocks until piece has been detected at the 1-based
// postIndex of the route.
type DetectionFunc func(ctx context.Context, postIndex int, postCode string, piece int) error

// Order is one production order run through the line.
type Order struct {
	ID       string
	Quantity int
	Detect   DetectionFunc
}

type Result struct {
	OrderID   string        `json:"order_id"`
	Quantity  int           `json:"quantity"`
	Finished  int           `json:"finished"`
	Cancelled bool          `json:"cancelled"`
	Elapsed   time.Duration `json:"elapsed"`
}
