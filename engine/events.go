package engine

import (
	"time"

	"lineflow/alerts"
	"lineflow/flow"
	"lineflow/iot"
	"lineflow/realtime"
	"lineflow/sensor"
)

const (
	EventRunStarted EventType = iota + 1
	EventPieceArrived
	EventStockConsumed
	EventStockAlert
	EventProcessingComplete
	EventTransit
	EventPieceFinished
	EventOrderComplete
	EventPostFallback
	EventOrderFinished
	EventStockCorrected
	EventMaterialRequested
	EventAlertRaised
	EventAlertChanged
	EventSnapshot
	EventSensorReading
	EventCriticalAlert
	EventRobotState
	EventProviderConnected
	EventProviderDisconnected
	EventMessagingConnected
	EventMessagingDisconnected
)

// --- Event payloads ---

type RunStartedEvent struct {
	OrderID  string `json:"order_id"`
	LineID   string `json:"line_id"`
	Quantity int    `json:"quantity"`
}

type PieceArrivedEvent struct {
	OrderID string
	LineID  string
	Piece   int
	Post    string
}

type StockConsumedEvent struct {
	OrderID string
	LineID  string
	Piece   int
	Post    string
	Before  int
	After   int
}

type StockAlertEvent struct {
	OrderID  string             `json:"order_id"`
	LineID   string             `json:"line_id"`
	Post     string             `json:"post"`
	Kind     flow.ThresholdKind `json:"kind"`
	Stock    int                `json:"stock"`
	Capacity int                `json:"capacity"`
}

type ProcessingCompleteEvent struct {
	OrderID string
	LineID  string
	Piece   int
	Post    string
	TU      time.Duration
}

type TransitEvent struct {
	OrderID  string
	LineID   string
	Piece    int
	From     string
	To       string
	Duration time.Duration
}

type PieceFinishedEvent struct {
	OrderID  string
	LineID   string
	Piece    int
	Finished int
}

type OrderCompleteEvent struct {
	OrderID   string
	LineID    string
	Finished  int
	Cancelled bool
	Elapsed   time.Duration
}

type PostFallbackEvent struct {
	OrderID string
	LineID  string
	Post    string
	TU      time.Duration
}

// OrderFinishedEvent is emitted once the engine has recorded an order's
// outcome. Status is one of the store order statuses.
type OrderFinishedEvent struct {
	OrderID  string `json:"order_id"`
	LineID   string `json:"line_id"`
	Quantity int    `json:"quantity"`
	Finished int    `json:"finished"`
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
}

type StockCorrectedEvent struct {
	CorrectionID int64  `json:"correction_id"`
	Post         string `json:"post"`
	Before       int    `json:"before"`
	After        int    `json:"after"`
	Reason       string `json:"reason"`
	Actor        string `json:"actor"`
}

type MaterialRequestedEvent struct {
	Post      string
	PostIndex int
	Kind      flow.ThresholdKind
	Sent      bool
	Detail    string
}

type AlertRaisedEvent struct {
	Alert alerts.Alert
}

type AlertChangedEvent struct {
	Alert  alerts.Alert
	Action string // "acknowledged", "resolved"
	Actor  string
}

type SnapshotEvent struct {
	Snapshot realtime.Snapshot
	Diff     realtime.Diff
}

type SensorReadingEvent struct {
	Source  string
	Reading sensor.Reading
}

type CriticalAlertEvent struct {
	Source string
	Alert  iot.CriticalAlert
}

type RobotStateEvent struct {
	Source string
	Robot  iot.Robot
}

type ConnectionEvent struct {
	Detail string
}
