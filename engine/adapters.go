package engine

import (
	"time"

	"lineflow/flow"
	"lineflow/health"
	"lineflow/iot"
	"lineflow/realtime"
	"lineflow/sensor"
	"lineflow/store"
)

// flowEmitter bridges the flow package's emitter interface to the EventBus.
type flowEmitter struct {
	bus *EventBus
}

func (e *flowEmitter) EmitRunStarted(orderID, lineID string, quantity int) {
	e.bus.Emit(Event{Type: EventRunStarted, Payload: RunStartedEvent{
		OrderID:  orderID,
		LineID:   lineID,
		Quantity: quantity,
	}})
}

func (e *flowEmitter) EmitPieceArrived(orderID, lineID string, piece int, post string) {
	e.bus.Emit(Event{Type: EventPieceArrived, Payload: PieceArrivedEvent{
		OrderID: orderID,
		LineID:  lineID,
		Piece:   piece,
		Post:    post,
	}})
}

func (e *flowEmitter) EmitStockConsumed(orderID, lineID string, piece int, post string, before, after int) {
	e.bus.Emit(Event{Type: EventStockConsumed, Payload: StockConsumedEvent{
		OrderID: orderID,
		LineID:  lineID,
		Piece:   piece,
		Post:    post,
		Before:  before,
		After:   after,
	}})
}

func (e *flowEmitter) EmitStockAlert(orderID, lineID, post string, kind flow.ThresholdKind, stock, capacity int) {
	e.bus.Emit(Event{Type: EventStockAlert, Payload: StockAlertEvent{
		OrderID:  orderID,
		LineID:   lineID,
		Post:     post,
		Kind:     kind,
		Stock:    stock,
		Capacity: capacity,
	}})
}

func (e *flowEmitter) EmitProcessingComplete(orderID, lineID string, piece int, post string, tu time.Duration) {
	e.bus.Emit(Event{Type: EventProcessingComplete, Payload: ProcessingCompleteEvent{
		OrderID: orderID,
		LineID:  lineID,
		Piece:   piece,
		Post:    post,
		TU:      tu,
	}})
}

func (e *flowEmitter) EmitTransit(orderID, lineID string, piece int, from, to string, d time.Duration) {
	e.bus.Emit(Event{Type: EventTransit, Payload: TransitEvent{
		OrderID:  orderID,
		LineID:   lineID,
		Piece:    piece,
		From:     from,
		To:       to,
		Duration: d,
	}})
}

func (e *flowEmitter) EmitPieceFinished(orderID, lineID string, piece, finished int) {
	e.bus.Emit(Event{Type: EventPieceFinished, Payload: PieceFinishedEvent{
		OrderID:  orderID,
		LineID:   lineID,
		Piece:    piece,
		Finished: finished,
	}})
}

func (e *flowEmitter) EmitOrderComplete(orderID, lineID string, finished int, cancelled bool, elapsed time.Duration) {
	e.bus.Emit(Event{Type: EventOrderComplete, Payload: OrderCompleteEvent{
		OrderID:   orderID,
		LineID:    lineID,
		Finished:  finished,
		Cancelled: cancelled,
		Elapsed:   elapsed,
	}})
}

func (e *flowEmitter) EmitPostFallback(orderID, lineID, post string, tu time.Duration) {
	e.bus.Emit(Event{Type: EventPostFallback, Payload: PostFallbackEvent{
		OrderID: orderID,
		LineID:  lineID,
		Post:    post,
		TU:      tu,
	}})
}

// providerSensors reads every sensor a provider knows for a post.
type providerSensors struct {
	provider iot.Provider
}

func (s *providerSensors) Batch(post string) []sensor.Reading {
	var out []sensor.Reading
	for _, info := range s.provider.ListSensors() {
		if info.PostCode != post {
			continue
		}
		if r, ok := s.provider.ReadSensor(info.ID); ok {
			out = append(out, r)
		}
	}
	return out
}

// lineProduction reports real per-post progress once the orchestrator has
// processed pieces, and simulated counters before that.
type lineProduction struct {
	orch *flow.Orchestrator
	sim  *realtime.SimulatedProduction
}

func (p *lineProduction) Update(lineID, post string) realtime.ProductionUpdate {
	u := p.sim.Update(lineID, post)
	if processed := p.orch.Processed(post); processed > 0 {
		u.Produced = processed
		u.Defects = min(u.Defects, processed)
	}
	if stock, ok := p.orch.Stock(post); ok {
		u.Stock = stock
	}
	return u
}

// storeMaintenance serves maintenance history from the database.
type storeMaintenance struct {
	db *store.DB
}

func (m *storeMaintenance) Records(post string) ([]health.MaintenanceRecord, error) {
	return m.db.ListMaintenance(post)
}
