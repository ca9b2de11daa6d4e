package flow

import "time"

// Emitter is the interface adapters must satisfy to bridge run events to the engine.
type Emitter interface {
	EmitRunStarted(orderID, lineID string, quantity int)
	EmitPieceArrived(orderID, lineID string, piece int, post string)
	EmitStockConsumed(orderID, lineID string, piece int, post string, before, after int)
	EmitStockAlert(orderID, lineID, post string, kind ThresholdKind, stock, capacity int)
	EmitProcessingComplete(orderID, lineID string, piece int, post string, tu time.Duration)
	EmitTransit(orderID, lineID string, piece int, from, to string, d time.Duration)
	EmitPieceFinished(orderID, lineID string, piece, finished int)
	EmitOrderComplete(orderID, lineID string, finished int, cancelled bool, elapsed time.Duration)
	EmitPostFallback(orderID, lineID, post string, tu time.Duration)
}

type nopEmitter struct{}

func (nopEmitter) EmitRunStarted(string, string, int) {}
func (nopEmitter) EmitPieceArrived(string, string, int, string) {}
func (nopEmitter) EmitStockConsumed(string, string, int, string, int, int) {}
func (nopEmitter) EmitStockAlert(string, string, string, ThresholdKind, int, int) {}
func (nopEmitter) EmitProcessingComplete(string, string, int, string, time.Duration) {}
func (nopEmitter) EmitTransit(string, string, int, string, string, time.Duration) {}
func (nopEmitter) EmitPieceFinished(string, string, int, int) {}
func (nopEmitter) EmitOrderComplete(string, string, int, bool, time.Duration) {}
func (nopEmitter) EmitPostFallback(string, string, string, time.Duration) {}
