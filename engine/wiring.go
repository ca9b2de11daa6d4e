package engine

import (
	"errors"
	"fmt"

	"lineflow/alerts"
	"lineflow/flow"
	"lineflow/iot"
	"lineflow/messaging"
	"lineflow/protocol"
)

func (e *Engine) wireEventHandlers() {
	lineID := e.cfg.Line.ID

	// Run start: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(RunStartedEvent)
		e.db.AppendAudit("order", ev.OrderID, "started", fmt.Sprintf("quantity=%d", ev.Quantity), "system")
		e.publish(messaging.KindOrder, ev)
	}, EventRunStarted)

	// Every consumed unit is written through to the post state.
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StockConsumedEvent)
		e.persistStock(ev.Post, ev.After)
	}, EventStockConsumed)

	// Stock thresholds: metrics, audit, AGV material request, publish
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StockAlertEvent)
		e.logFn("engine: post %s stock %s (%d/%d)", ev.Post, ev.Kind, ev.Stock, ev.Capacity)
		e.metrics.StockAlert(lineID, ev.Post, ev.Kind.String())
		e.db.AppendAudit("post", ev.Post, "stock_"+ev.Kind.String(), fmt.Sprintf("%d/%d order=%s", ev.Stock, ev.Capacity, ev.OrderID), "system")
		e.requestMaterial(ev)
		e.publish(messaging.KindStock, ev)
	}, EventStockAlert)

	// Piece progress: metrics, debug log
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(PieceFinishedEvent)
		e.metrics.PieceFinished(lineID)
		if e.debug {
			e.logFn("engine: order %s piece %d finished (%d done)", ev.OrderID, ev.Piece, ev.Finished)
		}
	}, EventPieceFinished)

	if e.debug {
		e.Events.SubscribeTypes(func(evt Event) {
			switch ev := evt.Payload.(type) {
			case PieceArrivedEvent:
				e.logFn("engine: order %s piece %d arrived at %s", ev.OrderID, ev.Piece, ev.Post)
			case ProcessingCompleteEvent:
				e.logFn("engine: order %s piece %d processed at %s in %s", ev.OrderID, ev.Piece, ev.Post, ev.TU)
			case TransitEvent:
				e.logFn("engine: order %s piece %d moving %s -> %s", ev.OrderID, ev.Piece, ev.From, ev.To)
			}
		}, EventPieceArrived, EventProcessingComplete, EventTransit)
	}

	// Fallback TU: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(PostFallbackEvent)
		e.db.AppendAudit("post", ev.Post, "fallback_tu", fmt.Sprintf("tu=%s order=%s", ev.TU, ev.OrderID), "system")
	}, EventPostFallback)

	// Order outcome: audit, metrics, publish, archive
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderFinishedEvent)
		e.logFn("engine: order %s %s (%d/%d)", ev.OrderID, ev.Status, ev.Finished, ev.Quantity)
		e.db.AppendAudit("order", ev.OrderID, ev.Status, fmt.Sprintf("finished=%d/%d %s", ev.Finished, ev.Quantity, ev.Detail), "system")
		e.metrics.OrderDone(lineID, ev.Status)
		e.publish(messaging.KindOrder, ev)
		e.archiveOrder(ev.OrderID)
	}, EventOrderFinished)

	// Corrections: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StockCorrectedEvent)
		e.db.AppendAudit("post", ev.Post, "stock_corrected", fmt.Sprintf("%d -> %d %s", ev.Before, ev.After, ev.Reason), ev.Actor)
		e.publish(messaging.KindStock, ev)
	}, EventStockCorrected)

	// Material requests: audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(MaterialRequestedEvent)
		action := "material_requested"
		if !ev.Sent {
			action = "material_request_failed"
		}
		e.db.AppendAudit("post", ev.Post, action, ev.Detail, "system")
	}, EventMaterialRequested)

	// Snapshots: metrics, publish
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(SnapshotEvent)
		for post, score := range ev.Snapshot.Health {
			e.metrics.SetHealth(lineID, post, score.Value)
		}
		e.metrics.SetLineHealth(lineID, ev.Snapshot.Metrics.AvgHealth)
		e.updateAlertMetrics()
		if ev.Diff.HasChanges {
			e.publish(messaging.KindDiff, ev.Diff)
		}
		e.publish(messaging.KindSnapshot, ev.Snapshot.Metrics)
	}, EventSnapshot)

	// New maintenance alerts: audit, publish
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(AlertRaisedEvent)
		e.db.AppendAudit("alert", ev.Alert.ID, "raised", fmt.Sprintf("%s %s: %s", ev.Alert.PostID, ev.Alert.Severity, ev.Alert.Title), "system")
		e.publish(messaging.KindAlert, ev.Alert)
	}, EventAlertRaised)

	// Alert lifecycle: audit, metrics
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(AlertChangedEvent)
		e.db.AppendAudit("alert", ev.Alert.ID, ev.Action, ev.Alert.PostID, ev.Actor)
		e.updateAlertMetrics()
		e.publish(messaging.KindAlert, ev.Alert)
	}, EventAlertChanged)

	// Trigger detections: metrics
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(CriticalAlertEvent)
		if ev.Alert.PostIndex > 0 {
			e.metrics.Detections.Inc()
		}
	}, EventCriticalAlert)

	// Connection changes: log
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.logFn("engine: %s", ev.Detail)
	}, EventProviderConnected, EventProviderDisconnected, EventMessagingConnected, EventMessagingDisconnected)
}

// requestMaterial asks the AGV for material at a post whose stock crossed
// a threshold. Only serial providers can reach the AGV.
func (e *Engine) requestMaterial(ev StockAlertEvent) {
	serial, ok := iot.SerialOf(e.provider)
	if !ok {
		return
	}
	idx := e.postIndex(ev.Post)
	msg := "stock low"
	if ev.Kind == flow.ThresholdOut {
		msg = "stock out"
	}
	req := MaterialRequestedEvent{Post: ev.Post, PostIndex: idx, Kind: ev.Kind, Detail: msg}
	if err := serial.SendInstruction(protocol.NewInstruction(true, map[int]string{idx: msg})); err != nil {
		e.logFn("engine: material request for %s: %v", ev.Post, err)
		req.Detail = err.Error()
	} else {
		req.Sent = true
	}
	e.Events.Emit(Event{Type: EventMaterialRequested, Payload: req})
}

func (e *Engine) updateAlertMetrics() {
	counts := make(map[string]int)
	for sev, n := range e.alerts.CountsBySeverity() {
		counts[sev.String()] = n
	}
	for _, sev := range []alerts.Severity{alerts.SeverityLow, alerts.SeverityMedium, alerts.SeverityHigh, alerts.SeverityCritical} {
		if _, ok := counts[sev.String()]; !ok {
			counts[sev.String()] = 0
		}
	}
	e.metrics.SetOpenAlerts(counts)
}

// publish queues an envelope for the messaging client. Only the publisher
// goroutine talks to the broker.
func (e *Engine) publish(kind string, payload any) {
	env, err := messaging.NewEnvelope(kind, e.cfg.FactoryID, e.cfg.Line.ID, payload)
	if err != nil {
		e.logFn("engine: %v", err)
		return
	}
	if e.pub == nil {
		return
	}
	topic := messaging.Topic(e.msgClient.TopicPrefix(), e.cfg.Line.ID, kind)
	if err := e.pub.submit(topic, env); err != nil && !errors.Is(err, messaging.ErrNotConnected) {
		if errors.Is(err, errPublishQueueFull) {
			e.metrics.PublishDropped.Inc()
		}
		e.logFn("engine: publish %s: %v", topic, err)
	}
}
